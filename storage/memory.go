package storage

import (
	"fmt"
	"sort"
	"sync"

	"ridecast.dev/transit/model"
)

// MemoryStorage is an in-memory Storage implementation. It is the
// default backend for tests and for single-process deployments that
// don't need feed data to survive a restart.
type MemoryStorage struct {
	mutex    sync.Mutex
	Metadata map[memoryMetadataKey]*FeedMetadata
	Feeds    map[string]*memoryFeed
}

type memoryMetadataKey struct {
	URL    string
	SHA256 string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		Metadata: map[memoryMetadataKey]*FeedMetadata{},
		Feeds:    map[string]*memoryFeed{},
	}
}

func (s *MemoryStorage) ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	feeds := []*FeedMetadata{}
	for _, metadata := range s.Metadata {
		if filter.URL != "" && metadata.URL != filter.URL {
			continue
		}
		if filter.SHA256 != "" && metadata.SHA256 != filter.SHA256 {
			continue
		}
		feeds = append(feeds, metadata)
	}
	sort.Slice(feeds, func(i, j int) bool {
		return feeds[i].RetrievedAt.After(feeds[j].RetrievedAt)
	})
	return feeds, nil
}

func (s *MemoryStorage) WriteFeedMetadata(metadata *FeedMetadata) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Metadata[memoryMetadataKey{metadata.URL, metadata.SHA256}] = metadata
	return nil
}

func (s *MemoryStorage) DeleteFeedMetadata(url string, sha256 string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	key := memoryMetadataKey{url, sha256}
	if _, found := s.Metadata[key]; !found {
		return fmt.Errorf("feed not found: %s %s", url, sha256)
	}
	delete(s.Metadata, key)
	return nil
}

func (s *MemoryStorage) GetReader(sha256 string) (FeedReader, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	feed, found := s.Feeds[sha256]
	if !found {
		return nil, fmt.Errorf("feed not found: %s", sha256)
	}
	return feed, nil
}

func (s *MemoryStorage) GetWriter(sha256 string) (FeedWriter, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	feed := &memoryFeed{}
	s.Feeds[sha256] = feed
	return feed, nil
}

// memoryFeed holds every record for a single feed as plain slices. It
// implements both FeedWriter and FeedReader.
type memoryFeed struct {
	agencies      []model.Agency
	stops         []model.Stop
	routes        []model.Route
	trips         []model.Trip
	stopTimes     []model.StopTime
	calendars     []model.Calendar
	calendarDates []model.CalendarDate
	transfers     []model.Transfer
	shapePoints   []model.ShapePoint
}

func (f *memoryFeed) WriteAgency(a model.Agency) error { f.agencies = append(f.agencies, a); return nil }
func (f *memoryFeed) WriteStop(s model.Stop) error     { f.stops = append(f.stops, s); return nil }
func (f *memoryFeed) WriteRoute(r model.Route) error   { f.routes = append(f.routes, r); return nil }

func (f *memoryFeed) BeginTrips() error             { return nil }
func (f *memoryFeed) WriteTrip(t model.Trip) error  { f.trips = append(f.trips, t); return nil }
func (f *memoryFeed) EndTrips() error               { return nil }

func (f *memoryFeed) WriteCalendar(c model.Calendar) error {
	f.calendars = append(f.calendars, c)
	return nil
}

func (f *memoryFeed) WriteCalendarDate(cd model.CalendarDate) error {
	f.calendarDates = append(f.calendarDates, cd)
	return nil
}

func (f *memoryFeed) BeginStopTimes() error { return nil }
func (f *memoryFeed) WriteStopTime(st model.StopTime) error {
	f.stopTimes = append(f.stopTimes, st)
	return nil
}
func (f *memoryFeed) EndStopTimes() error { return nil }

func (f *memoryFeed) WriteTransfer(t model.Transfer) error {
	f.transfers = append(f.transfers, t)
	return nil
}

func (f *memoryFeed) WriteShapePoint(p model.ShapePoint) error {
	f.shapePoints = append(f.shapePoints, p)
	return nil
}

func (f *memoryFeed) Close() error { return nil }

func (f *memoryFeed) Agencies() ([]model.Agency, error)           { return f.agencies, nil }
func (f *memoryFeed) Stops() ([]model.Stop, error)                { return f.stops, nil }
func (f *memoryFeed) Routes() ([]model.Route, error)              { return f.routes, nil }
func (f *memoryFeed) Trips() ([]model.Trip, error)                { return f.trips, nil }
func (f *memoryFeed) StopTimes() ([]model.StopTime, error)        { return f.stopTimes, nil }
func (f *memoryFeed) Calendars() ([]model.Calendar, error)        { return f.calendars, nil }
func (f *memoryFeed) CalendarDates() ([]model.CalendarDate, error) { return f.calendarDates, nil }
func (f *memoryFeed) Transfers() ([]model.Transfer, error)        { return f.transfers, nil }
func (f *memoryFeed) ShapePoints() ([]model.ShapePoint, error)    { return f.shapePoints, nil }
