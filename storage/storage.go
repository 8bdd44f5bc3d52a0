// Package storage stages raw GTFS records between parsing and
// repository build. It deliberately knows nothing about RAPTOR routes,
// spatial proximity or fuzzy search — it is just a durable, swappable
// place to put the rows parse.ParseStatic produces, keyed by the
// SHA256 of the archive they came from so re-installing an unchanged
// feed is a no-op.
package storage

import (
	"time"

	"ridecast.dev/transit/model"
)

// Storage is the feed-level cache: which GTFS archives have been seen,
// and where their parsed records live.
type Storage interface {
	// ListFeeds retrieves all feed metadata records matching filter.
	ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error)

	// WriteFeedMetadata writes or updates a FeedMetadata record, keyed
	// by (URL, SHA256).
	WriteFeedMetadata(metadata *FeedMetadata) error

	// DeleteFeedMetadata removes the record for (url, sha256). An
	// empty sha256 matches the placeholder record written by an async
	// feed request.
	DeleteFeedMetadata(url string, sha256 string) error

	// GetReader returns a reader over the parsed records for the feed
	// with the given content hash.
	GetReader(sha256 string) (FeedReader, error)

	// GetWriter returns a writer to stage parsed records for the feed
	// with the given content hash.
	GetWriter(sha256 string) (FeedWriter, error)
}

type ListFeedsFilter struct {
	// If set, only include feeds with the given URL.
	URL string

	// If set, only include feeds with the given content hash.
	SHA256 string
}

// FeedMetadata summarizes a parsed static GTFS feed. Most fields are
// derived from calendar.txt / calendar_dates.txt / stop_times.txt
// during parse, and are used by dataset.Manager to decide which of
// potentially several cached feeds for a URL is active "now".
type FeedMetadata struct {
	URL         string
	SHA256      string
	RetrievedAt time.Time
	UpdatedAt   time.Time

	Timezone string

	// Validity window declared by feed_info.txt, if present.
	FeedStartDate string
	FeedEndDate   string

	// Validity window derived from calendar.txt / calendar_dates.txt.
	CalendarStartDate string
	CalendarEndDate   string

	// Latest arrival/departure time seen in stop_times.txt, as
	// HHMMSS, used to bound overnight-trip lookups.
	MaxArrival   string
	MaxDeparture string
}

// FeedWriter stages parsed GTFS records for a single feed. stop_times
// and trips tend to be the largest tables, so Begin/End brackets are
// provided around each to allow transactions/batching.
type FeedWriter interface {
	WriteAgency(agency model.Agency) error
	WriteStop(stop model.Stop) error
	WriteRoute(route model.Route) error

	BeginTrips() error
	WriteTrip(trip model.Trip) error
	EndTrips() error

	WriteCalendar(cal model.Calendar) error
	WriteCalendarDate(cd model.CalendarDate) error

	BeginStopTimes() error
	WriteStopTime(st model.StopTime) error
	EndStopTimes() error

	WriteTransfer(t model.Transfer) error
	WriteShapePoint(p model.ShapePoint) error

	Close() error
}

// FeedReader retrieves the staged records for a single feed, in no
// particular order (repository.Build does all necessary sorting and
// grouping).
type FeedReader interface {
	Agencies() ([]model.Agency, error)
	Stops() ([]model.Stop, error)
	Routes() ([]model.Route, error)
	Trips() ([]model.Trip, error)
	StopTimes() ([]model.StopTime, error)
	Calendars() ([]model.Calendar, error)
	CalendarDates() ([]model.CalendarDate, error)
	Transfers() ([]model.Transfer, error)
	ShapePoints() ([]model.ShapePoint, error)
}
