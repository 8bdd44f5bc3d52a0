package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridecast.dev/transit/geo"
	"ridecast.dev/transit/model"
	"ridecast.dev/transit/repository"
	"ridecast.dev/transit/storage"
)

type memFeed struct {
	stops  []model.Stop
	routes []model.Route
	trips  []model.Trip
	sts    []model.StopTime
}

func (f *memFeed) Agencies() ([]model.Agency, error)            { return nil, nil }
func (f *memFeed) Stops() ([]model.Stop, error)                 { return f.stops, nil }
func (f *memFeed) Routes() ([]model.Route, error)               { return f.routes, nil }
func (f *memFeed) Trips() ([]model.Trip, error)                 { return f.trips, nil }
func (f *memFeed) StopTimes() ([]model.StopTime, error)         { return f.sts, nil }
func (f *memFeed) Calendars() ([]model.Calendar, error)         { return nil, nil }
func (f *memFeed) CalendarDates() ([]model.CalendarDate, error) { return nil, nil }
func (f *memFeed) Transfers() ([]model.Transfer, error)         { return nil, nil }
func (f *memFeed) ShapePoints() ([]model.ShapePoint, error)     { return nil, nil }

var _ storage.FeedReader = (*memFeed)(nil)

func scenarioIndices(t *testing.T) *Indices {
	t.Helper()
	feed := &memFeed{
		stops: []model.Stop{
			{ID: "A", Name: "Alpha Street", Lat: 0.000, Lon: 0.000, LocationType: model.LocationTypeStop},
			{ID: "B", Name: "Beta Ave", Lat: 0.002, Lon: 0.002, LocationType: model.LocationTypeStop},
			{ID: "C", Name: "Gamma Road", Lat: 0.010, Lon: 0.000, LocationType: model.LocationTypeStop},
			{ID: "D", Name: "Delta Plaza", Lat: 0.010, Lon: 0.010, LocationType: model.LocationTypeStop},
		},
		routes: []model.Route{{ID: "R1", Type: model.RouteTypeBus}},
		trips:  []model.Trip{{ID: "T1", RouteID: "R1", ServiceID: "svc"}},
		sts: []model.StopTime{
			{TripID: "T1", StopID: "A", StopSequence: 1, Arrival: "080000", Departure: "080000"},
			{TripID: "T1", StopID: "C", StopSequence: 2, Arrival: "080500", Departure: "080530"},
			{TripID: "T1", StopID: "D", StopSequence: 3, Arrival: "081200", Departure: "081200"},
		},
	}

	result, err := repository.Build(feed, repository.BuildOptions{})
	require.NoError(t, err)
	return Build(result.Repository)
}

func TestSearchStopsExactFirst(t *testing.T) {
	idx := scenarioIndices(t)
	hits := idx.SearchStops("Alpha", 10)
	require.NotEmpty(t, hits)
	assert.Equal(t, "A", hits[0].ID)
}

func TestNearStopsTieBreakByID(t *testing.T) {
	idx := scenarioIndices(t)
	// (0.001, 0.001) is ~157m from both A and B.
	near := idx.NearStops(geo.Coordinate{Lat: 0.001, Lon: 0.001}, 500)
	require.Len(t, near, 2)
	assert.Equal(t, "A", near[0].ID)
	assert.Equal(t, "B", near[1].ID)
	assert.InDelta(t, near[0].Meters, near[1].Meters, 1)
}

func TestStopByIDUnknown(t *testing.T) {
	idx := scenarioIndices(t)
	_, err := idx.StopByID("nope")
	assert.ErrorIs(t, err, ErrStopIDUnknown)
}
