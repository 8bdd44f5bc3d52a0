package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridecast.dev/transit/gtfstime"
	"ridecast.dev/transit/model"
	"ridecast.dev/transit/storage"
)

// memFeed is a minimal in-memory storage.FeedReader for repository
// tests, built directly from model slices rather than through a
// storage backend.
type memFeed struct {
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

func (f *memFeed) Agencies() ([]model.Agency, error)           { return f.agencies, nil }
func (f *memFeed) Stops() ([]model.Stop, error)                { return f.stops, nil }
func (f *memFeed) Routes() ([]model.Route, error)              { return f.routes, nil }
func (f *memFeed) Trips() ([]model.Trip, error)                { return f.trips, nil }
func (f *memFeed) StopTimes() ([]model.StopTime, error)        { return f.stopTimes, nil }
func (f *memFeed) Calendars() ([]model.Calendar, error)        { return f.calendars, nil }
func (f *memFeed) CalendarDates() ([]model.CalendarDate, error) { return f.calendarDates, nil }
func (f *memFeed) Transfers() ([]model.Transfer, error)        { return f.transfers, nil }
func (f *memFeed) ShapePoints() ([]model.ShapePoint, error)    { return f.shapePoints, nil }

var _ storage.FeedReader = (*memFeed)(nil)

// scenarioFeed builds the §8.2 synthetic feed: stops A, B, C, D and
// one route R1 = [A, C, D] served by trip T1.
func scenarioFeed() *memFeed {
	return &memFeed{
		agencies: []model.Agency{{ID: "agency1", Name: "Test Agency", Timezone: "America/Los_Angeles"}},
		stops: []model.Stop{
			{ID: "A", Name: "A", Lat: 0.000, Lon: 0.000, LocationType: model.LocationTypeStop},
			{ID: "B", Name: "B", Lat: 0.002, Lon: 0.002, LocationType: model.LocationTypeStop},
			{ID: "C", Name: "C", Lat: 0.010, Lon: 0.000, LocationType: model.LocationTypeStop},
			{ID: "D", Name: "D", Lat: 0.010, Lon: 0.010, LocationType: model.LocationTypeStop},
		},
		routes: []model.Route{
			{ID: "R1", ShortName: "R1", Type: model.RouteTypeBus},
		},
		trips: []model.Trip{
			{ID: "T1", RouteID: "R1", ServiceID: "weekday"},
		},
		stopTimes: []model.StopTime{
			{TripID: "T1", StopID: "A", StopSequence: 1, Arrival: "080000", Departure: "080000"},
			{TripID: "T1", StopID: "C", StopSequence: 2, Arrival: "080500", Departure: "080530"},
			{TripID: "T1", StopID: "D", StopSequence: 3, Arrival: "081200", Departure: "081200"},
		},
		calendars: []model.Calendar{
			{ServiceID: "weekday", StartDate: "20260101", EndDate: "20261231", Weekday: 0x7E}, // Mon-Sat
		},
	}
}

func TestBuildScenario(t *testing.T) {
	result, err := Build(scenarioFeed(), BuildOptions{})
	require.NoError(t, err)
	repo := result.Repository

	require.Len(t, repo.Stops, 4)
	require.Len(t, repo.Routes, 1)

	route := repo.Routes[0]
	aIx, cIx, dIx := repo.StopIndex["A"], repo.StopIndex["C"], repo.StopIndex["D"]
	assert.Equal(t, []int{aIx, cIx, dIx}, route.StopIxs)

	require.Len(t, repo.Trips[0], 1)
	trip := repo.Trips[0][0]
	assert.Equal(t, "T1", trip.ID)
	assert.Equal(t, gtfsTime(8, 0, 0), trip.StopTimes[0].Departure)
	assert.Equal(t, gtfsTime(8, 12, 0), trip.StopTimes[2].Arrival)

	// Footpath A<->B, ~314m at 1.4 m/s -> ceil(314/1.4) = 225s.
	bIx := repo.StopIndex["B"]
	var gotSecs = -1
	for _, e := range repo.Transfers[aIx] {
		if e.ToStopIx == bIx {
			gotSecs = e.Seconds
		}
	}
	assert.Equal(t, 225, gotSecs)

	// Symmetry.
	var backSecs = -1
	for _, e := range repo.Transfers[bIx] {
		if e.ToStopIx == aIx {
			backSecs = e.Seconds
		}
	}
	assert.Equal(t, gotSecs, backSecs)

	// Self transfers are free.
	var selfSecs = -1
	for _, e := range repo.Transfers[aIx] {
		if e.ToStopIx == aIx {
			selfSecs = e.Seconds
		}
	}
	assert.Equal(t, 0, selfSecs)

	// ActiveOn: weekday calendar covers a Wednesday in range.
	wed := time.Date(2026, 8, 5, 0, 0, 0, 0, time.UTC)
	assert.True(t, repo.ActiveOn("weekday", wed))
	sun := time.Date(2026, 8, 9, 0, 0, 0, 0, time.UTC)
	assert.False(t, repo.ActiveOn("weekday", sun))
}

func TestBuildFIFOViolationDropsLaterTrip(t *testing.T) {
	feed := &memFeed{
		stops: []model.Stop{
			{ID: "A", LocationType: model.LocationTypeStop},
			{ID: "B", LocationType: model.LocationTypeStop},
		},
		routes: []model.Route{{ID: "R1", Type: model.RouteTypeBus}},
		trips: []model.Trip{
			{ID: "early", RouteID: "R1", ServiceID: "svc"},
			{ID: "late-but-overtakes", RouteID: "R1", ServiceID: "svc"},
		},
		stopTimes: []model.StopTime{
			{TripID: "early", StopID: "A", StopSequence: 1, Arrival: "080000", Departure: "080000"},
			{TripID: "early", StopID: "B", StopSequence: 2, Arrival: "083000", Departure: "083000"},
			// Departs later at A but arrives earlier at B: violates FIFO.
			{TripID: "late-but-overtakes", StopID: "A", StopSequence: 1, Arrival: "080500", Departure: "080500"},
			{TripID: "late-but-overtakes", StopID: "B", StopSequence: 2, Arrival: "082000", Departure: "082000"},
		},
	}

	result, err := Build(feed, BuildOptions{})
	require.NoError(t, err)
	repo := result.Repository

	require.Len(t, repo.Trips[0], 1)
	assert.Equal(t, "early", repo.Trips[0][0].ID)
	assert.NotEmpty(t, result.Warnings)
}

func TestBuildRoutesAtStopInversion(t *testing.T) {
	result, err := Build(scenarioFeed(), BuildOptions{})
	require.NoError(t, err)
	repo := result.Repository

	cIx := repo.StopIndex["C"]
	require.Len(t, repo.RoutesAtStop[cIx], 1)
	assert.Equal(t, 0, repo.RoutesAtStop[cIx][0].RouteIx)
	assert.Equal(t, 1, repo.RoutesAtStop[cIx][0].Position)
}

func TestBuildFailsWithNoStops(t *testing.T) {
	_, err := Build(&memFeed{}, BuildOptions{})
	assert.Error(t, err)
}

func gtfsTime(h, m, s int) gtfstime.TimeOfDay {
	return gtfstime.TimeOfDay(h*3600 + m*60 + s)
}
