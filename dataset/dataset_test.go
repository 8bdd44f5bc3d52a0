package dataset

import (
	"context"
	"crypto/sha256"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridecast.dev/transit/geo"
	"ridecast.dev/transit/gtfstime"
	"ridecast.dev/transit/model"
	"ridecast.dev/transit/raptor"
	"ridecast.dev/transit/repository"
	"ridecast.dev/transit/storage"
)

// writeScenario stages the same A/B/C/D, route R1, trip T1 feed
// raptor_test.go and repository_test.go exercise into store under
// sha256, and returns the FeedMetadata record an install would leave
// behind (active for all of 2026, America/Los_Angeles).
func writeScenario(t *testing.T, store storage.Storage, url, sha256 string, retrievedAt time.Time) *storage.FeedMetadata {
	t.Helper()

	writer, err := store.GetWriter(sha256)
	require.NoError(t, err)

	require.NoError(t, writer.WriteAgency(model.Agency{ID: "agency1", Name: "Test Agency", Timezone: "America/Los_Angeles"}))
	stops := []model.Stop{
		{ID: "A", Name: "A", Lat: 0.000, Lon: 0.000, LocationType: model.LocationTypeStop},
		{ID: "B", Name: "B", Lat: 0.002, Lon: 0.002, LocationType: model.LocationTypeStop},
		{ID: "C", Name: "C", Lat: 0.010, Lon: 0.000, LocationType: model.LocationTypeStop},
		{ID: "D", Name: "D", Lat: 0.010, Lon: 0.010, LocationType: model.LocationTypeStop},
	}
	for _, s := range stops {
		require.NoError(t, writer.WriteStop(s))
	}
	require.NoError(t, writer.WriteRoute(model.Route{ID: "R1", ShortName: "R1", Type: model.RouteTypeBus}))

	require.NoError(t, writer.BeginTrips())
	require.NoError(t, writer.WriteTrip(model.Trip{ID: "T1", RouteID: "R1", ServiceID: "weekday"}))
	require.NoError(t, writer.EndTrips())

	require.NoError(t, writer.BeginStopTimes())
	stopTimes := []model.StopTime{
		{TripID: "T1", StopID: "A", StopSequence: 1, Arrival: "080000", Departure: "080000"},
		{TripID: "T1", StopID: "C", StopSequence: 2, Arrival: "080500", Departure: "080530"},
		{TripID: "T1", StopID: "D", StopSequence: 3, Arrival: "081200", Departure: "081200"},
	}
	for _, st := range stopTimes {
		require.NoError(t, writer.WriteStopTime(st))
	}
	require.NoError(t, writer.EndStopTimes())

	require.NoError(t, writer.WriteCalendar(model.Calendar{ServiceID: "weekday", StartDate: "20260101", EndDate: "20261231", Weekday: 0x7E}))
	require.NoError(t, writer.Close())

	metadata := &storage.FeedMetadata{
		URL:               url,
		SHA256:            sha256,
		RetrievedAt:       retrievedAt,
		UpdatedAt:         retrievedAt,
		Timezone:          "America/Los_Angeles",
		CalendarStartDate: "20260101",
		CalendarEndDate:   "20261231",
	}
	require.NoError(t, store.WriteFeedMetadata(metadata))
	return metadata
}

func midYear2026() time.Time {
	return time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
}

func TestManagerLoadStaticUsesCachedFeed(t *testing.T) {
	store := storage.NewMemoryStorage()
	writeScenario(t, store, "http://example.com/feed.zip", "deadbeef", midYear2026())

	m := NewManager(store, 2, repository.BuildOptions{})
	snap, err := m.LoadStatic("http://example.com/feed.zip", midYear2026())
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Len(t, snap.Repository.Stops, 4)
	assert.NotNil(t, snap.Indices)
	assert.NotNil(t, snap.Pool)
}

func TestManagerLoadStaticNoActiveFeed(t *testing.T) {
	store := storage.NewMemoryStorage()
	metadata := writeScenario(t, store, "http://example.com/feed.zip", "deadbeef", midYear2026())
	metadata.CalendarEndDate = "20250101"
	require.NoError(t, store.WriteFeedMetadata(metadata))

	m := NewManager(store, 2, repository.BuildOptions{})
	_, err := m.LoadStatic("http://example.com/feed.zip", midYear2026())
	assert.ErrorIs(t, err, ErrNoActiveFeed)
}

func TestManagerLoadStaticAsyncUnseenURLLeavesPlaceholder(t *testing.T) {
	store := storage.NewMemoryStorage()
	m := NewManager(store, 2, repository.BuildOptions{})

	_, err := m.LoadStaticAsync("http://example.com/new-feed.zip", midYear2026())
	assert.ErrorIs(t, err, ErrNoActiveFeed)

	feeds, err := store.ListFeeds(storage.ListFeedsFilter{URL: "http://example.com/new-feed.zip"})
	require.NoError(t, err)
	require.Len(t, feeds, 1)
	assert.Empty(t, feeds[0].SHA256)
}

func TestEngineRouteAgainstInstalledSnapshot(t *testing.T) {
	store := storage.NewMemoryStorage()
	writeScenario(t, store, "http://example.com/feed.zip", "deadbeef", midYear2026())

	m := NewManager(store, 2, repository.BuildOptions{})
	engine := NewEngine(m, geo.DefaultWalkSpeedMPS)

	require.NoError(t, engine.Install("http://example.com/feed.zip"))
	assert.GreaterOrEqual(t, engine.DatasetAgeSeconds(), int64(0))

	it, err := engine.Route(context.Background(),
		raptor.NewStopLocation("A"), raptor.NewStopLocation("D"),
		raptor.Constraint{Kind: raptor.DepartAt, Time: gtfstime.TimeOfDay(8 * 3600)},
		raptor.Options{})
	require.NoError(t, err)
	require.Len(t, it.Legs, 1)
	assert.Equal(t, raptor.LegTransit, it.Legs[0].Kind)

	stops, err := engine.SearchStops("A", 5)
	require.NoError(t, err)
	require.NotEmpty(t, stops)
	assert.Equal(t, "A", stops[0].ID)

	near, err := engine.NearStops(geo.Coordinate{Lat: 0, Lon: 0}, 1000)
	require.NoError(t, err)
	assert.NotEmpty(t, near)
}

func TestEngineRouteBeforeInstallIsRepositoryUnavailable(t *testing.T) {
	store := storage.NewMemoryStorage()
	m := NewManager(store, 2, repository.BuildOptions{})
	engine := NewEngine(m, geo.DefaultWalkSpeedMPS)

	assert.Equal(t, int64(-1), engine.DatasetAgeSeconds())

	_, err := engine.Route(context.Background(),
		raptor.NewStopLocation("A"), raptor.NewStopLocation("D"),
		raptor.Constraint{Kind: raptor.DepartAt, Time: gtfstime.TimeOfDay(8 * 3600)},
		raptor.Options{})
	require.Error(t, err)
	rerr, ok := err.(*raptor.RoutingError)
	require.True(t, ok)
	assert.Equal(t, raptor.RepositoryUnavailable, rerr.Kind)

	_, searchErr := engine.SearchStops("A", 5)
	assert.ErrorIs(t, searchErr, ErrNoSnapshot)
}

func TestEngineInstallDatasetFromBytesDedupsByHash(t *testing.T) {
	store := storage.NewMemoryStorage()
	// Pre-stage a feed as if a previous InstallDatasetFromBytes had
	// already parsed these exact bytes, keyed by their content hash;
	// InstallFromBytes should reuse it rather than re-parsing garbage
	// bytes as a zip.
	zipBytes := []byte("not a zip archive")
	sha := fmt.Sprintf("%x", sha256.Sum256(zipBytes))
	writeScenario(t, store, "inline-upload", sha, midYear2026())

	m := NewManager(store, 2, repository.BuildOptions{})
	engine := NewEngine(m, geo.DefaultWalkSpeedMPS)
	require.NoError(t, engine.InstallDatasetFromBytes(zipBytes, "inline-upload"))
	snap := engine.current.Load()
	require.NotNil(t, snap)
	assert.Len(t, snap.Repository.Stops, 4)
}
