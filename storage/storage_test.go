package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridecast.dev/transit/model"
)

func TestMemoryStorageRoundTrip(t *testing.T) {
	s := NewMemoryStorage()

	meta := &FeedMetadata{
		URL:               "https://example.com/gtfs.zip",
		SHA256:            "abc123",
		RetrievedAt:       time.Now(),
		Timezone:          "America/Los_Angeles",
		CalendarStartDate: "20260101",
		CalendarEndDate:   "20261231",
	}
	require.NoError(t, s.WriteFeedMetadata(meta))

	writer, err := s.GetWriter("abc123")
	require.NoError(t, err)
	require.NoError(t, writer.WriteStop(model.Stop{ID: "s1", Name: "Main St"}))
	require.NoError(t, writer.WriteRoute(model.Route{ID: "r1", ShortName: "1"}))
	require.NoError(t, writer.WriteTransfer(model.Transfer{FromStopID: "s1", ToStopID: "s2", MinTransferSecs: 120}))
	require.NoError(t, writer.Close())

	feeds, err := s.ListFeeds(ListFeedsFilter{URL: meta.URL})
	require.NoError(t, err)
	require.Len(t, feeds, 1)
	assert.Equal(t, "abc123", feeds[0].SHA256)

	reader, err := s.GetReader("abc123")
	require.NoError(t, err)

	stops, err := reader.Stops()
	require.NoError(t, err)
	require.Len(t, stops, 1)
	assert.Equal(t, "Main St", stops[0].Name)

	transfers, err := reader.Transfers()
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, 120, transfers[0].MinTransferSecs)
}

func TestMemoryStorageDeleteMetadata(t *testing.T) {
	s := NewMemoryStorage()
	require.NoError(t, s.WriteFeedMetadata(&FeedMetadata{URL: "u", SHA256: "h"}))
	require.NoError(t, s.DeleteFeedMetadata("u", "h"))

	err := s.DeleteFeedMetadata("u", "h")
	assert.Error(t, err)
}

func TestMemoryStorageReaderNotFound(t *testing.T) {
	s := NewMemoryStorage()
	_, err := s.GetReader("missing")
	assert.Error(t, err)
}
