// Package dataset owns the live, swappable view of a GTFS feed: the
// built Repository + Indices + Scratch pool a RAPTOR query runs
// against, and the install pipeline that replaces them with zero
// downtime under concurrent read traffic (spec §4.6).
package dataset

import (
	"log/slog"
	"sync/atomic"
	"time"

	"ridecast.dev/transit/index"
	"ridecast.dev/transit/raptor"
	"ridecast.dev/transit/repository"
	"ridecast.dev/transit/storage"
)

// Snapshot is one immutable, installed view of a GTFS archive: a
// built Repository, its derived Indices, and the Scratch pool sized
// for it. A Snapshot never changes after Build returns it — that's
// what lets Engine swap Current out from under in-flight queries
// without locking them.
type Snapshot struct {
	Repository *repository.Repository
	Indices    *index.Indices
	Pool       *raptor.Pool
	Metadata   *storage.FeedMetadata
	BuiltAt    time.Time

	// refs counts in-flight holders of this snapshot. Acquire/Release
	// let a long-running query keep its snapshot alive across a
	// concurrent Engine.Install that replaces Current — the old
	// Snapshot is only eligible for collection once its last
	// in-flight query returns (spec §4.6 step 3).
	refs int64
}

// buildSnapshot runs repository.Build + index.Build + a freshly sized
// Pool over reader, the one-shot path every install (URL, bytes, or
// cache-hit reload) funnels through. Any build warnings (FIFO
// violations, dropped stop_times, dangling references — see
// repository.BuildResult.Warnings) are logged at warn level rather
// than silently dropped, per spec §4.1.
func buildSnapshot(logger *slog.Logger, reader storage.FeedReader, metadata *storage.FeedMetadata, buildOpts repository.BuildOptions, allocatorCount, maxRounds int) (*Snapshot, error) {
	result, err := repository.Build(reader, buildOpts)
	if err != nil {
		return nil, err
	}
	for _, w := range result.Warnings {
		logger.Warn("gtfs build warning", "detail", w, "url", metadata.URL)
	}

	idx := index.Build(result.Repository)
	pool := raptor.NewPool(allocatorCount, len(result.Repository.Stops), len(result.Repository.Routes), maxRounds)

	return &Snapshot{
		Repository: result.Repository,
		Indices:    idx,
		Pool:       pool,
		Metadata:   metadata,
		BuiltAt:    time.Now(),
	}, nil
}

// Acquire increments the snapshot's reference count and returns it,
// for a caller about to run a query against it.
func (s *Snapshot) Acquire() *Snapshot {
	atomic.AddInt64(&s.refs, 1)
	return s
}

// Release decrements the reference count once a query holding this
// snapshot has returned. Every Acquire must be paired with exactly one
// Release.
func (s *Snapshot) Release() {
	atomic.AddInt64(&s.refs, -1)
}

// RefCount reports the current number of in-flight holders. Exposed
// for diagnostics/tests; Engine never branches on it directly — Go's
// garbage collector reclaims a Snapshot once nothing references it,
// regardless of what refs says.
func (s *Snapshot) RefCount() int64 {
	return atomic.LoadInt64(&s.refs)
}
