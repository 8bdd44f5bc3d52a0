package dataset

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"ridecast.dev/transit/downloader"
	"ridecast.dev/transit/parse"
	"ridecast.dev/transit/repository"
	"ridecast.dev/transit/storage"
)

const DefaultStaticRefreshInterval = 12 * time.Hour

const defaultMaxRounds = 8

const defaultFetchTimeout = 60 * time.Second

var ErrNoActiveFeed = errors.New("no active feed found")

// Manager owns the feed-metadata cache and the fetch/parse/build
// pipeline that turns a GTFS archive into a Snapshot. It generalizes
// the single-feed-reader Manager this module started from: the same
// LoadStatic/LoadStaticAsync/Refresh shape and the same SHA256-keyed
// dedup of re-fetched archives, but producing a routable Snapshot
// (Repository + Indices + Pool) rather than a flat reader.
type Manager struct {
	RefreshInterval time.Duration

	// Downloader fetches a static feed's bytes. Defaults to a plain,
	// uncached downloader.HTTPGet. refreshStatic leaves GetOptions.Cache
	// unset, so a downloader.NewFilesystem or downloader.NewMemory
	// swapped in here also fetches on every call and caches nothing.
	Downloader downloader.Downloader

	// Logger receives build warnings (FIFO violations, dropped
	// stop_times, dangling references) surfaced by every install path.
	// Defaults to slog.Default(); set it from config.LogLevel via
	// slog.New so verbosity follows TRANSIT_LOG_LEVEL.
	Logger *slog.Logger

	storage        storage.Storage
	buildOpts      repository.BuildOptions
	allocatorCount int
	maxRounds      int

	// writeMu serializes every path that mutates the feed cache
	// (fetching, parsing, writing metadata), matching spec §4.6's
	// "concurrent installs are serialized by a single writer lock."
	// Reads (LoadStatic against an already-cached feed) don't take it.
	writeMu sync.Mutex
}

func NewManager(store storage.Storage, allocatorCount int, buildOpts repository.BuildOptions) *Manager {
	return &Manager{
		storage:         store,
		RefreshInterval: DefaultStaticRefreshInterval,
		Downloader:      directDownloader{},
		Logger:          slog.Default(),
		buildOpts:       buildOpts,
		allocatorCount:  allocatorCount,
		maxRounds:       defaultMaxRounds,
	}
}

// directDownloader adapts downloader.HTTPGet (a bare function) to the
// downloader.Downloader interface so Manager always has a non-nil
// default.
type directDownloader struct{}

func (directDownloader) Get(ctx context.Context, url string, headers map[string]string, opts downloader.GetOptions) ([]byte, error) {
	return downloader.HTTPGet(ctx, url, headers, opts)
}

// LoadStaticAsync returns the most recently retrieved, currently
// active Snapshot for url, never blocking on a fetch. If url is
// unseen, a placeholder record is left for a later Refresh to pick up
// and ErrNoActiveFeed is returned.
func (m *Manager) LoadStaticAsync(url string, when time.Time) (*Snapshot, error) {
	feeds, err := m.storage.ListFeeds(storage.ListFeedsFilter{URL: url})
	if err != nil {
		return nil, errors.Wrap(err, "listing feeds")
	}

	if len(feeds) == 0 {
		m.writeMu.Lock()
		err = m.storage.WriteFeedMetadata(&storage.FeedMetadata{URL: url})
		m.writeMu.Unlock()
		if err != nil {
			return nil, errors.Wrap(err, "writing feed metadata")
		}
		return nil, ErrNoActiveFeed
	}

	return m.loadMostRecentActive(feeds, when)
}

// LoadStatic returns the most recently retrieved, currently active
// Snapshot for url, fetching it synchronously on first sight.
func (m *Manager) LoadStatic(url string, when time.Time) (*Snapshot, error) {
	feeds, err := m.storage.ListFeeds(storage.ListFeedsFilter{URL: url})
	if err != nil {
		return nil, errors.Wrap(err, "listing feeds")
	}
	sort.Slice(feeds, func(i, j int) bool { return feeds[i].RetrievedAt.Before(feeds[j].RetrievedAt) })

	if len(feeds) == 0 {
		m.writeMu.Lock()
		metadata, err := m.refreshStatic(url)
		if err == nil {
			err = m.storage.WriteFeedMetadata(metadata)
		}
		m.writeMu.Unlock()
		if err != nil {
			return nil, errors.Wrap(err, "refreshing static")
		}
		feeds = []*storage.FeedMetadata{metadata}
	}

	return m.loadMostRecentActive(feeds, when)
}

// Refresh re-fetches every cached URL whose RefreshInterval has
// elapsed, or that was only ever requested asynchronously.
func (m *Manager) Refresh(ctx context.Context) error {
	feeds, err := m.storage.ListFeeds(storage.ListFeedsFilter{})
	if err != nil {
		return errors.Wrap(err, "listing feeds")
	}
	byURL := make(map[string][]*storage.FeedMetadata)
	for _, f := range feeds {
		byURL[f.URL] = append(byURL[f.URL], f)
	}

	for url, feeds := range byURL {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := m.refreshFeeds(url, feeds); err != nil {
			return errors.Wrapf(err, "refreshing %s", url)
		}
	}
	return nil
}

func (m *Manager) refreshFeeds(url string, feeds []*storage.FeedMetadata) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if len(feeds) == 1 && feeds[0].SHA256 == "" {
		metadata, err := m.refreshStatic(url)
		if err != nil {
			return errors.Wrapf(err, "refreshing static at %s", url)
		}
		if err := m.storage.WriteFeedMetadata(metadata); err != nil {
			return errors.Wrap(err, "writing metadata")
		}
		return errors.Wrap(m.storage.DeleteFeedMetadata(url, ""), "deleting placeholder metadata")
	}

	sort.Slice(feeds, func(i, j int) bool { return feeds[j].RetrievedAt.Before(feeds[i].RetrievedAt) })
	if !feeds[0].RetrievedAt.IsZero() && feeds[0].UpdatedAt.Add(m.RefreshInterval).Before(time.Now()) {
		metadata, err := m.refreshStatic(url)
		if err != nil {
			return errors.Wrapf(err, "refreshing static at %s", url)
		}
		if err := m.storage.WriteFeedMetadata(metadata); err != nil {
			return errors.Wrap(err, "writing metadata")
		}
	}
	return nil
}

// refreshStatic fetches url, dedups against whatever's already in
// storage by content hash, and parses brand-new content. Caller must
// hold writeMu.
func (m *Manager) refreshStatic(url string) (*storage.FeedMetadata, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultFetchTimeout)
	defer cancel()

	body, err := m.Downloader.Get(ctx, url, nil, downloader.GetOptions{Timeout: defaultFetchTimeout})
	if err != nil {
		return nil, errors.Wrap(err, "downloading")
	}
	hash := fmt.Sprintf("%x", sha256.Sum256(body))

	feeds, err := m.storage.ListFeeds(storage.ListFeedsFilter{SHA256: hash})
	if err != nil {
		return nil, errors.Wrap(err, "listing feeds")
	}
	if len(feeds) > 0 {
		for _, feed := range feeds {
			if feed.URL != url {
				feed.URL = url
				feed.UpdatedAt = time.Now()
				if err := m.storage.WriteFeedMetadata(feed); err != nil {
					return nil, errors.Wrap(err, "writing metadata")
				}
				return feed, nil
			}
		}
		feeds[0].UpdatedAt = time.Now()
		if err := m.storage.WriteFeedMetadata(feeds[0]); err != nil {
			return nil, errors.Wrap(err, "writing metadata")
		}
		return feeds[0], nil
	}

	writer, err := m.storage.GetWriter(hash)
	if err != nil {
		return nil, errors.Wrap(err, "getting writer")
	}
	defer writer.Close()

	metadata, err := parse.ParseStatic(writer, body)
	if err != nil {
		// A parse failure is permanent for this archive's bytes;
		// bump the existing record's timestamp (if any) so we don't
		// hammer a feed that will never parse, rather than retrying
		// immediately.
		if feeds, listErr := m.storage.ListFeeds(storage.ListFeedsFilter{URL: url}); listErr == nil && len(feeds) > 0 {
			sort.Slice(feeds, func(i, j int) bool { return feeds[i].RetrievedAt.After(feeds[j].RetrievedAt) })
			feeds[0].UpdatedAt = time.Now()
			_ = m.storage.WriteFeedMetadata(feeds[0])
		}
		return nil, errors.Wrap(err, "parsing feed")
	}

	metadata.SHA256 = hash
	metadata.URL = url
	metadata.RetrievedAt = time.Now()
	metadata.UpdatedAt = metadata.RetrievedAt
	return metadata, nil
}

// InstallFromBytes parses zipBytes directly (spec §6's
// install_dataset_from_bytes), deduping against storage by content
// hash exactly like a fetched archive would, and returns the built
// Snapshot without touching any Engine's current pointer.
func (m *Manager) InstallFromBytes(zipBytes []byte, label string) (*Snapshot, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	hash := fmt.Sprintf("%x", sha256.Sum256(zipBytes))

	feeds, err := m.storage.ListFeeds(storage.ListFeedsFilter{SHA256: hash})
	if err != nil {
		return nil, errors.Wrap(err, "listing feeds")
	}

	var metadata *storage.FeedMetadata
	if len(feeds) > 0 {
		metadata = feeds[0]
		metadata.UpdatedAt = time.Now()
	} else {
		writer, err := m.storage.GetWriter(hash)
		if err != nil {
			return nil, errors.Wrap(err, "getting writer")
		}
		defer writer.Close()

		metadata, err = parse.ParseStatic(writer, zipBytes)
		if err != nil {
			return nil, errors.Wrap(err, "parsing feed")
		}
		metadata.SHA256 = hash
		metadata.URL = label
		metadata.RetrievedAt = time.Now()
		metadata.UpdatedAt = metadata.RetrievedAt
	}

	if err := m.storage.WriteFeedMetadata(metadata); err != nil {
		return nil, errors.Wrap(err, "writing metadata")
	}

	return m.buildFromMetadata(metadata)
}

func feedActive(feed *storage.FeedMetadata, now time.Time) (bool, error) {
	feedTz, err := time.LoadLocation(feed.Timezone)
	if err != nil {
		return false, errors.Wrap(err, "loading timezone")
	}

	nowThere := now.In(feedTz)
	todayThere := time.Date(nowThere.Year(), nowThere.Month(), nowThere.Day(), 0, 0, 0, 0, feedTz).Format("20060102")

	if feed.FeedStartDate != "" && feed.FeedStartDate > todayThere {
		return false, nil
	}
	if feed.FeedEndDate != "" && feed.FeedEndDate < todayThere {
		return false, nil
	}
	if feed.CalendarStartDate > todayThere {
		return false, nil
	}
	if feed.CalendarEndDate < todayThere {
		return false, nil
	}
	return true, nil
}

func (m *Manager) loadMostRecentActive(feeds []*storage.FeedMetadata, when time.Time) (*Snapshot, error) {
	sort.Slice(feeds, func(i, j int) bool { return feeds[i].RetrievedAt.Before(feeds[j].RetrievedAt) })

	for i := len(feeds) - 1; i >= 0; i-- {
		ok, err := feedActive(feeds[i], when)
		if err != nil {
			return nil, errors.Wrap(err, "checking feed activity")
		}
		if !ok {
			continue
		}
		return m.buildFromMetadata(feeds[i])
	}
	return nil, ErrNoActiveFeed
}

func (m *Manager) buildFromMetadata(feed *storage.FeedMetadata) (*Snapshot, error) {
	reader, err := m.storage.GetReader(feed.SHA256)
	if err != nil {
		return nil, errors.Wrap(err, "getting reader")
	}
	return buildSnapshot(m.Logger, reader, feed, m.buildOpts, m.allocatorCount, m.maxRounds)
}
