// Package config reads the small set of environment-driven options
// the transit engine needs at startup: where to cache the live GTFS
// archive, how to size the scratch pool, and the walking/transfer
// distances that feed repository.Build and raptor.Solve. There is no
// config file format here — six flat options don't earn one, and the
// teacher itself has no config layer to generalize; this follows its
// plain, dependency-free style (read an env var, fall back to a
// default, wrap the occasional parse error with pkg/errors).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"ridecast.dev/transit/geo"
)

// LogLevel mirrors spec §6's log_level option.
type LogLevel string

const (
	LogLevelError LogLevel = "error"
	LogLevelWarn  LogLevel = "warn"
	LogLevelInfo  LogLevel = "info"
	LogLevelDebug LogLevel = "debug"
	LogLevelTrace LogLevel = "trace"
)

func (l LogLevel) valid() bool {
	switch l {
	case LogLevelError, LogLevelWarn, LogLevelInfo, LogLevelDebug, LogLevelTrace:
		return true
	}
	return false
}

// SlogLevel maps the spec's five named levels onto log/slog's
// integer Level, the same scheme the teacher's own config package
// uses to drive slog.HandlerOptions.Level. slog has no Trace level;
// it's mapped one tier below Debug, consistent with slog's own
// "lower is more verbose" convention.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogLevelError:
		return slog.LevelError
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelTrace:
		return slog.LevelDebug - 4
	default:
		return slog.LevelInfo
	}
}

// Config is every recognized option from spec §6's configuration
// table, with the spec's stated defaults already applied.
type Config struct {
	// GTFSDataPath is the on-disk directory where the live archive's
	// parsed records are cached (dataset.Manager's storage.Storage,
	// backed by storage.SQLiteStorage).
	GTFSDataPath string

	// AllocatorCount sizes the RAPTOR scratch pool, which also caps
	// query concurrency: a query blocks (or, in non-blocking mode,
	// fails with ErrScratchPoolExhausted) once every slot is in use.
	AllocatorCount int

	// WalkSpeedMPS is the pedestrian speed used both when deriving
	// footpaths at build time and when estimating access/egress walk
	// durations at query time.
	WalkSpeedMPS float64

	// FootpathRadiusM bounds how far apart two stops may be and still
	// get a derived transfer during repository.Build.
	FootpathRadiusM float64

	// AccessEgressRadiusM bounds how far a query's Coordinate endpoint
	// may snap to a stop.
	AccessEgressRadiusM float64

	LogLevel LogLevel
}

// Default returns spec §6's documented defaults: 400m footpath
// radius, 1500m access/egress radius, geo.DefaultWalkSpeedMPS walking
// speed, an allocator count of 4, info-level logging, and a
// "./gtfs-data" cache directory.
func Default() Config {
	return Config{
		GTFSDataPath:        "./gtfs-data",
		AllocatorCount:      4,
		WalkSpeedMPS:        geo.DefaultWalkSpeedMPS,
		FootpathRadiusM:     400,
		AccessEgressRadiusM: 1500,
		LogLevel:            LogLevelInfo,
	}
}

// FromEnv reads Config from the environment, prefixed TRANSIT_ (e.g.
// TRANSIT_GTFS_DATA_PATH, TRANSIT_ALLOCATOR_COUNT), falling back to
// Default() for anything unset.
func FromEnv() (Config, error) {
	cfg := Default()

	if v, ok := os.LookupEnv("TRANSIT_GTFS_DATA_PATH"); ok {
		cfg.GTFSDataPath = v
	}

	if v, ok := os.LookupEnv("TRANSIT_ALLOCATOR_COUNT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, errors.Wrap(err, "parsing TRANSIT_ALLOCATOR_COUNT")
		}
		if n <= 0 {
			return Config{}, errors.Errorf("TRANSIT_ALLOCATOR_COUNT must be positive, got %d", n)
		}
		cfg.AllocatorCount = n
	}

	if v, ok := os.LookupEnv("TRANSIT_WALK_SPEED_MPS"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, errors.Wrap(err, "parsing TRANSIT_WALK_SPEED_MPS")
		}
		if f <= 0 {
			return Config{}, errors.Errorf("TRANSIT_WALK_SPEED_MPS must be positive, got %f", f)
		}
		cfg.WalkSpeedMPS = f
	}

	if v, ok := os.LookupEnv("TRANSIT_FOOTPATH_RADIUS_M"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, errors.Wrap(err, "parsing TRANSIT_FOOTPATH_RADIUS_M")
		}
		cfg.FootpathRadiusM = f
	}

	if v, ok := os.LookupEnv("TRANSIT_ACCESS_EGRESS_RADIUS_M"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, errors.Wrap(err, "parsing TRANSIT_ACCESS_EGRESS_RADIUS_M")
		}
		cfg.AccessEgressRadiusM = f
	}

	if v, ok := os.LookupEnv("TRANSIT_LOG_LEVEL"); ok {
		level := LogLevel(v)
		if !level.valid() {
			return Config{}, fmt.Errorf("unrecognized TRANSIT_LOG_LEVEL %q", v)
		}
		cfg.LogLevel = level
	}

	return cfg, nil
}
