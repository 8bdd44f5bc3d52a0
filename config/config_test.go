package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"TRANSIT_GTFS_DATA_PATH",
		"TRANSIT_ALLOCATOR_COUNT",
		"TRANSIT_WALK_SPEED_MPS",
		"TRANSIT_FOOTPATH_RADIUS_M",
		"TRANSIT_ACCESS_EGRESS_RADIUS_M",
		"TRANSIT_LOG_LEVEL",
	}
	for _, v := range vars {
		old, had := os.LookupEnv(v)
		os.Unsetenv(v)
		t.Cleanup(func() {
			if had {
				os.Setenv(v, old)
			}
		})
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv("TRANSIT_GTFS_DATA_PATH", "/var/lib/transit")
	os.Setenv("TRANSIT_ALLOCATOR_COUNT", "16")
	os.Setenv("TRANSIT_WALK_SPEED_MPS", "1.1")
	os.Setenv("TRANSIT_LOG_LEVEL", "debug")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/transit", cfg.GTFSDataPath)
	assert.Equal(t, 16, cfg.AllocatorCount)
	assert.Equal(t, 1.1, cfg.WalkSpeedMPS)
	assert.Equal(t, LogLevelDebug, cfg.LogLevel)
	assert.Equal(t, 400.0, cfg.FootpathRadiusM)
}

func TestFromEnvRejectsInvalidLogLevel(t *testing.T) {
	clearEnv(t)
	os.Setenv("TRANSIT_LOG_LEVEL", "verbose")
	_, err := FromEnv()
	assert.Error(t, err)
}

func TestFromEnvRejectsNonPositiveAllocatorCount(t *testing.T) {
	clearEnv(t)
	os.Setenv("TRANSIT_ALLOCATOR_COUNT", "0")
	_, err := FromEnv()
	assert.Error(t, err)
}
