// Command transitcli is a thin CLI over dataset.Engine, one
// subcommand per Query API entry (spec §6) — the same "cobra root
// command with one persistent feed-loading step, one subcommand per
// operation" shape as the module's original gtfs CLI, pointed at
// RAPTOR routing instead of the departures board.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"ridecast.dev/transit/config"
	"ridecast.dev/transit/dataset"
	"ridecast.dev/transit/repository"
	"ridecast.dev/transit/storage"
)

var rootCmd = &cobra.Command{
	Use:          "transitcli",
	Short:        "Local GTFS routing tool",
	Long:         "Loads a GTFS archive and answers stop/area/routing queries against it.",
	SilenceUsage: true,
}

var (
	feedURL  string
	feedFile string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&feedURL, "url", "", "", "GTFS static feed URL to fetch and cache")
	rootCmd.PersistentFlags().StringVarP(&feedFile, "file", "", "", "local GTFS zip file to install instead of fetching a URL")

	rootCmd.AddCommand(searchStopsCmd)
	rootCmd.AddCommand(searchAreasCmd)
	rootCmd.AddCommand(nearStopsCmd)
	rootCmd.AddCommand(nearAreasCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(ageCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadEngine builds a dataset.Engine from TRANSIT_* environment
// configuration and installs whichever of --url/--file was given.
func loadEngine() (*dataset.Engine, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if feedURL == "" && feedFile == "" {
		return nil, fmt.Errorf("one of --url or --file is required")
	}

	store, err := storage.NewSQLiteStorage(storage.SQLiteConfig{OnDisk: true, Directory: cfg.GTFSDataPath})
	if err != nil {
		return nil, fmt.Errorf("opening feed cache at %s: %w", cfg.GTFSDataPath, err)
	}

	buildOpts := repository.BuildOptions{
		WalkSpeedMPS:    cfg.WalkSpeedMPS,
		FootpathRadiusM: cfg.FootpathRadiusM,
	}
	manager := dataset.NewManager(store, cfg.AllocatorCount, buildOpts)
	manager.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel.SlogLevel()}))
	engine := dataset.NewEngine(manager, cfg.WalkSpeedMPS)

	if feedFile != "" {
		zipBytes, err := os.ReadFile(feedFile)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", feedFile, err)
		}
		if err := engine.InstallDatasetFromBytes(zipBytes, feedFile); err != nil {
			return nil, fmt.Errorf("installing %s: %w", feedFile, err)
		}
		return engine, nil
	}

	if err := engine.Install(feedURL); err != nil {
		return nil, fmt.Errorf("installing %s: %w", feedURL, err)
	}
	return engine, nil
}
