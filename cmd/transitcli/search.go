package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var searchStopsCmd = &cobra.Command{
	Use:   "search-stops <query> [limit]",
	Short: "Fuzzy-search stop names",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  searchStops,
}

var searchAreasCmd = &cobra.Command{
	Use:   "search-areas <query> [limit]",
	Short: "Fuzzy-search area (station) names",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  searchAreas,
}

func parseLimit(args []string, at int, defaultLimit int) (int, error) {
	if len(args) <= at {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(args[at])
	if err != nil {
		return 0, fmt.Errorf("invalid limit: %w", err)
	}
	return n, nil
}

func searchStops(cmd *cobra.Command, args []string) error {
	limit, err := parseLimit(args, 1, 10)
	if err != nil {
		return err
	}

	engine, err := loadEngine()
	if err != nil {
		return err
	}

	results, err := engine.SearchStops(args[0], limit)
	if err != nil {
		return err
	}

	for _, s := range results {
		fmt.Printf("%s: %s\n", s.ID, s.Name)
	}
	return nil
}

func searchAreas(cmd *cobra.Command, args []string) error {
	limit, err := parseLimit(args, 1, 10)
	if err != nil {
		return err
	}

	engine, err := loadEngine()
	if err != nil {
		return err
	}

	results, err := engine.SearchAreas(args[0], limit)
	if err != nil {
		return err
	}

	for _, a := range results {
		fmt.Printf("%s: %s\n", a.ID, a.Name)
	}
	return nil
}
