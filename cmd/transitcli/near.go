package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"ridecast.dev/transit/geo"
)

var nearStopsCmd = &cobra.Command{
	Use:   "near-stops <lat> <lng> [radius_m]",
	Short: "Lists stops within a radius of a coordinate",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  nearStops,
}

var nearAreasCmd = &cobra.Command{
	Use:   "near-areas <lat> <lng> [radius_m]",
	Short: "Lists areas within a radius of a coordinate",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  nearAreas,
}

func parseLatLngRadius(args []string) (geo.Coordinate, float64, error) {
	lat, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return geo.Coordinate{}, 0, fmt.Errorf("invalid lat: %w", err)
	}
	lng, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return geo.Coordinate{}, 0, fmt.Errorf("invalid lng: %w", err)
	}
	radius := 500.0
	if len(args) == 3 {
		radius, err = strconv.ParseFloat(args[2], 64)
		if err != nil {
			return geo.Coordinate{}, 0, fmt.Errorf("invalid radius: %w", err)
		}
	}
	return geo.Coordinate{Lat: lat, Lon: lng}, radius, nil
}

func nearStops(cmd *cobra.Command, args []string) error {
	center, radius, err := parseLatLngRadius(args)
	if err != nil {
		return err
	}

	engine, err := loadEngine()
	if err != nil {
		return err
	}

	results, err := engine.NearStops(center, radius)
	if err != nil {
		return err
	}

	for _, s := range results {
		fmt.Printf("%s: %s (%.0fm)\n", s.ID, s.Name, s.Meters)
	}
	return nil
}

func nearAreas(cmd *cobra.Command, args []string) error {
	center, radius, err := parseLatLngRadius(args)
	if err != nil {
		return err
	}

	engine, err := loadEngine()
	if err != nil {
		return err
	}

	results, err := engine.NearAreas(center, radius)
	if err != nil {
		return err
	}

	for _, a := range results {
		fmt.Printf("%s: %s (%.0fm)\n", a.ID, a.Name, a.Meters)
	}
	return nil
}
