package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"ridecast.dev/transit/config"
	"ridecast.dev/transit/gtfstime"
	"ridecast.dev/transit/raptor"
)

var routeCmd = &cobra.Command{
	Use:   "route <from> <to> <HH:MM:SS>",
	Short: "Plans a journey between two locations",
	Long: "Plans a journey between two locations departing at (or, with " +
		"--arrive-by, arriving by) the given time. <from>/<to> may each be " +
		"stop:<id>, area:<id>, or <lat>,<lng>.",
	Args: cobra.ExactArgs(3),
	RunE: route,
}

var (
	arriveBy      bool
	noWalk        bool
	maxRounds     int
	includeShapes bool
)

func init() {
	routeCmd.Flags().BoolVarP(&arriveBy, "arrive-by", "", false, "treat the time as an arrival deadline instead of a departure time")
	routeCmd.Flags().BoolVarP(&noWalk, "no-walk", "", false, "disallow walking transfers and access/egress")
	routeCmd.Flags().IntVarP(&maxRounds, "max-rounds", "", 0, "cap the number of transit boardings (0 = spec default)")
	routeCmd.Flags().BoolVarP(&includeShapes, "shapes", "", false, "include shape polylines on transit legs")
}

func parseLocation(s string) (raptor.Location, error) {
	switch {
	case strings.HasPrefix(s, "stop:"):
		return raptor.NewStopLocation(strings.TrimPrefix(s, "stop:")), nil
	case strings.HasPrefix(s, "area:"):
		return raptor.NewAreaLocation(strings.TrimPrefix(s, "area:")), nil
	default:
		parts := strings.SplitN(s, ",", 2)
		if len(parts) != 2 {
			return raptor.Location{}, fmt.Errorf("%q is not stop:<id>, area:<id>, or <lat>,<lng>", s)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return raptor.Location{}, fmt.Errorf("invalid lat in %q: %w", s, err)
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return raptor.Location{}, fmt.Errorf("invalid lng in %q: %w", s, err)
		}
		return raptor.NewCoordinateLocation(lat, lng), nil
	}
}

func route(cmd *cobra.Command, args []string) error {
	from, err := parseLocation(args[0])
	if err != nil {
		return err
	}
	to, err := parseLocation(args[1])
	if err != nil {
		return err
	}
	t, err := gtfstime.Parse(args[2])
	if err != nil {
		return fmt.Errorf("invalid time %q: %w", args[2], err)
	}

	constraint := raptor.Constraint{Kind: raptor.DepartAt, Time: t}
	if arriveBy {
		constraint.Kind = raptor.ArriveBy
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	opts := raptor.Options{
		MaxRounds:            maxRounds,
		AllowWalk:            !noWalk,
		AllowWalkSet:         true,
		MaxAccessEgressWalkM: cfg.AccessEgressRadiusM,
		IncludeShapes:        includeShapes,
	}

	engine, err := loadEngine()
	if err != nil {
		return err
	}

	it, err := engine.Route(context.Background(), from, to, constraint, opts)
	if err != nil {
		return err
	}

	for _, leg := range it.Legs {
		switch leg.Kind {
		case raptor.LegWalk:
			fmt.Printf("walk   %s -> %s   %s - %s\n", locationLabel(leg.From), locationLabel(leg.To), leg.Depart, leg.Arrive)
		case raptor.LegTransit:
			fmt.Printf("%-4s   %s -> %s   %s - %s   %s\n", leg.ShortName, locationLabel(leg.From), locationLabel(leg.To), leg.Depart, leg.Arrive, leg.Headsign)
		}
	}
	fmt.Printf("%d transfer(s)\n", it.Rounds()-1)

	return nil
}

func locationLabel(loc raptor.Location) string {
	switch loc.Kind {
	case raptor.LocationStop:
		return loc.StopID
	case raptor.LocationArea:
		return loc.AreaID
	default:
		return fmt.Sprintf("(%.5f,%.5f)", loc.Coord.Lat, loc.Coord.Lon)
	}
}
