// Package repository builds and holds the flattened, read-optimized
// schedule model that makes scan-based RAPTOR routing possible: stops
// and RAPTOR routes are dense integer-indexed arrays, trips within a
// route are sorted by departure time, and transfers/routes-at-stop are
// precomputed inverted indices. A Repository is built once from a
// parsed GTFS feed and is immutable thereafter — concurrent readers
// never see it change, which is what lets dataset.Engine swap it out
// from under live queries without locking.
package repository

import (
	"ridecast.dev/transit/geo"
	"ridecast.dev/transit/gtfstime"
	"ridecast.dev/transit/model"
)

// Stop is a boardable location: a routing vertex. Only GTFS records
// with location_type Stop participate here — stations, entrances and
// generic nodes never appear in Stops, RoutesAtStop or Transfers.
type Stop struct {
	ID            string
	Name          string
	Code          string
	Coord         geo.Coordinate
	ParentStation string
	PlatformCode  string
}

// Area is a station: a parent grouping of child Stops. Routing never
// targets an Area directly — access/egress resolution expands it to
// its child stops (see raptor.resolveEndpoint).
type Area struct {
	ID           string
	Name         string
	Coord        geo.Coordinate
	ChildStopIxs []int
}

// Route is a RAPTOR route: trips sharing one GTFS route_id *and* one
// exact ordered stop sequence. A single GTFS route with branching
// stop patterns becomes several Routes here.
type Route struct {
	GTFSRouteID string
	Mode        model.RouteType
	ShortName   string
	LongName    string
	StopIxs     []int // ordered stop_ix sequence, length >= 2
}

// StopTimeEntry is one (arrival, departure) pair at a position along a
// route, for one trip.
type StopTimeEntry struct {
	Arrival           gtfstime.TimeOfDay
	Departure         gtfstime.TimeOfDay
	ShapeDistTraveled float64
	HasShapeDist      bool
}

// Trip is one scheduled run of a Route. StopTimes has exactly
// len(Route.StopIxs) entries, positionally aligned with
// Route.StopIxs.
type Trip struct {
	ID        string
	ServiceID string
	Headsign  string
	ShortName string
	ShapeID   string
	StopTimes []StopTimeEntry
}

// RouteStopRef names one (route, position) pair a stop participates
// in.
type RouteStopRef struct {
	RouteIx  int
	Position int
}

// TransferEdge is one outgoing footpath from the stop that owns the
// slice it lives in. Meters is the underlying walking distance for
// edges derived from the spatial grid; declared transfers.txt edges
// carry no distance of their own, so Meters is -1 and the edge is
// exempt from a query-time max_transfer_walk_m cap (an author-declared
// transfer time is taken at face value, not re-checked against a
// distance the feed never stated).
type TransferEdge struct {
	ToStopIx int
	Seconds  int
	Meters   float64
}

// Repository is the immutable, flattened schedule model. Every
// cross-reference is a dense integer index — no pointers, no cycles.
type Repository struct {
	Stops     []Stop
	StopIndex map[string]int // stop id -> stop_ix

	Areas     []Area
	AreaIndex map[string]int // area (station) id -> area_ix

	Routes []Route
	// Trips[route_ix] is that route's trips, sorted by departure time
	// at position 0.
	Trips [][]Trip

	// RoutesAtStop[stop_ix] lists every route serving that stop, and
	// the first position at which it's visited.
	RoutesAtStop [][]RouteStopRef

	// Transfers[stop_ix] lists every footpath out of that stop,
	// declared or derived, symmetric.
	Transfers [][]TransferEdge

	Calendars     map[string]model.Calendar
	CalendarDates map[string][]model.CalendarDate

	// ShapePoints[shape_id] is that shape's points, ordered by
	// sequence. Populated only when shapes.txt was present.
	ShapePoints map[string][]model.ShapePoint

	Timezone string
}

// StopCoordinate returns the coordinate to use for distance
// computations against a stop index.
func (r *Repository) StopCoordinate(stopIx int) geo.Coordinate {
	return r.Stops[stopIx].Coord
}

// AreaCoordinate returns the coordinate to use for distance
// computations against an area: its own declared/derived centroid,
// never a per-child-stop distance (see DESIGN.md open-question
// resolution).
func (r *Repository) AreaCoordinate(areaIx int) geo.Coordinate {
	return r.Areas[areaIx].Coord
}
