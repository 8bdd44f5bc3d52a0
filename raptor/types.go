// Package raptor implements the round-based earliest-arrival /
// latest-departure transit router (RAPTOR) over a repository.Repository
// and index.Indices pair. The per-stop, per-round arrays are not
// allocated per query: callers acquire a pre-sized Scratch from a
// Pool, run one query, and release it back. The parallel route scan
// and footpath relaxation still allocate small per-round slices of
// marked stops, and reconstruction allocates the returned legs.
package raptor

import (
	"fmt"

	"ridecast.dev/transit/geo"
	"ridecast.dev/transit/gtfstime"
	"ridecast.dev/transit/model"
)

// LocationKind tags which alternative of the Location sum type is
// populated.
type LocationKind int

const (
	LocationCoordinate LocationKind = iota
	LocationStop
	LocationArea
)

// Location is the query endpoint sum type: a raw coordinate to snap to
// nearby stops, a specific stop id, or an area (station) id that
// expands to its child stops. Pattern-match on Kind; do not assume
// more than one of Coord/StopID/AreaID is meaningful at a time.
type Location struct {
	Kind   LocationKind
	Coord  geo.Coordinate
	StopID string
	AreaID string
}

func NewCoordinateLocation(lat, lon float64) Location {
	return Location{Kind: LocationCoordinate, Coord: geo.Coordinate{Lat: lat, Lon: lon}}
}

func NewStopLocation(id string) Location {
	return Location{Kind: LocationStop, StopID: id}
}

func NewAreaLocation(id string) Location {
	return Location{Kind: LocationArea, AreaID: id}
}

// ConstraintKind selects between forward (earliest-arrival) and
// backward (latest-departure) search.
type ConstraintKind int

const (
	DepartAt ConstraintKind = iota
	ArriveBy
)

// Constraint pins one end of the journey's timing.
type Constraint struct {
	Kind ConstraintKind
	Time gtfstime.TimeOfDay
}

// Options tunes one query. Zero values are replaced by DefaultOptions'
// defaults in Solve.
type Options struct {
	MaxRounds             int
	AllowWalk             bool
	AllowWalkSet          bool // distinguishes "false" from "unset" for the zero-value default
	MaxTransferWalkM      float64
	MaxAccessEgressWalkM  float64
	IncludeShapes         bool
}

// DefaultOptions returns spec-mandated defaults: 8 rounds, walking
// allowed, 400m transfer cap, 1500m access/egress cap, no shape
// polylines.
func DefaultOptions() Options {
	return Options{
		MaxRounds:            8,
		AllowWalk:            true,
		AllowWalkSet:         true,
		MaxTransferWalkM:     400,
		MaxAccessEgressWalkM: 1500,
		IncludeShapes:        false,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxRounds <= 0 {
		o.MaxRounds = d.MaxRounds
	}
	if !o.AllowWalkSet {
		o.AllowWalk = d.AllowWalk
	}
	if o.MaxTransferWalkM <= 0 {
		o.MaxTransferWalkM = d.MaxTransferWalkM
	}
	if o.MaxAccessEgressWalkM <= 0 {
		o.MaxAccessEgressWalkM = d.MaxAccessEgressWalkM
	}
	return o
}

// RoutingErrorKind enumerates spec §7's RoutingError taxonomy.
type RoutingErrorKind int

const (
	NoRouteFound RoutingErrorKind = iota
	EndpointUnresolvedFrom
	EndpointUnresolvedTo
	InvalidTime
	Timeout
	RepositoryUnavailable
)

func (k RoutingErrorKind) String() string {
	switch k {
	case NoRouteFound:
		return "NoRouteFound"
	case EndpointUnresolvedFrom:
		return "EndpointUnresolved(from)"
	case EndpointUnresolvedTo:
		return "EndpointUnresolved(to)"
	case InvalidTime:
		return "InvalidTime"
	case Timeout:
		return "Timeout"
	case RepositoryUnavailable:
		return "RepositoryUnavailable"
	default:
		return "RoutingError(unknown)"
	}
}

// RoutingError is the error type every Solve failure takes.
type RoutingError struct {
	Kind   RoutingErrorKind
	Detail string
}

func (e *RoutingError) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func routingErr(kind RoutingErrorKind, format string, args ...interface{}) *RoutingError {
	return &RoutingError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// ConcurrencyErrorKind enumerates spec §7's ConcurrencyError taxonomy
// (one member today).
type ConcurrencyErrorKind int

const ScratchPoolExhausted ConcurrencyErrorKind = 0

// ConcurrencyError is returned by Pool.AcquireNonBlocking when every
// scratch slot is in use.
type ConcurrencyError struct {
	Kind ConcurrencyErrorKind
}

func (e *ConcurrencyError) Error() string { return "scratch pool exhausted" }

// ErrScratchPoolExhausted is the sentinel non-blocking acquire error.
var ErrScratchPoolExhausted = &ConcurrencyError{Kind: ScratchPoolExhausted}

// LegKind distinguishes a walked footpath/access/egress leg from a
// ridden transit leg.
type LegKind int

const (
	LegWalk LegKind = iota
	LegTransit
)

// IntermediateStop is one stop passed through (without boarding or
// alighting) along a Transit leg.
type IntermediateStop struct {
	StopIx            int
	Arrival           gtfstime.TimeOfDay
	Departure         gtfstime.TimeOfDay
	ShapeDistTraveled float64
	HasShapeDist      bool
}

// Leg is one segment of an Itinerary: either a walk between two
// Locations or a ride on one trip between two stops.
type Leg struct {
	Kind    LegKind
	From    Location
	To      Location
	Depart  gtfstime.TimeOfDay
	Arrive  gtfstime.TimeOfDay

	// Transit-only fields.
	Mode         model.RouteType
	Headsign     string
	ShortName    string
	LongName     string
	Intermediate []IntermediateStop
	Shapes       []model.ShapePoint
}

// Itinerary is the query result: a chain of Legs from From to To,
// where only adjacent legs share a boundary time.
type Itinerary struct {
	From Location
	To   Location
	Legs []Leg
}

// Rounds reports how many transit boardings the itinerary used.
func (it *Itinerary) Rounds() int {
	n := 0
	for _, l := range it.Legs {
		if l.Kind == LegTransit {
			n++
		}
	}
	return n
}
