package raptor

import (
	"ridecast.dev/transit/geo"
	"ridecast.dev/transit/index"
	"ridecast.dev/transit/repository"
)

// candidate is one stop reachable from/to a query endpoint, with the
// walking time needed to reach it.
type candidate struct {
	StopIx   int
	WalkSecs int
}

// resolveEndpoint expands a Location into its candidate boarding (or
// alighting) stops per spec §4.4.3: a Coordinate snaps to every stop
// within maxWalkM via the spatial index; a Stop id is a singleton with
// zero walk; an Area id expands to every child stop, also with zero
// walk (the area-to-child distance is assumed zero, per the resolved
// open question — see repository.Repository.AreaCoordinate).
func resolveEndpoint(repo *repository.Repository, idx *index.Indices, loc Location, maxWalkM float64, walkSpeedMPS float64, isFrom bool) ([]candidate, *RoutingError) {
	kind := EndpointUnresolvedTo
	if isFrom {
		kind = EndpointUnresolvedFrom
	}

	switch loc.Kind {
	case LocationStop:
		stopIx, ok := repo.StopIndex[loc.StopID]
		if !ok {
			return nil, routingErr(kind, "unknown stop id %q", loc.StopID)
		}
		return []candidate{{StopIx: stopIx, WalkSecs: 0}}, nil

	case LocationArea:
		areaIx, ok := repo.AreaIndex[loc.AreaID]
		if !ok {
			return nil, routingErr(kind, "unknown area id %q", loc.AreaID)
		}
		children := repo.Areas[areaIx].ChildStopIxs
		if len(children) == 0 {
			return nil, routingErr(kind, "area %q has no child stops", loc.AreaID)
		}
		out := make([]candidate, len(children))
		for i, stopIx := range children {
			out[i] = candidate{StopIx: stopIx, WalkSecs: 0}
		}
		return out, nil

	case LocationCoordinate:
		near := idx.NearStops(loc.Coord, maxWalkM)
		if len(near) == 0 {
			return nil, routingErr(kind, "no stop within %.0fm of (%f, %f)", maxWalkM, loc.Coord.Lat, loc.Coord.Lon)
		}
		out := make([]candidate, len(near))
		for i, n := range near {
			stopIx, ok := repo.StopIndex[n.ID]
			if !ok {
				continue
			}
			out[i] = candidate{StopIx: stopIx, WalkSecs: geo.WalkSeconds(n.Meters, walkSpeedMPS)}
		}
		return out, nil

	default:
		return nil, routingErr(kind, "unrecognized location kind")
	}
}
