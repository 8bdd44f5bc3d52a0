// Package index builds the query-facing lookup structures over an
// immutable repository.Repository: a fuzzy name index (stops and
// areas, independently) and a spatial grid wrapper for radius/nearest
// queries. Nothing here mutates the repository; every result is a
// fresh slice owned by the caller.
package index

import (
	"github.com/pkg/errors"

	"ridecast.dev/transit/geo"
	"ridecast.dev/transit/repository"
)

// ErrStopIDUnknown and ErrAreaIDUnknown are the IndexError taxonomy's
// two members (spec §7).
var (
	ErrStopIDUnknown = errors.New("stop id unknown")
	ErrAreaIDUnknown = errors.New("area id unknown")
)

// StopSummary is the query-facing view of a repository.Stop.
type StopSummary struct {
	ID     string
	Name   string
	Code   string
	Coord  geo.Coordinate
	Meters float64 // populated by near_stops; zero for search_stops
}

// AreaSummary is the query-facing view of a repository.Area.
type AreaSummary struct {
	ID     string
	Name   string
	Coord  geo.Coordinate
	Meters float64 // populated by near_areas; zero for search_areas
}

// Indices bundles the fuzzy name indices and spatial grids built over
// one Repository. It holds no reference back to the Repository beyond
// what it copied into its own summaries, so it can outlive a snapshot
// swap just as safely as the Repository it was built from.
type Indices struct {
	stopNames *nameIndex
	areaNames *nameIndex

	stopGrid *geo.Grid
	areaGrid *geo.Grid

	stops    []StopSummary
	areas    []AreaSummary
	stopByID map[string]int
	areaByID map[string]int
}

// Build constructs Indices over every Stop and Area in repo.
func Build(repo *repository.Repository) *Indices {
	idx := &Indices{
		stopGrid: geo.NewGrid(),
		areaGrid: geo.NewGrid(),
	}

	idx.stops = make([]StopSummary, len(repo.Stops))
	idx.stopByID = make(map[string]int, len(repo.Stops))
	names := make([]string, len(repo.Stops))
	for i, s := range repo.Stops {
		coord := repo.StopCoordinate(i)
		idx.stops[i] = StopSummary{ID: s.ID, Name: s.Name, Code: s.Code, Coord: coord}
		idx.stopByID[s.ID] = i
		names[i] = s.Name
		idx.stopGrid.Insert(i, coord)
	}
	idx.stopNames = buildNameIndex(names)

	idx.areas = make([]AreaSummary, len(repo.Areas))
	idx.areaByID = make(map[string]int, len(repo.Areas))
	areaNames := make([]string, len(repo.Areas))
	for i, a := range repo.Areas {
		coord := repo.AreaCoordinate(i)
		idx.areas[i] = AreaSummary{ID: a.ID, Name: a.Name, Coord: coord}
		idx.areaByID[a.ID] = i
		areaNames[i] = a.Name
		idx.areaGrid.Insert(i, coord)
	}
	idx.areaNames = buildNameIndex(areaNames)

	return idx
}

// SearchStops returns the top-k stops matching q, scored per the
// exact > prefix > trigram ordering contract (spec §4.3).
func (idx *Indices) SearchStops(q string, k int) []StopSummary {
	hits := idx.stopNames.search(q, k)
	out := make([]StopSummary, len(hits))
	for i, h := range hits {
		out[i] = idx.stops[h.id]
	}
	return out
}

// SearchAreas returns the top-k areas matching q.
func (idx *Indices) SearchAreas(q string, k int) []AreaSummary {
	hits := idx.areaNames.search(q, k)
	out := make([]AreaSummary, len(hits))
	for i, h := range hits {
		out[i] = idx.areas[h.id]
	}
	return out
}

// NearStops returns every stop within radiusMeters of (lat, lon),
// sorted ascending by distance, ties broken by id.
func (idx *Indices) NearStops(center geo.Coordinate, radiusMeters float64) []StopSummary {
	hits := idx.stopGrid.Near(center, radiusMeters)
	out := make([]StopSummary, len(hits))
	for i, h := range hits {
		s := idx.stops[h.ID]
		s.Meters = h.Meters
		out[i] = s
	}
	return out
}

// NearAreas returns every area within radiusMeters of (lat, lon).
func (idx *Indices) NearAreas(center geo.Coordinate, radiusMeters float64) []AreaSummary {
	hits := idx.areaGrid.Near(center, radiusMeters)
	out := make([]AreaSummary, len(hits))
	for i, h := range hits {
		a := idx.areas[h.ID]
		a.Meters = h.Meters
		out[i] = a
	}
	return out
}

// StopByID looks up a stop summary by its GTFS id.
func (idx *Indices) StopByID(id string) (StopSummary, error) {
	i, ok := idx.stopByID[id]
	if !ok {
		return StopSummary{}, errors.Wrapf(ErrStopIDUnknown, "%q", id)
	}
	return idx.stops[i], nil
}

// AreaByID looks up an area summary by its GTFS id.
func (idx *Indices) AreaByID(id string) (AreaSummary, error) {
	i, ok := idx.areaByID[id]
	if !ok {
		return AreaSummary{}, errors.Wrapf(ErrAreaIDUnknown, "%q", id)
	}
	return idx.areas[i], nil
}
