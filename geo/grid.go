package geo

import "math"

// gridCellDegrees sizes grid cells at roughly 500m on a side at
// mid-latitudes: one degree of latitude is about 111km, so 1/222 of a
// degree is about 500m.
const gridCellDegrees = 1.0 / 222.0

type gridKey struct {
	latCell int
	lonCell int
}

// Grid is a uniform spatial index over (lat, lon) points, each tagged
// with a caller-chosen integer id (typically a stop or area index).
// It resolves near/nearest queries by scanning the handful of cells
// within radius of the query point instead of every point in the set.
type Grid struct {
	cellDegrees float64
	cells       map[gridKey][]gridEntry
}

type gridEntry struct {
	id  int
	pt  Coordinate
}

// NewGrid constructs an empty grid sized for roughly 500m cells.
func NewGrid() *Grid {
	return &Grid{
		cellDegrees: gridCellDegrees,
		cells:       map[gridKey][]gridEntry{},
	}
}

func (g *Grid) keyFor(c Coordinate) gridKey {
	return gridKey{
		latCell: int(math.Floor(c.Lat / g.cellDegrees)),
		lonCell: int(math.Floor(c.Lon / g.cellDegrees)),
	}
}

// Insert adds a point to the grid under the given id. Ids need not be
// unique; a caller may index the same entity under several points
// (e.g. all vertices of a shape) if that's useful, though stop/area
// indexing uses one point per id.
func (g *Grid) Insert(id int, c Coordinate) {
	key := g.keyFor(c)
	g.cells[key] = append(g.cells[key], gridEntry{id: id, pt: c})
}

// NearResult is one hit from Near/Nearest: the id passed to Insert and
// its distance from the query point, in meters.
type NearResult struct {
	ID     int
	Meters float64
}

// Near returns every inserted point within radiusMeters of center,
// sorted by ascending distance (ties broken by id).
func (g *Grid) Near(center Coordinate, radiusMeters float64) []NearResult {
	// Degrees-per-cell span needed to cover radiusMeters in latitude;
	// longitude cells are widened since a degree of longitude shrinks
	// with latitude.
	latSpan := radiusMeters / 111000.0
	cellsLat := int(math.Ceil(latSpan/g.cellDegrees)) + 1

	cosLat := math.Cos(center.Lat * math.Pi / 180)
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	lonSpan := radiusMeters / (111000.0 * cosLat)
	cellsLon := int(math.Ceil(lonSpan/g.cellDegrees)) + 1

	centerKey := g.keyFor(center)

	seen := map[int]bool{}
	results := []NearResult{}
	for dLat := -cellsLat; dLat <= cellsLat; dLat++ {
		for dLon := -cellsLon; dLon <= cellsLon; dLon++ {
			key := gridKey{latCell: centerKey.latCell + dLat, lonCell: centerKey.lonCell + dLon}
			for _, e := range g.cells[key] {
				if seen[e.id] {
					continue
				}
				d := Haversine(center, e.pt)
				if d <= radiusMeters {
					seen[e.id] = true
					results = append(results, NearResult{ID: e.id, Meters: d})
				}
			}
		}
	}

	sortNearResults(results)
	return results
}

// Nearest returns the k closest points to center, regardless of
// distance, sorted by ascending distance (ties broken by id). It
// grows its search radius until it has found at least k candidates
// or has covered the entire grid.
func (g *Grid) Nearest(center Coordinate, k int) []NearResult {
	if k <= 0 {
		return nil
	}

	radius := 500.0
	for tries := 0; tries < 20; tries++ {
		results := g.Near(center, radius)
		if len(results) >= k || radius > 40075000 {
			if len(results) > k {
				results = results[:k]
			}
			return results
		}
		radius *= 2
	}
	return g.Near(center, radius)
}

func sortNearResults(r []NearResult) {
	// Simple insertion sort: result sets are small (a handful of grid
	// cells' worth of points), and this keeps the tie-break on id
	// explicit and stable.
	for i := 1; i < len(r); i++ {
		j := i
		for j > 0 && less(r[j], r[j-1]) {
			r[j], r[j-1] = r[j-1], r[j]
			j--
		}
	}
}

func less(a, b NearResult) bool {
	if a.Meters != b.Meters {
		return a.Meters < b.Meters
	}
	return a.ID < b.ID
}
