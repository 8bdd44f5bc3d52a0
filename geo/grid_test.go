package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGridNear(t *testing.T) {
	g := NewGrid()
	g.Insert(0, Coordinate{Lat: 0, Lon: 0})        // A
	g.Insert(1, Coordinate{Lat: 0.002, Lon: 0.002}) // B, ~314m from A
	g.Insert(2, Coordinate{Lat: 0.010, Lon: 0})     // C, far from A

	near := g.Near(Coordinate{Lat: 0, Lon: 0}, 500)
	assert.Len(t, near, 2)
	assert.Equal(t, 0, near[0].ID)
	assert.Equal(t, 1, near[1].ID)
	assert.InDelta(t, 314, near[1].Meters, 5)
}

func TestGridNearest(t *testing.T) {
	g := NewGrid()
	g.Insert(0, Coordinate{Lat: 0, Lon: 0})
	g.Insert(1, Coordinate{Lat: 0.002, Lon: 0.002})
	g.Insert(2, Coordinate{Lat: 0.010, Lon: 0})

	nearest := g.Nearest(Coordinate{Lat: 0, Lon: 0}, 2)
	assert.Len(t, nearest, 2)
	assert.Equal(t, 0, nearest[0].ID)
	assert.Equal(t, 1, nearest[1].ID)
}

func TestGridEmpty(t *testing.T) {
	g := NewGrid()
	assert.Empty(t, g.Near(Coordinate{}, 500))
	assert.Empty(t, g.Nearest(Coordinate{}, 5))
}
