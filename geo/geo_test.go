package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineZero(t *testing.T) {
	p := Coordinate{Lat: 12.3, Lon: 45.6}
	assert.InDelta(t, 0.0, Haversine(p, p), 1e-9)
}

func TestHaversineKnownDistance(t *testing.T) {
	// Roughly the A/B footpath from the routing scenario: ~314m.
	a := Coordinate{Lat: 0.000, Lon: 0.000}
	b := Coordinate{Lat: 0.002, Lon: 0.002}
	d := Haversine(a, b)
	assert.InDelta(t, 314.0, d, 5.0)
}

func TestWalkSecondsCeilsAndDefaults(t *testing.T) {
	assert.Equal(t, 0, WalkSeconds(0, 1.4))
	assert.Equal(t, 225, WalkSeconds(314, 1.4))
	// speedMPS <= 0 falls back to the default speed.
	assert.Equal(t, WalkSeconds(314, DefaultWalkSpeedMPS), WalkSeconds(314, 0))
}

func TestWalkSecondsCustomSpeed(t *testing.T) {
	assert.Equal(t, 100, WalkSeconds(100, 1.0))
}
