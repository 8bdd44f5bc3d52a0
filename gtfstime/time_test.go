package gtfstime

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	tod, err := Parse("08:05:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(8*3600+5*60+30), tod)
	assert.Equal(t, "08:05:30", tod.String())
}

func TestParseOvernight(t *testing.T) {
	tod, err := Parse("25:30:00")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(25*3600+30*60), tod)
	assert.Equal(t, "25:30:00", tod.String())
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse("not-a-time")
	assert.ErrorIs(t, err, ErrInvalidTime)

	_, err = Parse("08:61:00")
	assert.ErrorIs(t, err, ErrInvalidTime)
}

// Property 8.1.6: round trip idempotence for HH in [0, 47].
func TestRoundTripIdempotence(t *testing.T) {
	for h := 0; h <= 47; h++ {
		for _, mmss := range []string{"00:00", "05:30", "59:59"} {
			s := fmt.Sprintf("%02d:%s", h, mmss)
			tod, err := Parse(s)
			require.NoError(t, err)
			assert.Equal(t, s, tod.String())
		}
	}
}

func TestAddSaturatesAtZero(t *testing.T) {
	tod := TimeOfDay(10)
	assert.Equal(t, TimeOfDay(0), tod.Add(-100))
	assert.Equal(t, TimeOfDay(20), tod.Add(10))
}

func TestSub(t *testing.T) {
	a := TimeOfDay(100)
	b := TimeOfDay(40)
	assert.Equal(t, Duration(60), a.Sub(b))
	assert.Equal(t, Duration(-60), b.Sub(a))
}

func TestMinMax(t *testing.T) {
	a, b := TimeOfDay(10), TimeOfDay(20)
	assert.Equal(t, a, Min(a, b))
	assert.Equal(t, b, Max(a, b))
}
