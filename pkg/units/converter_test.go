package units

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWattSecondConversions(t *testing.T) {
	assert.InDelta(t, 1.0, WattSecondsToWh(3600), 1e-12)
	assert.InDelta(t, 7200.0, WhToWattSeconds(2), 1e-12)
	assert.Equal(t, int64(3), RoundWh(2.5))
	assert.Equal(t, int64(2), RoundWh(2.49))
}

func TestClampWatts(t *testing.T) {
	tests := []struct {
		in   int64
		want uint16
	}{
		{-5, 0},
		{0, 0},
		{349, 349},
		{math.MaxUint16, math.MaxUint16},
		{math.MaxUint16 + 1, math.MaxUint16},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampWatts(tt.in), "input %d", tt.in)
	}
}
