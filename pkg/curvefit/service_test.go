package curvefit

import (
	"math"
	"testing"
	"time"

	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/dailyseries"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 60 samples 720s apart from 06:00, on 300*(1-u²) peaking at noon.
var clearWatts = []uint16{
	0, 20, 39, 57, 75, 92, 108, 124, 139, 153, 167, 180, 192, 204, 215, 225, 235, 244, 252, 260,
	267, 273, 279, 284, 288, 292, 295, 297, 299, 300, 300, 300, 299, 297, 295, 292, 288, 284, 279, 273,
	267, 260, 252, 244, 235, 225, 215, 204, 192, 180, 167, 153, 139, 124, 108, 92, 75, 57, 39, 0,
}

func series(watts []uint16) dailyseries.Series {
	s := dailyseries.Series{Serial: 1, Date: time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC)}
	for i, w := range watts {
		s.Samples = append(s.Samples, dailyseries.Sample{Seconds: 6*3600 + i*720, Watts: w})
	}
	return s
}

// A 120W cloud dip from sample 24 to 29 and a sample 15 that is 10W low.
func cloudyWatts() []uint16 {
	watts := append([]uint16(nil), clearWatts...)
	for i := 24; i <= 29; i++ {
		watts[i] -= 120
	}
	watts[15] -= 10
	return watts
}

func TestFitParabolaExact(t *testing.T) {
	xs := []float64{0, 1, 2, 3, 4, 5}
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = -2*x*x + 8*x + 1
	}
	p, err := FitParabola(xs, ys)
	require.NoError(t, err)
	assert.True(t, p.Concave())
	for _, x := range []float64{-1, 0.5, 2.5, 7} {
		assert.InDelta(t, -2*x*x+8*x+1, p.Eval(x), 1e-9)
	}
	vx, vy := p.Vertex()
	assert.InDelta(t, 2, vx, 1e-9)
	assert.InDelta(t, 9, vy, 1e-9)
}

func TestFitParabolaLargeOffsets(t *testing.T) {
	// Seconds past midnight squared reach 7e9; domain mapping keeps this well conditioned
	var xs, ys []float64
	for x := 20000.0; x <= 70000; x += 331 {
		xs = append(xs, x)
		ys = append(ys, 300-300*math.Pow((x-45000)/25000, 2))
	}
	p, err := FitParabola(xs, ys)
	require.NoError(t, err)
	vx, vy := p.Vertex()
	assert.InDelta(t, 45000, vx, 1e-3)
	assert.InDelta(t, 300, vy, 1e-6)
}

func TestFitParabolaInsufficient(t *testing.T) {
	_, err := FitParabola([]float64{1, 2}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrInsufficientFitData)

	_, err = FitParabola([]float64{3, 3, 3, 3}, []float64{1, 2, 3, 4})
	assert.ErrorIs(t, err, ErrInsufficientFitData)

	_, err = FitParabola([]float64{1, 1, 2, 2}, []float64{1, 2, 3, 4})
	assert.ErrorIs(t, err, ErrInsufficientFitData)
}

func TestFitDayClearSky(t *testing.T) {
	res, err := FitDay(series(clearWatts), DefaultConfig())
	require.NoError(t, err)

	assert.Empty(t, res.Cloud[0])
	assert.Empty(t, res.Cloud[1])
	assert.Empty(t, res.Cloud[2])
	assert.Len(t, res.Working, 53)
	assert.InDelta(t, 12*3600, res.PeakSeconds, 60)
	assert.InDelta(t, 300, res.PeakWatts, 1)
}

func TestFitDayCloudReevaluation(t *testing.T) {
	res, err := FitDay(series(cloudyWatts()), DefaultConfig())
	require.NoError(t, err)

	dip := []int{24, 25, 26, 27, 28, 29}
	for pass := 0; pass < 3; pass++ {
		assert.Subset(t, res.Cloud[pass], dip, "pass %d keeps the dip", pass+1)
	}

	// The dip drags the first curve down at noon and up at the edges
	assert.Subset(t, res.Cloud[0], []int{4, 5, 52})
	assert.NotContains(t, res.Cloud[0], 15)

	// Against the second curve the edge points are rescued and the low
	// sample 15 is flagged
	assert.NotContains(t, res.Cloud[1], 4)
	assert.NotContains(t, res.Cloud[1], 5)
	assert.NotContains(t, res.Cloud[1], 52)
	assert.Contains(t, res.Cloud[1], 15)
	assert.NotEqual(t, res.Cloud[0], res.Cloud[1])

	assert.Equal(t, res.Cloud[1], res.Cloud[2])
	assert.InDelta(t, 12*3600, res.PeakSeconds, 300)
	assert.InDelta(t, 300, res.PeakWatts, 2)
	assert.Equal(t, [3]int{len(res.Cloud[0]), 7, 7}, res.CloudCounts())
	assert.True(t, res.FinalCloud()[15])
}

func TestFitDayExcludesSamplesOverCap(t *testing.T) {
	watts := append([]uint16(nil), clearWatts...)
	cfg := DefaultConfig()
	cfg.MaxContinuousWatts = 280
	res, err := FitDay(series(watts), cfg)
	require.NoError(t, err)
	for _, i := range res.Working {
		assert.LessOrEqual(t, watts[i], uint16(280))
	}
	// The clipped top is extrapolated from the shoulders
	assert.InDelta(t, 300, res.PeakWatts, 3)
}

func TestFitDayInsufficient(t *testing.T) {
	_, err := FitDay(series([]uint16{0, 10, 80, 90, 10, 0}), DefaultConfig())
	assert.ErrorIs(t, err, ErrInsufficientFitData)
}

func TestFitDayNotConcave(t *testing.T) {
	_, err := FitDay(series([]uint16{0, 200, 120, 100, 120, 200, 0}), DefaultConfig())
	assert.ErrorIs(t, err, ErrNotConcave)
}

func TestWithout(t *testing.T) {
	assert.Equal(t, []int{1, 4, 6}, without([]int{1, 2, 4, 5, 6}, []int{2, 5}))
	assert.Equal(t, []int{1, 2}, without([]int{1, 2}, nil))
}
