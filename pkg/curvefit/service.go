// Package curvefit estimates the clear sky production curve of an
// inverter-day while separating out cloud dips.
package curvefit

import (
	"errors"
	"fmt"

	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/dailyseries"
)

var (
	// ErrInsufficientFitData means a working set had fewer than 3 points.
	ErrInsufficientFitData = errors.New("insufficient fit data")
	ErrNotConcave          = errors.New("fitted curve does not open downward")
)

type Config struct {
	// Samples below this are trail-in/trail-out and not parabolic
	MinFitWatts float64
	// Samples above the inverter's rated output have an unknown true value
	MaxContinuousWatts float64
	// A sample this far below the curve is a cloud point
	CloudThresholdWatts float64
}

func DefaultConfig() Config {
	return Config{MinFitWatts: 75, MaxContinuousWatts: 349, CloudThresholdWatts: 5}
}

// Result is the fit of one inverter-day. Index slices refer to
// Series.Samples.
type Result struct {
	// Initial, after the first cloud pass and final
	Curves [3]Parabola `json:"curves"`
	// Samples eligible for fitting (W0)
	Working []int `json:"working"`
	// Cloud points under the initial, second and final curve
	Cloud [3][]int `json:"cloud"`
	// Estimated peak: vertex of the final curve
	PeakSeconds float64 `json:"peak_seconds"`
	PeakWatts   float64 `json:"peak_watts"`
}

func (r *Result) Final() Parabola {
	return r.Curves[2]
}

func (r *Result) CloudCounts() [3]int {
	return [3]int{len(r.Cloud[0]), len(r.Cloud[1]), len(r.Cloud[2])}
}

// FinalCloud returns the final cloud set as a lookup.
func (r *Result) FinalCloud() map[int]bool {
	set := make(map[int]bool, len(r.Cloud[2]))
	for _, i := range r.Cloud[2] {
		set[i] = true
	}
	return set
}

// FitDay runs the three pass fit. Every cloud pass re-tests all of W0
// against the newest curve, so points flagged by an earlier curve can be
// rescued and new ones flagged.
func FitDay(s dailyseries.Series, cfg Config) (Result, error) {
	var res Result
	for i, sample := range s.Samples {
		w := float64(sample.Watts)
		if w >= cfg.MinFitWatts && w <= cfg.MaxContinuousWatts {
			res.Working = append(res.Working, i)
		}
	}

	working := res.Working
	for pass := 0; pass < 3; pass++ {
		curve, err := fitIndices(s, working)
		if err != nil {
			return res, fmt.Errorf("pass %d: %w", pass+1, err)
		}
		res.Curves[pass] = curve
		res.Cloud[pass] = cloudPoints(s, res.Working, curve, cfg.CloudThresholdWatts)
		working = without(res.Working, res.Cloud[pass])
	}

	final := res.Final()
	if !final.Concave() {
		return res, ErrNotConcave
	}
	res.PeakSeconds, res.PeakWatts = final.Vertex()
	return res, nil
}

func fitIndices(s dailyseries.Series, indices []int) (Parabola, error) {
	xs := make([]float64, len(indices))
	ys := make([]float64, len(indices))
	for k, i := range indices {
		xs[k] = float64(s.Samples[i].Seconds)
		ys[k] = float64(s.Samples[i].Watts)
	}
	return FitParabola(xs, ys)
}

func cloudPoints(s dailyseries.Series, candidates []int, curve Parabola, threshold float64) []int {
	var cloud []int
	for _, i := range candidates {
		sample := s.Samples[i]
		if curve.Eval(float64(sample.Seconds))-float64(sample.Watts) >= threshold {
			cloud = append(cloud, i)
		}
	}
	return cloud
}

// without returns the elements of all not in remove. Both are ascending.
func without(all, remove []int) []int {
	out := make([]int, 0, len(all)-len(remove))
	j := 0
	for _, i := range all {
		for j < len(remove) && remove[j] < i {
			j++
		}
		if j < len(remove) && remove[j] == i {
			continue
		}
		out = append(out, i)
	}
	return out
}
