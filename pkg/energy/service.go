// Package energy integrates inverter-day samples into generated, exceedance
// and shaved energy.
package energy

import (
	"math"

	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/curvefit"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/dailyseries"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/units"
)

type Config struct {
	MaxContinuousWatts float64
	MinFitWatts        float64
}

// DayEnergy is reported in watt-hours.
type DayEnergy struct {
	GeneratedWh  float64 `json:"generated_wh"`
	ExceedanceWh float64 `json:"exceedance_wh"`
	ShavedWh     float64 `json:"shaved_wh"`
}

// Integrate applies the trapezoidal rule over consecutive raw samples.
// Shaved energy uses the final curve of fit; a nil fit only yields the
// generated and exceedance energy.
func Integrate(s dailyseries.Series, fit *curvefit.Result, cfg Config) (DayEnergy, error) {
	if err := s.CheckOrder(); err != nil {
		return DayEnergy{}, err
	}

	var deficit []float64
	if fit != nil {
		deficit = deficits(s, fit, cfg.MinFitWatts)
	}

	var generated, exceedance, shaved float64
	for i := 1; i < len(s.Samples); i++ {
		prev, cur := s.Samples[i-1], s.Samples[i]
		dt := float64(cur.Seconds - prev.Seconds)
		w0, w1 := float64(prev.Watts), float64(cur.Watts)

		generated += dt * (w0 + w1) / 2
		exceedance += areaAbove(w0, w1, dt, cfg.MaxContinuousWatts)
		if deficit != nil {
			shaved += dt * (deficit[i-1] + deficit[i]) / 2
		}
	}

	return DayEnergy{
		GeneratedWh:  units.WattSecondsToWh(generated),
		ExceedanceWh: units.WattSecondsToWh(exceedance),
		ShavedWh:     units.WattSecondsToWh(shaved),
	}, nil
}

// deficits is how far each sample falls short of the clear sky curve.
// Trail-in/out samples and cloud points count as no deficit: cloud loss is
// not shaving.
func deficits(s dailyseries.Series, fit *curvefit.Result, minFitWatts float64) []float64 {
	curve := fit.Final()
	cloud := fit.FinalCloud()
	out := make([]float64, len(s.Samples))
	for i, sample := range s.Samples {
		w := float64(sample.Watts)
		if w < minFitWatts || cloud[i] {
			continue
		}
		out[i] = math.Max(0, curve.Eval(float64(sample.Seconds))-w)
	}
	return out
}

// areaAbove integrates max(0, w - limit) over a linear segment from w0 to w1,
// interpolating the time the segment crosses the limit.
func areaAbove(w0, w1, dt, limit float64) float64 {
	e0, e1 := w0-limit, w1-limit
	switch {
	case e0 >= 0 && e1 >= 0:
		return dt * (e0 + e1) / 2
	case e0 <= 0 && e1 <= 0:
		return 0
	case e0 < 0:
		// Rising through the limit
		above := dt * e1 / (e1 - e0)
		return above * e1 / 2
	default:
		// Falling through the limit
		above := dt * e0 / (e0 - e1)
		return above * e0 / 2
	}
}
