package analyzer

import (
	"time"

	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/config"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/curvefit"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/dailyseries"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/energy"
)

type Options struct {
	From     time.Time
	To       time.Time
	Location *time.Location
	Workers  int
	Screen   dailyseries.ScreenConfig
	Fit      curvefit.Config

	// Solar noon is reported when a site location is known
	HasSite   bool
	Latitude  float64
	Longitude float64
}

func OptionsFromConfig(cfg *config.AnalyzerConfig, from, to time.Time, loc *time.Location) Options {
	return Options{
		From:     from,
		To:       to,
		Location: loc,
		Workers:  cfg.Workers,
		Screen: dailyseries.ScreenConfig{
			MinDataPoints: cfg.Fit.MinDataPoints,
			MaxStartPower: cfg.Fit.MaxStartPower,
			MaxEndPower:   cfg.Fit.MaxEndPower,
		},
		Fit: curvefit.Config{
			MinFitWatts:         cfg.Fit.MinFitWatts,
			MaxContinuousWatts:  cfg.Fit.MaxContinuousWatts,
			CloudThresholdWatts: cfg.Fit.CloudThresholdWatts,
		},
		HasSite:   cfg.HasLocation(),
		Latitude:  cfg.Latitude,
		Longitude: cfg.Longitude,
	}
}

// DayRecord is the analysis of one inverter-day that passed screening.
type DayRecord struct {
	Date         string  `json:"date"`
	Serial       uint64  `json:"serial_number"`
	GeneratedWh  float64 `json:"generated_wh"`
	ExceedanceWh float64 `json:"exceedance_wh"`
	ShavedWh     float64 `json:"shaved_wh"`
	PeakWatts    float64 `json:"peak_watts"`
	PeakTime     string  `json:"peak_time,omitempty"`
	SampleCount  int     `json:"sample_count"`
	CloudCounts  [3]int  `json:"cloud_counts"`
	SolarNoon    string  `json:"solar_noon,omitempty"`
	// Set when the day could not be fitted; only GeneratedWh is filled in then
	FitError string `json:"fit_error,omitempty"`
}

func (d *DayRecord) Fitted() bool {
	return d.FitError == ""
}

type Summary struct {
	// Inverter-days that passed screening, fitted or not
	DaysProcessed int `json:"days_processed"`
	ScreenedOut   int `json:"screened_out"`
	FitFailures   int `json:"fit_failures"`
	Inverters     int `json:"inverters"`
	CalendarDays  int `json:"calendar_days"`
	// Energy of fitted days only
	Totals     energy.Totals `json:"totals"`
	ShaveRatio float64       `json:"shave_ratio_percent"`
}

type Report struct {
	From    string      `json:"from"`
	To      string      `json:"to"`
	Days    []DayRecord `json:"days"`
	Summary Summary     `json:"summary"`
}
