package analyzer

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/energy"
)

func whr(v float64) string {
	return humanize.CommafWithDigits(math.Round(v*100)/100, 2) + "Whr"
}

func location(m energy.Max) string {
	if m.Date == "" {
		return "none"
	}
	return fmt.Sprintf("by SN%d on %s", m.Serial, m.Date)
}

// DetailLine renders one inverter-day.
func DetailLine(d DayRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s SN%d %.2fWhr generated", d.Date, d.Serial, d.GeneratedWh)
	if d.Fitted() {
		fmt.Fprintf(&b, ", %.2fWhr exceedance, %.2fWhr shaved", d.ExceedanceWh, d.ShavedWh)
		if d.PeakTime != "" {
			fmt.Fprintf(&b, ", %.2fW est peak at %s", d.PeakWatts, d.PeakTime)
		}
	} else {
		fmt.Fprintf(&b, " (not fitted: %s)", d.FitError)
	}
	if d.SolarNoon != "" {
		fmt.Fprintf(&b, ", solar noon %s", d.SolarNoon)
	}
	return b.String()
}

// WriteText renders the report, with one line per inverter-day when detail
// is set.
func WriteText(w io.Writer, r Report, detail bool) error {
	var b strings.Builder
	if detail {
		for _, d := range r.Days {
			b.WriteString(DetailLine(d))
			b.WriteByte('\n')
		}
	}

	s := r.Summary
	t := s.Totals
	fmt.Fprintf(&b, "Report from %s to %s\n", r.From, r.To)
	fmt.Fprintf(&b, "Processed %d inverter-days (%d screened out, %d not fitted) over %d days for %d inverters.\n",
		s.DaysProcessed, s.ScreenedOut, s.FitFailures, s.CalendarDays, s.Inverters)
	if t.InverterDays == 0 {
		b.WriteString("No fitted inverter-days.\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	fmt.Fprintf(&b, "Total output of %s from %d fitted inverter-days.\n", whr(t.GeneratedWh), t.InverterDays)
	perDay := t.GeneratedWh / float64(max(s.CalendarDays, 1))
	fmt.Fprintf(&b, "Average generated power per day: %s (%s per inverter)\n",
		whr(perDay), whr(t.GeneratedWh/float64(t.InverterDays)))
	fmt.Fprintf(&b, "Maximum inverter power: %s (%s)\n", whr(t.MaxGenerated.Value), location(t.MaxGenerated))
	fmt.Fprintf(&b, "Total exceedance power: %s\n", whr(t.ExceedanceWh))
	fmt.Fprintf(&b, "Maximum exceedance power: %s (%s)\n", whr(t.MaxExceedance.Value), location(t.MaxExceedance))
	fmt.Fprintf(&b, "Total shaved power: %s\n", whr(t.ShavedWh))
	fmt.Fprintf(&b, "Maximum shaved power: %s (%s)\n", whr(t.MaxShaved.Value), location(t.MaxShaved))
	fmt.Fprintf(&b, "Maximum estimated peak: %.2fW (%s)\n", t.MaxPeak.Value, location(t.MaxPeak))
	fmt.Fprintf(&b, "Shave ratio: %.2f%% (total shaved power / total generated power)\n", s.ShaveRatio)

	_, err := io.WriteString(w, b.String())
	return err
}

func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
