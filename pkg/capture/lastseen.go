package capture

import (
	"sort"
	"time"

	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/types"
)

type LastSeenEntry struct {
	// Report time last evaluated, advanced by Touch
	ReportTime time.Time
	Watts      uint16
	// Report time of the stored row holding Watts
	StoredTime time.Time
}

// LastSeen holds, per inverter, the report time last evaluated and the watts
// last stored. It is rebuilt from the store on startup.
type LastSeen map[uint64]LastSeenEntry

func NewLastSeen() LastSeen {
	return make(LastSeen)
}

// Seed loads the newest reading of every inverter.
func (l LastSeen) Seed(readings []types.StoredReading) {
	for _, r := range readings {
		if prev, ok := l[r.Serial]; ok && !r.ReportTime.After(prev.ReportTime) {
			continue
		}
		l[r.Serial] = LastSeenEntry{ReportTime: r.ReportTime, Watts: r.Watts, StoredTime: r.ReportTime}
	}
}

// Classify decides what to do with a report without changing any state.
func (l LastSeen) Classify(report types.InverterReport) Classification {
	prev, ok := l[report.Serial]
	if !ok {
		return Store
	}
	if !report.ReportTime.After(prev.ReportTime) {
		// Same or older report time. Older never regresses the state.
		return Resend
	}
	if report.Watts == prev.Watts {
		return Unchanged
	}
	return Store
}

// Conflicts reports a resend of the last seen time with different watts.
func (l LastSeen) Conflicts(report types.InverterReport) bool {
	prev, ok := l[report.Serial]
	return ok && report.ReportTime.Equal(prev.ReportTime) && report.Watts != prev.Watts
}

func (l LastSeen) Record(reading types.StoredReading) {
	l[reading.Serial] = LastSeenEntry{ReportTime: reading.ReportTime, Watts: reading.Watts, StoredTime: reading.ReportTime}
}

// Touch advances the report time of an unchanged inverter.
func (l LastSeen) Touch(serial uint64, reportTime time.Time) {
	if prev, ok := l[serial]; ok && reportTime.After(prev.ReportTime) {
		prev.ReportTime = reportTime
		l[serial] = prev
	}
}

func (l LastSeen) TotalWatts() uint64 {
	var total uint64
	for _, entry := range l {
		total += uint64(entry.Watts)
	}
	return total
}

// Readings returns the last stored row of every inverter ordered by serial.
// Unchanged reports advance ReportTime but never these rows.
func (l LastSeen) Readings() []types.StoredReading {
	readings := make([]types.StoredReading, 0, len(l))
	for serial, entry := range l {
		readings = append(readings, types.StoredReading{ReportTime: entry.StoredTime, Serial: serial, Watts: entry.Watts})
	}
	sort.Slice(readings, func(i, j int) bool { return readings[i].Serial < readings[j].Serial })
	return readings
}
