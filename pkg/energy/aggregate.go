package energy

// Location identifies the inverter-day a maximum was reached on.
type Location struct {
	Serial uint64 `json:"serial_number"`
	Date   string `json:"date"`
}

type Max struct {
	Value float64 `json:"value"`
	Location
}

func (m *Max) offer(value float64, at Location) {
	if value > m.Value {
		m.Value = value
		m.Location = at
	}
}

// Record is one integrated inverter-day.
type Record struct {
	Location
	Energy    DayEnergy
	PeakWatts float64
}

type Totals struct {
	InverterDays  int     `json:"inverter_days"`
	GeneratedWh   float64 `json:"generated_wh"`
	ExceedanceWh  float64 `json:"exceedance_wh"`
	ShavedWh      float64 `json:"shaved_wh"`
	MaxGenerated  Max     `json:"max_generated"`
	MaxExceedance Max     `json:"max_exceedance"`
	MaxShaved     Max     `json:"max_shaved"`
	MaxPeak       Max     `json:"max_peak"`
}

func (t *Totals) Add(r Record) {
	t.InverterDays++
	t.GeneratedWh += r.Energy.GeneratedWh
	t.ExceedanceWh += r.Energy.ExceedanceWh
	t.ShavedWh += r.Energy.ShavedWh
	t.MaxGenerated.offer(r.Energy.GeneratedWh, r.Location)
	t.MaxExceedance.offer(r.Energy.ExceedanceWh, r.Location)
	t.MaxShaved.offer(r.Energy.ShavedWh, r.Location)
	t.MaxPeak.offer(r.PeakWatts, r.Location)
}

// ShaveRatio is total shaved over total generated, as a percentage.
func (t *Totals) ShaveRatio() float64 {
	if t.GeneratedWh <= 0 {
		return 0
	}
	return t.ShavedWh / t.GeneratedWh * 100
}

func Aggregate(records []Record) Totals {
	var t Totals
	for _, r := range records {
		t.Add(r)
	}
	return t
}
