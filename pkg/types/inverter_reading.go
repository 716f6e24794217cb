package types

import (
	"encoding/json"
	"sort"
	"time"
)

// InverterReport is one inverter's entry in a polled snapshot.
type InverterReport struct {
	Serial     uint64    `json:"serial_number"`
	ReportTime time.Time `json:"last_report_date"`
	Watts      uint16    `json:"watts"`
}

// Snapshot is one poll result keyed by inverter serial number.
type Snapshot map[uint64]InverterReport

// Serials returns the snapshot's serial numbers in ascending order.
func (s Snapshot) Serials() []uint64 {
	serials := make([]uint64, 0, len(s))
	for serial := range s {
		serials = append(serials, serial)
	}
	sort.Slice(serials, func(i, j int) bool { return serials[i] < serials[j] })
	return serials
}

// StoredReading is a row of the APIV1ProductionInverters table.
type StoredReading struct {
	ReportTime time.Time `json:"last_report_date"`
	Serial     uint64    `json:"serial_number"`
	Watts      uint16    `json:"watts"`
}

func (r *StoredReading) ToJsonBytes() []byte {
	b, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	return b
}

func StoredReadingFromJsonBytes(data []byte) *StoredReading {
	var reading StoredReading
	if err := json.Unmarshal(data, &reading); err != nil {
		return nil
	}
	return &reading
}
