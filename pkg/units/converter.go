package units

import "math"

const secondsPerHour = 3600

// Convert integrated watt-seconds to watt-hours for reporting
func WattSecondsToWh(ws float64) float64 {
	return ws / secondsPerHour
}

func WhToWattSeconds(wh float64) float64 {
	return wh * secondsPerHour
}

// Clamp a device reading into the SMALLINT UNSIGNED watts column - No negative values
func ClampWatts(w int64) uint16 {
	if w < 0 {
		return 0
	}
	if w > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(w)
}

// Round to whole watt-hours as printed in reports
func RoundWh(wh float64) int64 {
	return int64(math.Round(wh))
}
