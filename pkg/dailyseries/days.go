package dailyseries

import "time"

// DayStart returns local midnight of the day containing t.
func DayStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DayEnd returns the last second of the day starting at dayStart (next day start - 1s)
func DayEnd(dayStart time.Time) time.Time {
	return dayStart.AddDate(0, 0, 1).Add(-time.Second)
}

// SecondsPastMidnight uses the wall clock, so DST days keep their clock
// readings.
func SecondsPastMidnight(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// ParseDate parses a YYYY-MM-DD date as local midnight.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, loc)
}
