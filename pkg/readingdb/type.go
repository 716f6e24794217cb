package readingdb

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"time"
)

type Dialect string

const (
	SQLite   Dialect = "sqlite"
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
)

// Layout used for LastReportDate on every backend.
const TimestampLayout = "2006-01-02 15:04:05"

var (
	ErrUnknownDialect = errors.New("unknown store driver")
	ErrSchemaMissing  = errors.New("reading table missing after migration")
)

// reportTime scans LastReportDate from any backend as a wall clock in loc.
// Drivers hand it back as time.Time (mysql parseTime, pq, modernc on
// TIMESTAMP columns) or as text.
type reportTime struct {
	loc  *time.Location
	Time time.Time
}

func (r *reportTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		r.Time = time.Date(v.Year(), v.Month(), v.Day(), v.Hour(), v.Minute(), v.Second(), 0, r.loc)
		return nil
	case string:
		return r.parse(v)
	case []byte:
		return r.parse(string(v))
	case nil:
		return errors.New("LastReportDate is NULL")
	default:
		return fmt.Errorf("unsupported LastReportDate type %T", src)
	}
}

func (r *reportTime) parse(s string) error {
	layouts := []string{TimestampLayout, time.RFC3339, "2006-01-02T15:04:05"}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, s, r.loc)
		if err == nil {
			r.Time = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, r.loc)
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// formattedTime binds a timestamp in TimestampLayout, local to the store.
type formattedTime struct {
	t   time.Time
	loc *time.Location
}

func (f formattedTime) Value() (driver.Value, error) {
	return f.t.In(f.loc).Format(TimestampLayout), nil
}

var _ driver.Valuer = formattedTime{}
