package readingdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/types"
)

const latestPerInverterQuery = "SELECT LastReportDate, SerialNumber, Watts FROM APIV1ProductionInverters I1 " +
	"WHERE I1.LastReportDate = (SELECT MAX(LastReportDate) FROM APIV1ProductionInverters I2 " +
	"WHERE I1.SerialNumber = I2.SerialNumber)"

const rangeQuery = "SELECT LastReportDate, SerialNumber, Watts FROM APIV1ProductionInverters " +
	"WHERE LastReportDate BETWEEN ? AND ? ORDER BY LastReportDate, SerialNumber"

// InsertReading appends one reading. A reading whose (LastReportDate,
// SerialNumber) is already present is left untouched and reported as not
// inserted rather than as an error.
func (s *Store) InsertReading(ctx context.Context, reading types.StoredReading) (bool, error) {
	var query string
	switch s.dialect {
	case SQLite:
		query = "INSERT OR IGNORE INTO APIV1ProductionInverters (LastReportDate, SerialNumber, Watts) VALUES (?, ?, ?)"
	case MySQL:
		query = "INSERT IGNORE INTO APIV1ProductionInverters (LastReportDate, SerialNumber, Watts) VALUES (?, ?, ?)"
	default:
		query = "INSERT INTO APIV1ProductionInverters (LastReportDate, SerialNumber, Watts) VALUES (?, ?, ?) " +
			"ON CONFLICT DO NOTHING"
	}

	res, err := s.db.ExecContext(ctx, s.rebind(query),
		formattedTime{t: reading.ReportTime, loc: s.loc},
		reading.Serial,
		reading.Watts,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		s.log.WithField("serial", reading.Serial).Debugf("No row inserted for %s, already stored",
			reading.ReportTime.In(s.loc).Format(TimestampLayout))
	}
	return n > 0, nil
}

// LatestReadings returns the most recent stored reading of every inverter.
func (s *Store) LatestReadings(ctx context.Context) ([]types.StoredReading, error) {
	rows, err := s.db.QueryContext(ctx, latestPerInverterQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []types.StoredReading
	for rows.Next() {
		reading, err := s.scanReading(rows.Scan)
		if err != nil {
			return nil, err
		}
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return readings, nil
}

// ReadingsBetween streams the readings with from <= LastReportDate <= to,
// ordered by (LastReportDate, SerialNumber), into fn. A non-nil error from fn
// stops the scan and is returned.
func (s *Store) ReadingsBetween(ctx context.Context, from, to time.Time, fn func(types.StoredReading) error) error {
	rows, err := s.db.QueryContext(ctx, s.rebind(rangeQuery),
		formattedTime{t: from, loc: s.loc},
		formattedTime{t: to, loc: s.loc},
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		reading, err := s.scanReading(rows.Scan)
		if err != nil {
			return err
		}
		if err := fn(reading); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Checkpoint truncates the sqlite write-ahead log. Other backends manage
// their own logs, so it is a no-op there.
func (s *Store) Checkpoint(ctx context.Context) error {
	if s.dialect != SQLite {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

func (s *Store) scanReading(scan func(dest ...any) error) (types.StoredReading, error) {
	ts := reportTime{loc: s.loc}
	var serial int64
	var watts int64
	if err := scan(&ts, &serial, &watts); err != nil {
		return types.StoredReading{}, err
	}
	if serial < 0 || watts < 0 || watts > 65535 {
		return types.StoredReading{}, fmt.Errorf("reading out of range: serial %d watts %d", serial, watts)
	}
	return types.StoredReading{
		ReportTime: ts.Time,
		Serial:     uint64(serial),
		Watts:      uint16(watts),
	}, nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
