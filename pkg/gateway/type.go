package gateway

import (
	"errors"
	"fmt"
)

const (
	InvertersPath = "/api/v1/production/inverters"
	CheckJwtPath  = "/auth/check_jwt"

	// devType of a microinverter in the production report
	MicroinverterDevType = 1
)

var (
	ErrUnauthorized = errors.New("gateway rejected credentials")
	ErrUnreachable  = errors.New("gateway unreachable")
	ErrBadStatus    = errors.New("unexpected gateway status")
)

// TransientFetchError is returned for any failure to obtain a snapshot.
// The capture loop retries it on the next cycle.
type TransientFetchError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *TransientFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s failed with status %d: %v", e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway %s failed: %v", e.Operation, e.Err)
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// inverterReport mirrors one element of the production inverters array.
type inverterReport struct {
	SerialNumber    string `json:"serialNumber"`
	LastReportDate  int64  `json:"lastReportDate"`
	DevType         int    `json:"devType"`
	LastReportWatts int64  `json:"lastReportWatts"`
	MaxReportWatts  int64  `json:"maxReportWatts"`
}
