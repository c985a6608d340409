package baseline

import "errors"

var (
	// ErrBaselineNotEstablished is returned when the historical window does
	// not contain enough days of actuals. Callers must surface it, never
	// substitute a zero baseline.
	ErrBaselineNotEstablished = errors.New("baseline: not established")
	// ErrFacilityNotFound is returned when the facility is unknown.
	ErrFacilityNotFound = errors.New("baseline: facility not found")
)
