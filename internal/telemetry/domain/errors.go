package telemetry

import (
	"errors"
	"fmt"
)

// ValidationError rejects a single malformed or out-of-range reading.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("telemetry: invalid %s: %s", e.Field, e.Reason)
}

// ConnectorError wraps a transient connector I/O failure.
type ConnectorError struct {
	IntegrationID string
	Op            string
	Err           error
}

func (e *ConnectorError) Error() string {
	return fmt.Sprintf("connector %s: %s: %v", e.IntegrationID, e.Op, e.Err)
}

func (e *ConnectorError) Unwrap() error { return e.Err }

// ErrIntegrationDeactivated is returned once the retry budget is exhausted
// and the integration requires operator re-auth.
var ErrIntegrationDeactivated = errors.New("telemetry: integration deactivated")
