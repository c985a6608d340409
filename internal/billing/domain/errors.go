package billing

import "errors"

var (
	// ErrInvoiceLocked is returned when regenerating a period whose current
	// invoice has already been paid.
	ErrInvoiceLocked = errors.New("billing: invoice locked by payment")
	// ErrInvoiceNotFound is returned when no invoice matches.
	ErrInvoiceNotFound = errors.New("billing: invoice not found")
	// ErrSupersedeConflict is returned when a concurrent regeneration won
	// the current slot first.
	ErrSupersedeConflict = errors.New("billing: concurrent invoice generation")
)
