// Package apperr defines the business failure taxonomy. Components return
// these as distinct types so callers and the HTTP boundary can map each
// rejection without string matching; infrastructure errors stay untyped.
package apperr

import "fmt"

// ValidationError covers malformed or missing fields and non-chronological
// date ranges.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NotFoundError marks a referenced entity that does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ConflictError covers scheduling collisions, unique-key violations and lost
// invoice-selection races. ActivityIDs carries the conflicting set when the
// conflict is a scheduling overlap.
type ConflictError struct {
	Reason      string
	ActivityIDs []string
}

func (e ConflictError) Error() string { return e.Reason }

// CapacityError is a contract hour ledger rejection. Remaining is reported so
// the caller can see how far over the request went.
type CapacityError struct {
	ContractID string
	Requested  float64
	Total      float64
	Used       float64
	Remaining  float64
}

func (e CapacityError) Error() string {
	return fmt.Sprintf("contract %s capacity exceeded: requested %.2fh, %.2fh remaining", e.ContractID, e.Requested, e.Remaining)
}
