package models

import "errors"

// Errors shared by the stores, the reconciliation engine and the access gate.
// Callers match them with errors.Is; producers wrap them with operation context.
var (
	// ErrNotFound is always owner-scoped: a foreign event is reported the same as a missing one.
	ErrNotFound         = errors.New("not found")
	ErrInvalidEvent     = errors.New("invalid event")
	ErrInvalidTimeRange = errors.New("end time is before start time")
	ErrSelfGrant        = errors.New("an owner cannot grant access to themselves")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotAuthenticated = errors.New("not authenticated with external calendar source")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrConflict         = errors.New("conflicting concurrent update")
	ErrIDAssigned       = errors.New("event id already assigned")
)
