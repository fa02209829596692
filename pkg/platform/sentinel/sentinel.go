package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record does not exist at the store path
// - ErrConflict: a create-only write hit an existing key
// - ErrAlreadyUsed: a conditional consume found the resource already consumed
// - ErrInvalidState: record in wrong state for the requested transition
// - ErrCorrupt: record exists but cannot be decoded
// - ErrUnavailable: backing store unreachable or timed out
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrCorrupt      = errors.New("corrupt record")
	ErrUnavailable  = errors.New("unavailable")
)
