package errors

import "errors"

var (
	// ErrValidation is a generic sentinel for malformed or missing field
	// values at hashing time.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is a generic sentinel for missing visits, leaves or
	// anchors during verification.
	ErrNotFound = errors.New("not found")
	// ErrChainIntegrity marks a hash or chain-link mismatch. It is a
	// detection outcome, not a system fault.
	ErrChainIntegrity = errors.New("chain integrity violation")
	// ErrExternalLedger marks a publish or read failure against the
	// external ledger.
	ErrExternalLedger = errors.New("external ledger failure")
	// ErrConcurrency marks an attempted double-anchor or a chain fork on
	// append.
	ErrConcurrency = errors.New("concurrent modification")
)
