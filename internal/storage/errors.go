package storage

import "errors"

var (
	// ErrNotFound is returned when no update matches a lookup.
	ErrNotFound = errors.New("update not found")

	// ErrDuplicateKey is returned when an update with the same identity is
	// already stored: (pubkey, slot, write_version) for accounts and
	// (slot, status) for slots. A reconnect replays recent updates, so callers
	// treat it as already persisted rather than as a failure.
	ErrDuplicateKey = errors.New("duplicate key: update already stored")

	// ErrInvalidInput is returned for a nil update, a missing pubkey or slot
	// status, or an inverted slot range.
	ErrInvalidInput = errors.New("invalid update")
)
