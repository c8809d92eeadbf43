package storage

import (
	"context"

	"sonic-stream/internal/domain"
)

// AccountUpdateStore provides access to account_updates storage.
type AccountUpdateStore interface {
	// Insert adds a new update. Returns ErrDuplicateKey if (pubkey, slot, write_version) exists.
	Insert(ctx context.Context, u *domain.AccountUpdate) error

	// GetByPubkey retrieves all updates for an account, ordered by (slot, write_version) ASC.
	GetByPubkey(ctx context.Context, pubkey string) ([]*domain.AccountUpdate, error)

	// GetLatest retrieves the update with the highest (slot, write_version).
	// Returns ErrNotFound if the account has no updates.
	GetLatest(ctx context.Context, pubkey string) (*domain.AccountUpdate, error)
}

// SlotStore provides access to slot_updates storage.
type SlotStore interface {
	// Insert adds a slot status change. Returns ErrDuplicateKey if (slot, status) exists.
	Insert(ctx context.Context, s *domain.SlotUpdate) error

	// GetRange retrieves updates with slot in [from, to] (inclusive), ordered by slot ASC.
	GetRange(ctx context.Context, from, to uint64) ([]*domain.SlotUpdate, error)
}
