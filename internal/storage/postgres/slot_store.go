package postgres

import (
	"context"
	"fmt"
	"time"

	"sonic-stream/internal/domain"
	"sonic-stream/internal/storage"
)

// SlotStore implements storage.SlotStore using PostgreSQL.
type SlotStore struct {
	pool *Pool
}

// NewSlotStore creates a new SlotStore.
func NewSlotStore(pool *Pool) *SlotStore {
	return &SlotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SlotStore = (*SlotStore)(nil)

// Insert adds a slot status change. Returns ErrDuplicateKey if (slot, status) exists.
func (s *SlotStore) Insert(ctx context.Context, u *domain.SlotUpdate) (err error) {
	if u == nil || u.Status == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("insert_slot_update", start, err) }(time.Now())

	filters := u.Filters
	if filters == nil {
		filters = []string{}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO slot_updates (slot, parent, status, filters, source, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		toBigint(u.Slot),
		toBigint(u.Parent),
		u.Status,
		filters,
		string(u.Source),
		u.ReceivedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert slot update: %w", err)
	}
	return nil
}

// GetRange retrieves updates with slot in [from, to] (inclusive), ordered by slot ASC.
func (s *SlotStore) GetRange(ctx context.Context, from, to uint64) (_ []*domain.SlotUpdate, err error) {
	if from > to {
		return nil, storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("get_slot_range", start, err) }(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT slot, parent, status, filters, source, received_at
		FROM slot_updates
		WHERE slot >= $1 AND slot <= $2
		ORDER BY slot ASC, received_at ASC, status ASC
	`, toBigint(from), toBigint(to))
	if err != nil {
		return nil, fmt.Errorf("get slot range: %w", err)
	}
	defer rows.Close()

	var updates []*domain.SlotUpdate
	for rows.Next() {
		var (
			u            domain.SlotUpdate
			slot, parent int64
			source       string
		)
		if err := rows.Scan(&slot, &parent, &u.Status, &u.Filters, &source, &u.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan slot update: %w", err)
		}
		u.Slot = fromBigint(slot)
		u.Parent = fromBigint(parent)
		u.Source = domain.Source(source)
		updates = append(updates, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slot updates: %w", err)
	}

	return updates, nil
}
