package clickhouse

import (
	"context"
	"fmt"
	"time"

	"sonic-stream/internal/domain"
	"sonic-stream/internal/storage"
)

// SlotStore implements storage.SlotStore using ClickHouse.
type SlotStore struct {
	conn *Conn
}

// NewSlotStore creates a new SlotStore.
func NewSlotStore(conn *Conn) *SlotStore {
	return &SlotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SlotStore = (*SlotStore)(nil)

// Insert adds a slot status change. Returns ErrDuplicateKey if (slot, status) exists.
func (s *SlotStore) Insert(ctx context.Context, u *domain.SlotUpdate) (err error) {
	if u == nil || u.Status == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("insert_slot_update", start, err) }(time.Now())

	var count uint64
	err = s.conn.QueryRow(ctx, `
		SELECT count(*) FROM slot_updates WHERE slot = ? AND status = ?
	`, u.Slot, u.Status).Scan(&count)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if count > 0 {
		return storage.ErrDuplicateKey
	}

	filters := u.Filters
	if filters == nil {
		filters = []string{}
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO slot_updates (slot, parent, status, filters, source, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.Slot, u.Parent, u.Status, filters, string(u.Source), u.ReceivedAt)
	if err != nil {
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

	rows, err := s.conn.Query(ctx, `
		SELECT slot, parent, status, filters, source, received_at
		FROM slot_updates
		WHERE slot >= ? AND slot <= ?
		ORDER BY slot ASC, received_at ASC, status ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query slot range: %w", err)
	}
	defer rows.Close()

	var updates []*domain.SlotUpdate
	for rows.Next() {
		var (
			u      domain.SlotUpdate
			source string
		)
		if err := rows.Scan(&u.Slot, &u.Parent, &u.Status, &u.Filters, &source, &u.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan slot update row: %w", err)
		}
		u.Source = domain.Source(source)
		updates = append(updates, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slot update rows: %w", err)
	}

	return updates, nil
}
