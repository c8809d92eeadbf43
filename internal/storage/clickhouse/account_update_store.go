package clickhouse

import (
	"context"
	"fmt"
	"time"

	"sonic-stream/internal/domain"
	"sonic-stream/internal/storage"
)

// AccountUpdateStore implements storage.AccountUpdateStore using ClickHouse.
type AccountUpdateStore struct {
	conn *Conn
}

// NewAccountUpdateStore creates a new AccountUpdateStore.
func NewAccountUpdateStore(conn *Conn) *AccountUpdateStore {
	return &AccountUpdateStore{conn: conn}
}

// Compile-time interface check.
var _ storage.AccountUpdateStore = (*AccountUpdateStore)(nil)

const accountUpdateColumns = `
	pubkey, owner, lamports, executable, rent_epoch, data, write_version, slot,
	txn_signature, is_startup, on_curve, filters, source, received_at`

// Insert adds a new update. Returns ErrDuplicateKey if (pubkey, slot, write_version) exists.
func (s *AccountUpdateStore) Insert(ctx context.Context, u *domain.AccountUpdate) (err error) {
	if u == nil || u.Pubkey == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("insert_account_update", start, err) }(time.Now())

	exists, err := s.exists(ctx, u.Pubkey, u.Slot, u.WriteVersion)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO account_updates (`+accountUpdateColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	filters := u.Filters
	if filters == nil {
		filters = []string{}
	}

	err = batch.Append(
		u.Pubkey, u.Owner, u.Lamports, u.Executable, u.RentEpoch,
		string(u.Data), u.WriteVersion, u.Slot, u.TxnSignature,
		u.IsStartup, u.OnCurve, filters, string(u.Source), u.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByPubkey retrieves all updates for an account, ordered by (slot, write_version) ASC.
func (s *AccountUpdateStore) GetByPubkey(ctx context.Context, pubkey string) (_ []*domain.AccountUpdate, err error) {
	defer func(start time.Time) { observe("get_account_updates", start, err) }(time.Now())

	rows, err := s.conn.Query(ctx, `
		SELECT `+accountUpdateColumns+`
		FROM account_updates
		WHERE pubkey = ?
		ORDER BY slot ASC, write_version ASC
	`, pubkey)
	if err != nil {
		return nil, fmt.Errorf("query by pubkey: %w", err)
	}
	defer rows.Close()

	return scanAccountUpdates(rows)
}

// GetLatest retrieves the update with the highest (slot, write_version).
func (s *AccountUpdateStore) GetLatest(ctx context.Context, pubkey string) (_ *domain.AccountUpdate, err error) {
	defer func(start time.Time) { observe("get_latest_account_update", start, err) }(time.Now())

	rows, err := s.conn.Query(ctx, `
		SELECT `+accountUpdateColumns+`
		FROM account_updates
		WHERE pubkey = ?
		ORDER BY slot DESC, write_version DESC
		LIMIT 1
	`, pubkey)
	if err != nil {
		return nil, fmt.Errorf("query latest: %w", err)
	}
	defer rows.Close()

	updates, err := scanAccountUpdates(rows)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return nil, storage.ErrNotFound
	}
	return updates[0], nil
}

func (s *AccountUpdateStore) exists(ctx context.Context, pubkey string, slot, writeVersion uint64) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count(*) FROM account_updates
		WHERE pubkey = ? AND slot = ? AND write_version = ?
	`, pubkey, slot, writeVersion).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanAccountUpdates(rows chRows) ([]*domain.AccountUpdate, error) {
	var updates []*domain.AccountUpdate

	for rows.Next() {
		var (
			u      domain.AccountUpdate
			data   string
			source string
		)
		err := rows.Scan(
			&u.Pubkey, &u.Owner, &u.Lamports, &u.Executable, &u.RentEpoch,
			&data, &u.WriteVersion, &u.Slot, &u.TxnSignature,
			&u.IsStartup, &u.OnCurve, &u.Filters, &source, &u.ReceivedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan account update row: %w", err)
		}
		if data != "" {
			u.Data = []byte(data)
		}
		u.Source = domain.Source(source)
		updates = append(updates, &u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account update rows: %w", err)
	}

	return updates, nil
}
