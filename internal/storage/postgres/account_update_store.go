package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"sonic-stream/internal/domain"
	"sonic-stream/internal/storage"
)

// AccountUpdateStore implements storage.AccountUpdateStore using PostgreSQL.
type AccountUpdateStore struct {
	pool *Pool
}

// NewAccountUpdateStore creates a new AccountUpdateStore.
func NewAccountUpdateStore(pool *Pool) *AccountUpdateStore {
	return &AccountUpdateStore{pool: pool}
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

	query := `INSERT INTO account_updates (` + accountUpdateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	filters := u.Filters
	if filters == nil {
		filters = []string{}
	}

	_, err = s.pool.Exec(ctx, query,
		u.Pubkey,
		u.Owner,
		toBigint(u.Lamports),
		u.Executable,
		toBigint(u.RentEpoch),
		u.Data,
		toBigint(u.WriteVersion),
		toBigint(u.Slot),
		u.TxnSignature,
		u.IsStartup,
		u.OnCurve,
		filters,
		string(u.Source),
		u.ReceivedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert account update: %w", err)
	}
	return nil
}

// GetByPubkey retrieves all updates for an account, ordered by (slot, write_version) ASC.
func (s *AccountUpdateStore) GetByPubkey(ctx context.Context, pubkey string) (_ []*domain.AccountUpdate, err error) {
	defer func(start time.Time) { observe("get_account_updates", start, err) }(time.Now())

	query := `SELECT ` + accountUpdateColumns + `
		FROM account_updates
		WHERE pubkey = $1
		ORDER BY slot ASC, write_version ASC`

	rows, err := s.pool.Query(ctx, query, pubkey)
	if err != nil {
		return nil, fmt.Errorf("get account updates by pubkey: %w", err)
	}
	defer rows.Close()

	return scanAccountUpdates(rows)
}

// GetLatest retrieves the update with the highest (slot, write_version).
func (s *AccountUpdateStore) GetLatest(ctx context.Context, pubkey string) (_ *domain.AccountUpdate, err error) {
	defer func(start time.Time) { observe("get_latest_account_update", start, err) }(time.Now())

	query := `SELECT ` + accountUpdateColumns + `
		FROM account_updates
		WHERE pubkey = $1
		ORDER BY slot DESC, write_version DESC
		LIMIT 1`

	u, err := scanAccountUpdate(s.pool.QueryRow(ctx, query, pubkey))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest account update: %w", err)
	}
	return u, nil
}

func scanAccountUpdate(row pgx.Row) (*domain.AccountUpdate, error) {
	var (
		u                                       domain.AccountUpdate
		lamports, rentEpoch, writeVersion, slot int64
		source                                  string
	)

	err := row.Scan(
		&u.Pubkey,
		&u.Owner,
		&lamports,
		&u.Executable,
		&rentEpoch,
		&u.Data,
		&writeVersion,
		&slot,
		&u.TxnSignature,
		&u.IsStartup,
		&u.OnCurve,
		&u.Filters,
		&source,
		&u.ReceivedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Lamports = fromBigint(lamports)
	u.RentEpoch = fromBigint(rentEpoch)
	u.WriteVersion = fromBigint(writeVersion)
	u.Slot = fromBigint(slot)
	u.Source = domain.Source(source)
	return &u, nil
}

// scanAccountUpdates scans multiple rows into a slice of AccountUpdate.
func scanAccountUpdates(rows pgx.Rows) ([]*domain.AccountUpdate, error) {
	var updates []*domain.AccountUpdate

	for rows.Next() {
		u, err := scanAccountUpdate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account update: %w", err)
		}
		updates = append(updates, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account updates: %w", err)
	}

	return updates, nil
}
