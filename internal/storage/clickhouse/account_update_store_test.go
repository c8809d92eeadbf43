package clickhouse

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sonic-stream/internal/domain"
	"sonic-stream/internal/storage"
)

func TestAccountUpdateStore_InsertAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewAccountUpdateStore(conn)

	u := &domain.AccountUpdate{
		Pubkey:       "acct1",
		Owner:        "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
		Lamports:     2_039_280,
		RentEpoch:    math.MaxUint64,
		Data:         []byte{0, 1, 2, 0xff},
		WriteVersion: 4,
		Slot:         77,
		Filters:      []string{"tokens"},
		Source:       domain.SourceWebSocket,
		ReceivedAt:   1700000000123,
	}
	require.NoError(t, store.Insert(ctx, u))

	got, err := store.GetByPubkey(ctx, "acct1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, u.Owner, got[0].Owner)
	assert.Equal(t, u.RentEpoch, got[0].RentEpoch)
	assert.Equal(t, u.Data, got[0].Data)
	assert.Equal(t, u.Filters, got[0].Filters)
	assert.Equal(t, domain.SourceWebSocket, got[0].Source)

	assert.ErrorIs(t, store.Insert(ctx, u), storage.ErrDuplicateKey)
}

func TestAccountUpdateStore_GetLatest(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewAccountUpdateStore(conn)

	_, err := store.GetLatest(ctx, "acct1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	for _, sv := range [][2]uint64{{5, 1}, {6, 1}, {6, 3}} {
		require.NoError(t, store.Insert(ctx, &domain.AccountUpdate{
			Pubkey: "acct1", Slot: sv[0], WriteVersion: sv[1], Lamports: sv[0] * 10,
		}))
	}

	latest, err := store.GetLatest(ctx, "acct1")
	require.NoError(t, err)
	assert.Equal(t, uint64(6), latest.Slot)
	assert.Equal(t, uint64(3), latest.WriteVersion)
}

func TestSlotStore_InsertAndGetRange(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSlotStore(conn)

	require.NoError(t, store.Insert(ctx, &domain.SlotUpdate{Slot: 10, Parent: 9, Status: "SLOT_PROCESSED", ReceivedAt: 1}))
	require.NoError(t, store.Insert(ctx, &domain.SlotUpdate{Slot: 10, Parent: 9, Status: "SLOT_FINALIZED", ReceivedAt: 2}))
	require.NoError(t, store.Insert(ctx, &domain.SlotUpdate{Slot: 20, Status: "SLOT_PROCESSED", ReceivedAt: 3}))

	got, err := store.GetRange(ctx, 0, 15)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "SLOT_FINALIZED", got[1].Status)

	assert.ErrorIs(t, store.Insert(ctx, &domain.SlotUpdate{Slot: 20, Status: "SLOT_PROCESSED"}), storage.ErrDuplicateKey)
}

func TestParseDSN(t *testing.T) {
	opts, err := parseDSN("clickhouse://user:pw@ch.local/analytics")
	require.NoError(t, err)
	assert.Equal(t, []string{"ch.local:9000"}, opts.Addr)
	assert.Equal(t, "user", opts.Auth.Username)
	assert.Equal(t, "pw", opts.Auth.Password)
	assert.Equal(t, "analytics", opts.Auth.Database)

	_, err = parseDSN("clickhouse:///nohost")
	assert.Error(t, err)
}
