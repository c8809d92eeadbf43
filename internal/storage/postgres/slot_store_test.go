package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sonic-stream/internal/domain"
	"sonic-stream/internal/storage"
)

func TestSlotStore_InsertAndGetRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSlotStore(pool)

	for _, u := range []*domain.SlotUpdate{
		{Slot: 100, Parent: 99, Status: "SLOT_PROCESSED", Source: domain.SourceGRPC, ReceivedAt: 1},
		{Slot: 100, Parent: 99, Status: "SLOT_CONFIRMED", Source: domain.SourceGRPC, ReceivedAt: 2},
		{Slot: 101, Parent: 100, Status: "SLOT_PROCESSED", Source: domain.SourceGRPC, ReceivedAt: 3},
		{Slot: 300, Status: "SLOT_PROCESSED", Source: domain.SourceWebSocket, ReceivedAt: 4},
	} {
		require.NoError(t, store.Insert(ctx, u))
	}

	got, err := store.GetRange(ctx, 100, 101)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "SLOT_PROCESSED", got[0].Status)
	assert.Equal(t, "SLOT_CONFIRMED", got[1].Status)
	assert.Equal(t, uint64(100), got[2].Parent)
	assert.Equal(t, []string{}, got[0].Filters)

	err = store.Insert(ctx, &domain.SlotUpdate{Slot: 100, Status: "SLOT_CONFIRMED", Source: domain.SourceGRPC})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestSlotStore_InvalidRange(t *testing.T) {
	_, err := NewSlotStore(nil).GetRange(context.Background(), 2, 1)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
