package memory

import (
	"context"
	"errors"
	"testing"

	"sonic-stream/internal/domain"
	"sonic-stream/internal/storage"
)

func TestAccountUpdateStore_InsertAndGet(t *testing.T) {
	store := NewAccountUpdateStore()
	ctx := context.Background()

	u := &domain.AccountUpdate{
		Pubkey:       "acct1",
		Owner:        "11111111111111111111111111111111",
		Lamports:     1_000_000_000,
		Data:         []byte{1, 2, 3},
		WriteVersion: 7,
		Slot:         100,
		Filters:      []string{"accountSubscribe"},
		Source:       domain.SourceGRPC,
		ReceivedAt:   1704067200000,
	}

	if err := store.Insert(ctx, u); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	result, err := store.GetByPubkey(ctx, "acct1")
	if err != nil {
		t.Fatalf("GetByPubkey failed: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("Expected 1 update, got %d", len(result))
	}
	if result[0].Lamports != 1_000_000_000 {
		t.Errorf("Lamports mismatch: got %d, want %d", result[0].Lamports, 1_000_000_000)
	}
	if result[0].DataLen() != 3 {
		t.Errorf("DataLen mismatch: got %d, want 3", result[0].DataLen())
	}
}

func TestAccountUpdateStore_DuplicateKey(t *testing.T) {
	store := NewAccountUpdateStore()
	ctx := context.Background()

	u := &domain.AccountUpdate{Pubkey: "acct1", Slot: 5, WriteVersion: 1}
	if err := store.Insert(ctx, u); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, &domain.AccountUpdate{Pubkey: "acct1", Slot: 5, WriteVersion: 1, Lamports: 9})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	// Same slot, new write version is a distinct update.
	if err := store.Insert(ctx, &domain.AccountUpdate{Pubkey: "acct1", Slot: 5, WriteVersion: 2}); err != nil {
		t.Errorf("Insert with new write version failed: %v", err)
	}
}

func TestAccountUpdateStore_InvalidInput(t *testing.T) {
	store := NewAccountUpdateStore()
	ctx := context.Background()

	if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("nil: expected ErrInvalidInput, got %v", err)
	}
	if err := store.Insert(ctx, &domain.AccountUpdate{Slot: 1}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty pubkey: expected ErrInvalidInput, got %v", err)
	}
}

func TestAccountUpdateStore_Ordering(t *testing.T) {
	store := NewAccountUpdateStore()
	ctx := context.Background()

	for _, u := range []*domain.AccountUpdate{
		{Pubkey: "acct1", Slot: 30, WriteVersion: 1},
		{Pubkey: "acct1", Slot: 10, WriteVersion: 4},
		{Pubkey: "acct2", Slot: 20, WriteVersion: 1},
		{Pubkey: "acct1", Slot: 10, WriteVersion: 2},
	} {
		if err := store.Insert(ctx, u); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	result, err := store.GetByPubkey(ctx, "acct1")
	if err != nil {
		t.Fatalf("GetByPubkey failed: %v", err)
	}
	if len(result) != 3 {
		t.Fatalf("Expected 3 updates, got %d", len(result))
	}

	want := [][2]uint64{{10, 2}, {10, 4}, {30, 1}}
	for i, w := range want {
		if result[i].Slot != w[0] || result[i].WriteVersion != w[1] {
			t.Errorf("result[%d] = (%d, %d), want (%d, %d)", i, result[i].Slot, result[i].WriteVersion, w[0], w[1])
		}
	}
}

func TestAccountUpdateStore_GetLatest(t *testing.T) {
	store := NewAccountUpdateStore()
	ctx := context.Background()

	if _, err := store.GetLatest(ctx, "acct1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	for _, u := range []*domain.AccountUpdate{
		{Pubkey: "acct1", Slot: 10, WriteVersion: 9, Lamports: 1},
		{Pubkey: "acct1", Slot: 11, WriteVersion: 1, Lamports: 2},
		{Pubkey: "acct1", Slot: 11, WriteVersion: 3, Lamports: 3},
	} {
		if err := store.Insert(ctx, u); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	latest, err := store.GetLatest(ctx, "acct1")
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if latest.Lamports != 3 {
		t.Errorf("Expected latest lamports 3, got %d", latest.Lamports)
	}
}

func TestAccountUpdateStore_ReturnsCopies(t *testing.T) {
	store := NewAccountUpdateStore()
	ctx := context.Background()

	u := &domain.AccountUpdate{Pubkey: "acct1", Data: []byte{1}}
	if err := store.Insert(ctx, u); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	u.Data[0] = 9

	got, err := store.GetLatest(ctx, "acct1")
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if got.Data[0] != 1 {
		t.Errorf("stored data was mutated through caller slice")
	}
	got.Data[0] = 7

	again, _ := store.GetLatest(ctx, "acct1")
	if again.Data[0] != 1 {
		t.Errorf("stored data was mutated through returned slice")
	}
}
