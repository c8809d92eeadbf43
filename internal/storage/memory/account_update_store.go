package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"sonic-stream/internal/domain"
	"sonic-stream/internal/storage"
)

// AccountUpdateStore is an in-memory implementation of storage.AccountUpdateStore.
type AccountUpdateStore struct {
	mu   sync.RWMutex
	data map[string]*domain.AccountUpdate // keyed by composite key
}

// NewAccountUpdateStore creates a new in-memory account update store.
func NewAccountUpdateStore() *AccountUpdateStore {
	return &AccountUpdateStore{
		data: make(map[string]*domain.AccountUpdate),
	}
}

func accountUpdateKey(pubkey string, slot, writeVersion uint64) string {
	return fmt.Sprintf("%s|%d|%d", pubkey, slot, writeVersion)
}

// Insert adds a new update. Returns ErrDuplicateKey if exists.
func (s *AccountUpdateStore) Insert(_ context.Context, u *domain.AccountUpdate) error {
	if u == nil || u.Pubkey == "" {
		return storage.ErrInvalidInput
	}

	key := accountUpdateKey(u.Pubkey, u.Slot, u.WriteVersion)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[key] = cloneAccountUpdate(u)
	return nil
}

// GetByPubkey retrieves all updates for an account, ordered by (slot, write_version) ASC.
func (s *AccountUpdateStore) GetByPubkey(_ context.Context, pubkey string) ([]*domain.AccountUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AccountUpdate
	for _, u := range s.data {
		if u.Pubkey == pubkey {
			result = append(result, cloneAccountUpdate(u))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Slot != result[j].Slot {
			return result[i].Slot < result[j].Slot
		}
		return result[i].WriteVersion < result[j].WriteVersion
	})

	return result, nil
}

// GetLatest retrieves the most recent update for an account.
func (s *AccountUpdateStore) GetLatest(_ context.Context, pubkey string) (*domain.AccountUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.AccountUpdate
	for _, u := range s.data {
		if u.Pubkey != pubkey {
			continue
		}
		if latest == nil || u.Slot > latest.Slot ||
			(u.Slot == latest.Slot && u.WriteVersion > latest.WriteVersion) {
			latest = u
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return cloneAccountUpdate(latest), nil
}

// cloneAccountUpdate copies u including its slices so callers cannot mutate stored state.
func cloneAccountUpdate(u *domain.AccountUpdate) *domain.AccountUpdate {
	c := *u
	if u.Data != nil {
		c.Data = append([]byte(nil), u.Data...)
	}
	if u.Filters != nil {
		c.Filters = append([]string(nil), u.Filters...)
	}
	return &c
}

var _ storage.AccountUpdateStore = (*AccountUpdateStore)(nil)
