package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"sonic-stream/internal/domain"
	"sonic-stream/internal/storage"
)

// SlotStore is an in-memory implementation of storage.SlotStore.
type SlotStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SlotUpdate
}

// NewSlotStore creates a new in-memory slot store.
func NewSlotStore() *SlotStore {
	return &SlotStore{
		data: make(map[string]*domain.SlotUpdate),
	}
}

// Insert adds a slot status change. Returns ErrDuplicateKey if (slot, status) exists.
func (s *SlotStore) Insert(_ context.Context, u *domain.SlotUpdate) error {
	if u == nil || u.Status == "" {
		return storage.ErrInvalidInput
	}

	key := fmt.Sprintf("%d|%s", u.Slot, u.Status)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	c := *u
	c.Filters = append([]string(nil), u.Filters...)
	s.data[key] = &c
	return nil
}

// GetRange retrieves updates with slot in [from, to] (inclusive).
func (s *SlotStore) GetRange(_ context.Context, from, to uint64) ([]*domain.SlotUpdate, error) {
	if from > to {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SlotUpdate
	for _, u := range s.data {
		if u.Slot >= from && u.Slot <= to {
			c := *u
			result = append(result, &c)
		}
	}

	// Same slot: order by arrival, then status name.
	sort.Slice(result, func(i, j int) bool {
		if result[i].Slot != result[j].Slot {
			return result[i].Slot < result[j].Slot
		}
		if result[i].ReceivedAt != result[j].ReceivedAt {
			return result[i].ReceivedAt < result[j].ReceivedAt
		}
		return result[i].Status < result[j].Status
	})

	return result, nil
}

var _ storage.SlotStore = (*SlotStore)(nil)
