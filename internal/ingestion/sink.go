package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"sonic-stream/internal/domain"
	"sonic-stream/internal/observability"
	"sonic-stream/internal/solana"
	"sonic-stream/internal/storage"
	"sonic-stream/internal/stream"
)

// Sink turns normalized stream payloads into domain records, prints account
// updates and persists them. Handle satisfies stream.Handler.
type Sink struct {
	accountStore storage.AccountUpdateStore
	slotStore    storage.SlotStore
	storeName    string
	source       domain.Source
	output       io.Writer
	storeTimeout time.Duration
	now          func() time.Time
	logger       *log.Logger
}

// SinkOptions contains configuration for creating a Sink.
type SinkOptions struct {
	AccountStore storage.AccountUpdateStore // nil disables account persistence
	SlotStore    storage.SlotStore          // nil disables slot persistence
	StoreName    string                     // metrics label, e.g. "postgres"
	Source       domain.Source              // transport the live stream uses
	Output       io.Writer                  // account update printout; nil disables
	StoreTimeout time.Duration              // Default: 5s per write
	Now          func() time.Time
	Logger       *log.Logger
}

// NewSink creates a new Sink.
func NewSink(opts SinkOptions) *Sink {
	storeTimeout := opts.StoreTimeout
	if storeTimeout == 0 {
		storeTimeout = 5 * time.Second
	}

	storeName := opts.StoreName
	if storeName == "" {
		storeName = "memory"
	}

	source := opts.Source
	if source == "" {
		source = domain.SourceGRPC
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Sink{
		accountStore: opts.AccountStore,
		slotStore:    opts.SlotStore,
		storeName:    storeName,
		source:       source,
		output:       opts.Output,
		storeTimeout: storeTimeout,
		now:          now,
		logger:       logger,
	}
}

// Handle processes one live update.
func (s *Sink) Handle(p stream.Payload) error {
	return s.handle(p, s.source)
}

// HandleSnapshot processes one update read over RPC at startup.
func (s *Sink) HandleSnapshot(p stream.Payload) error {
	return s.handle(p, domain.SourceSnapshot)
}

func (s *Sink) handle(p stream.Payload, source domain.Source) error {
	receivedAt := s.now().UnixMilli()

	account, ok, err := domain.AccountUpdateFromPayload(p, source, receivedAt)
	if err != nil {
		return fmt.Errorf("decode account update: %w", err)
	}
	if ok {
		return s.handleAccount(account)
	}

	slot, ok, err := domain.SlotUpdateFromPayload(p, source, receivedAt)
	if err != nil {
		return fmt.Errorf("decode slot update: %w", err)
	}
	if ok {
		return s.handleSlot(slot)
	}

	// Transactions, blocks, pongs: counted by the manager, nothing to persist.
	return nil
}

func (s *Sink) handleAccount(u *domain.AccountUpdate) error {
	if key, err := solana.ParsePublicKey(u.Pubkey); err == nil {
		u.OnCurve = solana.IsOnCurve(key)
	}

	observability.RecordAccountUpdate(u.Slot)
	s.print(u)

	if s.accountStore == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.storeTimeout)
	defer cancel()

	err := s.accountStore.Insert(ctx, u)
	if errors.Is(err, storage.ErrDuplicateKey) {
		// Replays after a reconnect deliver the same (pubkey, slot, write_version).
		return nil
	}
	observability.RecordStored(s.storeName, err)
	if err != nil {
		return fmt.Errorf("store account update %s@%d: %w", u.Pubkey, u.Slot, err)
	}
	return nil
}

func (s *Sink) handleSlot(u *domain.SlotUpdate) error {
	observability.RecordSlotUpdate(u.Slot)

	if s.slotStore == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.storeTimeout)
	defer cancel()

	err := s.slotStore.Insert(ctx, u)
	if errors.Is(err, storage.ErrDuplicateKey) {
		return nil
	}
	observability.RecordStored(s.storeName, err)
	if err != nil {
		return fmt.Errorf("store slot update %d: %w", u.Slot, err)
	}
	return nil
}

func (s *Sink) print(u *domain.AccountUpdate) {
	if s.output == nil {
		return
	}
	_, err := fmt.Fprintf(s.output, `Account Update:
    Pubkey: %s
    Owner: %s
    Lamports: %d
    Executable: %t
    Data Length: %d
`, u.Pubkey, u.Owner, u.Lamports, u.Executable, u.DataLen())
	if err != nil {
		s.logger.Printf("print account update: %v", err)
	}
}
