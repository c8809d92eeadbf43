package ingestion

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mr-tron/base58"

	"sonic-stream/internal/domain"
	"sonic-stream/internal/storage"
	"sonic-stream/internal/storage/memory"
	"sonic-stream/internal/stream"
)

var fixedNow = func() time.Time { return time.UnixMilli(1700000000000) }

func accountPayload(pubkey []byte, slot uint64, writeVersion uint64) stream.Payload {
	return stream.NormalizePayload(map[string]any{
		"filters": []any{"accountSubscribe"},
		"account": map[string]any{
			"account": map[string]any{
				"pubkey":       pubkey,
				"owner":        make([]byte, 32),
				"lamports":     uint64(1_000_000_000),
				"executable":   false,
				"rentEpoch":    uint64(0),
				"data":         []byte{1, 2, 3, 4, 5},
				"writeVersion": writeVersion,
			},
			"slot":      slot,
			"isStartup": false,
		},
	})
}

func TestSink_StoresAndPrintsAccountUpdate(t *testing.T) {
	store := memory.NewAccountUpdateStore()
	var out bytes.Buffer

	sink := NewSink(SinkOptions{
		AccountStore: store,
		Source:       domain.SourceGRPC,
		Output:       &out,
		Now:          fixedNow,
	})

	pubkey := bytes.Repeat([]byte{7}, 32)
	if err := sink.Handle(accountPayload(pubkey, 100, 1)); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	got, err := store.GetLatest(context.Background(), base58.Encode(pubkey))
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if got.Slot != 100 || got.Lamports != 1_000_000_000 || got.DataLen() != 5 {
		t.Errorf("unexpected stored update: %+v", got)
	}
	if got.Source != domain.SourceGRPC {
		t.Errorf("Source = %s, want GRPC", got.Source)
	}
	if got.ReceivedAt != 1700000000000 {
		t.Errorf("ReceivedAt = %d, want 1700000000000", got.ReceivedAt)
	}

	printed := out.String()
	for _, want := range []string{
		"Account Update:",
		"Pubkey: " + base58.Encode(pubkey),
		"Owner: 11111111111111111111111111111111",
		"Lamports: 1000000000",
		"Executable: false",
		"Data Length: 5",
	} {
		if !strings.Contains(printed, want) {
			t.Errorf("output missing %q:\n%s", want, printed)
		}
	}
}

func TestSink_DuplicateIsNotAnError(t *testing.T) {
	sink := NewSink(SinkOptions{AccountStore: memory.NewAccountUpdateStore(), Now: fixedNow})

	p := accountPayload(bytes.Repeat([]byte{1}, 32), 5, 1)
	if err := sink.Handle(p); err != nil {
		t.Fatalf("first Handle failed: %v", err)
	}
	if err := sink.Handle(p); err != nil {
		t.Errorf("replayed update should be ignored, got %v", err)
	}
}

func TestSink_SnapshotSource(t *testing.T) {
	store := memory.NewAccountUpdateStore()
	sink := NewSink(SinkOptions{AccountStore: store, Source: domain.SourceWebSocket, Now: fixedNow})

	pubkey := bytes.Repeat([]byte{2}, 32)
	if err := sink.HandleSnapshot(accountPayload(pubkey, 9, 0)); err != nil {
		t.Fatalf("HandleSnapshot failed: %v", err)
	}

	got, err := store.GetLatest(context.Background(), base58.Encode(pubkey))
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if got.Source != domain.SourceSnapshot {
		t.Errorf("Source = %s, want SNAPSHOT", got.Source)
	}
}

func TestSink_OnCurve(t *testing.T) {
	store := memory.NewAccountUpdateStore()
	sink := NewSink(SinkOptions{AccountStore: store, Now: fixedNow})

	// y = 3 encodes a valid point; y = 2 does not.
	onCurve := make([]byte, 32)
	onCurve[0] = 3
	offCurve := make([]byte, 32)
	offCurve[0] = 2

	for _, key := range [][]byte{onCurve, offCurve} {
		if err := sink.Handle(accountPayload(key, 1, 0)); err != nil {
			t.Fatalf("Handle failed: %v", err)
		}
	}

	got, _ := store.GetLatest(context.Background(), base58.Encode(onCurve))
	if !got.OnCurve {
		t.Errorf("expected %s on curve", got.Pubkey)
	}
	got, _ = store.GetLatest(context.Background(), base58.Encode(offCurve))
	if got.OnCurve {
		t.Errorf("expected %s off curve", got.Pubkey)
	}
}

func TestSink_StoresSlotUpdate(t *testing.T) {
	slots := memory.NewSlotStore()
	sink := NewSink(SinkOptions{SlotStore: slots, Now: fixedNow})

	p := stream.NormalizePayload(map[string]any{
		"filters": []any{"slots"},
		"slot": map[string]any{
			"slot":   uint64(42),
			"parent": uint64(41),
			"status": "SLOT_CONFIRMED",
		},
	})
	if err := sink.Handle(p); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if err := sink.Handle(p); err != nil {
		t.Fatalf("duplicate slot should be ignored, got %v", err)
	}

	got, err := slots.GetRange(context.Background(), 42, 42)
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}
	if len(got) != 1 || got[0].Parent != 41 || got[0].Status != "SLOT_CONFIRMED" {
		t.Errorf("unexpected slot updates: %+v", got)
	}
}

func TestSink_IgnoresOtherUpdates(t *testing.T) {
	sink := NewSink(SinkOptions{AccountStore: memory.NewAccountUpdateStore(), Now: fixedNow})

	for _, p := range []stream.Payload{
		{"pong": map[string]any{"id": int32(1)}},
		{"transactionStatus": map[string]any{"slot": uint64(1)}},
		{},
	} {
		if err := sink.Handle(p); err != nil {
			t.Errorf("Handle(%v) = %v, want nil", p, err)
		}
	}
}

func TestSink_MalformedPayload(t *testing.T) {
	sink := NewSink(SinkOptions{Now: fixedNow})

	err := sink.Handle(stream.Payload{"account": map[string]any{"slot": "nope"}})
	if !errors.Is(err, domain.ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}
}

type failingStore struct {
	storage.AccountUpdateStore
}

func (failingStore) Insert(context.Context, *domain.AccountUpdate) error {
	return errors.New("connection refused")
}

func TestSink_StoreErrorIsReturned(t *testing.T) {
	sink := NewSink(SinkOptions{AccountStore: failingStore{}, StoreName: "postgres", Now: fixedNow})

	err := sink.Handle(accountPayload(bytes.Repeat([]byte{3}, 32), 1, 0))
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected store error, got %v", err)
	}
}
