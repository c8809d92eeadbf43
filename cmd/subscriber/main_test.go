package main

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sonic-stream/internal/config"
	"sonic-stream/internal/domain"
	"sonic-stream/internal/ingestion"
	"sonic-stream/internal/solana"
	"sonic-stream/internal/solana/stub"
	"sonic-stream/internal/storage/memory"
	"sonic-stream/internal/stream"
)

const (
	wsol  = "So11111111111111111111111111111111111111112"
	token = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

func TestBuildConfig_FlagsOnly(t *testing.T) {
	cfg, err := buildConfig(options{
		accounts:   wsol + ", ",
		owners:     token,
		commitment: "confirmed",
		store:      "none",
	})
	require.NoError(t, err)

	assert.Equal(t, config.TransportGRPC, cfg.Transport.Kind)
	assert.Equal(t, []string{wsol}, cfg.Subscription.Accounts["accountSubscribe"].Account)
	assert.Equal(t, []string{token}, cfg.Subscription.Accounts["ownerSubscribe"].Owner)
	assert.Equal(t, "confirmed", cfg.Subscription.Commitment)
	assert.Equal(t, config.StorageNone, cfg.Storage.Driver)
}

func TestBuildConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
transport:
  kind: grpc
  endpoint: https://grpc.example.com
subscription:
  commitment: finalized
  accounts:
    mine:
      account: [`+wsol+`]
`), 0o600))

	cfg, err := buildConfig(options{
		configPath: path,
		transport:  "ws",
		endpoint:   "wss://api.mainnet-alpha.sonic.game",
	})
	require.NoError(t, err)

	assert.Equal(t, config.TransportWebSocket, cfg.Transport.Kind)
	assert.Equal(t, "wss://api.mainnet-alpha.sonic.game", cfg.Transport.Endpoint)
	assert.Equal(t, "finalized", cfg.Subscription.Commitment)
	assert.Contains(t, cfg.Subscription.Accounts, "mine")
}

func TestBuildConfig_Invalid(t *testing.T) {
	_, err := buildConfig(options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one filter")

	_, err = buildConfig(options{accounts: wsol, store: "postgres"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.postgres.dsn")
}

func TestRunSnapshot(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddAccount(&solana.AccountInfo{
		Pubkey:   wsol,
		Owner:    token,
		Lamports: 2_500_000_000,
		Data:     []byte{1, 2, 3},
		Slot:     88,
	})

	store := memory.NewAccountUpdateStore()
	var printed bytes.Buffer
	sink := ingestion.NewSink(ingestion.SinkOptions{AccountStore: store, Output: &printed})

	var logs bytes.Buffer
	logger := log.New(&logs, "", 0)

	missing := "11111111111111111111111111111111"
	err := runSnapshot(context.Background(), logger, rpc, sink, map[string][]string{
		"accountSubscribe": {wsol, missing},
	})
	require.NoError(t, err)

	got, err := store.GetLatest(context.Background(), wsol)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceSnapshot, got.Source)
	assert.True(t, got.IsStartup)
	assert.Equal(t, uint64(88), got.Slot)
	assert.Equal(t, []byte{1, 2, 3}, got.Data)

	assert.Contains(t, logs.String(), "Balance of "+wsol+": 2.5 SOL")
	assert.Contains(t, logs.String(), "1 of 2 accounts found")
	assert.Contains(t, printed.String(), "Data Length: 3")
}

func TestRunSnapshot_RPCError(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.Err = io.ErrUnexpectedEOF

	sink := ingestion.NewSink(ingestion.SinkOptions{})
	err := runSnapshot(context.Background(), log.New(io.Discard, "", 0), rpc, sink, map[string][]string{"a": {wsol}})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

type fixedState stream.State

func (s fixedState) State() stream.State { return stream.State(s) }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		state stream.State
		code  int
	}{
		{stream.StateLive, http.StatusOK},
		{stream.StateReconnecting, http.StatusOK},
		{stream.StateAbandoned, http.StatusServiceUnavailable},
		{stream.StateStopped, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		healthHandler(fixedState(tt.state), nil, nil)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, tt.code, rec.Code, tt.state.String())
		assert.Equal(t, tt.state.String(), strings.TrimSpace(rec.Body.String()))
	}
}

func TestHealthHandler_ReportsRPCSlotLag(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.Slot = 1_000

	tests := []struct {
		name    string
		highest uint64
		rpcErr  error
		code    int
		want    string
	}{
		{"lagging", 990, nil, http.StatusOK, "rpc_slot=1000 highest_slot=990 slot_lag=10"},
		{"ahead", 1_002, nil, http.StatusOK, "rpc_slot=1000 highest_slot=1002 slot_lag=-2"},
		{"no updates yet", 0, nil, http.StatusOK, "rpc_slot=1000 highest_slot=none"},
		{"rpc down", 990, io.ErrUnexpectedEOF, http.StatusOK, `rpc_error="unexpected EOF"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rpc.Err = tt.rpcErr
			highest := func() uint64 { return tt.highest }

			rec := httptest.NewRecorder()
			healthHandler(fixedState(stream.StateLive), rpc, highest)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.code, rec.Code)
			lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
			require.Len(t, lines, 2)
			assert.Equal(t, "live", lines[0])
			assert.Equal(t, tt.want, lines[1])
		})
	}
}

func TestHealthHandler_AbandonedStillReportsRPC(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.Slot = 7

	rec := httptest.NewRecorder()
	healthHandler(fixedState(stream.StateAbandoned), rpc, func() uint64 { return 5 })(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "slot_lag=2")
}

func TestNewTransport(t *testing.T) {
	cfg := &config.Config{Transport: config.TransportConfig{Kind: config.TransportWebSocket}}
	cfg.ApplyDefaults()
	_, source, closeFn, err := newTransport(cfg)
	require.NoError(t, err)
	closeFn()
	assert.Equal(t, domain.SourceWebSocket, source)

	cfg = &config.Config{}
	cfg.ApplyDefaults()
	_, source, closeFn, err = newTransport(cfg)
	require.NoError(t, err)
	closeFn()
	assert.Equal(t, domain.SourceGRPC, source)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b ,"))
}
