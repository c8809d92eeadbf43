package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"

	"github.com/mr-tron/base58"

	"sonic-stream/internal/geyser"
	"sonic-stream/internal/solana"
	"sonic-stream/internal/stream"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case TransportGRPC:
		if _, err := geyser.ParseEndpoint(c.Transport.Endpoint); err != nil {
			return fmt.Errorf("transport.endpoint: %w", err)
		}
	case TransportWebSocket:
		u, err := url.Parse(c.Transport.Endpoint)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return fmt.Errorf("transport.endpoint: %q is not a ws:// or wss:// url", c.Transport.Endpoint)
		}
	default:
		return fmt.Errorf("transport.kind must be %q or %q, got %q", TransportGRPC, TransportWebSocket, c.Transport.Kind)
	}

	if c.Stream.MaxReconnectAttempts < 1 {
		return errors.New("stream.max_reconnect_attempts must be >= 1")
	}
	if c.Stream.ReconnectInterval <= 0 {
		return errors.New("stream.reconnect_interval must be positive")
	}
	if c.Stream.MaxBackoffStep < 1 {
		return errors.New("stream.max_backoff_step must be >= 1")
	}
	if c.Stream.PingInterval <= 0 {
		return errors.New("stream.ping_interval must be positive")
	}

	if err := c.Subscription.validate(); err != nil {
		return err
	}
	if c.Transport.Kind == TransportWebSocket {
		req, err := c.SubscriptionRequest()
		if err != nil {
			return fmt.Errorf("subscription: %w", err)
		}
		if err := solana.CheckRequest(req); err != nil {
			return fmt.Errorf("subscription: %w", err)
		}
	}

	if err := c.Storage.validate(); err != nil {
		return err
	}

	if c.RPC.Snapshot {
		if c.RPC.Endpoint == "" {
			return errors.New("rpc.endpoint is required when rpc.snapshot is set")
		}
		if len(c.SnapshotAccounts()) == 0 {
			return errors.New("rpc.snapshot needs at least one subscription.accounts[].account")
		}
	}
	if c.RPC.MaxRetries < 0 {
		return errors.New("rpc.max_retries must be >= 0")
	}

	if c.Metrics.Enabled != nil && *c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.New("metrics.addr is required when metrics are enabled")
	}

	return nil
}

func (s *SubscriptionConfig) validate() error {
	if _, err := stream.ParseCommitment(s.Commitment); err != nil {
		return fmt.Errorf("subscription.commitment: %w", err)
	}

	if len(s.Accounts)+len(s.Slots)+len(s.Transactions)+len(s.TransactionsStatus)+
		len(s.Blocks)+len(s.BlocksMeta)+len(s.Entry) == 0 {
		return errors.New("subscription must name at least one filter")
	}

	for name, a := range s.Accounts {
		prefix := fmt.Sprintf("subscription.accounts.%s", name)
		for _, key := range a.Account {
			if _, err := solana.ParsePublicKey(key); err != nil {
				return fmt.Errorf("%s.account: %w", prefix, err)
			}
		}
		for _, key := range a.Owner {
			if _, err := solana.ParsePublicKey(key); err != nil {
				return fmt.Errorf("%s.owner: %w", prefix, err)
			}
		}
		for i, r := range a.Filters {
			if err := r.validate(); err != nil {
				return fmt.Errorf("%s.filters[%d]: %w", prefix, i, err)
			}
		}
	}

	for i, ds := range s.AccountsDataSlice {
		if ds.Length == 0 {
			return fmt.Errorf("subscription.accounts_data_slice[%d].length must be > 0", i)
		}
	}
	return nil
}

func (r AccountFilterRuleConfig) validate() error {
	set := 0
	if r.Memcmp != nil {
		set++
	}
	if r.DataSize != nil {
		set++
	}
	if r.TokenAccountState != nil {
		set++
	}
	if set != 1 {
		return errors.New("exactly one of memcmp, datasize, token_account_state must be set")
	}

	if m := r.Memcmp; m != nil {
		switch {
		case m.Base58 != "" && m.Base64 != "":
			return errors.New("memcmp: base58 and base64 are exclusive")
		case m.Base58 != "":
			if _, err := base58.Decode(m.Base58); err != nil {
				return fmt.Errorf("memcmp.base58: %w", err)
			}
		case m.Base64 != "":
			if _, err := base64.StdEncoding.DecodeString(m.Base64); err != nil {
				return fmt.Errorf("memcmp.base64: %w", err)
			}
		default:
			return errors.New("memcmp: base58 or base64 is required")
		}
	}
	return nil
}

func (s *StorageConfig) validate() error {
	switch s.Driver {
	case StorageNone, StorageMemory:
	case StoragePostgres:
		if s.Postgres.DSN == "" {
			return errors.New("storage.postgres.dsn is required")
		}
		if s.Postgres.MaxConns < 0 {
			return errors.New("storage.postgres.max_conns must be >= 0")
		}
	case StorageClickhouse:
		if s.Clickhouse.DSN == "" {
			return errors.New("storage.clickhouse.dsn is required")
		}
	default:
		return fmt.Errorf("storage.driver must be one of none, memory, postgres, clickhouse; got %q", s.Driver)
	}
	if s.Timeout < 0 {
		return errors.New("storage.timeout must be >= 0")
	}
	return nil
}
