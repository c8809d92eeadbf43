package config

import (
	"time"

	"sonic-stream/internal/geyser"
	"sonic-stream/internal/solana"
	"sonic-stream/internal/stream"
)

// Default values for optional configuration fields.
const (
	DefaultTransport      = TransportGRPC
	DefaultGRPCEndpoint   = "https://grpc.mainnet-alpha.sonic.game:10000"
	DefaultWSEndpoint     = "wss://api.mainnet-alpha.sonic.game"
	DefaultRPCEndpoint    = "https://api.mainnet-alpha.sonic.game"
	DefaultCommitment     = "processed"
	DefaultStorageDriver  = StorageMemory
	DefaultStorageTimeout = 5 * time.Second
	DefaultRPCTimeout     = 30 * time.Second
	DefaultRPCMaxRetries  = 3
	DefaultMetricsAddr    = ":9090"
	DefaultMetricsPath    = "/metrics"
)

// ApplyDefaults fills unset optional fields.
func (c *Config) ApplyDefaults() {
	if c.Transport.Kind == "" {
		c.Transport.Kind = DefaultTransport
	}
	if c.Transport.Endpoint == "" {
		if c.Transport.Kind == TransportWebSocket {
			c.Transport.Endpoint = DefaultWSEndpoint
		} else {
			c.Transport.Endpoint = DefaultGRPCEndpoint
		}
	}
	if c.Transport.MaxRecvMsgSize == 0 {
		c.Transport.MaxRecvMsgSize = geyser.DefaultMaxRecvMsgSize
	}

	ws := solana.DefaultWSConfig()
	if c.Transport.WS.HandshakeTimeout == 0 {
		c.Transport.WS.HandshakeTimeout = ws.HandshakeTimeout
	}
	if c.Transport.WS.SubscribeTimeout == 0 {
		c.Transport.WS.SubscribeTimeout = ws.SubscribeTimeout
	}
	if c.Transport.WS.ReadTimeout == 0 {
		c.Transport.WS.ReadTimeout = ws.ReadTimeout
	}
	if c.Transport.WS.WriteTimeout == 0 {
		c.Transport.WS.WriteTimeout = ws.WriteTimeout
	}

	st := stream.DefaultConfig()
	if c.Stream.MaxReconnectAttempts == 0 {
		c.Stream.MaxReconnectAttempts = st.MaxReconnectAttempts
	}
	if c.Stream.ReconnectInterval == 0 {
		c.Stream.ReconnectInterval = st.ReconnectInterval
	}
	if c.Stream.MaxBackoffStep == 0 {
		c.Stream.MaxBackoffStep = st.MaxBackoffStep
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = st.PingInterval
	}

	if c.Subscription.Commitment == "" {
		c.Subscription.Commitment = DefaultCommitment
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultStorageDriver
	}
	if c.Storage.Timeout == 0 {
		c.Storage.Timeout = DefaultStorageTimeout
	}
	if c.Storage.Migrate == nil {
		migrate := true
		c.Storage.Migrate = &migrate
	}

	if c.RPC.Endpoint == "" {
		c.RPC.Endpoint = DefaultRPCEndpoint
	}
	if c.RPC.Timeout == 0 {
		c.RPC.Timeout = DefaultRPCTimeout
	}
	if c.RPC.MaxRetries == 0 {
		c.RPC.MaxRetries = DefaultRPCMaxRetries
	}

	if c.Metrics.Enabled == nil {
		enabled := true
		c.Metrics.Enabled = &enabled
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
