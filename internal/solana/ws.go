package solana

import (
	"io"
	"log"
	"net/http"
	"time"
)

// WSConfig configures the WebSocket transport.
type WSConfig struct {
	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration
	// SubscribeTimeout bounds the wait for subscription confirmations.
	SubscribeTimeout time.Duration
	// ReadTimeout fails a session that received nothing, pongs included,
	// for this long. Zero disables the deadline.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// Commitment is used when a request does not name one.
	Commitment string
	// Header is sent with the websocket handshake.
	Header http.Header
	// Logger receives dropped or malformed notifications.
	Logger *log.Logger
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		HandshakeTimeout: 10 * time.Second,
		SubscribeTimeout: 30 * time.Second,
		ReadTimeout:      90 * time.Second,
		WriteTimeout:     10 * time.Second,
		Commitment:       "confirmed",
	}
}

func (c WSConfig) withDefaults() WSConfig {
	def := DefaultWSConfig()
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.SubscribeTimeout <= 0 {
		c.SubscribeTimeout = def.SubscribeTimeout
	}
	if c.ReadTimeout < 0 {
		c.ReadTimeout = 0
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.Commitment == "" {
		c.Commitment = def.Commitment
	}
	if c.Logger == nil {
		c.Logger = log.New(io.Discard, "", 0)
	}
	return c
}
