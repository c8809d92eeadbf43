// Package geyser implements stream.Transport over the Yellowstone Geyser
// gRPC Subscribe stream.
package geyser

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/dynamicpb"

	"sonic-stream/internal/stream"
)

const (
	subscribeMethod = "/geyser.Geyser/Subscribe"

	// DefaultMaxRecvMsgSize is the default inbound message limit. Block and
	// large account updates routinely exceed the grpc default of 4 MiB.
	DefaultMaxRecvMsgSize = 64 << 20
)

var (
	ErrEmptyEndpoint   = errors.New("geyser: endpoint is empty")
	ErrInvalidEndpoint = errors.New("geyser: invalid endpoint")
)

var subscribeDesc = grpc.StreamDesc{
	StreamName:    "Subscribe",
	ServerStreams: true,
	ClientStreams: true,
}

// Config configures the gRPC transport.
type Config struct {
	// Endpoint is https://host[:port], http://host:port or host:port (TLS).
	Endpoint string
	// Token is sent as x-token metadata on every stream when set.
	Token string
	// MaxRecvMsgSize defaults to DefaultMaxRecvMsgSize.
	MaxRecvMsgSize int
	// KeepaliveTime enables HTTP/2 keepalive pings when positive.
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	// DialOptions are appended after the options derived from the fields above.
	DialOptions []grpc.DialOption
}

// Endpoint is a parsed gRPC endpoint.
type Endpoint struct {
	Address string
	TLS     bool
}

// ParseEndpoint parses raw into a dial address and transport security mode.
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, ErrEmptyEndpoint
	}

	if !strings.Contains(raw, "://") {
		host, port, err := net.SplitHostPort(raw)
		if err != nil || host == "" || port == "" {
			return Endpoint{}, fmt.Errorf("%w: %q: expected host:port", ErrInvalidEndpoint, raw)
		}
		return Endpoint{Address: raw, TLS: true}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if u.Hostname() == "" {
		return Endpoint{}, fmt.Errorf("%w: %q: missing host", ErrInvalidEndpoint, raw)
	}
	if u.Path != "" && u.Path != "/" {
		return Endpoint{}, fmt.Errorf("%w: %q: path not allowed", ErrInvalidEndpoint, raw)
	}

	switch u.Scheme {
	case "https":
		port := u.Port()
		if port == "" {
			port = "443"
		}
		return Endpoint{Address: net.JoinHostPort(u.Hostname(), port), TLS: true}, nil
	case "http":
		if u.Port() == "" {
			return Endpoint{}, fmt.Errorf("%w: %q: plaintext endpoint needs a port", ErrInvalidEndpoint, raw)
		}
		return Endpoint{Address: u.Host, TLS: false}, nil
	default:
		return Endpoint{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}
}

// Transport opens Geyser Subscribe streams over one shared client connection.
type Transport struct {
	conn     *grpc.ClientConn
	endpoint Endpoint
}

// NewTransport creates a Transport. The connection is established lazily on
// the first Open.
func NewTransport(cfg Config) (*Transport, error) {
	ep, err := ParseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	maxRecv := cfg.MaxRecvMsgSize
	if maxRecv <= 0 {
		maxRecv = DefaultMaxRecvMsgSize
	}

	opts := []grpc.DialOption{
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxRecv)),
	}
	if cfg.KeepaliveTime > 0 {
		opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveTime,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: true,
		}))
	}
	if ep.TLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	if cfg.Token != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(&tokenAuth{
			token:      cfg.Token,
			requireTLS: ep.TLS,
		}))
	}
	opts = append(opts, cfg.DialOptions...)

	conn, err := grpc.NewClient(ep.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("create grpc client for %s: %w", ep.Address, err)
	}
	return &Transport{conn: conn, endpoint: ep}, nil
}

// Endpoint returns the parsed endpoint.
func (t *Transport) Endpoint() Endpoint {
	return t.endpoint
}

// Open starts a new Subscribe stream. The stream lives until the session is
// closed or ctx is cancelled.
func (t *Transport) Open(ctx context.Context) (stream.Session, error) {
	sctx, cancel := context.WithCancel(ctx)
	cs, err := t.conn.NewStream(sctx, &subscribeDesc, subscribeMethod)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open subscribe stream: %w", err)
	}
	return &session{
		id:     uuid.NewString(),
		stream: cs,
		cancel: cancel,
	}, nil
}

// Close releases the underlying client connection.
func (t *Transport) Close() error {
	return t.conn.Close()
}

type session struct {
	id     string
	stream grpc.ClientStream
	cancel context.CancelFunc

	sendMu sync.Mutex
	closed atomic.Bool
}

func (s *session) ID() string { return s.id }

// Send writes req. grpc allows one concurrent sender per stream, so writes
// from the subscription and the keep-alive ticker are serialized.
func (s *session) Send(ctx context.Context, req *stream.SubscriptionRequest) error {
	msg, err := encodeRequest(req)
	if err != nil {
		return fmt.Errorf("encode subscribe request: %w", err)
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.closed.Load() {
		return stream.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.stream.SendMsg(msg); err != nil {
		return fmt.Errorf("send subscribe request: %w", err)
	}
	return nil
}

// Recv blocks for the next update.
func (s *session) Recv() (map[string]any, error) {
	msg := dynamicpb.NewMessage(updateDescriptor)
	if err := s.stream.RecvMsg(msg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if s.closed.Load() || status.Code(err) == codes.Canceled {
			return nil, fmt.Errorf("%w: %v", stream.ErrSessionClosed, err)
		}
		return nil, fmt.Errorf("receive update: %w", err)
	}
	return decodeMessage(msg), nil
}

func (s *session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.cancel()
	return nil
}

// tokenAuth implements grpc.PerRPCCredentials for x-token authentication.
type tokenAuth struct {
	token      string
	requireTLS bool
}

func (t *tokenAuth) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"x-token": t.token}, nil
}

func (t *tokenAuth) RequireTransportSecurity() bool {
	return t.requireTLS
}
