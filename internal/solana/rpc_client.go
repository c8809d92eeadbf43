package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"sonic-stream/internal/observability"
	"sonic-stream/internal/stream"
)

// DefaultTimeout bounds a single HTTP round trip.
const DefaultTimeout = 30 * time.Second

// RetryPolicy controls how HTTPClient retries transport failures, 429 and
// 5xx responses. JSON-RPC errors and other 4xx responses are returned as is.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultRetryPolicy returns 3 retries starting at 1s, doubling up to 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Delay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2}
}

// wait returns the delay before retry n (1-based). A Retry-After hint from
// the node raises it, never above MaxDelay.
func (p RetryPolicy) wait(n int, hint time.Duration) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := p.Delay
	for i := 1; i < n; i++ {
		d = time.Duration(float64(d) * mult)
		if d >= p.MaxDelay {
			break
		}
	}
	if hint > d {
		d = hint
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// StatusError is a non-200 HTTP response from the RPC node.
type StatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rpc http status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed when retried.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// HTTPClient implements RPCClient over HTTP JSON-RPC 2.0. Every read carries
// the commitment of the stream it backs, so snapshots and health slots are
// comparable with streamed updates.
type HTTPClient struct {
	endpoint   string
	client     *http.Client
	retry      RetryPolicy
	commitment stream.Commitment
	requestID  atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithMaxRetries overrides RetryPolicy.MaxRetries.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.retry.MaxRetries = n
	}
}

// WithRetryPolicy replaces the retry policy.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *HTTPClient) {
		c.retry = p
	}
}

// WithCommitment sets the commitment sent with every read.
func WithCommitment(commitment stream.Commitment) ClientOption {
	return func(c *HTTPClient) {
		c.commitment = commitment
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a Solana RPC HTTP client reading at confirmed
// commitment unless configured otherwise.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:   endpoint,
		client:     &http.Client{Timeout: DefaultTimeout},
		retry:      DefaultRetryPolicy(),
		commitment: stream.CommitmentConfirmed,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Commitment returns the commitment sent with reads.
func (c *HTTPClient) Commitment() stream.Commitment {
	return c.commitment
}

// call performs method with args followed by a config object holding the
// client commitment and extra. Temporary failures are retried per the policy.
func (c *HTTPClient) call(ctx context.Context, method string, args []interface{}, extra map[string]interface{}, result interface{}) error {
	start := time.Now()
	defer func() {
		observability.RecordRPCLatency(method, time.Since(start).Seconds())
	}()

	cfg := map[string]interface{}{"commitment": c.commitment.String()}
	for k, v := range extra {
		cfg[k] = v
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  append(append([]interface{}{}, args...), cfg),
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			var hint time.Duration
			var se *StatusError
			if errors.As(lastErr, &se) {
				hint = se.RetryAfter
			}
			observability.RecordRPCCall(method, "retry")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retry.wait(attempt, hint)):
			}
		}

		raw, err := c.post(ctx, body)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var se *StatusError
			if errors.As(err, &se) && !se.Temporary() {
				observability.RecordRPCCall(method, "http_error")
				return fmt.Errorf("%s: %w", method, err)
			}
			lastErr = err
			continue
		}

		var resp rpcResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}
		if resp.Error != nil {
			observability.RecordRPCCall(method, "rpc_error")
			return resp.Error
		}
		if result != nil && resp.Result != nil {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				observability.RecordRPCCall(method, "decode_error")
				return fmt.Errorf("unmarshal %s result: %w", method, err)
			}
		}
		observability.RecordRPCCall(method, "ok")
		return nil
	}

	observability.RecordRPCCall(method, "exhausted")
	return fmt.Errorf("%s: max retries exceeded: %w", method, lastErr)
}

// post sends one request and returns the body of a 200 response.
func (c *HTTPClient) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return raw, nil
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// GetAccountInfo retrieves account info by public key.
// Returns nil if account not found.
func (c *HTTPClient) GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error) {
	var result getAccountInfoResult
	extra := map[string]interface{}{"encoding": "base64"}
	if err := c.call(ctx, "getAccountInfo", []interface{}{pubkey}, extra, &result); err != nil {
		return nil, err
	}

	if result.Value == nil {
		return nil, nil
	}

	return result.Value.toInfo(pubkey, result.Context.Slot)
}

type getAccountInfoResult struct {
	Context rpcContext    `json:"context"`
	Value   *accountValue `json:"value"`
}

// GetBalance retrieves the lamport balance of an account.
func (c *HTTPClient) GetBalance(ctx context.Context, pubkey string) (uint64, error) {
	var result getBalanceResult
	if err := c.call(ctx, "getBalance", []interface{}{pubkey}, nil, &result); err != nil {
		return 0, err
	}
	return result.Value, nil
}

type getBalanceResult struct {
	Context rpcContext `json:"context"`
	Value   uint64     `json:"value"`
}

// GetSlot retrieves the slot the node has reached at the client commitment.
func (c *HTTPClient) GetSlot(ctx context.Context) (uint64, error) {
	var result uint64
	if err := c.call(ctx, "getSlot", nil, nil, &result); err != nil {
		return 0, err
	}
	return result, nil
}
