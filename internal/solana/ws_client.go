package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mr-tron/base58"

	"sonic-stream/internal/stream"
)

var (
	// ErrInvalidWSEndpoint is returned for endpoints without a ws or wss scheme.
	ErrInvalidWSEndpoint = errors.New("solana: invalid websocket endpoint")
	// ErrUnsupportedFilter is returned by Send for filters the pubsub API
	// cannot express.
	ErrUnsupportedFilter = errors.New("solana: filter not supported over websocket")
)

// WSTransport implements stream.Transport over the Solana JSON-RPC pubsub
// WebSocket API. Each session is one websocket connection; a subscription
// request becomes one pubsub subscription per account, owner program, slot
// filter and transaction filter.
type WSTransport struct {
	endpoint string
	config   WSConfig
	dialer   websocket.Dialer
}

// NewWSTransport creates a transport for a ws:// or wss:// endpoint.
func NewWSTransport(endpoint string, config *WSConfig) (*WSTransport, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidWSEndpoint, endpoint)
	}

	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	cfg = cfg.withDefaults()

	return &WSTransport{
		endpoint: endpoint,
		config:   cfg,
		dialer: websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}, nil
}

// Open dials a new websocket connection.
func (t *WSTransport) Open(ctx context.Context) (stream.Session, error) {
	conn, _, err := t.dialer.DialContext(ctx, t.endpoint, t.config.Header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	s := &wsSession{
		id:      uuid.NewString(),
		conn:    conn,
		config:  t.config,
		logger:  t.config.Logger,
		pending: make(map[uint64]*pendingSub),
		routes:  make(map[int64]subRoute),
		inbox:   make(chan map[string]any),
		failed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

type routeKind int

const (
	routeAccount routeKind = iota
	routeProgram
	routeSlot
	routeLogs
)

// subRoute maps a pubsub subscription back to the filters that asked for it.
type subRoute struct {
	kind       routeKind
	filters    []string
	pubkey     string
	skipFailed bool
}

type pendingSub struct {
	id     uint64
	route  subRoute
	result chan subResult
}

type subResult struct {
	subID int64
	err   error
}

type wsCall struct {
	method string
	params []interface{}
	route  subRoute
}

type wsSession struct {
	id     string
	conn   *websocket.Conn
	config WSConfig
	logger *log.Logger

	writeMu   sync.Mutex
	requestID atomic.Uint64

	// pending maps request ID to the subscription waiting for confirmation
	pending   map[uint64]*pendingSub
	pendingMu sync.Mutex

	// routes maps subscription ID to its filters
	routes   map[int64]subRoute
	routesMu sync.RWMutex

	inbox  chan map[string]any
	failed chan struct{}
	err    error // set by readLoop before failed is closed

	closed atomic.Bool
	done   chan struct{}
}

func (s *wsSession) ID() string { return s.id }

// Send subscribes req and waits until every subscription is confirmed. A
// ping request is sent as a websocket ping frame.
func (s *wsSession) Send(ctx context.Context, req *stream.SubscriptionRequest) error {
	if s.closed.Load() {
		return stream.ErrSessionClosed
	}
	if req == nil {
		return stream.ErrNilRequest
	}
	if req.IsPing() {
		return s.ping()
	}

	commitment := s.config.Commitment
	if req.Commitment != nil {
		commitment = req.Commitment.String()
	}
	calls, err := buildCalls(req, commitment)
	if err != nil {
		return err
	}

	waits := make([]*pendingSub, 0, len(calls))
	defer func() {
		s.pendingMu.Lock()
		for _, p := range waits {
			delete(s.pending, p.id)
		}
		s.pendingMu.Unlock()
	}()

	for _, c := range calls {
		p, err := s.subscribe(c)
		if err != nil {
			return err
		}
		waits = append(waits, p)
	}

	timer := time.NewTimer(s.config.SubscribeTimeout)
	defer timer.Stop()

	for i, p := range waits {
		select {
		case res := <-p.result:
			if res.err != nil {
				return fmt.Errorf("%s: %w", calls[i].method, res.err)
			}
		case <-timer.C:
			return fmt.Errorf("subscription timeout after %s", s.config.SubscribeTimeout)
		case <-s.failed:
			return s.err
		case <-s.done:
			return stream.ErrSessionClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *wsSession) subscribe(c wsCall) (*pendingSub, error) {
	p := &pendingSub{
		id:     s.requestID.Add(1),
		route:  c.route,
		result: make(chan subResult, 1),
	}

	s.pendingMu.Lock()
	s.pending[p.id] = p
	s.pendingMu.Unlock()

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      p.id,
		Method:  c.method,
		Params:  c.params,
	}

	s.writeMu.Lock()
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	err := s.conn.WriteJSON(req)
	s.writeMu.Unlock()

	if err != nil {
		s.pendingMu.Lock()
		delete(s.pending, p.id)
		s.pendingMu.Unlock()
		return nil, fmt.Errorf("write %s: %w", c.method, err)
	}
	return p, nil
}

func (s *wsSession) ping() error {
	err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.config.WriteTimeout))
	if err != nil {
		if s.closed.Load() {
			return stream.ErrSessionClosed
		}
		return fmt.Errorf("write ping: %w", err)
	}
	return nil
}

// Recv returns the next notification reshaped into the streamed update layout.
func (s *wsSession) Recv() (map[string]any, error) {
	select {
	case msg := <-s.inbox:
		return msg, nil
	case <-s.failed:
		return nil, s.err
	}
}

// Close closes the connection. It is safe to call more than once.
func (s *wsSession) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)

	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.conn.Close()
	return nil
}

// readLoop reads messages until the connection fails, resolving subscription
// confirmations and forwarding notifications to Recv in arrival order.
func (s *wsSession) readLoop() {
	defer close(s.failed)

	if s.config.ReadTimeout > 0 {
		s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		})
	}

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			s.err = s.readError(err)
			return
		}
		if s.config.ReadTimeout > 0 {
			s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}

		msg := s.handleMessage(message)
		if msg == nil {
			continue
		}

		select {
		case s.inbox <- msg:
		case <-s.done:
			s.err = stream.ErrSessionClosed
			return
		}
	}
}

func (s *wsSession) readError(err error) error {
	if s.closed.Load() {
		return fmt.Errorf("%w: %v", stream.ErrSessionClosed, err)
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return io.EOF
	}
	return fmt.Errorf("websocket read: %w", err)
}

// handleMessage processes one incoming message. It returns the reshaped
// update for notifications and nil for everything else.
func (s *wsSession) handleMessage(message []byte) map[string]any {
	var env wsEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		s.logger.Printf("[ws] session %s: malformed message: %v", s.id, err)
		return nil
	}

	if env.Method == "" {
		if env.ID != nil {
			s.resolve(*env.ID, env.Result, env.Error)
		}
		return nil
	}
	if env.Params == nil {
		return nil
	}

	s.routesMu.RLock()
	route, ok := s.routes[env.Params.Subscription]
	s.routesMu.RUnlock()
	if !ok {
		s.logger.Printf("[ws] session %s: %s for unknown subscription %d", s.id, env.Method, env.Params.Subscription)
		return nil
	}

	msg, err := route.reshape(env.Method, env.Params.Result)
	if err != nil {
		s.logger.Printf("[ws] session %s: %s: %v", s.id, env.Method, err)
		return nil
	}
	return msg
}

// resolve hands a subscription response to the waiting Send.
func (s *wsSession) resolve(id uint64, result json.RawMessage, rpcErr *rpcError) {
	s.pendingMu.Lock()
	p, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.pendingMu.Unlock()
	if !ok {
		return
	}

	if rpcErr != nil {
		p.result <- subResult{err: rpcErr}
		return
	}

	var subID int64
	if err := json.Unmarshal(result, &subID); err != nil {
		p.result <- subResult{err: fmt.Errorf("decode subscription id: %w", err)}
		return
	}

	s.routesMu.Lock()
	s.routes[subID] = p.route
	s.routesMu.Unlock()

	p.result <- subResult{subID: subID}
}

// CheckRequest reports whether req can be served over the pubsub API. It
// returns an ErrUnsupportedFilter error naming the first filter that cannot.
func CheckRequest(req *stream.SubscriptionRequest) error {
	if req == nil {
		return stream.ErrNilRequest
	}
	_, err := buildCalls(req, DefaultWSConfig().Commitment)
	return err
}

// buildCalls translates req into pubsub subscribe calls.
func buildCalls(req *stream.SubscriptionRequest, commitment string) ([]wsCall, error) {
	switch {
	case len(req.Blocks) > 0:
		return nil, fmt.Errorf("%w: blocks", ErrUnsupportedFilter)
	case len(req.BlocksMeta) > 0:
		return nil, fmt.Errorf("%w: blocks_meta", ErrUnsupportedFilter)
	case len(req.Entry) > 0:
		return nil, fmt.Errorf("%w: entry", ErrUnsupportedFilter)
	case req.FromSlot != nil:
		return nil, fmt.Errorf("%w: from_slot", ErrUnsupportedFilter)
	case len(req.AccountsDataSlice) > 1:
		return nil, fmt.Errorf("%w: more than one accounts data slice", ErrUnsupportedFilter)
	}

	var calls []wsCall

	for _, name := range sortedNames(req.Accounts) {
		f := req.Accounts[name]
		if len(f.Account) == 0 && len(f.Owner) == 0 {
			return nil, fmt.Errorf("%w: accounts filter %q selects every account", ErrUnsupportedFilter, name)
		}
		if len(f.Filters) > 0 && len(f.Account) > 0 {
			return nil, fmt.Errorf("%w: accounts filter %q: data filters apply to owners only", ErrUnsupportedFilter, name)
		}

		for _, account := range f.Account {
			calls = append(calls, wsCall{
				method: "accountSubscribe",
				params: []interface{}{account, accountOptions(commitment, req.AccountsDataSlice)},
				route:  subRoute{kind: routeAccount, filters: []string{name}, pubkey: account},
			})
		}

		rules, err := programFilters(f.Filters)
		if err != nil {
			return nil, fmt.Errorf("accounts filter %q: %w", name, err)
		}
		for _, owner := range f.Owner {
			opts := accountOptions(commitment, req.AccountsDataSlice)
			if len(rules) > 0 {
				opts["filters"] = rules
			}
			calls = append(calls, wsCall{
				method: "programSubscribe",
				params: []interface{}{owner, opts},
				route:  subRoute{kind: routeProgram, filters: []string{name}},
			})
		}
	}

	if len(req.Slots) > 0 {
		calls = append(calls, wsCall{
			method: "slotSubscribe",
			route:  subRoute{kind: routeSlot, filters: sortedNames(req.Slots)},
		})
	}

	for _, group := range []map[string]stream.TransactionFilter{req.Transactions, req.TransactionsStatus} {
		for _, name := range sortedNames(group) {
			call, err := logsCall(name, group[name], commitment)
			if err != nil {
				return nil, err
			}
			calls = append(calls, call)
		}
	}

	if len(calls) == 0 {
		return nil, fmt.Errorf("%w: request selects nothing", ErrUnsupportedFilter)
	}
	return calls, nil
}

func accountOptions(commitment string, slices []stream.DataSlice) map[string]interface{} {
	opts := map[string]interface{}{
		"encoding":   "base64",
		"commitment": commitment,
	}
	if len(slices) == 1 {
		opts["dataSlice"] = map[string]interface{}{
			"offset": slices[0].Offset,
			"length": slices[0].Length,
		}
	}
	return opts
}

func programFilters(rules []stream.AccountFilterRule) ([]interface{}, error) {
	out := make([]interface{}, 0, len(rules))
	for _, r := range rules {
		switch {
		case r.DataSize != nil:
			out = append(out, map[string]interface{}{"dataSize": *r.DataSize})
		case r.Memcmp != nil:
			mc := map[string]interface{}{"offset": r.Memcmp.Offset}
			switch {
			case r.Memcmp.Bytes != nil:
				mc["bytes"] = base58.Encode(r.Memcmp.Bytes)
			case r.Memcmp.Base64 != "":
				mc["bytes"] = r.Memcmp.Base64
				mc["encoding"] = "base64"
			default:
				mc["bytes"] = r.Memcmp.Base58
			}
			out = append(out, map[string]interface{}{"memcmp": mc})
		case r.TokenAccountState != nil:
			return nil, fmt.Errorf("%w: token_account_state", ErrUnsupportedFilter)
		default:
			return nil, fmt.Errorf("%w: empty account filter rule", ErrUnsupportedFilter)
		}
	}
	return out, nil
}

func logsCall(name string, f stream.TransactionFilter, commitment string) (wsCall, error) {
	if len(f.AccountExclude) > 0 || len(f.AccountRequired) > 0 || f.Signature != nil {
		return wsCall{}, fmt.Errorf("%w: transaction filter %q: only account_include, vote and failed are supported", ErrUnsupportedFilter, name)
	}

	var mentions interface{}
	switch len(f.AccountInclude) {
	case 0:
		mentions = "all"
		if f.Vote != nil && *f.Vote {
			mentions = "allWithVotes"
		}
	case 1:
		mentions = map[string]interface{}{"mentions": f.AccountInclude}
	default:
		return wsCall{}, fmt.Errorf("%w: transaction filter %q mentions more than one account", ErrUnsupportedFilter, name)
	}

	return wsCall{
		method: "logsSubscribe",
		params: []interface{}{mentions, map[string]interface{}{"commitment": commitment}},
		route: subRoute{
			kind:       routeLogs,
			filters:    []string{name},
			skipFailed: f.Failed != nil && !*f.Failed,
		},
	}, nil
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// reshape converts a notification result into the streamed update layout. A
// nil map with a nil error means the notification is filtered out.
func (r subRoute) reshape(method string, result json.RawMessage) (map[string]any, error) {
	switch {
	case method == "accountNotification" && r.kind == routeAccount:
		var n struct {
			Context rpcContext   `json:"context"`
			Value   accountValue `json:"value"`
		}
		if err := json.Unmarshal(result, &n); err != nil {
			return nil, err
		}
		info, err := n.Value.toInfo(r.pubkey, n.Context.Slot)
		if err != nil {
			return nil, err
		}
		return accountUpdate(r.filters, info, false)

	case method == "programNotification" && r.kind == routeProgram:
		var n struct {
			Context rpcContext `json:"context"`
			Value   struct {
				Pubkey  string       `json:"pubkey"`
				Account accountValue `json:"account"`
			} `json:"value"`
		}
		if err := json.Unmarshal(result, &n); err != nil {
			return nil, err
		}
		info, err := n.Value.Account.toInfo(n.Value.Pubkey, n.Context.Slot)
		if err != nil {
			return nil, err
		}
		return accountUpdate(r.filters, info, false)

	case method == "slotNotification" && r.kind == routeSlot:
		var n struct {
			Parent uint64 `json:"parent"`
			Root   uint64 `json:"root"`
			Slot   uint64 `json:"slot"`
		}
		if err := json.Unmarshal(result, &n); err != nil {
			return nil, err
		}
		return map[string]any{
			"filters": filterList(r.filters),
			"slot": map[string]any{
				"slot":   n.Slot,
				"parent": n.Parent,
				"status": "SLOT_PROCESSED",
			},
		}, nil

	case method == "logsNotification" && r.kind == routeLogs:
		var n struct {
			Context rpcContext `json:"context"`
			Value   struct {
				Signature string      `json:"signature"`
				Err       interface{} `json:"err"`
				Logs      []string    `json:"logs"`
			} `json:"value"`
		}
		if err := json.Unmarshal(result, &n); err != nil {
			return nil, err
		}
		if r.skipFailed && n.Value.Err != nil {
			return nil, nil
		}
		sig, err := base58.Decode(n.Value.Signature)
		if err != nil {
			return nil, fmt.Errorf("decode signature %q: %w", n.Value.Signature, err)
		}
		logs := make([]any, len(n.Value.Logs))
		for i, l := range n.Value.Logs {
			logs[i] = l
		}
		status := map[string]any{
			"slot":        n.Context.Slot,
			"signature":   sig,
			"isVote":      false,
			"logMessages": logs,
		}
		if n.Value.Err != nil {
			status["err"] = n.Value.Err
		}
		return map[string]any{
			"filters":           filterList(r.filters),
			"transactionStatus": status,
		}, nil

	default:
		return nil, fmt.Errorf("unexpected notification for subscription kind %d", r.kind)
	}
}

// WebSocket message types

type wsEnvelope struct {
	JSONRPC string                `json:"jsonrpc"`
	ID      *uint64               `json:"id"`
	Result  json.RawMessage       `json:"result"`
	Error   *rpcError             `json:"error"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64           `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}
