package stream

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"sonic-stream/internal/observability"
)

// Config configures Manager behavior.
type Config struct {
	// MaxReconnectAttempts is the retry budget. Once this many consecutive
	// reconnects failed, the subscription is abandoned.
	MaxReconnectAttempts int
	// ReconnectInterval is the backoff unit. Attempt n waits
	// ReconnectInterval * min(n, MaxBackoffStep).
	ReconnectInterval time.Duration
	// MaxBackoffStep caps the backoff multiplier.
	MaxBackoffStep int
	// PingInterval is the interval between keep-alive pings.
	PingInterval time.Duration
	// PingID is the id carried by keep-alive pings.
	PingID int32
	// Logger receives lifecycle and fault messages.
	Logger *log.Logger
}

// DefaultConfig returns default Manager configuration.
func DefaultConfig() Config {
	return Config{
		MaxReconnectAttempts: 10,
		ReconnectInterval:    5 * time.Second,
		MaxBackoffStep:       5,
		PingInterval:         30 * time.Second,
		PingID:               1,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = def.ReconnectInterval
	}
	if c.MaxBackoffStep <= 0 {
		c.MaxBackoffStep = def.MaxBackoffStep
	}
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.PingID == 0 {
		c.PingID = def.PingID
	}
	if c.Logger == nil {
		c.Logger = log.New(io.Discard, "", 0)
	}
	return c
}

// Backoff returns the wait before reconnect attempt n (1-based).
func (c Config) Backoff(attempt int) time.Duration {
	step := max(min(attempt, c.MaxBackoffStep), 1)
	return time.Duration(step) * c.ReconnectInterval
}

// Handler receives normalized updates. Returned errors and panics are logged
// and never affect the stream.
type Handler func(Payload) error

// State is the lifecycle state of a Manager.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateLive
	StateReconnecting
	StateAbandoned
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateReconnecting:
		return "reconnecting"
	case StateAbandoned:
		return "abandoned"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Manager keeps one subscription alive across transport faults.
type Manager struct {
	transport Transport
	handler   Handler
	config    Config
	logger    *log.Logger

	mu      sync.Mutex
	running bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}

	state    atomic.Int32
	live     atomic.Bool
	attempts atomic.Int32
}

// NewManager creates a Manager. Zero Config fields take defaults.
func NewManager(transport Transport, handler Handler, config Config) (*Manager, error) {
	if transport == nil {
		return nil, ErrNilTransport
	}
	if handler == nil {
		return nil, ErrNilHandler
	}
	cfg := config.withDefaults()
	return &Manager{
		transport: transport,
		handler:   handler,
		config:    cfg,
		logger:    cfg.Logger,
		done:      make(chan struct{}),
	}, nil
}

// Connect starts the subscription and returns once the first connect attempt
// settled: either req was written and keep-alive is running, or the failure
// was handed to the reconnection procedure. Faults are never returned; only
// misuse is. The subscription runs until Stop, until ctx is cancelled, or
// until the retry budget is exhausted.
func (m *Manager) Connect(ctx context.Context, req *SubscriptionRequest) error {
	if req == nil {
		return ErrNilRequest
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrStopped
	}
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.running = true
	m.cancel = cancel
	m.done = done
	m.attempts.Store(0)
	m.mu.Unlock()

	settled := make(chan struct{})
	go m.run(runCtx, req, settled, done)

	select {
	case <-settled:
	case <-done:
	}
	return nil
}

// Stop cancels the subscription and suppresses further reconnects. It waits
// for the current session to be released. Stop is idempotent.
func (m *Manager) Stop() error {
	m.mu.Lock()
	m.stopped = true
	cancel := m.cancel
	done := m.done
	running := m.running
	if !running {
		// No run goroutine owns done: it was never started or already closed it.
		select {
		case <-done:
		default:
			close(done)
		}
	}
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if running {
		<-done
	}
	m.setState(StateStopped)
	return nil
}

// Done returns a channel closed when the subscription started by the last
// Connect terminated, by Stop or by exhausting the retry budget.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Live reports whether the current session is believed usable for pings.
func (m *Manager) Live() bool {
	return m.live.Load()
}

// Attempts returns reconnect attempts consumed since the last successful connect.
func (m *Manager) Attempts() int {
	return int(m.attempts.Load())
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
}

// run drives the connect / serve / reconnect cycle until stop or abandonment.
func (m *Manager) run(ctx context.Context, req *SubscriptionRequest, settled, done chan struct{}) {
	var settleOnce sync.Once
	settle := func() { settleOnce.Do(func() { close(settled) }) }

	defer func() {
		m.live.Store(false)
		settle()
		m.mu.Lock()
		m.running = false
		close(done)
		m.mu.Unlock()
	}()

	for {
		m.serve(ctx, req, settle)
		settle()

		if ctx.Err() != nil {
			m.logger.Printf("Subscription stopped")
			m.setState(StateStopped)
			return
		}
		if !m.reconnect(ctx) {
			return
		}
	}
}

// reconnect consumes one unit of the retry budget and waits out its backoff.
// It returns false when the budget is exhausted or ctx was cancelled.
func (m *Manager) reconnect(ctx context.Context) bool {
	if int(m.attempts.Load()) >= m.config.MaxReconnectAttempts {
		m.logger.Printf("Max reconnection attempts reached (%d), giving up", m.config.MaxReconnectAttempts)
		m.setState(StateAbandoned)
		observability.RecordAbandoned()
		return false
	}

	attempt := int(m.attempts.Add(1))
	delay := m.config.Backoff(attempt)
	m.setState(StateReconnecting)
	observability.RecordReconnectAttempt(attempt)
	m.logger.Printf("Reconnecting... attempt %d in %s", attempt, delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		m.logger.Printf("Subscription stopped")
		m.setState(StateStopped)
		return false
	case <-timer.C:
		return true
	}
}

// serve opens one session, writes req, and processes its events until the
// session ends or ctx is cancelled.
func (m *Manager) serve(ctx context.Context, req *SubscriptionRequest, settle func()) {
	m.setState(StateConnecting)

	sess, err := m.transport.Open(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Printf("Connection error: %v", err)
			observability.RecordConnectError()
		}
		return
	}

	sessCtx, cancel := context.WithCancel(ctx)
	events := make(chan Event)
	var wg sync.WaitGroup

	defer func() {
		m.live.Store(false)
		cancel()
		sess.Close()
		wg.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		m.readLoop(sessCtx, sess, events)
	}()

	if err := sess.Send(ctx, req); err != nil {
		if ctx.Err() == nil {
			m.logger.Printf("Connection error: session %s: write subscription: %v", sess.ID(), err)
			observability.RecordConnectError()
		}
		return
	}

	m.attempts.Store(0)
	m.live.Store(true)
	m.setState(StateLive)
	observability.RecordSessionOpened()
	m.logger.Printf("Session %s subscribed", sess.ID())

	wg.Add(1)
	go func() {
		defer wg.Done()
		m.pingLoop(sessCtx, sess)
	}()

	settle()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			observability.RecordStreamEvent(ev.Kind.String(), float64(time.Now().Unix()))
			if ev.Kind == EventData {
				m.dispatch(ev.Message)
				continue
			}
			m.disconnect(sess, ev)
			return
		}
	}
}

// disconnect handles a terminal session event.
func (m *Manager) disconnect(sess Session, ev Event) {
	m.live.Store(false)
	switch ev.Kind {
	case EventError:
		m.logger.Printf("Stream error: session %s: %v", sess.ID(), ev.Err)
	default:
		m.logger.Printf("Stream disconnected: session %s (%s)", sess.ID(), ev.Kind)
	}
}

// readLoop forwards session events in delivery order. It stops after the
// first terminal event or when ctx is cancelled.
func (m *Manager) readLoop(ctx context.Context, sess Session, events chan<- Event) {
	for {
		msg, err := sess.Recv()
		ev := Event{Kind: classify(err), Message: msg, Err: err}

		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// pingLoop sends keep-alive pings while the session is live. Ping failures
// are logged only; the read side detects dead sessions.
func (m *Manager) pingLoop(ctx context.Context, sess Session) {
	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	ping := PingRequest(m.config.PingID)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.live.Load() {
				continue
			}
			err := sess.Send(ctx, ping)
			observability.RecordPing(err)
			if err != nil && ctx.Err() == nil {
				m.logger.Printf("Ping failed: session %s: %v", sess.ID(), err)
			}
		}
	}
}

// dispatch normalizes msg and calls the handler, containing its faults.
func (m *Manager) dispatch(msg map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Printf("Error processing data: handler panic: %v", r)
			observability.RecordHandlerFault()
		}
	}()

	if err := m.handler(NormalizePayload(msg)); err != nil {
		m.logger.Printf("Error processing data: %v", err)
		observability.RecordHandlerFault()
	}
}
