// Package realtime owns the single live event channel to the backend.
//
// A Manager holds at most one connection, always authenticated with the
// current session token. Server-pushed frames are decoded into typed Events
// at the boundary and delivered to subscribers on the connection's read
// goroutine, in transport order. Delivery is best-effort: frames sent while
// disconnected are dropped and nothing is replayed after a reconnect.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/yukikurage/task-management-client/internal/dto"
	apierrors "github.com/yukikurage/task-management-client/internal/errors"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

var (
	ErrNotConnected = errors.New("realtime channel is not connected")
	errSuperseded   = errors.New("connect attempt superseded")
)

// Handler receives one decoded event.
type Handler func(Event)

// Unsubscribe removes exactly one registration. Calling it again is a no-op.
type Unsubscribe func()

// Stats is a point-in-time view of the manager, for diagnostics and tests.
type Stats struct {
	State             State
	Dials             int
	Subscriptions     int
	ReconnectAttempts int
	Reconnecting      bool
}

type subscription struct {
	name    EventName
	handler Handler
}

// attempt is one in-flight dial; concurrent Connect calls for the same
// token wait on it instead of dialing again.
type attempt struct {
	token string
	done  chan struct{}
	err   error
}

func (a *attempt) wait(ctx context.Context) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return apierrors.Channel(ctx.Err())
	}
}

type Manager struct {
	dialer   Dialer
	policy   ReconnectPolicy
	onForced func(reason string)
	logger   *log.Logger

	mu        sync.Mutex
	state     State
	token     string
	conn      Conn
	inflight  *attempt
	subs      map[uint64]subscription
	nextSubID uint64
	stopRetry context.CancelFunc
	retrying  bool
	dials     int
	attempts  int
}

type Option func(*Manager)

func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(m *Manager) {
		m.policy = p
	}
}

// WithForcedDisconnectHandler sets the callback run after the server revokes
// the session. It is called without any manager lock held.
func WithForcedDisconnectHandler(fn func(reason string)) Option {
	return func(m *Manager) {
		m.onForced = fn
	}
}

func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

func NewManager(dialer Dialer, opts ...Option) *Manager {
	m := &Manager{
		dialer: dialer,
		policy: DefaultReconnectPolicy(),
		logger: log.Default(),
		state:  StateDisconnected,
		subs:   make(map[uint64]subscription),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		State:             m.state,
		Dials:             m.dials,
		Subscriptions:     len(m.subs),
		ReconnectAttempts: m.attempts,
		Reconnecting:      m.retrying,
	}
}

// Connect ensures a connection authenticated with token exists.
//
// Connecting with the token already in use is a no-op, and joins the
// in-flight attempt if one is running. A different token tears the old
// connection down first, including every subscription made under it.
// A failed first dial returns a ChannelError and hands over to the
// reconnect policy.
func (m *Manager) Connect(ctx context.Context, token string) error {
	if token == "" {
		return apierrors.Unauthenticated("realtime channel requires a token")
	}

	m.mu.Lock()
	var stale Conn
	if m.token != "" && m.token != token {
		m.logger.Printf("realtime: token changed, tearing down previous connection")
		stale = m.teardownLocked()
	}
	m.token = token

	if m.conn != nil {
		m.mu.Unlock()
		return nil
	}
	if a := m.inflight; a != nil {
		m.mu.Unlock()
		return a.wait(ctx)
	}

	m.stopRetryLocked()
	a := m.beginLocked(token)
	m.mu.Unlock()
	closeConn(stale)

	conn, dialErr := m.dialer.Dial(ctx, token)

	m.mu.Lock()
	err := m.finishLocked(a, conn, dialErr)
	if errors.Is(err, errSuperseded) {
		m.mu.Unlock()
		closeConn(conn)
		return err
	}
	if err != nil {
		m.logger.Printf("realtime: connect failed: %v", dialErr)
		m.startRetryLocked(token)
	}
	m.mu.Unlock()
	return err
}

// Disconnect tears down the connection and removes every subscription.
// It is safe to call when already disconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	wasOpen := m.conn != nil || m.inflight != nil || m.retrying
	stale := m.teardownLocked()
	m.token = ""
	m.mu.Unlock()
	closeConn(stale)

	if wasOpen {
		m.logger.Printf("realtime: disconnected")
	}
}

// Subscribe registers h for events named name.
func (m *Manager) Subscribe(name EventName, h Handler) Unsubscribe {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = subscription{name: name, handler: h}
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Publish sends one frame. Without a live connection the frame is dropped
// with a warning; nothing is queued or retried.
func (m *Manager) Publish(name EventName, payload interface{}) error {
	env, err := NewEnvelope(name, payload)
	if err != nil {
		return apierrors.Validation(err)
	}

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		m.logger.Printf("realtime: dropping %s: %v", name, ErrNotConnected)
		return apierrors.Channel(ErrNotConnected)
	}
	if err := conn.Write(env); err != nil {
		m.logger.Printf("realtime: failed to publish %s: %v", name, err)
		return apierrors.Channel(err)
	}
	return nil
}

func (m *Manager) beginLocked(token string) *attempt {
	a := &attempt{token: token, done: make(chan struct{})}
	m.inflight = a
	m.dials++
	m.state = StateConnecting
	return a
}

// finishLocked settles attempt a. For an attempt superseded by a teardown
// while dialing the caller must close conn once the lock is released.
func (m *Manager) finishLocked(a *attempt, conn Conn, dialErr error) error {
	defer close(a.done)

	if m.inflight != a {
		a.err = apierrors.Channel(errSuperseded)
		return a.err
	}
	m.inflight = nil

	if dialErr != nil {
		m.state = StateDisconnected
		a.err = apierrors.Channel(dialErr)
		return a.err
	}

	m.conn = conn
	m.attempts = 0
	m.state = StateConnected
	go m.readLoop(conn)
	return nil
}

// teardownLocked drops everything the current token owns. The returned
// connection, if any, must be closed after the lock is released.
func (m *Manager) teardownLocked() Conn {
	m.stopRetryLocked()
	m.inflight = nil
	conn := m.conn
	m.conn = nil
	m.subs = make(map[uint64]subscription)
	m.attempts = 0
	m.state = StateDisconnected
	return conn
}

func closeConn(conn Conn) {
	if conn != nil {
		_ = conn.Close()
	}
}

func (m *Manager) readLoop(conn Conn) {
	for {
		env, err := conn.Read()
		if err != nil {
			var forced *ForcedDisconnectError
			switch {
			case errors.As(err, &forced):
				m.forced(conn, forced.Reason)
				return
			case errors.Is(err, ErrMalformedEvent):
				m.logger.Printf("realtime: dropping frame: %v", err)
				continue
			}
			m.dropped(conn, err)
			return
		}

		if EventName(env.Event) == EventForceDisconnect {
			m.forced(conn, forceReason(env))
			return
		}

		ev, err := Decode(env)
		if err != nil {
			m.logger.Printf("realtime: dropping event: %v", err)
			continue
		}
		m.dispatch(conn, ev)
	}
}

func forceReason(env dto.Envelope) string {
	var payload dto.ForceDisconnectPayload
	if len(env.Data) > 0 {
		_ = json.Unmarshal(env.Data, &payload)
	}
	if payload.Reason == "" {
		return "session revoked"
	}
	return payload.Reason
}

// dispatch delivers ev to the subscribers registered for it. Each handler
// is re-checked right before it runs, so a teardown performed by an earlier
// handler stops the rest.
func (m *Manager) dispatch(conn Conn, ev Event) {
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	ids := make([]uint64, 0, len(m.subs))
	for id, sub := range m.subs {
		if sub.name == ev.Name() {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		m.mu.Lock()
		sub, ok := m.subs[id]
		live := m.conn == conn
		m.mu.Unlock()
		if !ok || !live {
			continue
		}
		sub.handler(ev)
	}
}

func (m *Manager) forced(conn Conn, reason string) {
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	stale := m.teardownLocked()
	m.token = ""
	onForced := m.onForced
	m.mu.Unlock()
	closeConn(stale)

	m.logger.Printf("realtime: server forced disconnect: %s", reason)
	if onForced != nil {
		onForced(reason)
	}
}

// dropped handles an unexpected transport loss. Caller-initiated closes
// never get here because the connection is no longer current.
func (m *Manager) dropped(conn Conn, err error) {
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.state = StateDisconnected
	m.logger.Printf("realtime: connection lost: %v", err)
	m.startRetryLocked(m.token)
	m.mu.Unlock()

	closeConn(conn)
}

func (m *Manager) startRetryLocked(token string) {
	if m.retrying || token == "" || m.policy.MaxAttempts <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.stopRetry = cancel
	m.retrying = true
	go m.retry(ctx, token)
}

func (m *Manager) stopRetryLocked() {
	if m.stopRetry != nil {
		m.stopRetry()
		m.stopRetry = nil
	}
	m.retrying = false
}

// retry runs the bounded reconnect loop for token. Exhausting the attempts
// leaves the manager disconnected; the session is not touched.
func (m *Manager) retry(ctx context.Context, token string) {
	b := m.policy.backOff()

	for n := 1; n <= m.policy.MaxAttempts; n++ {
		timer := time.NewTimer(b.NextBackOff())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		m.mu.Lock()
		if ctx.Err() != nil || m.conn != nil || m.token != token {
			m.mu.Unlock()
			return
		}
		if a := m.inflight; a != nil {
			m.mu.Unlock()
			if err := a.wait(ctx); err == nil {
				return
			}
			continue
		}
		m.attempts = n
		a := m.beginLocked(token)
		m.mu.Unlock()

		conn, dialErr := m.dialer.Dial(ctx, token)

		m.mu.Lock()
		err := m.finishLocked(a, conn, dialErr)
		if errors.Is(err, errSuperseded) {
			m.mu.Unlock()
			closeConn(conn)
			return
		}
		if err == nil {
			cancel := m.stopRetry
			m.stopRetry = nil
			m.retrying = false
			m.mu.Unlock()
			if cancel != nil {
				cancel()
			}
			m.logger.Printf("realtime: reconnected after %d attempt(s)", n)
			return
		}
		m.mu.Unlock()

		m.logger.Printf("realtime: reconnect attempt %d/%d failed: %v", n, m.policy.MaxAttempts, dialErr)
	}

	m.mu.Lock()
	if ctx.Err() == nil {
		m.stopRetryLocked()
		m.logger.Printf("realtime: giving up after %d reconnect attempts", m.policy.MaxAttempts)
	}
	m.mu.Unlock()
}
