package realtime

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/yukikurage/task-management-client/internal/dto"
)

var errConnClosed = errors.New("fake conn closed")

// fakeConn is driven by the test: push frames with send, drop it with fail.
type fakeConn struct {
	token  string
	frames chan dto.Envelope
	errs   chan error
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written []dto.Envelope
}

func newFakeConn(token string) *fakeConn {
	return &fakeConn{
		token:  token,
		frames: make(chan dto.Envelope, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Read() (dto.Envelope, error) {
	select {
	case env := <-c.frames:
		return env, nil
	case err := <-c.errs:
		return dto.Envelope{}, err
	case <-c.closed:
		return dto.Envelope{}, errConnClosed
	}
}

func (c *fakeConn) Write(env dto.Envelope) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	c.mu.Lock()
	c.written = append(c.written, env)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) send(t *testing.T, ev Event) {
	t.Helper()
	env, err := Encode(ev)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	c.frames <- env
}

func (c *fakeConn) fail(err error) {
	c.errs <- err
}

func (c *fakeConn) writes() []dto.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]dto.Envelope(nil), c.written...)
}

// fakeDialer hands out fakeConns. Set fail to make dials error, or gate to
// hold dials until the test releases them.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	fail  error
	gate  chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, token string) (Conn, error) {
	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return nil, d.fail
	}
	conn := newFakeConn(token)
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) setFail(err error) {
	d.mu.Lock()
	d.fail = err
	d.mu.Unlock()
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func fastPolicy(attempts int) ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts:  attempts,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   1,
	}
}
