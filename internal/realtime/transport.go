package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yukikurage/task-management-client/internal/dto"
)

// CloseForcedDisconnect is the websocket close code a server uses to revoke
// the session. Any other close is treated as a transport drop.
const CloseForcedDisconnect = 4001

const writeWait = 10 * time.Second

// Conn is a live, authenticated event stream. Read is only ever called from
// one goroutine; Write and Close may be called concurrently with it.
type Conn interface {
	Read() (dto.Envelope, error)
	Write(env dto.Envelope) error
	Close() error
}

// Dialer opens a Conn authenticated with token.
type Dialer interface {
	Dial(ctx context.Context, token string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, token string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, token string) (Conn, error) {
	return f(ctx, token)
}

// ForcedDisconnectError is returned by Conn.Read when the server revoked the session.
type ForcedDisconnectError struct {
	Reason string
}

func (e *ForcedDisconnectError) Error() string {
	return "server forced disconnect: " + e.Reason
}

// WebSocketDialer connects over a websocket, passing the token in the handshake.
type WebSocketDialer struct {
	URL    string
	Dialer *websocket.Dialer
	Header http.Header
}

func (d *WebSocketDialer) Dial(ctx context.Context, token string) (Conn, error) {
	header := http.Header{}
	for k, v := range d.Header {
		header[k] = append([]string(nil), v...)
	}
	header.Set("Authorization", "Bearer "+token)

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	ws, resp, err := dialer.DialContext(ctx, d.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return &wsConn{ws: ws}, nil
}

type wsConn struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) Read() (dto.Envelope, error) {
	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) && closeErr.Code == CloseForcedDisconnect {
			return dto.Envelope{}, &ForcedDisconnectError{Reason: closeErr.Text}
		}
		return dto.Envelope{}, err
	}

	var env dto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return dto.Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return env, nil
}

func (c *wsConn) Write(env dto.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(env)
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// FallbackDialer tries Primary and falls back to Fallback when it fails,
// mirroring a websocket-then-long-polling transport upgrade in reverse.
type FallbackDialer struct {
	Primary  Dialer
	Fallback Dialer
	Logger   *log.Logger
}

func (d *FallbackDialer) Dial(ctx context.Context, token string) (Conn, error) {
	conn, err := d.Primary.Dial(ctx, token)
	if err == nil {
		return conn, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	logger := d.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("realtime: primary transport unavailable, falling back to polling: %v", err)

	conn, fallbackErr := d.Fallback.Dial(ctx, token)
	if fallbackErr != nil {
		return nil, fmt.Errorf("all transports failed: %w; %v", fallbackErr, err)
	}
	return conn, nil
}
