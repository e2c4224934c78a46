package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/yukikurage/task-management-client/internal/dto"
)

// PollingDialer is the long-polling transport used when websockets are not
// available. Endpoints, relative to BaseURL:
//
//	POST   /realtime/poll            open a session, returns {sid}
//	GET    /realtime/poll/:sid       wait for frames, returns {events, closed}
//	POST   /realtime/poll/:sid/emit  send one frame
//	DELETE /realtime/poll/:sid       close the session
type PollingDialer struct {
	BaseURL string
	Client  *http.Client
	// Wait is how long the server may hold a poll open.
	Wait time.Duration
}

func (d *PollingDialer) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return http.DefaultClient
}

func (d *PollingDialer) wait() time.Duration {
	if d.Wait > 0 {
		return d.Wait
	}
	return 20 * time.Second
}

func (d *PollingDialer) Dial(ctx context.Context, token string) (Conn, error) {
	var opened dto.PollOpenResponse
	if err := d.call(ctx, http.MethodPost, "/realtime/poll", token, nil, &opened); err != nil {
		return nil, fmt.Errorf("open polling session: %w", err)
	}
	if opened.SessionID == "" {
		return nil, fmt.Errorf("open polling session: server returned no sid")
	}

	connCtx, cancel := context.WithCancel(context.Background())
	return &pollConn{
		dialer: d,
		token:  token,
		sid:    opened.SessionID,
		ctx:    connCtx,
		cancel: cancel,
	}, nil
}

func (d *PollingDialer) call(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(d.BaseURL, "/")+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("polling %s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type pollConn struct {
	dialer *PollingDialer
	token  string
	sid    string
	ctx    context.Context
	cancel context.CancelFunc

	// buffered is only touched by the reading goroutine.
	buffered []dto.Envelope

	closeOnce sync.Once
}

func (c *pollConn) path(suffix string) string {
	return "/realtime/poll/" + url.PathEscape(c.sid) + suffix
}

func (c *pollConn) Read() (dto.Envelope, error) {
	for len(c.buffered) == 0 {
		var resp dto.PollResponse
		path := c.path("") + "?wait=" + c.dialer.wait().String()
		if err := c.dialer.call(c.ctx, http.MethodGet, path, c.token, nil, &resp); err != nil {
			return dto.Envelope{}, err
		}
		c.buffered = append(c.buffered, resp.Events...)
		if resp.Closed && len(c.buffered) == 0 {
			return dto.Envelope{}, fmt.Errorf("polling session closed by server: %s", resp.Reason)
		}
	}

	env := c.buffered[0]
	c.buffered = c.buffered[1:]
	return env, nil
}

func (c *pollConn) Write(env dto.Envelope) error {
	ctx, cancel := context.WithTimeout(c.ctx, writeWait)
	defer cancel()
	return c.dialer.call(ctx, http.MethodPost, c.path("/emit"), c.token, env, nil)
}

func (c *pollConn) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = c.dialer.call(ctx, http.MethodDelete, c.path(""), c.token, nil, nil)
		}()
	})
	return nil
}
