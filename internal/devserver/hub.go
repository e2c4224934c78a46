package devserver

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yukikurage/task-management-client/internal/dto"
	apierrors "github.com/yukikurage/task-management-client/internal/errors"
	"github.com/yukikurage/task-management-client/internal/middleware"
	"github.com/yukikurage/task-management-client/internal/realtime"
	"github.com/yukikurage/task-management-client/internal/services"
	"github.com/yukikurage/task-management-client/internal/utils"
)

const (
	peerBuffer  = 64
	pingPeriod  = 30 * time.Second
	writeWait   = 10 * time.Second
	defaultWait = 20 * time.Second
	maxWait     = 30 * time.Second
)

type peer struct {
	id      string
	userID  string
	admin   bool
	polling bool
	out     chan dto.Envelope
	done    chan struct{}

	once   sync.Once
	mu     sync.Mutex
	reason string
	forced bool
}

func newPeer(actor services.Actor, polling bool) *peer {
	return &peer{
		id:      utils.NewID("sid"),
		userID:  actor.ID,
		admin:   actor.IsAdmin(),
		polling: polling,
		out:     make(chan dto.Envelope, peerBuffer),
		done:    make(chan struct{}),
	}
}

// send queues env without blocking; a full or closed peer drops it.
func (p *peer) send(env dto.Envelope) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.out <- env:
		return true
	default:
		return false
	}
}

func (p *peer) close(reason string, forced bool) {
	p.once.Do(func() {
		p.mu.Lock()
		p.reason = reason
		p.forced = forced
		p.mu.Unlock()
		close(p.done)
	})
}

func (p *peer) closeInfo() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reason, p.forced
}

func (p *peer) matches(a services.Audience) bool {
	if a.Everyone || (a.Admins && p.admin) {
		return true
	}
	for _, id := range a.UserIDs {
		if id == p.userID {
			return true
		}
	}
	return false
}

// Hub fans realtime events out to websocket and long-poll peers.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *log.Logger
	noWS     atomic.Bool

	mu    sync.Mutex
	peers map[string]*peer
	// closed holds polling peers whose close has not been reported yet.
	closed map[string]*peer
}

func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
		peers:  make(map[string]*peer),
		closed: make(map[string]*peer),
	}
}

// Publish implements services.Publisher.
func (h *Hub) Publish(audience services.Audience, env dto.Envelope) {
	for _, p := range h.snapshot() {
		if !p.matches(audience) {
			continue
		}
		if !p.send(env) {
			h.logger.Printf("devserver: dropped %s for user %s", env.Event, p.userID)
		}
	}
}

// ConnectionCount returns the number of live peers, optionally for one user.
func (h *Hub) ConnectionCount(userID string) int {
	n := 0
	for _, p := range h.snapshot() {
		if userID == "" || p.userID == userID {
			n++
		}
	}
	return n
}

// ForceDisconnect revokes userID's live connections. Websocket peers get a
// forceDisconnect frame followed by close code 4001; polling peers get the
// frame as their last event.
func (h *Hub) ForceDisconnect(userID, reason string) int {
	env, err := realtime.NewEnvelope(realtime.EventForceDisconnect, dto.ForceDisconnectPayload{Reason: reason})
	if err != nil {
		h.logger.Printf("devserver: failed to encode forceDisconnect: %v", err)
		return 0
	}

	n := 0
	for _, p := range h.snapshot() {
		if p.userID != userID {
			continue
		}
		p.send(env)
		p.close(reason, true)
		h.remove(p, false)
		n++
	}
	return n
}

// DropConnections closes every peer as a transport failure would.
func (h *Hub) DropConnections() int {
	peers := h.snapshot()
	for _, p := range peers {
		p.close("connection dropped", false)
		h.remove(p, false)
	}
	return len(peers)
}

// DisableWebSocket makes the websocket endpoint refuse upgrades, so clients
// have to fall back to long polling.
func (h *Hub) DisableWebSocket(disabled bool) {
	h.noWS.Store(disabled)
}

func (h *Hub) snapshot() []*peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		out = append(out, p)
	}
	return out
}

func (h *Hub) add(p *peer) {
	h.mu.Lock()
	h.peers[p.id] = p
	h.mu.Unlock()
	h.logger.Printf("devserver: user %s connected (polling=%t)", p.userID, p.polling)
}

// remove forgets p. Closed polling peers stay reachable by sid until their
// last poll has reported the close, unless final is set.
func (h *Hub) remove(p *peer, final bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if final {
		delete(h.closed, p.id)
	}
	if _, ok := h.peers[p.id]; !ok {
		return
	}
	delete(h.peers, p.id)
	if p.polling && !final {
		h.closed[p.id] = p
	}
}

func (h *Hub) lookupPoll(sid, userID string) (*peer, bool) {
	h.mu.Lock()
	p, ok := h.peers[sid]
	if !ok {
		p, ok = h.closed[sid]
	}
	h.mu.Unlock()
	if !ok || !p.polling || p.userID != userID {
		return nil, false
	}
	return p, true
}

// ServeWebSocket upgrades an authenticated request to a websocket peer.
func (h *Hub) ServeWebSocket(c *gin.Context) {
	if h.noWS.Load() {
		apierrors.NotFound(c, "WebSocket transport disabled")
		return
	}
	actor, ok := middleware.GetActor(c)
	if !ok {
		apierrors.Unauthorized(c, "")
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Printf("devserver: websocket upgrade failed: %v", err)
		return
	}

	p := newPeer(actor, false)
	h.add(p)
	go h.writeLoop(p, ws)
	go h.readLoop(p, ws)
}

func (h *Hub) writeLoop(p *peer, ws *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case env := <-p.out:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(env); err != nil {
				p.close("write failed", false)
				h.remove(p, true)
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				p.close("ping failed", false)
				h.remove(p, true)
				return
			}
		case <-p.done:
			reason, forced := p.closeInfo()
			if forced {
				h.flush(p, ws)
				_ = ws.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(realtime.CloseForcedDisconnect, reason),
					time.Now().Add(writeWait),
				)
			}
			return
		}
	}
}

// flush writes whatever is still queued for p.
func (h *Hub) flush(p *peer, ws *websocket.Conn) {
	for {
		select {
		case env := <-p.out:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(env); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (h *Hub) readLoop(p *peer, ws *websocket.Conn) {
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			p.close("client closed", false)
			h.remove(p, true)
			return
		}
		h.received(p, raw)
	}
}

// received logs a client frame; the dev backend does not act on them.
func (h *Hub) received(p *peer, raw []byte) {
	var env dto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.logger.Printf("devserver: malformed frame from user %s: %v", p.userID, err)
		return
	}
	h.logger.Printf("devserver: user %s sent %s", p.userID, env.Event)
}

// OpenPoll starts a long-poll session for the caller.
func (h *Hub) OpenPoll(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		apierrors.Unauthorized(c, "")
		return
	}
	p := newPeer(actor, true)
	h.add(p)
	c.JSON(http.StatusOK, dto.PollOpenResponse{SessionID: p.id})
}

// Poll waits for frames on a long-poll session.
func (h *Hub) Poll(c *gin.Context) {
	p, ok := h.pollFor(c)
	if !ok {
		return
	}

	wait := defaultWait
	if raw := c.Query("wait"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			wait = d
		} else if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			wait = time.Duration(secs) * time.Second
		}
	}
	if wait > maxWait {
		wait = maxWait
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	var events []dto.Envelope
	select {
	case env := <-p.out:
		events = append(events, env)
	case <-p.done:
	case <-timer.C:
	case <-c.Request.Context().Done():
		return
	}
	events = append(events, drain(p)...)

	resp := dto.PollResponse{Events: events}
	if len(events) == 0 {
		select {
		case <-p.done:
			resp.Closed = true
			resp.Reason, _ = p.closeInfo()
			h.remove(p, true)
		default:
		}
	}
	if resp.Events == nil {
		resp.Events = []dto.Envelope{}
	}
	c.JSON(http.StatusOK, resp)
}

// EmitPoll accepts a frame sent by a polling client.
func (h *Hub) EmitPoll(c *gin.Context) {
	p, ok := h.pollFor(c)
	if !ok {
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		apierrors.BadRequest(c, "Invalid frame")
		return
	}
	h.received(p, raw)
	c.Status(http.StatusNoContent)
}

// ClosePoll ends a long-poll session.
func (h *Hub) ClosePoll(c *gin.Context) {
	p, ok := h.pollFor(c)
	if !ok {
		return
	}
	p.close("client closed", false)
	h.remove(p, true)
	c.Status(http.StatusNoContent)
}

func (h *Hub) pollFor(c *gin.Context) (*peer, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apierrors.Unauthorized(c, "")
		return nil, false
	}
	p, ok := h.lookupPoll(c.Param("sid"), userID)
	if !ok {
		apierrors.NotFound(c, "Polling session not found")
		return nil, false
	}
	return p, true
}

func drain(p *peer) []dto.Envelope {
	var out []dto.Envelope
	for {
		select {
		case env := <-p.out:
			out = append(out, env)
		default:
			return out
		}
	}
}
