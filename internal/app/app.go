// Package app wires the client components together from configuration.
package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/yukikurage/task-management-client/internal/api"
	"github.com/yukikurage/task-management-client/internal/config"
	"github.com/yukikurage/task-management-client/internal/leaves"
	"github.com/yukikurage/task-management-client/internal/models"
	"github.com/yukikurage/task-management-client/internal/notify"
	"github.com/yukikurage/task-management-client/internal/realtime"
	"github.com/yukikurage/task-management-client/internal/session"
	"github.com/yukikurage/task-management-client/internal/storage"
	"github.com/yukikurage/task-management-client/internal/tasksync"
)

type App struct {
	Config  *config.Config
	API     *api.Client
	Storage storage.Store
	Session *session.Store
	Channel *realtime.Manager
	Tasks   *tasksync.Syncer
	Leaves  *leaves.Service
	Inbox   *notify.Inbox

	logger      *log.Logger
	stopWatch   func()
	mu          sync.Mutex
	activeToken string
}

type Option func(*options)

type options struct {
	store    storage.Store
	logger   *log.Logger
	onNotify func(models.Notification)
}

// WithStorage uses store instead of opening the configured backend.
func WithStorage(store storage.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithNotificationListener runs fn for every notification the inbox receives.
func WithNotificationListener(fn func(models.Notification)) Option {
	return func(o *options) {
		o.onNotify = fn
	}
}

// New builds every client component from cfg. Nothing touches the network
// until a session is restored or established.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	o := options{logger: log.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	store := o.store
	if store == nil {
		gormStore, err := storage.Open(cfg)
		if err != nil {
			return nil, err
		}
		store = gormStore
	}

	a := &App{Config: cfg, Storage: store, logger: o.logger}

	// The client reads its token from the session, which logs in through the client.
	a.API = api.NewClient(cfg.APIBaseURL, api.TokenFunc(func() string {
		return a.Session.Token()
	}), api.WithTimeout(cfg.RequestTimeout))
	a.Session = session.NewStore(a.API, store, session.WithLogger(o.logger))

	dialer, err := NewDialer(cfg, a.API, o.logger)
	if err != nil {
		return nil, err
	}

	a.Channel = realtime.NewManager(dialer,
		realtime.WithLogger(o.logger),
		realtime.WithReconnectPolicy(realtime.ReconnectPolicy{
			MaxAttempts:  cfg.ReconnectAttempts,
			InitialDelay: cfg.ReconnectDelay,
			MaxDelay:     cfg.ReconnectMaxDelay,
			Multiplier:   2,
			Jitter:       0.5,
		}),
		realtime.WithForcedDisconnectHandler(func(reason string) {
			a.Session.Invalidate(context.Background(), reason)
		}),
	)
	a.Session.AttachChannel(a.Channel)

	a.Tasks = tasksync.NewSyncer(a.API, a.Channel, tasksync.WithLogger(o.logger))
	a.Leaves = leaves.NewService(a.API, a.Session)
	inboxOpts := []notify.Option{}
	if o.onNotify != nil {
		inboxOpts = append(inboxOpts, notify.WithListener(o.onNotify))
	}
	a.Inbox = notify.NewInbox(a.Channel, inboxOpts...)

	a.stopWatch = a.Session.OnChange(a.sessionChanged)
	return a, nil
}

// sessionChanged keeps the channel subscribers and the cached data in step
// with the session. The channel drops every subscription when its token
// changes, so a new token always gets fresh ones and starts from empty caches.
func (a *App) sessionChanged(s session.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !s.Active() {
		a.activeToken = ""
		a.Tasks.Deactivate()
		a.Inbox.Deactivate()
		a.Tasks.Reset()
		a.Inbox.Clear()
		return
	}
	if s.Token == a.activeToken {
		return
	}
	a.activeToken = s.Token
	a.Tasks.Deactivate()
	a.Inbox.Deactivate()
	a.Tasks.Reset()
	a.Inbox.Clear()
	a.Tasks.Activate()
	a.Inbox.Activate()
}

// Close disconnects the channel and closes storage.
func (a *App) Close() error {
	if a.stopWatch != nil {
		a.stopWatch()
	}
	a.Channel.Disconnect()
	a.Tasks.Deactivate()
	a.Inbox.Deactivate()
	if err := a.Storage.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	return nil
}

// NewDialer builds the realtime transport selected by cfg.
func NewDialer(cfg *config.Config, client *api.Client, logger *log.Logger) (realtime.Dialer, error) {
	ws := &realtime.WebSocketDialer{
		URL:    cfg.RealtimeURL,
		Dialer: &websocket.Dialer{HandshakeTimeout: cfg.RequestTimeout},
	}
	polling := &realtime.PollingDialer{BaseURL: strings.TrimRight(client.BaseURL(), "/")}

	switch cfg.RealtimeTransport {
	case config.TransportWebSocket:
		return ws, nil
	case config.TransportPolling:
		return polling, nil
	case config.TransportAuto:
		return &realtime.FallbackDialer{Primary: ws, Fallback: polling, Logger: logger}, nil
	}
	return nil, fmt.Errorf("unknown realtime transport %q", cfg.RealtimeTransport)
}
