// Package session owns the client's authenticated session. It is the only
// writer of the session and decides when the realtime channel is open.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/yukikurage/task-management-client/internal/api"
	"github.com/yukikurage/task-management-client/internal/dto"
	apierrors "github.com/yukikurage/task-management-client/internal/errors"
	"github.com/yukikurage/task-management-client/internal/models"
	"github.com/yukikurage/task-management-client/internal/storage"
)

// AuthClient is the part of the request layer the store needs.
type AuthClient interface {
	Login(ctx context.Context, creds api.Credentials) (dto.AuthResponse, error)
	Register(ctx context.Context, reg api.Registration) (dto.AuthResponse, error)
	WhoAmI(ctx context.Context, token string) (models.User, error)
}

// Channel is the realtime connection the store opens and closes.
type Channel interface {
	Connect(ctx context.Context, token string) error
	Disconnect()
}

type Store struct {
	auth    AuthClient
	storage storage.Store
	logger  *log.Logger
	now     func() time.Time

	// transition serializes session transitions so the channel always ends
	// up on the token of the last one.
	transition sync.Mutex

	mu        sync.RWMutex
	session   Session
	channel   Channel
	listeners map[int]func(Session)
	nextID    int
}

type Option func(*Store)

func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithClock overrides time.Now, for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(auth AuthClient, store storage.Store, opts ...Option) *Store {
	s := &Store{
		auth:      auth,
		storage:   store,
		logger:    log.Default(),
		now:       time.Now,
		listeners: make(map[int]func(Session)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AttachChannel sets the channel driven by session transitions.
func (s *Store) AttachChannel(ch Channel) {
	s.mu.Lock()
	s.channel = ch
	s.mu.Unlock()
}

// Current returns a copy of the current session.
func (s *Store) Current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySession(s.session)
}

// Token implements api.TokenSource.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Token
}

// Permissions derives what the current user may do.
func (s *Store) Permissions() Permissions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return PermissionsFor(s.session.User)
}

// OnChange registers fn to run after every session transition. For a new
// session it runs after the channel connect was attempted, so subscriptions
// made by fn belong to the new token. fn must not start another transition.
func (s *Store) OnChange(fn func(Session)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Login exchanges credentials for a session. On failure any existing
// session is left untouched.
func (s *Store) Login(ctx context.Context, creds api.Credentials) (Session, error) {
	if creds.Email == "" || creds.Password == "" {
		return Session{}, apierrors.Validation(ErrCredentialsRequired)
	}
	resp, err := s.auth.Login(ctx, creds)
	if err != nil {
		return Session{}, classifyAuthError(err)
	}
	return s.establish(ctx, resp)
}

// Register creates an account and signs in with it.
func (s *Store) Register(ctx context.Context, reg api.Registration) (Session, error) {
	if reg.Name == "" || reg.Email == "" || reg.Password == "" {
		return Session{}, apierrors.Validation(ErrRegistrationIncomplete)
	}
	resp, err := s.auth.Register(ctx, reg)
	if err != nil {
		return Session{}, err
	}
	return s.establish(ctx, resp)
}

func (s *Store) establish(ctx context.Context, resp dto.AuthResponse) (Session, error) {
	s.transition.Lock()
	defer s.transition.Unlock()

	user := resp.User
	next := Session{User: &user, Token: resp.Token}

	if err := s.persist(ctx, next); err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	s.session = next
	ch := s.channel
	s.mu.Unlock()

	s.connect(ctx, ch, next.Token)
	s.notify(next)
	return copySession(next), nil
}

// Logout clears the session from memory and storage and tears down the
// channel. It is safe to call without a session.
func (s *Store) Logout(ctx context.Context) error {
	return s.clear(ctx, "logout")
}

// Invalidate ends the session after the server revoked it.
func (s *Store) Invalidate(ctx context.Context, reason string) {
	if err := s.clear(ctx, "server: "+reason); err != nil {
		s.logger.Printf("session: failed to clear invalidated session: %v", err)
	}
}

func (s *Store) clear(ctx context.Context, why string) error {
	s.transition.Lock()
	defer s.transition.Unlock()

	s.mu.Lock()
	had := s.session.Active()
	s.session = Session{}
	ch := s.channel
	s.mu.Unlock()

	if ch != nil {
		ch.Disconnect()
	}

	err := s.storage.Delete(ctx, storage.KeyUser, storage.KeyToken)
	if err != nil {
		err = fmt.Errorf("failed to clear persisted session: %w", err)
	}

	if had {
		s.logger.Printf("session: ended (%s)", why)
		s.notify(Session{})
	}
	return err
}

// Restore re-establishes a persisted session at startup. A missing,
// expired or rejected token yields (Session{}, false), never an error.
func (s *Store) Restore(ctx context.Context) (Session, bool) {
	s.transition.Lock()
	defer s.transition.Unlock()

	token, ok, err := s.storage.Get(ctx, storage.KeyToken)
	if err != nil {
		s.logger.Printf("session: failed to read persisted token: %v", err)
		return Session{}, false
	}
	if !ok || token == "" {
		s.discard(ctx)
		return Session{}, false
	}

	if tokenExpired(token, s.now()) {
		s.logger.Printf("session: persisted token expired")
		s.discard(ctx)
		return Session{}, false
	}

	user, err := s.auth.WhoAmI(ctx, token)
	if err != nil {
		if apierrors.IsRejection(err) || apierrors.Code(err) == apierrors.ErrCodeValidation {
			s.logger.Printf("session: persisted token rejected: %v", err)
			s.discard(ctx)
		} else {
			s.logger.Printf("session: could not validate persisted token: %v", err)
		}
		return Session{}, false
	}

	next := Session{User: &user, Token: token}
	if err := s.persist(ctx, next); err != nil {
		s.logger.Printf("session: failed to refresh persisted user: %v", err)
	}

	s.mu.Lock()
	s.session = next
	ch := s.channel
	s.mu.Unlock()

	s.connect(ctx, ch, token)
	s.notify(next)
	return copySession(next), true
}

// PersistedUser returns the user stored alongside the token, if readable.
func (s *Store) PersistedUser(ctx context.Context) (models.User, bool) {
	raw, ok, err := s.storage.Get(ctx, storage.KeyUser)
	if err != nil || !ok {
		return models.User{}, false
	}
	var user models.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return models.User{}, false
	}
	return user, true
}

func (s *Store) persist(ctx context.Context, next Session) error {
	raw, err := json.Marshal(next.User)
	if err != nil {
		return fmt.Errorf("failed to encode session user: %w", err)
	}
	if err := s.storage.Put(ctx, map[string]string{
		storage.KeyUser:  string(raw),
		storage.KeyToken: next.Token,
	}); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

func (s *Store) discard(ctx context.Context) {
	if err := s.storage.Delete(ctx, storage.KeyUser, storage.KeyToken); err != nil {
		s.logger.Printf("session: failed to clear persisted session: %v", err)
	}
}

// connect opens the channel; failures are retried by the channel itself.
func (s *Store) connect(ctx context.Context, ch Channel, token string) {
	if ch == nil {
		return
	}
	if err := ch.Connect(ctx, token); err != nil {
		s.logger.Printf("session: realtime channel not connected yet: %v", err)
	}
}

func (s *Store) notify(current Session) {
	s.mu.RLock()
	fns := make([]func(Session), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(copySession(current))
	}
}

func copySession(in Session) Session {
	if in.User == nil {
		return Session{}
	}
	user := *in.User
	return Session{User: &user, Token: in.Token}
}

var (
	ErrCredentialsRequired    = errors.New("email and password are required")
	ErrRegistrationIncomplete = errors.New("name, email and password are required")
)

// classifyAuthError maps a failed login to InvalidCredentials when the server
// refused the credentials, and passes network failures through.
func classifyAuthError(err error) error {
	switch apierrors.StatusOf(err) {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		var apiErr *apierrors.APIError
		message := ""
		if errors.As(err, &apiErr) && apiErr.Code == apierrors.ErrCodeServer {
			message = apiErr.Message
		}
		return apierrors.InvalidCredentials(message, err)
	}
	return err
}
