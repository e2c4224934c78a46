package app

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/yukikurage/task-management-client/internal/api"
	"github.com/yukikurage/task-management-client/internal/config"
	"github.com/yukikurage/task-management-client/internal/devserver"
	apierrors "github.com/yukikurage/task-management-client/internal/errors"
	"github.com/yukikurage/task-management-client/internal/leaves"
	"github.com/yukikurage/task-management-client/internal/models"
	"github.com/yukikurage/task-management-client/internal/realtime"
	"github.com/yukikurage/task-management-client/internal/services"
	"github.com/yukikurage/task-management-client/internal/storage"
	"github.com/yukikurage/task-management-client/internal/tasksync"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

// EndToEndTestSuite runs the client against an in-process backend.
type EndToEndTestSuite struct {
	suite.Suite
	backend *devserver.Server
	http    *httptest.Server
	logger  *log.Logger
}

func (suite *EndToEndTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	suite.logger = log.New(io.Discard, "", 0)

	backend, err := devserver.New(devserver.Options{Logger: suite.logger, TokenTTL: time.Hour})
	suite.Require().NoError(err)
	suite.backend = backend
	suite.http = httptest.NewServer(backend.Handler())
}

func (suite *EndToEndTestSuite) TearDownTest() {
	suite.http.Close()
	_ = suite.backend.Close()
}

func (suite *EndToEndTestSuite) config(transport string) *config.Config {
	base, err := url.Parse(suite.http.URL)
	suite.Require().NoError(err)
	return &config.Config{
		APIBaseURL:        suite.http.URL,
		RealtimeURL:       config.DeriveRealtimeURL(base),
		RealtimeTransport: transport,
		RequestTimeout:    5 * time.Second,
		ReconnectAttempts: 5,
		ReconnectDelay:    20 * time.Millisecond,
		ReconnectMaxDelay: 50 * time.Millisecond,
	}
}

func (suite *EndToEndTestSuite) newApp(cfg *config.Config, store storage.Store) *App {
	if store == nil {
		store = storage.NewMemoryStore()
	}
	a, err := New(cfg, WithStorage(store), WithLogger(suite.logger))
	suite.Require().NoError(err)
	suite.T().Cleanup(func() { _ = a.Close() })
	return a
}

func (suite *EndToEndTestSuite) seedUser(name string, role models.Role) models.User {
	user, err := suite.backend.CreateUser(name, name+"@example.com", "password1", role)
	suite.Require().NoError(err)
	return user
}

func (suite *EndToEndTestSuite) login(a *App, user models.User) {
	_, err := a.Session.Login(context.Background(), api.Credentials{Email: user.Email, Password: "password1"})
	suite.Require().NoError(err)
}

func (suite *EndToEndTestSuite) waitConnected(a *App, userID string) {
	suite.Require().Eventually(func() bool {
		return a.Channel.State() == realtime.StateConnected && suite.backend.ConnectionCount(userID) == 1
	}, waitFor, tick)
}

func (suite *EndToEndTestSuite) TestLoginConnectsAndPersists() {
	user := suite.seedUser("alice", models.RoleUser)
	store := storage.NewMemoryStore()
	a := suite.newApp(suite.config(config.TransportWebSocket), store)

	suite.login(a, user)
	suite.waitConnected(a, user.ID)

	token, ok, err := store.Get(context.Background(), storage.KeyToken)
	suite.Require().NoError(err)
	suite.True(ok)
	suite.Equal(a.Session.Token(), token)
	suite.True(a.Tasks.Active())

	// a second client restores the persisted session
	restored := suite.newApp(suite.config(config.TransportWebSocket), store)
	session, ok := restored.Session.Restore(context.Background())
	suite.Require().True(ok)
	suite.Equal(user.ID, session.User.ID)
}

func (suite *EndToEndTestSuite) TestTaskEventsReachAssignee() {
	admin := suite.seedUser("admin", models.RoleAdmin)
	alice := suite.seedUser("alice", models.RoleUser)
	a := suite.newApp(suite.config(config.TransportWebSocket), nil)
	suite.login(a, alice)
	suite.waitConnected(a, alice.ID)

	created, err := suite.backend.Tasks.CreateTask(services.Actor{ID: admin.ID, Role: models.RoleAdmin}, services.CreateTaskInput{
		Title:     "Write report",
		Assignees: []string{alice.ID},
	})
	suite.Require().NoError(err)

	suite.Require().Eventually(func() bool {
		_, ok := a.Tasks.Get(created.ID)
		return ok
	}, waitFor, tick)
	suite.Eventually(func() bool { return len(a.Inbox.Items()) == 1 }, waitFor, tick)

	moved, err := a.Tasks.SetStatus(context.Background(), created.ID, models.TaskStatusDone)
	suite.Require().NoError(err)
	suite.Equal(models.TaskStatusDone, moved.Status)
	suite.Len(a.Tasks.ByStatus(models.TaskStatusDone), 1)
	suite.Empty(a.Tasks.ByStatus(models.TaskStatusTodo))

	suite.Require().NoError(suite.backend.Tasks.DeleteTask(services.Actor{ID: admin.ID, Role: models.RoleAdmin}, created.ID))
	suite.Eventually(func() bool {
		_, ok := a.Tasks.Get(created.ID)
		return !ok
	}, waitFor, tick)
}

func (suite *EndToEndTestSuite) TestFetchAllAndCreate() {
	alice := suite.seedUser("alice", models.RoleUser)
	bob := suite.seedUser("bob", models.RoleUser)
	a := suite.newApp(suite.config(config.TransportWebSocket), nil)
	suite.login(a, alice)

	_, err := a.Tasks.FetchUsers(context.Background())
	suite.Require().NoError(err)

	created, err := a.Tasks.Create(context.Background(), tasksync.Draft{
		Title:     "Pair on review",
		Priority:  models.TaskPriorityHigh,
		Assignees: []string{bob.ID, alice.ID},
	})
	suite.Require().NoError(err)
	suite.Equal([]string{bob.ID, alice.ID}, created.Assignees)

	tasks, err := a.Tasks.FetchAll(context.Background())
	suite.Require().NoError(err)
	suite.Require().Len(tasks, 1)
	suite.Equal(created.ID, tasks[0].ID)
	suite.Len(a.Tasks.ByAssignee(bob.ID), 1)
}

func (suite *EndToEndTestSuite) TestDeleteUnknownTask() {
	alice := suite.seedUser("alice", models.RoleUser)
	a := suite.newApp(suite.config(config.TransportWebSocket), nil)
	suite.login(a, alice)

	err := a.Tasks.Delete(context.Background(), "task_missing")
	suite.Require().Error(err)
	suite.ErrorIs(err, apierrors.ErrServer)
	suite.Equal(http.StatusNotFound, apierrors.StatusOf(err))
	suite.Empty(a.Tasks.Tasks())
}

func (suite *EndToEndTestSuite) TestStatusMoveByOutsiderIsRejected() {
	alice := suite.seedUser("alice", models.RoleUser)
	bob := suite.seedUser("bob", models.RoleUser)
	task, err := suite.backend.Tasks.CreateTask(services.Actor{ID: alice.ID, Role: models.RoleUser}, services.CreateTaskInput{
		Title:     "Private",
		Assignees: []string{alice.ID},
	})
	suite.Require().NoError(err)

	a := suite.newApp(suite.config(config.TransportWebSocket), nil)
	suite.login(a, bob)

	_, err = a.Tasks.SetStatus(context.Background(), task.ID, models.TaskStatusDone)
	suite.Require().Error(err)
	suite.Equal("Only assignees can move this task", err.Error())
	suite.Equal(http.StatusForbidden, apierrors.StatusOf(err))
}

func (suite *EndToEndTestSuite) TestLogoutWhileConnected() {
	alice := suite.seedUser("alice", models.RoleUser)
	store := storage.NewMemoryStore()
	a := suite.newApp(suite.config(config.TransportWebSocket), store)
	suite.login(a, alice)
	suite.waitConnected(a, alice.ID)

	suite.Require().NoError(a.Session.Logout(context.Background()))

	suite.Equal(realtime.StateDisconnected, a.Channel.State())
	suite.Zero(a.Channel.Stats().Subscriptions)
	suite.False(a.Tasks.Active())
	suite.Zero(store.Len())
	suite.Eventually(func() bool { return suite.backend.ConnectionCount(alice.ID) == 0 }, waitFor, tick)

	_, err := a.Tasks.FetchAll(context.Background())
	suite.ErrorIs(err, apierrors.ErrUnauthenticated)
}

func (suite *EndToEndTestSuite) TestNextUserStartsWithEmptyCaches() {
	alice := suite.seedUser("alice", models.RoleUser)
	bob := suite.seedUser("bob", models.RoleUser)
	_, err := suite.backend.Tasks.CreateTask(services.Actor{ID: alice.ID, Role: models.RoleUser}, services.CreateTaskInput{
		Title:     "Alice only",
		Assignees: []string{alice.ID},
	})
	suite.Require().NoError(err)

	a := suite.newApp(suite.config(config.TransportWebSocket), nil)
	suite.login(a, alice)
	suite.waitConnected(a, alice.ID)
	_, err = a.Tasks.FetchAll(context.Background())
	suite.Require().NoError(err)
	_, err = a.Tasks.FetchUsers(context.Background())
	suite.Require().NoError(err)
	suite.Require().Len(a.Tasks.Tasks(), 1)
	suite.Require().NoError(suite.backend.Emit(services.Audience{UserIDs: []string{alice.ID}}, realtime.NotificationEvent{Message: "hello alice"}))
	suite.Require().Eventually(func() bool { return len(a.Inbox.Items()) == 1 }, waitFor, tick)

	suite.Require().NoError(a.Session.Logout(context.Background()))
	suite.Empty(a.Tasks.Tasks())
	suite.Empty(a.Tasks.Users())
	suite.Empty(a.Inbox.Items())

	suite.login(a, bob)
	suite.Empty(a.Tasks.Tasks())
	suite.Empty(a.Tasks.ByStatus(models.TaskStatusTodo))
	suite.Empty(a.Inbox.Items())

	_, err = a.Tasks.Create(context.Background(), tasksync.Draft{Title: "x", Assignees: []string{alice.ID}})
	suite.ErrorIs(err, tasksync.ErrUsersNotLoaded)
}

func (suite *EndToEndTestSuite) TestExpiredTokenIsReported() {
	alice := suite.seedUser("alice", models.RoleUser)
	cfg := suite.config(config.TransportWebSocket)
	cfg.ReconnectAttempts = 0
	a := suite.newApp(cfg, nil)

	issued := time.Now().Add(-2 * time.Hour)
	suite.backend.Auth.SetClock(func() time.Time { return issued })
	suite.login(a, alice)
	suite.backend.Auth.SetClock(time.Now)

	_, err := a.Tasks.FetchAll(context.Background())
	suite.Require().Error(err)
	suite.Equal("Token expired", err.Error())
	suite.Equal(http.StatusUnauthorized, apierrors.StatusOf(err))
}

func (suite *EndToEndTestSuite) TestForcedDisconnectEndsSession() {
	alice := suite.seedUser("alice", models.RoleUser)
	store := storage.NewMemoryStore()
	a := suite.newApp(suite.config(config.TransportWebSocket), store)
	suite.login(a, alice)
	suite.waitConnected(a, alice.ID)

	suite.Require().NoError(suite.backend.ForceDisconnect(alice.ID, "account suspended"))

	suite.Require().Eventually(func() bool { return !a.Session.Current().Active() }, waitFor, tick)
	suite.Equal(realtime.StateDisconnected, a.Channel.State())
	suite.False(a.Channel.Stats().Reconnecting)
	suite.False(a.Tasks.Active())
	suite.Zero(store.Len())
}

func (suite *EndToEndTestSuite) TestPollingFallback() {
	alice := suite.seedUser("alice", models.RoleUser)
	suite.backend.DisableWebSocket(true)

	received := make(chan models.Notification, 1)
	a, err := New(suite.config(config.TransportAuto),
		WithStorage(storage.NewMemoryStore()),
		WithLogger(suite.logger),
		WithNotificationListener(func(n models.Notification) { received <- n }),
	)
	suite.Require().NoError(err)
	defer a.Close()

	suite.login(a, alice)
	suite.waitConnected(a, alice.ID)

	suite.Require().NoError(suite.backend.Emit(services.Audience{UserIDs: []string{alice.ID}}, realtime.NotificationEvent{Message: "standup in 5"}))

	select {
	case n := <-received:
		suite.Equal("standup in 5", n.Message)
	case <-time.After(waitFor):
		suite.Fail("notification not delivered over polling")
	}
}

func (suite *EndToEndTestSuite) TestReconnectAfterDrop() {
	alice := suite.seedUser("alice", models.RoleUser)
	a := suite.newApp(suite.config(config.TransportWebSocket), nil)
	suite.login(a, alice)
	suite.waitConnected(a, alice.ID)

	suite.Equal(1, suite.backend.DropConnections())

	suite.Require().Eventually(func() bool {
		return a.Channel.Stats().Dials >= 2 && a.Channel.State() == realtime.StateConnected
	}, waitFor, tick)
	suite.waitConnected(a, alice.ID)
	suite.True(a.Session.Current().Active())
}

func (suite *EndToEndTestSuite) TestLeaveWorkflow() {
	admin := suite.seedUser("admin", models.RoleAdmin)
	alice := suite.seedUser("alice", models.RoleUser)

	employee := suite.newApp(suite.config(config.TransportWebSocket), nil)
	suite.login(employee, alice)
	manager := suite.newApp(suite.config(config.TransportWebSocket), nil)
	suite.login(manager, admin)
	suite.waitConnected(employee, alice.ID)

	start := time.Date(2024, 8, 5, 0, 0, 0, 0, time.UTC)
	submitted, err := employee.Leaves.Submit(context.Background(), leaves.Draft{
		StartDate: start,
		EndDate:   start.Add(72 * time.Hour),
		Reason:    "family trip",
	})
	suite.Require().NoError(err)
	suite.Equal(models.LeaveStatusPending, submitted.Status)

	_, err = employee.Leaves.Approve(context.Background(), submitted.ID)
	suite.ErrorIs(err, apierrors.ErrValidation)

	_, err = manager.Leaves.List(context.Background())
	suite.Require().NoError(err)
	suite.Len(manager.Leaves.Pending(), 1)

	approved, err := manager.Leaves.Approve(context.Background(), submitted.ID)
	suite.Require().NoError(err)
	suite.Equal(models.LeaveStatusApproved, approved.Status)
	suite.Equal(admin.ID, approved.ApproverID)
	suite.Empty(manager.Leaves.Pending())

	suite.Eventually(func() bool { return len(employee.Inbox.Items()) == 1 }, waitFor, tick)
}

func TestEndToEndTestSuite(t *testing.T) {
	suite.Run(t, new(EndToEndTestSuite))
}

func TestNewDialer(t *testing.T) {
	client := api.NewClient("http://localhost:5000", api.StaticToken(""))
	cfg := &config.Config{RealtimeURL: "ws://localhost:5000/realtime"}

	for transport, want := range map[string]interface{}{
		config.TransportWebSocket: &realtime.WebSocketDialer{},
		config.TransportPolling:   &realtime.PollingDialer{},
		config.TransportAuto:      &realtime.FallbackDialer{},
	} {
		cfg.RealtimeTransport = transport
		dialer, err := NewDialer(cfg, client, nil)
		require.NoError(t, err)
		assert.IsType(t, want, dialer, transport)
	}

	cfg.RealtimeTransport = "smoke-signals"
	_, err := NewDialer(cfg, client, nil)
	assert.Error(t, err)
}
