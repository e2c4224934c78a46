package tasksync

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/yukikurage/task-management-client/internal/dto"
	apierrors "github.com/yukikurage/task-management-client/internal/errors"
	"github.com/yukikurage/task-management-client/internal/models"
	"github.com/yukikurage/task-management-client/internal/realtime"
)

// fakeAPI records calls and returns canned results.
type fakeAPI struct {
	mu    sync.Mutex
	calls []string

	tasks   []models.Task
	users   []models.User
	err     error
	created models.Task
	updated models.Task
	lastReq dto.CreateTaskRequest
	blockOn chan struct{}
	entered chan struct{}
}

func (f *fakeAPI) record(call string) error {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	block, entered := f.blockOn, f.entered
	err := f.err
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return err
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAPI) ListTasks(ctx context.Context) ([]models.Task, error) {
	if err := f.record("list"); err != nil {
		return nil, err
	}
	return f.tasks, nil
}

func (f *fakeAPI) CreateTask(ctx context.Context, req dto.CreateTaskRequest) (models.Task, error) {
	f.mu.Lock()
	f.lastReq = req
	f.mu.Unlock()
	if err := f.record("create"); err != nil {
		return models.Task{}, err
	}
	return f.created, nil
}

func (f *fakeAPI) UpdateTask(ctx context.Context, id string, req dto.UpdateTaskRequest) (models.Task, error) {
	if err := f.record("update " + id); err != nil {
		return models.Task{}, err
	}
	return f.updated, nil
}

func (f *fakeAPI) UpdateTaskStatus(ctx context.Context, id string, status models.TaskStatus) (models.Task, error) {
	if err := f.record("status " + id); err != nil {
		return models.Task{}, err
	}
	return f.updated, nil
}

func (f *fakeAPI) DeleteTask(ctx context.Context, id string) error {
	return f.record("delete " + id)
}

func (f *fakeAPI) ListUsers(ctx context.Context) ([]models.User, error) {
	if err := f.record("users"); err != nil {
		return nil, err
	}
	return f.users, nil
}

// fakeChannel keeps registrations so tests can see what is live.
type fakeChannel struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]realtime.EventName
}

func (c *fakeChannel) Subscribe(name realtime.EventName, h realtime.Handler) realtime.Unsubscribe {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs == nil {
		c.subs = make(map[int]realtime.EventName)
	}
	id := c.nextID
	c.nextID++
	c.subs[id] = name
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *fakeChannel) live() []realtime.EventName {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]realtime.EventName, 0, len(c.subs))
	for _, name := range c.subs {
		out = append(out, name)
	}
	return out
}

type SyncerTestSuite struct {
	suite.Suite
	api     *fakeAPI
	channel *fakeChannel
	syncer  *Syncer
	ctx     context.Context
}

func (suite *SyncerTestSuite) SetupTest() {
	suite.api = &fakeAPI{
		users: []models.User{
			{ID: "u1", Name: "Ann", Role: models.RoleUser, Active: true},
			{ID: "u2", Name: "Bo", Role: models.RoleAdmin, Active: true},
		},
	}
	suite.channel = &fakeChannel{}
	suite.syncer = NewSyncer(suite.api, suite.channel, WithLogger(log.New(io.Discard, "", 0)))
	suite.ctx = context.Background()
}

func (suite *SyncerTestSuite) seed(tasks ...models.Task) {
	suite.api.tasks = tasks
	_, err := suite.syncer.FetchAll(suite.ctx)
	suite.Require().NoError(err)
}

func (suite *SyncerTestSuite) TestFetchAllThenByStatus() {
	taskA := task("A", models.TaskStatusTodo)
	taskB := task("B", models.TaskStatusDone)
	suite.seed(taskA, taskB)

	suite.Equal([]models.Task{taskB}, suite.syncer.ByStatus(models.TaskStatusDone))
	suite.Equal([]models.Task{taskA}, suite.syncer.ByStatus(models.TaskStatusTodo))
	suite.Empty(suite.syncer.ByStatus(models.TaskStatusReview))
}

func (suite *SyncerTestSuite) TestFetchAllFailureLeavesCollection() {
	suite.seed(task("A", models.TaskStatusTodo))

	suite.api.err = apierrors.Server(401, "Token expired")
	_, err := suite.syncer.FetchAll(suite.ctx)

	suite.ErrorIs(err, apierrors.ErrServer)
	suite.Equal("Token expired", err.Error())
	suite.Equal([]string{"A"}, ids(suite.syncer.Tasks()))
}

func (suite *SyncerTestSuite) TestCreateValidatesBeforeNetwork() {
	_, err := suite.syncer.FetchUsers(suite.ctx)
	suite.Require().NoError(err)
	before := suite.api.callCount()

	tests := []struct {
		name  string
		draft Draft
		want  error
	}{
		{"blank title", Draft{Title: "   ", Assignees: []string{"u1"}}, ErrTitleRequired},
		{"no assignees", Draft{Title: "Write docs"}, ErrNoAssignees},
		{"unknown assignee", Draft{Title: "Write docs", Assignees: []string{"u1", "ghost"}}, ErrUnknownAssignee},
		{"bad status", Draft{Title: "Write docs", Assignees: []string{"u1"}, Status: "archived"}, models.ErrUnknownTaskStatus},
		{"bad priority", Draft{Title: "Write docs", Assignees: []string{"u1"}, Priority: "asap"}, models.ErrUnknownTaskPriority},
	}
	for _, tt := range tests {
		suite.Run(tt.name, func() {
			_, err := suite.syncer.Create(suite.ctx, tt.draft)
			suite.ErrorIs(err, apierrors.ErrValidation)
			suite.ErrorIs(err, tt.want)
		})
	}

	suite.Equal(before, suite.api.callCount())
	suite.Equal(0, suite.syncer.tasks.Len())
}

func (suite *SyncerTestSuite) TestCreateRequiresKnownUsers() {
	_, err := suite.syncer.Create(suite.ctx, Draft{Title: "x", Assignees: []string{"u1"}})
	suite.ErrorIs(err, ErrUsersNotLoaded)
	suite.Equal(0, suite.api.callCount())
}

func (suite *SyncerTestSuite) TestCreateInsertsServerCanonicalTask() {
	_, err := suite.syncer.FetchUsers(suite.ctx)
	suite.Require().NoError(err)

	canonical := task("srv-1", models.TaskStatusTodo, "u1")
	canonical.Title = "Write docs"
	suite.api.created = canonical

	got, err := suite.syncer.Create(suite.ctx, Draft{Title: "  Write docs ", Assignees: []string{"u1", "u1"}})
	suite.Require().NoError(err)

	suite.Equal(canonical, got)
	suite.Equal("Write docs", suite.api.lastReq.Title)
	suite.Equal([]string{"u1"}, suite.api.lastReq.AssignedTo)
	suite.Equal([]models.Task{canonical}, suite.syncer.Tasks())
}

func (suite *SyncerTestSuite) TestFailedWritesAreNotApplied() {
	original := task("A", models.TaskStatusTodo)
	suite.seed(original)
	suite.api.err = apierrors.Server(403, "forbidden")

	_, err := suite.syncer.SetStatus(suite.ctx, "A", models.TaskStatusDone)
	suite.ErrorIs(err, apierrors.ErrServer)
	suite.ErrorIs(suite.syncer.Delete(suite.ctx, "A"), apierrors.ErrServer)

	title := "renamed"
	_, err = suite.syncer.Update(suite.ctx, "A", dto.UpdateTaskRequest{Title: &title})
	suite.ErrorIs(err, apierrors.ErrServer)

	suite.Equal([]models.Task{original}, suite.syncer.Tasks())
}

func (suite *SyncerTestSuite) TestSetStatusAndDeleteApplyOnSuccess() {
	suite.seed(task("A", models.TaskStatusTodo), task("B", models.TaskStatusTodo))

	moved := task("A", models.TaskStatusInProgress)
	suite.api.updated = moved
	_, err := suite.syncer.SetStatus(suite.ctx, "A", models.TaskStatusInProgress)
	suite.Require().NoError(err)
	suite.Equal([]models.Task{moved}, suite.syncer.ByStatus(models.TaskStatusInProgress))

	suite.Require().NoError(suite.syncer.Delete(suite.ctx, "B"))
	suite.Equal([]string{"A"}, ids(suite.syncer.Tasks()))
}

func (suite *SyncerTestSuite) TestUpdateValidation() {
	empty := "  "
	bogus := models.TaskStatus("archived")

	_, err := suite.syncer.Update(suite.ctx, "A", dto.UpdateTaskRequest{})
	suite.ErrorIs(err, ErrNothingToUpdate)
	_, err = suite.syncer.Update(suite.ctx, "A", dto.UpdateTaskRequest{Title: &empty})
	suite.ErrorIs(err, ErrTitleEmpty)
	_, err = suite.syncer.Update(suite.ctx, "A", dto.UpdateTaskRequest{Status: &bogus})
	suite.ErrorIs(err, models.ErrUnknownTaskStatus)
	_, err = suite.syncer.SetStatus(suite.ctx, "A", bogus)
	suite.ErrorIs(err, apierrors.ErrValidation)

	suite.Equal(0, suite.api.callCount())
}

func (suite *SyncerTestSuite) TestRemoteUpsertIsIdempotent() {
	suite.seed(task("A", models.TaskStatusTodo))
	ev := realtime.TaskUpdatedEvent{Task: task("B", models.TaskStatusReview, "u2")}

	suite.syncer.ApplyRemoteEvent(ev)
	once := suite.syncer.Tasks()
	suite.syncer.ApplyRemoteEvent(ev)

	suite.Equal(once, suite.syncer.Tasks())
	suite.Equal([]string{"A", "B"}, ids(once))
}

func (suite *SyncerTestSuite) TestRemoteUpsertLastWriteWins() {
	suite.seed(task("A", models.TaskStatusTodo))

	suite.syncer.ApplyRemoteEvent(realtime.TaskAssignedEvent{Task: task("A", models.TaskStatusReview, "u1")})
	suite.syncer.ApplyRemoteEvent(realtime.TaskUpdatedEvent{Task: task("A", models.TaskStatusDone)})

	got, ok := suite.syncer.Get("A")
	suite.True(ok)
	suite.Equal(models.TaskStatusDone, got.Status)
	suite.Equal(1, len(suite.syncer.Tasks()))
}

func (suite *SyncerTestSuite) TestRemoteDeleteOfUnknownIDIsNoop() {
	suite.seed(task("A", models.TaskStatusTodo))
	before := suite.syncer.Tasks()

	changes := 0
	suite.syncer.OnChange(func(Change) { changes++ })
	suite.syncer.ApplyRemoteEvent(realtime.TaskDeletedEvent{TaskID: "X"})

	suite.Equal(before, suite.syncer.Tasks())
	suite.Equal(0, changes)
}

func (suite *SyncerTestSuite) TestDerivedViewsNeverDrift() {
	suite.seed(task("A", models.TaskStatusTodo, "u1"), task("B", models.TaskStatusDone, "u2"))
	_, err := suite.syncer.FetchUsers(suite.ctx)
	suite.Require().NoError(err)

	suite.api.created = task("C", models.TaskStatusTodo, "u1", "u2")
	_, err = suite.syncer.Create(suite.ctx, Draft{Title: "C", Assignees: []string{"u1", "u2"}})
	suite.Require().NoError(err)
	suite.syncer.ApplyRemoteEvent(realtime.TaskUpdatedEvent{Task: task("A", models.TaskStatusReview, "u2")})
	suite.syncer.ApplyRemoteEvent(realtime.TaskDeletedEvent{TaskID: "B"})
	suite.syncer.ApplyRemoteEvent(realtime.TaskAssignedEvent{Task: task("D", models.TaskStatusDone, "u1")})

	all := suite.syncer.Tasks()
	for _, status := range models.TaskStatuses {
		var want []models.Task
		for _, t := range all {
			if t.Status == status {
				want = append(want, t)
			}
		}
		suite.Equal(len(want), len(suite.syncer.ByStatus(status)), string(status))
		if len(want) > 0 {
			suite.Equal(want, suite.syncer.ByStatus(status))
		}
	}
	for _, user := range []string{"u1", "u2", "nobody"} {
		var want []models.Task
		for _, t := range all {
			if t.AssignedTo(user) {
				want = append(want, t)
			}
		}
		suite.Equal(len(want), len(suite.syncer.ByAssignee(user)), user)
		if len(want) > 0 {
			suite.Equal(want, suite.syncer.ByAssignee(user))
		}
	}

	board := suite.syncer.Board()
	suite.Len(board, len(models.TaskStatuses))
	total := 0
	for _, col := range board {
		total += len(col.Tasks)
	}
	suite.Equal(len(all), total)
}

func (suite *SyncerTestSuite) TestActivateRegistersAndDeactivateRemovesAllThree() {
	suite.syncer.Activate()
	suite.syncer.Activate()
	suite.ElementsMatch([]realtime.EventName{
		realtime.EventTaskAssigned,
		realtime.EventTaskUpdated,
		realtime.EventTaskDeleted,
	}, suite.channel.live())
	suite.True(suite.syncer.Active())

	suite.syncer.Deactivate()
	suite.Empty(suite.channel.live())
	suite.False(suite.syncer.Active())

	suite.syncer.Deactivate()
	suite.Empty(suite.channel.live())
}

func (suite *SyncerTestSuite) TestResultArrivingAfterDeactivateIsDropped() {
	suite.syncer.Activate()
	suite.api.tasks = []models.Task{task("A", models.TaskStatusTodo)}
	suite.api.blockOn = make(chan struct{})
	suite.api.entered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := suite.syncer.FetchAll(suite.ctx)
		done <- err
	}()

	<-suite.api.entered
	suite.syncer.Deactivate()
	close(suite.api.blockOn)

	suite.NoError(<-done)
	suite.Equal(0, suite.syncer.tasks.Len())
}

func (suite *SyncerTestSuite) TestResetForgetsTasksAndUsers() {
	suite.seed(task("A", models.TaskStatusTodo, "u1"))
	_, err := suite.syncer.FetchUsers(suite.ctx)
	suite.Require().NoError(err)

	var changes []Change
	suite.syncer.OnChange(func(c Change) { changes = append(changes, c) })

	suite.syncer.Reset()

	suite.Empty(suite.syncer.Tasks())
	suite.Empty(suite.syncer.ByAssignee("u1"))
	suite.Empty(suite.syncer.Users())
	suite.Equal([]Change{{Kind: ChangeReplaced}}, changes)

	_, err = suite.syncer.Create(suite.ctx, Draft{Title: "x", Assignees: []string{"u1"}})
	suite.ErrorIs(err, ErrUsersNotLoaded)
}

func (suite *SyncerTestSuite) TestUsersArrivingAfterResetAreDropped() {
	suite.api.blockOn = make(chan struct{})
	suite.api.entered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := suite.syncer.FetchUsers(suite.ctx)
		done <- err
	}()

	<-suite.api.entered
	suite.syncer.Reset()
	close(suite.api.blockOn)

	suite.NoError(<-done)
	suite.Empty(suite.syncer.Users())
}

func (suite *SyncerTestSuite) TestTransportErrorsPassThrough() {
	suite.api.err = apierrors.Network(0, errors.New("connection refused"))
	_, err := suite.syncer.FetchUsers(suite.ctx)
	suite.ErrorIs(err, apierrors.ErrNetwork)
	suite.Empty(suite.syncer.Users())
}

func TestSyncerTestSuite(t *testing.T) {
	suite.Run(t, new(SyncerTestSuite))
}
