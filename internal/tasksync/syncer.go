// Package tasksync keeps the local task collection in step with the server.
//
// It is the only writer of the collection. Writes are confirmed-only: the
// collection changes after the server acknowledges a REST call or when a
// realtime task event arrives, never before.
package tasksync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/yukikurage/task-management-client/internal/dto"
	apierrors "github.com/yukikurage/task-management-client/internal/errors"
	"github.com/yukikurage/task-management-client/internal/models"
	"github.com/yukikurage/task-management-client/internal/realtime"
)

var (
	ErrTitleRequired   = errors.New("title is required")
	ErrTitleEmpty      = errors.New("title cannot be empty")
	ErrNoAssignees     = errors.New("at least one assignee is required")
	ErrUnknownAssignee = errors.New("assignee is not a known user")
	ErrUsersNotLoaded  = errors.New("known users have not been loaded")
	ErrTaskIDRequired  = errors.New("task id is required")
	ErrNothingToUpdate = errors.New("no fields to update")
	ErrDueDateConflict = errors.New("dueDate and clearDueDate are mutually exclusive")
)

// TaskAPI is the part of the request layer the syncer needs.
type TaskAPI interface {
	ListTasks(ctx context.Context) ([]models.Task, error)
	CreateTask(ctx context.Context, req dto.CreateTaskRequest) (models.Task, error)
	UpdateTask(ctx context.Context, id string, req dto.UpdateTaskRequest) (models.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status models.TaskStatus) (models.Task, error)
	DeleteTask(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]models.User, error)
}

// Subscriber is the part of the channel manager the syncer needs.
type Subscriber interface {
	Subscribe(name realtime.EventName, h realtime.Handler) realtime.Unsubscribe
}

// ChangeKind describes what happened to the collection.
type ChangeKind string

const (
	ChangeReplaced ChangeKind = "replaced"
	ChangeUpserted ChangeKind = "upserted"
	ChangeRemoved  ChangeKind = "removed"
)

type Change struct {
	Kind   ChangeKind
	TaskID string
	Remote bool
}

// Draft is the client-side input for a new task.
type Draft struct {
	Title       string
	Description string
	Status      models.TaskStatus
	Priority    models.TaskPriority
	Assignees   []string
	DueDate     *time.Time
}

// Column is one board column.
type Column struct {
	Status models.TaskStatus
	Tasks  []models.Task
}

type Syncer struct {
	api     TaskAPI
	channel Subscriber
	tasks   *Collection
	logger  *log.Logger

	mu         sync.Mutex
	generation uint64
	unsubs     []realtime.Unsubscribe
	users      []models.User
	known      map[string]struct{}
	listeners  map[int]func(Change)
	nextID     int
}

type Option func(*Syncer)

func WithLogger(l *log.Logger) Option {
	return func(s *Syncer) {
		s.logger = l
	}
}

func NewSyncer(api TaskAPI, channel Subscriber, opts ...Option) *Syncer {
	s := &Syncer{
		api:       api,
		channel:   channel,
		tasks:     NewCollection(),
		logger:    log.Default(),
		listeners: make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Activate registers the three task event handlers. Calling it while active
// is a no-op.
func (s *Syncer) Activate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unsubs != nil {
		return
	}
	s.unsubs = []realtime.Unsubscribe{
		s.channel.Subscribe(realtime.EventTaskAssigned, s.ApplyRemoteEvent),
		s.channel.Subscribe(realtime.EventTaskUpdated, s.ApplyRemoteEvent),
		s.channel.Subscribe(realtime.EventTaskDeleted, s.ApplyRemoteEvent),
	}
}

// Deactivate removes every handler registered by Activate. REST calls still
// in flight will have their results discarded.
func (s *Syncer) Deactivate() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.generation++
	s.mu.Unlock()

	for _, unsubscribe := range unsubs {
		unsubscribe()
	}
}

// Reset empties the collection and forgets the known users. Results of REST
// calls issued before the reset are discarded.
func (s *Syncer) Reset() {
	s.mu.Lock()
	s.generation++
	s.tasks.Replace(nil)
	s.users = nil
	s.known = nil
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeReplaced})
}

func (s *Syncer) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubs != nil
}

// OnChange registers fn to run after every change to the collection.
func (s *Syncer) OnChange(fn func(Change)) (cancel func()) {
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

// FetchAll replaces the collection with the server's. On failure the
// collection is left untouched.
func (s *Syncer) FetchAll(ctx context.Context) ([]models.Task, error) {
	gen := s.currentGeneration()

	tasks, err := s.api.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	s.commit(gen, Change{Kind: ChangeReplaced}, func() {
		s.tasks.Replace(tasks)
	})
	return tasks, nil
}

// FetchUsers loads the users a task may be assigned to.
func (s *Syncer) FetchUsers(ctx context.Context) ([]models.User, error) {
	gen := s.currentGeneration()
	users, err := s.api.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(users))
	for _, user := range users {
		known[user.ID] = struct{}{}
	}

	s.mu.Lock()
	if s.generation == gen {
		s.users = append([]models.User(nil), users...)
		s.known = known
	}
	s.mu.Unlock()
	return users, nil
}

// Users returns the users loaded by the last FetchUsers.
func (s *Syncer) Users() []models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.User(nil), s.users...)
}

// Create validates draft, sends it, and inserts the server's canonical task.
func (s *Syncer) Create(ctx context.Context, draft Draft) (models.Task, error) {
	req, err := s.validateDraft(draft)
	if err != nil {
		return models.Task{}, apierrors.Validation(err)
	}

	gen := s.currentGeneration()
	task, err := s.api.CreateTask(ctx, req)
	if err != nil {
		return models.Task{}, err
	}

	s.commit(gen, Change{Kind: ChangeUpserted, TaskID: task.ID}, func() {
		s.tasks.Upsert(task)
	})
	return task, nil
}

// Update applies a partial update to task id.
func (s *Syncer) Update(ctx context.Context, id string, req dto.UpdateTaskRequest) (models.Task, error) {
	if err := s.validateUpdate(id, req); err != nil {
		return models.Task{}, apierrors.Validation(err)
	}

	gen := s.currentGeneration()
	task, err := s.api.UpdateTask(ctx, id, req)
	if err != nil {
		return models.Task{}, err
	}

	s.commit(gen, Change{Kind: ChangeUpserted, TaskID: task.ID}, func() {
		s.tasks.Upsert(task)
	})
	return task, nil
}

// SetStatus moves task id to another board column.
func (s *Syncer) SetStatus(ctx context.Context, id string, status models.TaskStatus) (models.Task, error) {
	if id == "" {
		return models.Task{}, apierrors.Validation(ErrTaskIDRequired)
	}
	if !status.Valid() {
		return models.Task{}, apierrors.Validation(fmt.Errorf("%w: %q", models.ErrUnknownTaskStatus, status))
	}

	gen := s.currentGeneration()
	task, err := s.api.UpdateTaskStatus(ctx, id, status)
	if err != nil {
		return models.Task{}, err
	}

	s.commit(gen, Change{Kind: ChangeUpserted, TaskID: task.ID}, func() {
		s.tasks.Upsert(task)
	})
	return task, nil
}

// Delete removes task id on the server, then locally.
func (s *Syncer) Delete(ctx context.Context, id string) error {
	if id == "" {
		return apierrors.Validation(ErrTaskIDRequired)
	}

	gen := s.currentGeneration()
	if err := s.api.DeleteTask(ctx, id); err != nil {
		return err
	}

	s.commit(gen, Change{Kind: ChangeRemoved, TaskID: id}, func() {
		s.tasks.Remove(id)
	})
	return nil
}

// ApplyRemoteEvent reconciles one realtime event into the collection.
// Assigned and updated events upsert by id; deleted events remove by id.
// Applying the same event twice has the same effect as applying it once,
// and a delete for an unknown id does nothing.
func (s *Syncer) ApplyRemoteEvent(ev realtime.Event) {
	switch e := ev.(type) {
	case realtime.TaskAssignedEvent:
		s.upsertRemote(e.Task)
	case realtime.TaskUpdatedEvent:
		s.upsertRemote(e.Task)
	case realtime.TaskDeletedEvent:
		if s.tasks.Remove(e.TaskID) {
			s.notify(Change{Kind: ChangeRemoved, TaskID: e.TaskID, Remote: true})
		}
	}
}

func (s *Syncer) upsertRemote(task models.Task) {
	if err := task.Validate(); err != nil {
		s.logger.Printf("tasksync: ignoring remote task: %v", err)
		return
	}
	s.tasks.Upsert(task)
	s.notify(Change{Kind: ChangeUpserted, TaskID: task.ID, Remote: true})
}

// Tasks returns the whole collection in order.
func (s *Syncer) Tasks() []models.Task {
	return s.tasks.Tasks()
}

// Get returns one task from the collection.
func (s *Syncer) Get(id string) (models.Task, bool) {
	return s.tasks.Get(id)
}

// ByStatus filters the current collection by status, preserving order.
func (s *Syncer) ByStatus(status models.TaskStatus) []models.Task {
	return s.tasks.Filter(func(t models.Task) bool {
		return t.Status == status
	})
}

// ByAssignee filters the current collection by assignee, preserving order.
func (s *Syncer) ByAssignee(userID string) []models.Task {
	return s.tasks.Filter(func(t models.Task) bool {
		return t.AssignedTo(userID)
	})
}

// Board groups one snapshot of the collection into columns, in board order.
func (s *Syncer) Board() []Column {
	tasks := s.tasks.Tasks()
	columns := make([]Column, len(models.TaskStatuses))
	for i, status := range models.TaskStatuses {
		columns[i] = Column{Status: status, Tasks: []models.Task{}}
	}
	for _, task := range tasks {
		for i := range columns {
			if columns[i].Status == task.Status {
				columns[i].Tasks = append(columns[i].Tasks, task)
				break
			}
		}
	}
	return columns
}

func (s *Syncer) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// commit runs apply only if no Deactivate happened since gen was read.
func (s *Syncer) commit(gen uint64, change Change, apply func()) {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		s.logger.Printf("tasksync: discarding stale result for %s %s", change.Kind, change.TaskID)
		return
	}
	apply()
	s.mu.Unlock()

	s.notify(change)
}

func (s *Syncer) notify(change Change) {
	s.mu.Lock()
	fns := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}

func (s *Syncer) validateDraft(draft Draft) (dto.CreateTaskRequest, error) {
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return dto.CreateTaskRequest{}, ErrTitleRequired
	}
	if len(draft.Assignees) == 0 {
		return dto.CreateTaskRequest{}, ErrNoAssignees
	}
	if draft.Status != "" && !draft.Status.Valid() {
		return dto.CreateTaskRequest{}, fmt.Errorf("%w: %q", models.ErrUnknownTaskStatus, draft.Status)
	}
	if draft.Priority != "" && !draft.Priority.Valid() {
		return dto.CreateTaskRequest{}, fmt.Errorf("%w: %q", models.ErrUnknownTaskPriority, draft.Priority)
	}
	if err := s.checkAssignees(draft.Assignees); err != nil {
		return dto.CreateTaskRequest{}, err
	}

	return dto.CreateTaskRequest{
		Title:       title,
		Description: draft.Description,
		Status:      draft.Status,
		Priority:    draft.Priority,
		AssignedTo:  dedupe(draft.Assignees),
		DueDate:     draft.DueDate,
	}, nil
}

func (s *Syncer) validateUpdate(id string, req dto.UpdateTaskRequest) error {
	if id == "" {
		return ErrTaskIDRequired
	}
	if req.Title == nil && req.Description == nil && req.Status == nil && req.Priority == nil &&
		req.AssignedTo == nil && req.DueDate == nil && !req.ClearDueDate {
		return ErrNothingToUpdate
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		return ErrTitleEmpty
	}
	if req.Status != nil && !req.Status.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownTaskStatus, *req.Status)
	}
	if req.Priority != nil && !req.Priority.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownTaskPriority, *req.Priority)
	}
	if req.DueDate != nil && req.ClearDueDate {
		return ErrDueDateConflict
	}
	if req.AssignedTo != nil {
		if len(req.AssignedTo) == 0 {
			return ErrNoAssignees
		}
		return s.checkAssignees(req.AssignedTo)
	}
	return nil
}

func (s *Syncer) checkAssignees(ids []string) error {
	s.mu.Lock()
	known := s.known
	s.mu.Unlock()

	if known == nil {
		return ErrUsersNotLoaded
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownAssignee, id)
		}
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
