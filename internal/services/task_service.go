package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yukikurage/task-management-client/internal/models"
	"github.com/yukikurage/task-management-client/internal/realtime"
	"github.com/yukikurage/task-management-client/internal/repository"
	"github.com/yukikurage/task-management-client/internal/utils"
	"gorm.io/gorm"
)

var (
	ErrTaskNotFound         = errors.New("task not found")
	ErrTaskPermissionDenied = errors.New("user does not have permission to modify this task")
	ErrNotTaskAssignee      = errors.New("Only assignees can move this task")
	ErrNoAssignees          = errors.New("at least one assignee is required")
	ErrTitleRequired        = errors.New("title is required")
	ErrTitleEmpty           = errors.New("title cannot be empty")
	ErrInvalidTaskAssignee  = errors.New("one or more assignees do not exist")
	ErrInvalidStatus        = errors.New("invalid task status")
	ErrInvalidPriority      = errors.New("invalid task priority")
)

// Actor is the authenticated user performing an operation.
type Actor struct {
	ID   string
	Role models.Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// TaskService handles task business logic
type TaskService struct {
	taskRepo  repository.TaskRepository
	userRepo  repository.UserRepository
	publisher Publisher
}

// NewTaskService creates a new TaskService
func NewTaskService(taskRepo repository.TaskRepository, userRepo repository.UserRepository, publisher Publisher) *TaskService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &TaskService{
		taskRepo:  taskRepo,
		userRepo:  userRepo,
		publisher: publisher,
	}
}

// CreateTaskInput represents input for creating a task
type CreateTaskInput struct {
	Title       string
	Description string
	Status      models.TaskStatus
	Priority    models.TaskPriority
	Assignees   []string
	DueDate     *time.Time
}

// UpdateTaskInput represents input for updating a task
type UpdateTaskInput struct {
	Title        *string
	Description  *string
	Status       *models.TaskStatus
	Priority     *models.TaskPriority
	Assignees    []string
	DueDate      *time.Time
	ClearDueDate bool
}

// ListTasks returns every task the actor may see. Admins see all tasks.
func (s *TaskService) ListTasks(actor Actor) ([]models.Task, error) {
	filter := repository.TaskFilter{}
	if !actor.IsAdmin() {
		filter.VisibleTo = &actor.ID
	}

	tasks, err := s.taskRepo.List(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	out := make([]models.Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.ToModel()
	}
	return out, nil
}

// GetTask returns a stored task
func (s *TaskService) GetTask(taskID string) (*repository.Task, error) {
	task, err := s.taskRepo.FindByID(taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return task, nil
}

// CanView reports whether actor may see task.
func CanView(task *repository.Task, actor Actor) bool {
	return actor.IsAdmin() || task.CreatorID == actor.ID || isAssignee(task, actor.ID)
}

// CreateTask validates and stores a new task, then notifies its assignees
func (s *TaskService) CreateTask(actor Actor, input CreateTaskInput) (models.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return models.Task{}, ErrTitleRequired
	}
	if input.Status == "" {
		input.Status = models.TaskStatusTodo
	}
	if !input.Status.Valid() {
		return models.Task{}, ErrInvalidStatus
	}
	if input.Priority == "" {
		input.Priority = models.TaskPriorityMedium
	}
	if !input.Priority.Valid() {
		return models.Task{}, ErrInvalidPriority
	}

	assignees := uniqueStrings(input.Assignees)
	if len(assignees) == 0 {
		return models.Task{}, ErrNoAssignees
	}
	if err := s.ensureUsersExist(assignees); err != nil {
		return models.Task{}, err
	}

	task := &repository.Task{
		ID:          utils.NewID("task"),
		Title:       title,
		Description: input.Description,
		Status:      string(input.Status),
		Priority:    string(input.Priority),
		CreatorID:   actor.ID,
		DueDate:     input.DueDate,
	}
	for _, userID := range assignees {
		task.Assignments = append(task.Assignments, repository.TaskAssignment{UserID: userID})
	}

	if err := s.taskRepo.Create(task); err != nil {
		return models.Task{}, fmt.Errorf("failed to create task: %w", err)
	}

	created := task.ToModel()
	publish(s.publisher, Audience{UserIDs: assignees}, realtime.TaskAssignedEvent{Task: created})
	publish(s.publisher, s.watchers(task, nil), realtime.TaskUpdatedEvent{Task: created})
	return created, nil
}

// UpdateTask applies a partial update. Admins, the creator and assignees may edit.
func (s *TaskService) UpdateTask(actor Actor, taskID string, input UpdateTaskInput) (models.Task, error) {
	task, err := s.GetTask(taskID)
	if err != nil {
		return models.Task{}, err
	}
	if !CanView(task, actor) {
		return models.Task{}, ErrTaskPermissionDenied
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return models.Task{}, ErrTitleEmpty
		}
		task.Title = title
	}
	if input.Description != nil {
		task.Description = *input.Description
	}
	if input.Status != nil {
		if !input.Status.Valid() {
			return models.Task{}, ErrInvalidStatus
		}
		task.Status = string(*input.Status)
	}
	if input.Priority != nil {
		if !input.Priority.Valid() {
			return models.Task{}, ErrInvalidPriority
		}
		task.Priority = string(*input.Priority)
	}
	if input.ClearDueDate {
		task.DueDate = nil
	} else if input.DueDate != nil {
		task.DueDate = input.DueDate
	}

	previous := task.Assignees()
	var assignees []string
	if input.Assignees != nil {
		assignees = uniqueStrings(input.Assignees)
		if len(assignees) == 0 {
			return models.Task{}, ErrNoAssignees
		}
		if err := s.ensureUsersExist(assignees); err != nil {
			return models.Task{}, err
		}
	}

	if err := s.taskRepo.Update(task, assignees); err != nil {
		return models.Task{}, fmt.Errorf("failed to update task: %w", err)
	}

	updated := task.ToModel()
	if added := difference(assignees, previous); len(added) > 0 {
		publish(s.publisher, Audience{UserIDs: added}, realtime.TaskAssignedEvent{Task: updated})
	}
	publish(s.publisher, s.watchers(task, previous), realtime.TaskUpdatedEvent{Task: updated})
	return updated, nil
}

// UpdateStatus moves a task to another column. Only admins, the creator and
// assignees may move it.
func (s *TaskService) UpdateStatus(actor Actor, taskID string, status models.TaskStatus) (models.Task, error) {
	if !status.Valid() {
		return models.Task{}, ErrInvalidStatus
	}

	task, err := s.GetTask(taskID)
	if err != nil {
		return models.Task{}, err
	}
	if !CanView(task, actor) {
		return models.Task{}, ErrNotTaskAssignee
	}

	task.Status = string(status)
	if err := s.taskRepo.Update(task, nil); err != nil {
		return models.Task{}, fmt.Errorf("failed to update status: %w", err)
	}

	updated := task.ToModel()
	publish(s.publisher, s.watchers(task, nil), realtime.TaskUpdatedEvent{Task: updated})
	return updated, nil
}

// DeleteTask deletes a task if the actor is an admin or its creator
func (s *TaskService) DeleteTask(actor Actor, taskID string) error {
	task, err := s.GetTask(taskID)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && task.CreatorID != actor.ID {
		return ErrTaskPermissionDenied
	}

	if err := s.taskRepo.Delete(taskID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("failed to delete task: %w", err)
	}

	publish(s.publisher, s.watchers(task, nil), realtime.TaskDeletedEvent{TaskID: taskID})
	return nil
}

// ListAssignableUsers returns the active users a task may be assigned to
func (s *TaskService) ListAssignableUsers() ([]models.User, error) {
	users, _, err := s.userRepo.List(utils.PaginationParams{Page: utils.MinPage})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	out := make([]models.User, 0, len(users))
	for _, u := range users {
		if u.Active {
			out = append(out, u.ToModel())
		}
	}
	return out, nil
}

// watchers is everyone who can see task: admins, its creator, its assignees
// and any former assignees passed in extra.
func (s *TaskService) watchers(task *repository.Task, extra []string) Audience {
	ids := append([]string{task.CreatorID}, task.Assignees()...)
	ids = append(ids, extra...)
	return Audience{UserIDs: uniqueStrings(ids), Admins: true}
}

// ensureUsersExist verifies that every id names an active user
func (s *TaskService) ensureUsersExist(ids []string) error {
	count, err := s.userRepo.CountByIDs(ids)
	if err != nil {
		return fmt.Errorf("failed to verify users: %w", err)
	}
	if int(count) != len(ids) {
		return ErrInvalidTaskAssignee
	}
	return nil
}

func isAssignee(task *repository.Task, userID string) bool {
	for _, a := range task.Assignments {
		if a.UserID == userID {
			return true
		}
	}
	return false
}

// difference returns the values of a that are not in b.
func difference(a, b []string) []string {
	seen := make(map[string]struct{}, len(b))
	for _, v := range b {
		seen[v] = struct{}{}
	}
	var out []string
	for _, v := range a {
		if _, ok := seen[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}
