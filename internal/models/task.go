package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownTaskStatus   = errors.New("unknown task status")
	ErrUnknownTaskPriority = errors.New("unknown task priority")
	ErrTaskIDRequired      = errors.New("task id is required")
)

type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusReview     TaskStatus = "review"
	TaskStatusDone       TaskStatus = "done"
)

// TaskStatuses lists the board columns in display order.
var TaskStatuses = []TaskStatus{
	TaskStatusTodo,
	TaskStatusInProgress,
	TaskStatusReview,
	TaskStatusDone,
}

func (s TaskStatus) Valid() bool {
	for _, known := range TaskStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseTaskStatus accepts only the closed set of statuses.
func ParseTaskStatus(value string) (TaskStatus, error) {
	status := TaskStatus(value)
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTaskStatus, value)
	}
	return status, nil
}

type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
	TaskPriorityUrgent TaskPriority = "urgent"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent:
		return true
	}
	return false
}

type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	Assignees   []string     `json:"assignedTo"`
	DueDate     *time.Time   `json:"dueDate"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Validate rejects records the local collection must never hold.
// An empty priority is normalized to medium.
func (t *Task) Validate() error {
	if t.ID == "" {
		return ErrTaskIDRequired
	}
	if !t.Status.Valid() {
		return fmt.Errorf("task %s: %w: %q", t.ID, ErrUnknownTaskStatus, t.Status)
	}
	if t.Priority == "" {
		t.Priority = TaskPriorityMedium
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("task %s: %w: %q", t.ID, ErrUnknownTaskPriority, t.Priority)
	}
	return nil
}

// AssignedTo reports whether userID is among the task's assignees.
func (t Task) AssignedTo(userID string) bool {
	for _, id := range t.Assignees {
		if id == userID {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices or pointers with t.
func (t Task) Clone() Task {
	out := t
	if t.Assignees != nil {
		out.Assignees = append([]string(nil), t.Assignees...)
	}
	if t.DueDate != nil {
		due := *t.DueDate
		out.DueDate = &due
	}
	return out
}
