package dto

import (
	"time"

	"github.com/yukikurage/task-management-client/internal/models"
)

// TaskResponse wraps a single task: `{ "task": ... }`
type TaskResponse struct {
	Task models.Task `json:"task"`
}

// TaskListResponse wraps the full collection: `{ "tasks": [...] }`
type TaskListResponse struct {
	Tasks []models.Task `json:"tasks"`
}

// CreateTaskRequest is the body of POST /api/tasks.
type CreateTaskRequest struct {
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Status      models.TaskStatus   `json:"status,omitempty"`
	Priority    models.TaskPriority `json:"priority,omitempty"`
	AssignedTo  []string            `json:"assignedTo"`
	DueDate     *time.Time          `json:"dueDate,omitempty"`
}

// UpdateTaskRequest is the body of PUT /api/tasks/:id. Nil fields are left unchanged.
type UpdateTaskRequest struct {
	Title        *string              `json:"title,omitempty"`
	Description  *string              `json:"description,omitempty"`
	Status       *models.TaskStatus   `json:"status,omitempty"`
	Priority     *models.TaskPriority `json:"priority,omitempty"`
	AssignedTo   []string             `json:"assignedTo,omitempty"`
	DueDate      *time.Time           `json:"dueDate,omitempty"`
	ClearDueDate bool                 `json:"clearDueDate,omitempty"`
}

// UpdateStatusRequest is the body of PATCH /api/tasks/:id/status.
type UpdateStatusRequest struct {
	Status models.TaskStatus `json:"status"`
}

// DeleteTaskResponse is the optional id echo of DELETE /api/tasks/:id.
type DeleteTaskResponse struct {
	ID      string `json:"id"`
	Message string `json:"message,omitempty"`
}

// TaskDeletedPayload is the realtime payload of taskDeleted.
type TaskDeletedPayload struct {
	TaskID string `json:"taskId"`
}
