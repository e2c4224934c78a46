package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/yukikurage/task-management-client/internal/dto"
	apierrors "github.com/yukikurage/task-management-client/internal/errors"
	"github.com/yukikurage/task-management-client/internal/models"
)

// ListTasks fetches the full task collection visible to the session.
// A record with an unknown status fails the whole call.
func (c *Client) ListTasks(ctx context.Context) ([]models.Task, error) {
	var resp dto.TaskListResponse
	if err := c.do(ctx, c.authed(http.MethodGet, "/api/tasks", nil), &resp); err != nil {
		return nil, err
	}

	tasks := make([]models.Task, 0, len(resp.Tasks))
	for _, task := range resp.Tasks {
		if err := task.Validate(); err != nil {
			return nil, apierrors.Validation(fmt.Errorf("invalid task from server: %w", err))
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// CreateTask creates a task and returns the server's canonical record.
func (c *Client) CreateTask(ctx context.Context, req dto.CreateTaskRequest) (models.Task, error) {
	var resp dto.TaskResponse
	if err := c.do(ctx, c.authed(http.MethodPost, "/api/tasks", req), &resp); err != nil {
		return models.Task{}, err
	}
	return checkTask(resp.Task)
}

// UpdateTask replaces the given fields of a task.
func (c *Client) UpdateTask(ctx context.Context, id string, req dto.UpdateTaskRequest) (models.Task, error) {
	var resp dto.TaskResponse
	if err := c.do(ctx, c.authed(http.MethodPut, taskPath(id), req), &resp); err != nil {
		return models.Task{}, err
	}
	return checkTask(resp.Task)
}

// UpdateTaskStatus moves a task to another board column.
func (c *Client) UpdateTaskStatus(ctx context.Context, id string, status models.TaskStatus) (models.Task, error) {
	var resp dto.TaskResponse
	req := c.authed(http.MethodPatch, taskPath(id)+"/status", dto.UpdateStatusRequest{Status: status})
	if err := c.do(ctx, req, &resp); err != nil {
		return models.Task{}, err
	}
	return checkTask(resp.Task)
}

// DeleteTask deletes a task. Both 204 and an id echo count as success.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	var resp dto.DeleteTaskResponse
	return c.do(ctx, c.authed(http.MethodDelete, taskPath(id), nil), &resp)
}

// ListUsers returns the assignable users. Older backends only serve
// /api/users, so a 404 on the task-scoped route falls back to it.
func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var resp dto.UserListResponse
	err := c.do(ctx, c.authed(http.MethodGet, "/api/tasks/users", nil), &resp)
	if err != nil && apierrors.StatusOf(err) == http.StatusNotFound {
		resp = dto.UserListResponse{}
		err = c.do(ctx, c.authed(http.MethodGet, "/api/users", nil), &resp)
	}
	if err != nil {
		return nil, err
	}
	return resp.Users, nil
}

func taskPath(id string) string {
	return "/api/tasks/" + url.PathEscape(id)
}

func checkTask(task models.Task) (models.Task, error) {
	if err := task.Validate(); err != nil {
		return models.Task{}, apierrors.Validation(fmt.Errorf("invalid task from server: %w", err))
	}
	return task, nil
}
