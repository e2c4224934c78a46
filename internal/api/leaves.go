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

func (c *Client) ListLeaves(ctx context.Context) ([]models.LeaveRequest, error) {
	var resp dto.LeaveListResponse
	if err := c.do(ctx, c.authed(http.MethodGet, "/api/leaves", nil), &resp); err != nil {
		return nil, err
	}
	for _, leave := range resp.Data {
		if err := leave.Validate(); err != nil {
			return nil, apierrors.Validation(fmt.Errorf("invalid leave from server: %w", err))
		}
	}
	return resp.Data, nil
}

func (c *Client) CreateLeave(ctx context.Context, req dto.CreateLeaveRequest) (models.LeaveRequest, error) {
	var resp dto.LeaveResponse
	if err := c.do(ctx, c.authed(http.MethodPost, "/api/leaves", req), &resp); err != nil {
		return models.LeaveRequest{}, err
	}
	return checkLeave(resp.Data)
}

func (c *Client) UpdateLeaveStatus(ctx context.Context, id string, status models.LeaveStatus) (models.LeaveRequest, error) {
	var resp dto.LeaveResponse
	path := "/api/leaves/" + url.PathEscape(id)
	if err := c.do(ctx, c.authed(http.MethodPut, path, dto.UpdateLeaveStatusRequest{Status: status}), &resp); err != nil {
		return models.LeaveRequest{}, err
	}
	return checkLeave(resp.Data)
}

func checkLeave(leave models.LeaveRequest) (models.LeaveRequest, error) {
	if err := leave.Validate(); err != nil {
		return models.LeaveRequest{}, apierrors.Validation(fmt.Errorf("invalid leave from server: %w", err))
	}
	return leave, nil
}
