package dto

import (
	"time"

	"github.com/yukikurage/task-management-client/internal/models"
)

// LeaveResponse wraps a single leave request: `{ "data": ... }`
type LeaveResponse struct {
	Data models.LeaveRequest `json:"data"`
}

// LeaveListResponse wraps a list of leave requests: `{ "data": [...] }`
type LeaveListResponse struct {
	Data []models.LeaveRequest `json:"data"`
}

// CreateLeaveRequest is the body of POST /api/leaves.
type CreateLeaveRequest struct {
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Reason    string    `json:"reason"`
}

// UpdateLeaveStatusRequest is the body of PUT /api/leaves/:id.
type UpdateLeaveStatusRequest struct {
	Status models.LeaveStatus `json:"status"`
}
