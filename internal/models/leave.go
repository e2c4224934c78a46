package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrLeaveDateRange        = errors.New("leave start date must be before end date")
	ErrLeaveReasonRequired   = errors.New("leave reason is required")
	ErrLeaveStatusTransition = errors.New("leave status transition not allowed")
)

type LeaveStatus string

const (
	LeaveStatusPending  LeaveStatus = "pending"
	LeaveStatusApproved LeaveStatus = "approved"
	LeaveStatusRejected LeaveStatus = "rejected"
)

func (s LeaveStatus) Valid() bool {
	return s == LeaveStatusPending || s == LeaveStatusApproved || s == LeaveStatusRejected
}

// Terminal reports whether no further transition is possible.
func (s LeaveStatus) Terminal() bool {
	return s == LeaveStatusApproved || s == LeaveStatusRejected
}

// CanTransitionTo only allows pending -> approved and pending -> rejected.
func (s LeaveStatus) CanTransitionTo(next LeaveStatus) bool {
	return s == LeaveStatusPending && next.Terminal()
}

type LeaveRequest struct {
	ID          string      `json:"id"`
	RequesterID string      `json:"requester"`
	StartDate   time.Time   `json:"startDate"`
	EndDate     time.Time   `json:"endDate"`
	Reason      string      `json:"reason"`
	Status      LeaveStatus `json:"status"`
	ApproverID  string      `json:"approver,omitempty"`
}

func (l LeaveRequest) Validate() error {
	if !l.StartDate.Before(l.EndDate) {
		return ErrLeaveDateRange
	}
	if !l.Status.Valid() {
		return fmt.Errorf("leave %s: unknown status %q", l.ID, l.Status)
	}
	return nil
}

// Transition returns a copy of l moved to next, or an error when the move is illegal.
func (l LeaveRequest) Transition(next LeaveStatus, approverID string) (LeaveRequest, error) {
	if !l.Status.CanTransitionTo(next) {
		return l, fmt.Errorf("%w: %s -> %s", ErrLeaveStatusTransition, l.Status, next)
	}
	l.Status = next
	l.ApproverID = approverID
	return l, nil
}
