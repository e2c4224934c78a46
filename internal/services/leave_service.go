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
	ErrLeaveNotFound        = errors.New("leave request not found")
	ErrLeaveDecisionDenied  = errors.New("only admins can approve or reject leave requests")
	ErrLeaveAlreadyDecided  = errors.New("leave request has already been decided")
	ErrInvalidLeaveDecision = errors.New("status must be approved or rejected")
)

// LeaveService handles leave request business logic
type LeaveService struct {
	leaveRepo repository.LeaveRepository
	publisher Publisher
	now       func() time.Time
}

// NewLeaveService creates a new LeaveService
func NewLeaveService(leaveRepo repository.LeaveRepository, publisher Publisher) *LeaveService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &LeaveService{leaveRepo: leaveRepo, publisher: publisher, now: time.Now}
}

// CreateLeaveInput represents input for requesting leave
type CreateLeaveInput struct {
	StartDate time.Time
	EndDate   time.Time
	Reason    string
}

// ListLeaves returns every request for admins and the actor's own otherwise
func (s *LeaveService) ListLeaves(actor Actor) ([]models.LeaveRequest, error) {
	var requester *string
	if !actor.IsAdmin() {
		requester = &actor.ID
	}

	leaves, err := s.leaveRepo.List(requester)
	if err != nil {
		return nil, fmt.Errorf("failed to list leaves: %w", err)
	}

	out := make([]models.LeaveRequest, len(leaves))
	for i, l := range leaves {
		out[i] = l.ToModel()
	}
	return out, nil
}

// CreateLeave files a pending request for the actor and tells the admins
func (s *LeaveService) CreateLeave(actor Actor, input CreateLeaveInput) (models.LeaveRequest, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return models.LeaveRequest{}, models.ErrLeaveReasonRequired
	}
	if !input.StartDate.Before(input.EndDate) {
		return models.LeaveRequest{}, models.ErrLeaveDateRange
	}

	leave := &repository.Leave{
		ID:          utils.NewID("leave"),
		RequesterID: actor.ID,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
		Reason:      reason,
		Status:      string(models.LeaveStatusPending),
	}
	if err := s.leaveRepo.Create(leave); err != nil {
		return models.LeaveRequest{}, fmt.Errorf("failed to create leave: %w", err)
	}

	publish(s.publisher, Audience{Admins: true}, realtime.NotificationEvent{
		Message:   "New leave request awaiting approval",
		Type:      "leave",
		CreatedAt: s.now(),
	})
	return leave.ToModel(), nil
}

// DecideLeave approves or rejects a pending request and notifies the requester
func (s *LeaveService) DecideLeave(actor Actor, leaveID string, status models.LeaveStatus) (models.LeaveRequest, error) {
	if !actor.IsAdmin() {
		return models.LeaveRequest{}, ErrLeaveDecisionDenied
	}
	if !status.Terminal() {
		return models.LeaveRequest{}, ErrInvalidLeaveDecision
	}

	leave, err := s.leaveRepo.FindByID(leaveID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.LeaveRequest{}, ErrLeaveNotFound
		}
		return models.LeaveRequest{}, fmt.Errorf("failed to find leave: %w", err)
	}

	decided, err := leave.ToModel().Transition(status, actor.ID)
	if err != nil {
		return models.LeaveRequest{}, ErrLeaveAlreadyDecided
	}

	leave.Status = string(decided.Status)
	leave.ApproverID = decided.ApproverID
	if err := s.leaveRepo.Update(leave); err != nil {
		return models.LeaveRequest{}, fmt.Errorf("failed to update leave: %w", err)
	}

	publish(s.publisher, Audience{UserIDs: []string{leave.RequesterID}}, realtime.NotificationEvent{
		Message:   fmt.Sprintf("Your leave request was %s", decided.Status),
		Type:      "leave",
		CreatedAt: s.now(),
	})
	return leave.ToModel(), nil
}
