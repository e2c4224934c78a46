// Package leaves drives the leave request workflow: employees submit
// requests, admins approve or reject pending ones.
package leaves

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yukikurage/task-management-client/internal/dto"
	apierrors "github.com/yukikurage/task-management-client/internal/errors"
	"github.com/yukikurage/task-management-client/internal/models"
	"github.com/yukikurage/task-management-client/internal/session"
)

var (
	ErrLeaveNotFound      = errors.New("leave request not found")
	ErrApprovalNotAllowed = errors.New("only admins can approve or reject leave requests")
	ErrRequestNotAllowed  = errors.New("current user cannot request leave")
)

// LeaveAPI is the part of the request layer the service needs.
type LeaveAPI interface {
	ListLeaves(ctx context.Context) ([]models.LeaveRequest, error)
	CreateLeave(ctx context.Context, req dto.CreateLeaveRequest) (models.LeaveRequest, error)
	UpdateLeaveStatus(ctx context.Context, id string, status models.LeaveStatus) (models.LeaveRequest, error)
}

// Identity reports who is acting.
type Identity interface {
	Current() session.Session
	Permissions() session.Permissions
}

// Draft is the client-side input for a new leave request.
type Draft struct {
	StartDate time.Time
	EndDate   time.Time
	Reason    string
}

type Service struct {
	api      LeaveAPI
	identity Identity

	mu    sync.RWMutex
	cache map[string]models.LeaveRequest
}

func NewService(api LeaveAPI, identity Identity) *Service {
	return &Service{
		api:      api,
		identity: identity,
		cache:    make(map[string]models.LeaveRequest),
	}
}

// List fetches the leave requests visible to the session, pending first,
// then by start date.
func (s *Service) List(ctx context.Context) ([]models.LeaveRequest, error) {
	leaves, err := s.api.ListLeaves(ctx)
	if err != nil {
		return nil, err
	}

	cache := make(map[string]models.LeaveRequest, len(leaves))
	for _, leave := range leaves {
		cache[leave.ID] = leave
	}
	s.mu.Lock()
	s.cache = cache
	s.mu.Unlock()

	out := append([]models.LeaveRequest(nil), leaves...)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Status == models.LeaveStatusPending, out[j].Status == models.LeaveStatusPending
		if pi != pj {
			return pi
		}
		return out[i].StartDate.Before(out[j].StartDate)
	})
	return out, nil
}

// Pending returns the cached requests still awaiting a decision.
func (s *Service) Pending() []models.LeaveRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.LeaveRequest
	for _, leave := range s.cache {
		if leave.Status == models.LeaveStatusPending {
			out = append(out, leave)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out
}

// Submit validates draft and creates a pending request.
func (s *Service) Submit(ctx context.Context, draft Draft) (models.LeaveRequest, error) {
	if !s.identity.Permissions().RequestLeave {
		return models.LeaveRequest{}, apierrors.Unauthenticated(ErrRequestNotAllowed.Error())
	}
	if !draft.StartDate.Before(draft.EndDate) {
		return models.LeaveRequest{}, apierrors.Validation(models.ErrLeaveDateRange)
	}
	reason := strings.TrimSpace(draft.Reason)
	if reason == "" {
		return models.LeaveRequest{}, apierrors.Validation(models.ErrLeaveReasonRequired)
	}

	leave, err := s.api.CreateLeave(ctx, dto.CreateLeaveRequest{
		StartDate: draft.StartDate,
		EndDate:   draft.EndDate,
		Reason:    reason,
	})
	if err != nil {
		return models.LeaveRequest{}, err
	}

	s.store(leave)
	return leave, nil
}

func (s *Service) Approve(ctx context.Context, id string) (models.LeaveRequest, error) {
	return s.decide(ctx, id, models.LeaveStatusApproved)
}

func (s *Service) Reject(ctx context.Context, id string) (models.LeaveRequest, error) {
	return s.decide(ctx, id, models.LeaveStatusRejected)
}

func (s *Service) decide(ctx context.Context, id string, next models.LeaveStatus) (models.LeaveRequest, error) {
	if !s.identity.Permissions().ApproveLeaves {
		return models.LeaveRequest{}, apierrors.Validation(ErrApprovalNotAllowed)
	}

	s.mu.RLock()
	cached, ok := s.cache[id]
	s.mu.RUnlock()
	if !ok {
		return models.LeaveRequest{}, apierrors.Validation(fmt.Errorf("%w: %s", ErrLeaveNotFound, id))
	}

	approver := ""
	if user := s.identity.Current().User; user != nil {
		approver = user.ID
	}
	if _, err := cached.Transition(next, approver); err != nil {
		return models.LeaveRequest{}, apierrors.Validation(err)
	}

	leave, err := s.api.UpdateLeaveStatus(ctx, id, next)
	if err != nil {
		return models.LeaveRequest{}, err
	}

	s.store(leave)
	return leave, nil
}

func (s *Service) store(leave models.LeaveRequest) {
	s.mu.Lock()
	s.cache[leave.ID] = leave
	s.mu.Unlock()
}
