package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/task-management-client/internal/dto"
	apierrors "github.com/yukikurage/task-management-client/internal/errors"
	"github.com/yukikurage/task-management-client/internal/middleware"
	"github.com/yukikurage/task-management-client/internal/models"
	"github.com/yukikurage/task-management-client/internal/services"
)

type LeaveHandler struct {
	leaveService *services.LeaveService
}

func NewLeaveHandler(leaveService *services.LeaveService) *LeaveHandler {
	return &LeaveHandler{leaveService: leaveService}
}

// ListLeaves returns the caller's requests, or every request for admins
func (h *LeaveHandler) ListLeaves(c *gin.Context) {
	actor, exists := middleware.GetActor(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	leaves, err := h.leaveService.ListLeaves(actor)
	if err != nil {
		apierrors.InternalError(c, "Failed to fetch leave requests")
		return
	}

	c.JSON(http.StatusOK, dto.LeaveListResponse{Data: leaves})
}

// CreateLeave files a new leave request
func (h *LeaveHandler) CreateLeave(c *gin.Context) {
	actor, exists := middleware.GetActor(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	var req dto.CreateLeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	leave, err := h.leaveService.CreateLeave(actor, services.CreateLeaveInput{
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Reason:    req.Reason,
	})
	if err != nil {
		respondLeaveError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.LeaveResponse{Data: leave})
}

// UpdateLeaveStatus approves or rejects a pending request
func (h *LeaveHandler) UpdateLeaveStatus(c *gin.Context) {
	actor, exists := middleware.GetActor(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	var req dto.UpdateLeaveStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	leave, err := h.leaveService.DecideLeave(actor, c.Param("id"), req.Status)
	if err != nil {
		respondLeaveError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.LeaveResponse{Data: leave})
}

func respondLeaveError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrLeaveNotFound):
		apierrors.NotFound(c, err.Error())
	case errors.Is(err, services.ErrLeaveDecisionDenied):
		apierrors.Forbidden(c, err.Error())
	case errors.Is(err, services.ErrLeaveAlreadyDecided):
		apierrors.Conflict(c, err.Error())
	case errors.Is(err, services.ErrInvalidLeaveDecision),
		errors.Is(err, models.ErrLeaveDateRange),
		errors.Is(err, models.ErrLeaveReasonRequired):
		apierrors.BadRequest(c, err.Error())
	default:
		apierrors.InternalError(c, "Internal server error")
	}
}
