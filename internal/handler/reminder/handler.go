package reminder

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/quiet-hours/internal/handler"
	"github.com/jwalitptl/quiet-hours/internal/middleware"
	"github.com/jwalitptl/quiet-hours/internal/repository"
	reminderService "github.com/jwalitptl/quiet-hours/internal/service/reminder"
	apperrors "github.com/jwalitptl/quiet-hours/pkg/errors"
	"github.com/jwalitptl/quiet-hours/pkg/httputil"
	"github.com/jwalitptl/quiet-hours/pkg/metrics"
)

type Handler struct {
	service reminderService.Service
	blocks  repository.TimeBlockRepository
	metrics *metrics.Metrics
}

func NewHandler(service reminderService.Service, blocks repository.TimeBlockRepository, m *metrics.Metrics) *Handler {
	return &Handler{service: service, blocks: blocks, metrics: m}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	reminders := r.Group("/reminders")
	{
		reminders.POST("", h.Schedule)
		reminders.POST("/cancel", h.Cancel)
	}
}

type scheduleRequest struct {
	BlockID       string    `json:"block_id" binding:"required,uuid"`
	ScheduledTime time.Time `json:"scheduled_time" binding:"notzerotime"`
}

type cancelRequest struct {
	BlockID string `json:"block_id" binding:"required,uuid"`
}

func (h *Handler) Schedule(c *gin.Context) {
	var req scheduleRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	userID, blockID, ok := h.ownedBlock(c, req.BlockID)
	if !ok {
		return
	}

	n, err := h.service.Schedule(c.Request.Context(), userID, blockID, req.ScheduledTime.UTC())
	h.metrics.RemindersScheduled.WithLabelValues(scheduleResult(err)).Inc()
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, n)
}

func (h *Handler) Cancel(c *gin.Context) {
	var req cancelRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	_, blockID, ok := h.ownedBlock(c, req.BlockID)
	if !ok {
		return
	}

	result, err := h.service.Cancel(c.Request.Context(), blockID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, result)
}

// ownedBlock resolves the block and checks it belongs to the caller. A block
// owned by someone else is reported as missing.
func (h *Handler) ownedBlock(c *gin.Context, raw string) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return uuid.Nil, uuid.Nil, false
	}

	blockID, err := uuid.Parse(raw)
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid block ID", err))
		return uuid.Nil, uuid.Nil, false
	}

	block, err := h.blocks.Get(c.Request.Context(), blockID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return uuid.Nil, uuid.Nil, false
	}
	if block.UserID != userID {
		httputil.RespondWithError(c, apperrors.NotFound("time block", errors.New("owned by another user")))
		return uuid.Nil, uuid.Nil, false
	}
	return userID, blockID, true
}

func scheduleResult(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, apperrors.DuplicateSchedule):
		return "duplicate"
	default:
		return "error"
	}
}
