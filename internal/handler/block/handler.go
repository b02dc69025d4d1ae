package block

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/quiet-hours/internal/handler"
	"github.com/jwalitptl/quiet-hours/internal/middleware"
	"github.com/jwalitptl/quiet-hours/internal/model"
	"github.com/jwalitptl/quiet-hours/internal/repository"
	reminderService "github.com/jwalitptl/quiet-hours/internal/service/reminder"
	apperrors "github.com/jwalitptl/quiet-hours/pkg/errors"
	"github.com/jwalitptl/quiet-hours/pkg/httputil"
	"github.com/jwalitptl/quiet-hours/pkg/metrics"
)

type Handler struct {
	blocks    repository.TimeBlockRepository
	reminders reminderService.Service
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewHandler(blocks repository.TimeBlockRepository, reminders reminderService.Service, m *metrics.Metrics) *Handler {
	return &Handler{blocks: blocks, reminders: reminders, metrics: m, now: time.Now}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/blocks", h.Create)
}

type createBlockRequest struct {
	Title       string    `json:"title" binding:"required,max=200"`
	Description *string   `json:"description"`
	StartTime   time.Time `json:"start_time" binding:"notzerotime"`
	EndTime     time.Time `json:"end_time" binding:"notzerotime,gtfield=StartTime"`
}

type createBlockResponse struct {
	Block    *model.TimeBlock    `json:"block"`
	Reminder *model.Notification `json:"reminder,omitempty"`
}

// Create stores a block and schedules its standard reminder. A block that
// starts too soon for a reminder is still created.
func (h *Handler) Create(c *gin.Context) {
	var req createBlockRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	userID, ok := middleware.UserID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}

	block := &model.TimeBlock{
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		StartTime:   req.StartTime.UTC(),
		EndTime:     req.EndTime.UTC(),
		IsActive:    true,
	}
	if err := h.blocks.Create(c.Request.Context(), block); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	n, err := h.reminders.ScheduleForBlock(c.Request.Context(), block, h.now())
	if err != nil {
		h.metrics.RemindersScheduled.WithLabelValues("error").Inc()
		httputil.RespondWithError(c, err)
		return
	}
	if n == nil {
		h.metrics.RemindersScheduled.WithLabelValues("too_late").Inc()
	} else {
		h.metrics.RemindersScheduled.WithLabelValues("created").Inc()
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, createBlockResponse{Block: block, Reminder: n})
}
