package cron

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/quiet-hours/internal/model"
	"github.com/jwalitptl/quiet-hours/pkg/httputil"
	"github.com/jwalitptl/quiet-hours/pkg/logger"
)

// Ticker runs one dispatch pass.
type Ticker interface {
	RunTick(ctx context.Context, now time.Time) ([]model.Outcome, error)
}

type Handler struct {
	ticker Ticker
	logger *logger.Logger
	now    func() time.Time
}

func NewHandler(ticker Ticker, log *logger.Logger) *Handler {
	return &Handler{ticker: ticker, logger: log, now: time.Now}
}

// RegisterRoutes mounts the trigger. Callers wrap r with the cron secret check.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/process-notifications", h.ProcessNotifications)
}

type ProcessResponse struct {
	Message   string          `json:"message"`
	Processed int             `json:"processed"`
	Results   []model.Outcome `json:"results"`
}

func (h *Handler) ProcessNotifications(c *gin.Context) {
	outcomes, err := h.ticker.RunTick(c.Request.Context(), h.now().UTC())
	if err != nil {
		h.logger.Error(err, "Dispatch tick failed")
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, ProcessResponse{
		Message:   "Notifications processed",
		Processed: len(outcomes),
		Results:   outcomes,
	})
}
