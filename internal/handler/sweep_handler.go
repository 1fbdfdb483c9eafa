package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/class-session-api/internal/service"
	appErrors "github.com/noah-isme/class-session-api/pkg/errors"
	"github.com/noah-isme/class-session-api/pkg/response"
)

type statusSweeper interface {
	Run(ctx context.Context) (service.SweepResult, error)
}

// SweepHandler lets operators trigger a status sweep on demand.
type SweepHandler struct {
	sweeper statusSweeper
}

// NewSweepHandler constructs SweepHandler.
func NewSweepHandler(sweeper statusSweeper) *SweepHandler {
	return &SweepHandler{sweeper: sweeper}
}

// Run godoc
// @Summary Run status sweep now
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/sweep [post]
func (h *SweepHandler) Run(c *gin.Context) {
	result, err := h.sweeper.Run(c.Request.Context())
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "status sweep failed"))
		return
	}
	response.JSON(c, http.StatusOK, result)
}
