package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/class-session-api/internal/service"
	"github.com/noah-isme/class-session-api/pkg/response"
)

type rosterExporter interface {
	Export(ctx context.Context, sessionID, format string) (*service.RosterFile, error)
}

// RosterHandler serves session roster downloads.
type RosterHandler struct {
	roster rosterExporter
}

// NewRosterHandler constructs RosterHandler.
func NewRosterHandler(roster rosterExporter) *RosterHandler {
	return &RosterHandler{roster: roster}
}

// Download godoc
// @Summary Download session roster
// @Tags Enrollments
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Session ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id}/roster [get]
func (h *RosterHandler) Download(c *gin.Context) {
	file, err := h.roster.Export(c.Request.Context(), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
