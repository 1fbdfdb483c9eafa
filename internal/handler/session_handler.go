package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/class-session-api/internal/models"
	"github.com/noah-isme/class-session-api/internal/service"
	"github.com/noah-isme/class-session-api/pkg/response"
)

type sessionService interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	Schedule(ctx context.Context, req service.ScheduleSessionRequest) (*models.Session, error)
	Cancel(ctx context.Context, id string, req service.CancelSessionRequest) (*models.Session, error)
	SetStatus(ctx context.Context, id string, req service.SetSessionStatusRequest) (*models.Session, error)
	ResumeCascade(ctx context.Context, id string) (int, error)
	ListForInstructor(ctx context.Context, instructorID string, from, to time.Time) ([]models.Session, error)
}

// SessionHandler exposes session scheduling endpoints.
type SessionHandler struct {
	sessions sessionService
}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler(sessions sessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Create godoc
// @Summary Schedule a session
// @Description Creates a session from a class definition. Fails with INSTRUCTOR_CONFLICT when the instructor is busy.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body service.ScheduleSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	var req service.ScheduleSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.sessions.Schedule(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Get godoc
// @Summary Get session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session)
}

// Cancel godoc
// @Summary Cancel session
// @Description Cancels the session and every ENROLLED or WAITLISTED enrollment in it.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.CancelSessionRequest true "Cancellation payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/cancel [post]
func (h *SessionHandler) Cancel(c *gin.Context) {
	var req service.CancelSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.sessions.Cancel(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session)
}

// SetStatus godoc
// @Summary Override session status
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.SetSessionStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/status [patch]
func (h *SessionHandler) SetStatus(c *gin.Context) {
	var req service.SetSessionStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.sessions.SetStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session)
}

// ResumeCascade godoc
// @Summary Re-run enrollment cancellation for a cancelled session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 202 {object} response.Envelope
// @Router /sessions/{id}/cascade [post]
func (h *SessionHandler) ResumeCascade(c *gin.Context) {
	dispatched, err := h.sessions.ResumeCascade(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"session_id": c.Param("id"), "dispatched": dispatched})
}

// ListForInstructor godoc
// @Summary List instructor sessions in a range
// @Tags Sessions
// @Produce json
// @Param id path string true "Instructor ID"
// @Param from query string true "Range start (RFC3339)"
// @Param to query string true "Range end (RFC3339)"
// @Success 200 {object} response.Envelope
// @Router /instructors/{id}/sessions [get]
func (h *SessionHandler) ListForInstructor(c *gin.Context) {
	from, to, ok := parseRange(c)
	if !ok {
		return
	}
	sessions, err := h.sessions.ListForInstructor(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, map[string]interface{}{"count": len(sessions)})
}
