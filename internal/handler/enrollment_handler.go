package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/class-session-api/internal/models"
	"github.com/noah-isme/class-session-api/internal/service"
	"github.com/noah-isme/class-session-api/pkg/response"
)

type enrollmentService interface {
	Get(ctx context.Context, id string) (*models.Enrollment, error)
	Enroll(ctx context.Context, sessionID string, req service.EnrollRequest) (*models.Enrollment, error)
	JoinWaitlist(ctx context.Context, sessionID string, req service.EnrollRequest) (*models.Enrollment, error)
	Cancel(ctx context.Context, id string, req service.CancelEnrollmentRequest) (*models.Enrollment, error)
	MarkAttendance(ctx context.Context, id string, req service.MarkAttendanceRequest) (*models.Enrollment, error)
	Capacity(ctx context.Context, sessionID string) (*models.SessionCapacity, error)
	ListBySession(ctx context.Context, sessionID string, statuses []models.EnrollmentStatus) ([]models.Enrollment, error)
	ListForStudent(ctx context.Context, studentID string, from, to time.Time) ([]models.StudentSession, error)
}

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// Enroll godoc
// @Summary Enroll student in session
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	var req service.EnrollRequest
	if !bindJSON(c, &req) {
		return
	}
	enrollment, err := h.enrollments.Enroll(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// JoinWaitlist godoc
// @Summary Join session waitlist
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/waitlist [post]
func (h *EnrollmentHandler) JoinWaitlist(c *gin.Context) {
	var req service.EnrollRequest
	if !bindJSON(c, &req) {
		return
	}
	enrollment, err := h.enrollments.JoinWaitlist(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// ListBySession godoc
// @Summary List session enrollments
// @Tags Enrollments
// @Produce json
// @Param id path string true "Session ID"
// @Param status query string false "Comma separated statuses"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/enrollments [get]
func (h *EnrollmentHandler) ListBySession(c *gin.Context) {
	var statuses []models.EnrollmentStatus
	for _, raw := range strings.Split(c.Query("status"), ",") {
		if raw = strings.TrimSpace(raw); raw != "" {
			statuses = append(statuses, models.EnrollmentStatus(strings.ToUpper(raw)))
		}
	}
	enrollments, err := h.enrollments.ListBySession(c.Request.Context(), c.Param("id"), statuses)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, map[string]interface{}{"count": len(enrollments)})
}

// Capacity godoc
// @Summary Session seat usage
// @Tags Enrollments
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/capacity [get]
func (h *EnrollmentHandler) Capacity(c *gin.Context) {
	capacity, err := h.enrollments.Capacity(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, capacity)
}

// Get godoc
// @Summary Get enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	enrollment, err := h.enrollments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment)
}

// Cancel godoc
// @Summary Cancel enrollment
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.CancelEnrollmentRequest true "Cancellation payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/cancel [post]
func (h *EnrollmentHandler) Cancel(c *gin.Context) {
	var req service.CancelEnrollmentRequest
	if !bindJSON(c, &req) {
		return
	}
	enrollment, err := h.enrollments.Cancel(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment)
}

// MarkAttendance godoc
// @Summary Mark attendance
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.MarkAttendanceRequest true "Attendance payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/{id}/attendance [post]
func (h *EnrollmentHandler) MarkAttendance(c *gin.Context) {
	var req service.MarkAttendanceRequest
	if !bindJSON(c, &req) {
		return
	}
	enrollment, err := h.enrollments.MarkAttendance(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment)
}

// ListForStudent godoc
// @Summary List student sessions in a range
// @Tags Enrollments
// @Produce json
// @Param id path string true "Student ID"
// @Param from query string true "Range start (RFC3339)"
// @Param to query string true "Range end (RFC3339)"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/sessions [get]
func (h *EnrollmentHandler) ListForStudent(c *gin.Context) {
	from, to, ok := parseRange(c)
	if !ok {
		return
	}
	items, err := h.enrollments.ListForStudent(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, map[string]interface{}{"count": len(items)})
}
