package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/class-session-api/internal/models"
	appErrors "github.com/noah-isme/class-session-api/pkg/errors"
	"github.com/noah-isme/class-session-api/pkg/export"
)

var rosterHeaders = []string{"student_id", "enrollment_id", "status", "enrolled_at", "attendance_marked_at", "cancellation_reason"}

// RosterFile is a rendered session roster ready for download.
type RosterFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// RosterService renders a session's enrollments as a downloadable document.
type RosterService struct {
	sessions    sessionReader
	enrollments sessionEnrollmentLister
	renderers   map[export.Format]export.Renderer
	logger      *zap.Logger
}

// NewRosterService constructs a RosterService. Without renderers it serves CSV and PDF.
func NewRosterService(sessions sessionReader, enrollments sessionEnrollmentLister, logger *zap.Logger, renderers ...export.Renderer) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(renderers) == 0 {
		renderers = []export.Renderer{export.NewCSVRenderer(), export.NewPDFRenderer("Class session roster")}
	}
	byFormat := make(map[export.Format]export.Renderer, len(renderers))
	for _, r := range renderers {
		byFormat[r.Format()] = r
	}
	return &RosterService{sessions: sessions, enrollments: enrollments, renderers: byFormat, logger: logger}
}

// Export renders every enrollment of the session, in admission order, in the requested format.
// Times are shown in the session's timezone.
func (s *RosterService) Export(ctx context.Context, sessionID, format string) (*RosterFile, error) {
	if format == "" {
		format = string(export.FormatCSV)
	}
	renderer, ok := s.renderers[export.Format(strings.ToLower(format))]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported roster format %q", format))
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	enrollments, err := s.enrollments.ListBySession(ctx, sessionID, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	loc, err := time.LoadLocation(session.Timezone)
	if err != nil {
		loc = time.UTC
	}
	table := export.Table{
		Title:   fmt.Sprintf("%s, %s (%s)", rosterTitle(session), session.StartTime.In(loc).Format("2006-01-02 15:04"), loc.String()),
		Headers: rosterHeaders,
		Rows:    make([][]string, 0, len(enrollments)),
	}
	for _, e := range enrollments {
		table.Rows = append(table.Rows, []string{
			e.StudentID,
			e.ID,
			string(e.Status),
			e.EnrolledAt.In(loc).Format(time.RFC3339),
			formatOptionalTime(e.AttendanceMarkedAt, loc),
			deref(e.CancellationReason),
		})
	}

	data, err := renderer.Render(table)
	if err != nil {
		s.logger.Sugar().Errorw("roster render failed", "session_id", sessionID, "format", renderer.Format(), "error", err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}
	return &RosterFile{
		Filename:    fmt.Sprintf("roster_%s_%s.%s", sessionID, session.StartTime.In(loc).Format("20060102"), renderer.Format()),
		ContentType: renderer.ContentType(),
		Data:        data,
	}, nil
}

func rosterTitle(session *models.Session) string {
	if session.Title != "" {
		return session.Title
	}
	return session.ClassDefinitionID
}

func formatOptionalTime(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return t.In(loc).Format(time.RFC3339)
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
