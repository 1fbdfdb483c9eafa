package service

import (
	"time"

	"github.com/noah-isme/class-session-api/internal/models"
	appErrors "github.com/noah-isme/class-session-api/pkg/errors"
)

// Window is a half-open [Start, End) interval owned by some entity.
type Window struct {
	ID    string
	Start time.Time
	End   time.Time
}

// Overlaps reports whether [s1,e1) and [s2,e2) intersect. Touching endpoints do not overlap.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// ValidateWindow rejects inverted and zero-length windows.
func ValidateWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return appErrors.ErrInvalidWindow
	}
	return nil
}

// FirstConflict returns the first candidate overlapping target, ignoring candidates sharing ignoreID.
func FirstConflict(target Window, candidates []Window, ignoreID string) (*Window, bool) {
	for i := range candidates {
		c := candidates[i]
		if ignoreID != "" && c.ID == ignoreID {
			continue
		}
		if Overlaps(target.Start, target.End, c.Start, c.End) {
			return &c, true
		}
	}
	return nil, false
}

func sessionWindows(sessions []models.Session) []Window {
	windows := make([]Window, 0, len(sessions))
	for _, s := range sessions {
		if s.Status == models.SessionStatusCancelled {
			continue
		}
		windows = append(windows, Window{ID: s.ID, Start: s.StartTime, End: s.EndTime})
	}
	return windows
}

func occupiedWindows(occupied []models.OccupiedWindow) []Window {
	windows := make([]Window, 0, len(occupied))
	for _, o := range occupied {
		windows = append(windows, Window{ID: o.SessionID, Start: o.StartTime, End: o.EndTime})
	}
	return windows
}
