package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/class-session-api/internal/models"
	appErrors "github.com/noah-isme/class-session-api/pkg/errors"
)

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name   string
		s1, e1 time.Time
		s2, e2 time.Time
		want   bool
	}{
		{"partial overlap", at(9, 0), at(10, 0), at(9, 30), at(10, 30), true},
		{"contained", at(9, 0), at(12, 0), at(10, 0), at(11, 0), true},
		{"identical", at(9, 0), at(10, 0), at(9, 0), at(10, 0), true},
		{"touching end", at(9, 0), at(10, 0), at(10, 0), at(11, 0), false},
		{"touching start", at(10, 0), at(11, 0), at(9, 0), at(10, 0), false},
		{"disjoint", at(9, 0), at(10, 0), at(13, 0), at(14, 0), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Overlaps(tc.s1, tc.e1, tc.s2, tc.e2))
			assert.Equal(t, tc.want, Overlaps(tc.s2, tc.e2, tc.s1, tc.e1), "overlap must be symmetric")
		})
	}
}

func TestValidateWindow(t *testing.T) {
	require.NoError(t, ValidateWindow(at(9, 0), at(9, 1)))
	assert.True(t, appErrors.Is(ValidateWindow(at(9, 0), at(9, 0)), appErrors.ErrInvalidWindow))
	assert.True(t, appErrors.Is(ValidateWindow(at(10, 0), at(9, 0)), appErrors.ErrInvalidWindow))
	assert.True(t, appErrors.Is(ValidateWindow(time.Time{}, at(9, 0)), appErrors.ErrInvalidWindow))
}

func TestFirstConflictIgnoresSelfAndCancelled(t *testing.T) {
	existing := []models.Session{
		{ID: "a", StartTime: at(9, 0), EndTime: at(10, 0), Status: models.SessionStatusCancelled},
		{ID: "b", StartTime: at(9, 30), EndTime: at(10, 30), Status: models.SessionStatusScheduled},
	}
	target := Window{ID: "b", Start: at(9, 0), End: at(10, 0)}

	_, ok := FirstConflict(target, sessionWindows(existing), "b")
	assert.False(t, ok)

	hit, ok := FirstConflict(Window{Start: at(9, 0), End: at(10, 0)}, sessionWindows(existing), "")
	require.True(t, ok)
	assert.Equal(t, "b", hit.ID)
}
