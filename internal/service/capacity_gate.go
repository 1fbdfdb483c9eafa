package service

import "github.com/noah-isme/class-session-api/internal/models"

// CapacityGate reports seat availability from a session's limit and its occupied seat count.
type CapacityGate struct {
	MaxParticipants int
	Occupied        int
}

// HasSeat reports whether one more ENROLLED seat fits.
func (g CapacityGate) HasSeat() bool {
	return g.Occupied < g.MaxParticipants
}

// Remaining returns the number of free seats, never negative.
func (g CapacityGate) Remaining() int {
	if r := g.MaxParticipants - g.Occupied; r > 0 {
		return r
	}
	return 0
}

// Summary renders the gate for API consumers.
func (g CapacityGate) Summary(sessionID string) models.SessionCapacity {
	return models.SessionCapacity{
		SessionID:       sessionID,
		MaxParticipants: g.MaxParticipants,
		Occupied:        g.Occupied,
		Remaining:       g.Remaining(),
		HasCapacity:     g.HasSeat(),
	}
}
