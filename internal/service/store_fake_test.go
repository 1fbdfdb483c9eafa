package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/class-session-api/internal/models"
	"github.com/noah-isme/class-session-api/internal/repository"
	appErrors "github.com/noah-isme/class-session-api/pkg/errors"
)

// memoryStore mimics the postgres repositories. One mutex stands in for the advisory and row locks.
type memoryStore struct {
	mu          sync.Mutex
	seq         int
	sessions    map[string]models.Session
	enrollments map[string]models.Enrollment
	listErr     error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: map[string]models.Session{}, enrollments: map[string]models.Enrollment{}}
}

func (m *memoryStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%03d", prefix, m.seq)
}

func (m *memoryStore) put(session models.Session) models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session.ID == "" {
		session.ID = m.nextID("ses")
	}
	if session.Status == "" {
		session.Status = models.SessionStatusScheduled
	}
	m.sessions[session.ID] = session
	return session
}

func (m *memoryStore) session(id string) models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

func (m *memoryStore) enrollment(id string) models.Enrollment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enrollments[id]
}

type sessionStore struct{ *memoryStore }

func (s sessionStore) FindByID(ctx context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &session, nil
}

func (s sessionStore) CreateExclusive(ctx context.Context, session *models.Session, check func([]models.Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var existing []models.Session
	for _, other := range s.sessions {
		if other.InstructorID != session.InstructorID || other.Status == models.SessionStatusCancelled {
			continue
		}
		if other.StartTime.Before(session.EndTime) && other.EndTime.After(session.StartTime) {
			existing = append(existing, other)
		}
	}
	sortSessions(existing)
	if check != nil {
		if err := check(existing); err != nil {
			return err
		}
	}
	if session.ID == "" {
		session.ID = s.nextID("ses")
	}
	s.sessions[session.ID] = *session
	return nil
}

func (s sessionStore) Cancel(ctx context.Context, session *models.Session) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[session.ID]
	if !ok || current.Status.Terminal() {
		return false, nil
	}
	s.sessions[session.ID] = *session
	return true, nil
}

func (s sessionStore) TransitionStatus(ctx context.Context, id string, from, to models.SessionStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[id]
	if !ok || current.Status != from {
		return false, nil
	}
	current.Status = to
	current.UpdatedAt = at
	s.sessions[id] = current
	return true, nil
}

func (s sessionStore) ListCancelledWithActiveEnrollments(ctx context.Context, cancelledBefore time.Time, limit int) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	active := map[string]bool{}
	for _, e := range s.enrollments {
		if e.Status == models.EnrollmentStatusEnrolled || e.Status == models.EnrollmentStatusWaitlisted {
			active[e.SessionID] = true
		}
	}
	var out []models.Session
	for _, session := range s.sessions {
		if session.Status != models.SessionStatusCancelled || !active[session.ID] {
			continue
		}
		cancelledAt := session.UpdatedAt
		if session.CancelledAt != nil {
			cancelledAt = *session.CancelledAt
		}
		if cancelledAt.After(cancelledBefore) {
			continue
		}
		out = append(out, session)
	}
	sortSessions(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s sessionStore) ListByInstructor(ctx context.Context, filter models.SessionFilter) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Session
	for _, session := range s.sessions {
		if session.InstructorID != filter.InstructorID {
			continue
		}
		if filter.Status != "" && session.Status != filter.Status {
			continue
		}
		if session.StartTime.Before(filter.Range.To) && session.EndTime.After(filter.Range.From) {
			result = append(result, session)
		}
	}
	sortSessions(result)
	return result, nil
}

func (s sessionStore) ListDueForStart(ctx context.Context, now time.Time, limit int) ([]models.Session, error) {
	return s.due(func(session models.Session) bool {
		return session.Status == models.SessionStatusScheduled && !session.StartTime.After(now)
	}, limit)
}

func (s sessionStore) ListDueForCompletion(ctx context.Context, now time.Time, limit int) ([]models.Session, error) {
	return s.due(func(session models.Session) bool {
		return session.Status == models.SessionStatusOngoing && !session.EndTime.After(now)
	}, limit)
}

func (s sessionStore) due(match func(models.Session) bool, limit int) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var result []models.Session
	for _, session := range s.sessions {
		if match(session) {
			result = append(result, session)
		}
	}
	sortSessions(result)
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

type enrollmentStore struct{ *memoryStore }

func (e enrollmentStore) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	enrollment, ok := e.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &enrollment, nil
}

func (e enrollmentStore) Admit(ctx context.Context, sessionID, studentID string, decide repository.AdmissionDecider) (*models.Enrollment, *models.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	session, ok := e.sessions[sessionID]
	if !ok {
		return nil, nil, sql.ErrNoRows
	}
	snapshot := models.AdmissionSnapshot{Session: session}
	for _, existing := range e.enrollments {
		if existing.SessionID == sessionID && existing.Status.OccupiesSeat() {
			snapshot.Occupied++
		}
		if existing.SessionID == sessionID && existing.StudentID == studentID && existing.Status != models.EnrollmentStatusCancelled {
			active := existing
			snapshot.Active = &active
		}
		if existing.StudentID != studentID || !existing.Status.OccupiesSeat() {
			continue
		}
		other := e.sessions[existing.SessionID]
		if other.Status == models.SessionStatusCancelled {
			continue
		}
		if other.StartTime.Before(session.EndTime) && other.EndTime.After(session.StartTime) {
			snapshot.Windows = append(snapshot.Windows, models.OccupiedWindow{
				EnrollmentID: existing.ID, SessionID: other.ID, StartTime: other.StartTime, EndTime: other.EndTime,
			})
		}
	}
	enrollment, err := decide(snapshot)
	if err != nil {
		return nil, nil, err
	}
	for _, existing := range e.enrollments {
		if existing.SessionID == sessionID && existing.StudentID == studentID && existing.Status != models.EnrollmentStatusCancelled {
			return nil, nil, repository.ErrDuplicateEnrollment
		}
	}
	if enrollment.ID == "" {
		enrollment.ID = e.nextID("enr")
	}
	e.enrollments[enrollment.ID] = *enrollment
	return enrollment, &session, nil
}

func (e enrollmentStore) UpdateIfStatus(ctx context.Context, enrollment *models.Enrollment, expected models.EnrollmentStatus) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	current, ok := e.enrollments[enrollment.ID]
	if !ok || current.Status != expected {
		return false, nil
	}
	e.enrollments[enrollment.ID] = *enrollment
	return true, nil
}

func (e enrollmentStore) CountOccupied(ctx context.Context, sessionID string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	count := 0
	for _, existing := range e.enrollments {
		if existing.SessionID == sessionID && existing.Status.OccupiesSeat() {
			count++
		}
	}
	return count, nil
}

func (e enrollmentStore) ListBySession(ctx context.Context, sessionID string, statuses []models.EnrollmentStatus) ([]models.Enrollment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listErr != nil {
		return nil, e.listErr
	}
	wanted := map[models.EnrollmentStatus]bool{}
	for _, st := range statuses {
		wanted[st] = true
	}
	var result []models.Enrollment
	for _, existing := range e.enrollments {
		if existing.SessionID != sessionID {
			continue
		}
		if len(wanted) > 0 && !wanted[existing.Status] {
			continue
		}
		result = append(result, existing)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (e enrollmentStore) ListForStudent(ctx context.Context, studentID string, rng models.TimeRange) ([]models.StudentSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var result []models.StudentSession
	for _, existing := range e.enrollments {
		if existing.StudentID != studentID || existing.Status == models.EnrollmentStatusCancelled {
			continue
		}
		session := e.sessions[existing.SessionID]
		if session.StartTime.Before(rng.To) && session.EndTime.After(rng.From) {
			result = append(result, models.StudentSession{Session: session, Enrollment: existing})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Session.StartTime.Equal(result[j].Session.StartTime) {
			return result[i].Session.ID < result[j].Session.ID
		}
		return result[i].Session.StartTime.Before(result[j].Session.StartTime)
	})
	return result, nil
}

func sortSessions(sessions []models.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].StartTime.Equal(sessions[j].StartTime) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].StartTime.Before(sessions[j].StartTime)
	})
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recordingNotifier) Publish(ctx context.Context, event models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) types() []models.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]models.EventType, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}

type stubCatalog struct {
	defs map[string]models.ClassDefinition
}

func (s stubCatalog) Get(ctx context.Context, id string) (*models.ClassDefinition, error) {
	def, ok := s.defs[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class definition not found")
	}
	return &def, nil
}

// testEngine wires the services over one memoryStore with a controllable clock.
type testEngine struct {
	store       *memoryStore
	events      *recordingNotifier
	sessions    *SessionService
	enrollments *EnrollmentService
	sweeper     *StatusSweeper
	now         time.Time
}

func newTestEngine() *testEngine {
	store := newMemoryStore()
	instructor := "inst-1"
	catalog := stubCatalog{defs: map[string]models.ClassDefinition{
		"yoga": {ID: "yoga", Title: "Morning Yoga", DefaultInstructorID: &instructor, DefaultCapacity: 10, LocationType: models.LocationInPerson},
	}}
	events := &recordingNotifier{}
	eng := &testEngine{store: store, events: events, now: time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return eng.now }

	eng.enrollments = NewEnrollmentService(enrollmentStore{store}, sessionStore{store}, events, nil, nil, nil)
	eng.enrollments.now = clock
	cascade := NewCascadeService(eng.enrollments, CascadeConfig{}, nil, nil)
	eng.sessions = NewSessionService(sessionStore{store}, catalog, enrollmentStore{store}, cascade, events, nil, nil, nil, SessionServiceConfig{WaitlistDefault: true})
	eng.sessions.now = clock
	eng.sweeper = NewStatusSweeper(sessionStore{store}, events, nil, nil, 10)
	eng.sweeper.now = clock
	return eng
}

func at(hour, minute int) time.Time {
	return time.Date(2024, 3, 4, hour, minute, 0, 0, time.UTC)
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }
