package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-tutoring-api/internal/models"
	"github.com/noah-isme/campus-tutoring-api/internal/scheduling"
)

// Tuesday 2026-10-20 07:00 UTC; tomorrow is a regular teaching day.
var testNow = time.Date(2026, 10, 20, 7, 0, 0, 0, time.UTC)

func testDay(offset int) time.Time {
	return time.Date(2026, 10, 20+offset, 0, 0, 0, 0, time.UTC)
}

func hm(h, m int) models.TimeOfDay { return models.NewTimeOfDay(h, m) }

var (
	tutorActor   = models.Actor{UserID: "tutor-1", Role: models.RoleTutor}
	otherTutor   = models.Actor{UserID: "tutor-2", Role: models.RoleTutor}
	adminActor   = models.Actor{UserID: "admin-1", Role: models.RoleAdmin}
	studentActor = models.Actor{UserID: "student-1", Role: models.RoleStudent}
)

func student(id string) models.Actor {
	return models.Actor{UserID: id, Role: models.RoleStudent}
}

// memoryStore is a transactional in-memory stand-in for the Postgres repositories. A
// single mutex plays the role of the row and advisory locks.
type memoryStore struct {
	mu          sync.Mutex
	seq         int
	sessions    map[string]models.Session
	enrollments map[string]*models.Enrollment
	bans        map[string]models.Ban
	statusCAS   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		sessions:    make(map[string]models.Session),
		enrollments: make(map[string]*models.Enrollment),
		bans:        make(map[string]models.Ban),
	}
}

func (m *memoryStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memoryStore) addSession(s models.Session) models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = m.nextID("session")
	}
	if s.Status == "" {
		s.Status = models.SessionStatusScheduled
	}
	if s.MaxSeats == 0 {
		s.MaxSeats = 10
	}
	m.sessions[s.ID] = s
	return s
}

func (m *memoryStore) session(id string) models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

func (m *memoryStore) enrollment(sessionID, studentID string) *models.Enrollment {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments {
		if e.SessionID == sessionID && e.StudentID == studentID {
			copied := *e
			return &copied
		}
	}
	return nil
}

func (m *memoryStore) enrollmentOf(sessionID, studentID string) *models.Enrollment {
	for _, e := range m.enrollments {
		if e.SessionID == sessionID && e.StudentID == studentID {
			return e
		}
	}
	return nil
}

func (m *memoryStore) banned(tutorID, studentID string) bool {
	for _, b := range m.bans {
		if b.TutorID == tutorID && b.StudentID == studentID {
			return true
		}
	}
	return false
}

func (m *memoryStore) confirmed(sessionID string) int {
	count := 0
	for _, e := range m.enrollments {
		if e.SessionID == sessionID && e.Status == models.EnrollmentStatusConfirmed {
			count++
		}
	}
	return count
}

func (m *memoryStore) cancel(e *models.Enrollment, reason models.CancelReason) {
	now := testNow
	r := reason
	e.Status = models.EnrollmentStatusCancelled
	e.CancelReason = &r
	e.CancelledAt = &now
}

func (m *memoryStore) detail(e *models.Enrollment) models.EnrollmentDetail {
	s := m.sessions[e.SessionID]
	return models.EnrollmentDetail{
		Enrollment:    *e,
		TutorID:       s.TutorID,
		SessionTitle:  s.Title,
		SessionDate:   s.Date,
		StartTime:     s.StartTime,
		EndTime:       s.EndTime,
		Location:      s.Location,
		SessionStatus: s.Status,
	}
}

// lockedLookup reads without taking the mutex; callers already hold it.
type lockedLookup struct{ m *memoryStore }

func (l lockedLookup) ActiveOnDate(_ context.Context, tutorID string, date time.Time, excludeID string) ([]models.Session, error) {
	var out []models.Session
	for _, s := range l.m.sessions {
		if s.TutorID != tutorID || s.ID == excludeID || !s.Date.Equal(date) {
			continue
		}
		if s.Status == models.SessionStatusScheduled || s.Status == models.SessionStatusInProgress {
			out = append(out, s)
		}
	}
	return out, nil
}

func (l lockedLookup) ConfirmedCount(_ context.Context, sessionID string) (int, error) {
	return l.m.confirmed(sessionID), nil
}

type memorySessionRepo struct{ m *memoryStore }

func (r memorySessionRepo) FindByID(_ context.Context, id string) (*models.Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (r memorySessionRepo) Snapshot(_ context.Context, id string) (*models.SessionSnapshot, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.SessionSnapshot{Session: s, ConfirmedCount: r.m.confirmed(id)}, nil
}

func (r memorySessionRepo) List(_ context.Context, filter models.SessionFilter) ([]models.SessionSnapshot, int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []models.SessionSnapshot
	for _, s := range r.m.sessions {
		if filter.TutorID != "" && s.TutorID != filter.TutorID {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if (filter.DateFrom != nil && s.Date.Before(*filter.DateFrom)) || (filter.DateTo != nil && s.Date.After(*filter.DateTo)) {
			continue
		}
		out = append(out, models.SessionSnapshot{Session: s, ConfirmedCount: r.m.confirmed(s.ID)})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	total := len(out)
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		lo := (page - 1) * filter.PageSize
		if lo > total {
			lo = total
		}
		hi := lo + filter.PageSize
		if hi > total {
			hi = total
		}
		out = out[lo:hi]
	}
	return out, total, nil
}

func (r memorySessionRepo) TutorCounts(_ context.Context, tutorID string, today time.Time, now models.TimeOfDay) (*models.TutorCounts, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var counts models.TutorCounts
	for _, s := range r.m.sessions {
		if s.TutorID != tutorID || s.Status == models.SessionStatusCancelled {
			continue
		}
		if s.Date.After(today) || (s.Date.Equal(today) && s.EndTime > now) {
			counts.UpcomingSessions++
			counts.UpcomingEnrollments += r.m.confirmed(s.ID)
		} else {
			counts.CompletedSessions++
		}
	}
	for _, b := range r.m.bans {
		if b.TutorID == tutorID {
			counts.BannedStudents++
		}
	}
	return &counts, nil
}

func (r memorySessionRepo) ListAvailable(_ context.Context, filter models.AvailableSessionFilter) ([]models.SessionSnapshot, int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []models.SessionSnapshot
	for _, s := range r.m.sessions {
		if !s.Status.Open() || s.Date.Before(filter.From) {
			continue
		}
		if s.Date.Equal(filter.From) && s.EndTime <= filter.FromTime {
			continue
		}
		if r.m.banned(s.TutorID, filter.StudentID) || r.m.confirmed(s.ID) >= s.MaxSeats {
			continue
		}
		if mine := r.m.enrollmentOf(s.ID, filter.StudentID); mine != nil && mine.Status == models.EnrollmentStatusConfirmed {
			continue
		}
		out = append(out, models.SessionSnapshot{Session: s, ConfirmedCount: r.m.confirmed(s.ID)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r memorySessionRepo) ActiveOnDate(ctx context.Context, tutorID string, date time.Time, excludeID string) ([]models.Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return lockedLookup{r.m}.ActiveOnDate(ctx, tutorID, date, excludeID)
}

func (r memorySessionRepo) Create(ctx context.Context, session *models.Session, guard models.SessionGuard) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if guard != nil {
		if err := guard(ctx, lockedLookup{r.m}); err != nil {
			return err
		}
	}
	session.ID = r.m.nextID("session")
	session.Status = models.SessionStatusScheduled
	session.CreatedAt = testNow
	session.UpdatedAt = testNow
	r.m.sessions[session.ID] = *session
	return nil
}

func (r memorySessionRepo) UpdateGuarded(ctx context.Context, id string, mutate models.SessionMutation) (*models.SessionChange, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	current, ok := r.m.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	updated := current
	if err := mutate(ctx, &updated, lockedLookup{r.m}); err != nil {
		return nil, err
	}
	updated.ID = current.ID
	updated.TutorID = current.TutorID
	r.m.sessions[id] = updated

	cascaded := 0
	for _, e := range r.m.enrollments {
		if e.SessionID != id {
			continue
		}
		switch {
		case current.Status != models.SessionStatusCancelled && updated.Status == models.SessionStatusCancelled:
			if e.Status == models.EnrollmentStatusConfirmed {
				r.m.cancel(e, models.CancelReasonSessionCancelled)
				cascaded++
			}
		case current.Status == models.SessionStatusCancelled && updated.Status != models.SessionStatusCancelled:
			if e.Status == models.EnrollmentStatusCancelled && e.CancelReason != nil &&
				*e.CancelReason == models.CancelReasonSessionCancelled && !r.m.banned(updated.TutorID, e.StudentID) {
				e.Status = models.EnrollmentStatusConfirmed
				e.CancelReason = nil
				e.CancelledAt = nil
				cascaded++
			}
		}
	}
	return &models.SessionChange{Before: current, After: updated, Cascaded: cascaded}, nil
}

func (r memorySessionRepo) CompareAndSetStatus(_ context.Context, id string, from, to models.SessionStatus) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.sessions[id]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	r.m.sessions[id] = s
	r.m.statusCAS++
	return true, nil
}

func (r memorySessionRepo) ListDueForReconcile(_ context.Context, today time.Time, _ int) ([]models.Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []models.Session
	for _, s := range r.m.sessions {
		if s.Date.After(today) {
			continue
		}
		if s.Status == models.SessionStatusScheduled || s.Status == models.SessionStatusInProgress {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r memorySessionRepo) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.sessions[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.m.sessions, id)
	for key, e := range r.m.enrollments {
		if e.SessionID == id {
			delete(r.m.enrollments, key)
		}
	}
	return nil
}

type memoryEnrollmentRepo struct{ m *memoryStore }

func (r memoryEnrollmentRepo) Enroll(_ context.Context, sessionID, studentID, comment string, guard models.EnrollGuard) (*models.Enrollment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	session, ok := r.m.sessions[sessionID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	var existing *models.Enrollment
	for _, e := range r.m.enrollments {
		if e.SessionID == sessionID && e.StudentID == studentID {
			existing = e
		}
	}
	if guard != nil {
		var snapshotExisting *models.Enrollment
		if existing != nil {
			copied := *existing
			snapshotExisting = &copied
		}
		snapshot := models.EnrollmentSnapshot{
			Session:        session,
			Existing:       snapshotExisting,
			Banned:         r.m.banned(session.TutorID, studentID),
			ConfirmedCount: r.m.confirmed(sessionID),
		}
		if err := guard(snapshot); err != nil {
			return nil, err
		}
	}
	if existing != nil {
		existing.Status = models.EnrollmentStatusConfirmed
		existing.CancelReason = nil
		existing.CancelledAt = nil
		existing.Comment = comment
		copied := *existing
		return &copied, nil
	}
	e := &models.Enrollment{
		ID:         r.m.nextID("enrollment"),
		SessionID:  sessionID,
		StudentID:  studentID,
		Status:     models.EnrollmentStatusConfirmed,
		Comment:    comment,
		EnrolledAt: testNow,
		UpdatedAt:  testNow,
	}
	r.m.enrollments[e.ID] = e
	copied := *e
	return &copied, nil
}

func (r memoryEnrollmentRepo) CancelForStudent(_ context.Context, sessionID, studentID string, reason models.CancelReason) (*models.Enrollment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, e := range r.m.enrollments {
		if e.SessionID == sessionID && e.StudentID == studentID && e.Status == models.EnrollmentStatusConfirmed {
			r.m.cancel(e, reason)
			copied := *e
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r memoryEnrollmentRepo) CancelByID(_ context.Context, id string, reason models.CancelReason) (*models.Enrollment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	e, ok := r.m.enrollments[id]
	if !ok || e.Status != models.EnrollmentStatusConfirmed {
		return nil, sql.ErrNoRows
	}
	r.m.cancel(e, reason)
	copied := *e
	return &copied, nil
}

func (r memoryEnrollmentRepo) FindDetailByID(_ context.Context, id string) (*models.EnrollmentDetail, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	e, ok := r.m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail := r.m.detail(e)
	return &detail, nil
}

func (r memoryEnrollmentRepo) ListByStudent(_ context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []models.EnrollmentDetail
	for _, e := range r.m.enrollments {
		if e.StudentID == studentID {
			out = append(out, r.m.detail(e))
		}
	}
	return out, nil
}

func (r memoryEnrollmentRepo) Roster(_ context.Context, sessionID string) ([]models.RosterEntry, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []models.RosterEntry
	for _, e := range r.m.enrollments {
		if e.SessionID == sessionID && e.Status == models.EnrollmentStatusConfirmed {
			out = append(out, models.RosterEntry{EnrollmentID: e.ID, StudentID: e.StudentID, Comment: e.Comment, EnrolledAt: e.EnrolledAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

type memoryBanRepo struct{ m *memoryStore }

func (r memoryBanRepo) BanAndCascade(_ context.Context, tutorID, studentID, reason string) (*models.Ban, []string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var ban *models.Ban
	for id, b := range r.m.bans {
		if b.TutorID == tutorID && b.StudentID == studentID {
			b.Reason = reason
			r.m.bans[id] = b
			ban = &b
		}
	}
	if ban == nil {
		b := models.Ban{ID: r.m.nextID("ban"), TutorID: tutorID, StudentID: studentID, Reason: reason, BannedAt: testNow}
		r.m.bans[b.ID] = b
		ban = &b
	}
	var affected []string
	for _, e := range r.m.enrollments {
		if e.StudentID != studentID || e.Status != models.EnrollmentStatusConfirmed {
			continue
		}
		if r.m.sessions[e.SessionID].TutorID != tutorID {
			continue
		}
		r.m.cancel(e, models.CancelReasonBanCascade)
		affected = append(affected, e.SessionID)
	}
	return ban, affected, nil
}

func (r memoryBanRepo) FindByID(_ context.Context, id string) (*models.Ban, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	b, ok := r.m.bans[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &b, nil
}

func (r memoryBanRepo) List(_ context.Context, filter models.BanFilter) ([]models.Ban, int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []models.Ban
	for _, b := range r.m.bans {
		if filter.TutorID != "" && b.TutorID != filter.TutorID {
			continue
		}
		out = append(out, b)
	}
	return out, len(out), nil
}

func (r memoryBanRepo) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.bans[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.m.bans, id)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(topic, event string, _ interface{}) {
	p.mu.Lock()
	p.events = append(p.events, topic+":"+event)
	p.mu.Unlock()
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type schedulingFixture struct {
	store       *memoryStore
	clock       *scheduling.FixedClock
	publisher   *recordingPublisher
	metrics     *MetricsService
	sessions    *SessionService
	enrollments *EnrollmentService
	bans        *BanService
}

func newSchedulingFixture(t *testing.T) *schedulingFixture {
	t.Helper()
	store := newMemoryStore()
	clock := scheduling.NewFixedClock(testNow)
	engine := scheduling.NewEngine(scheduling.DefaultRules(), clock)
	publisher := &recordingPublisher{}
	metrics := NewMetricsService()
	validate := validator.New()

	sessions := NewSessionService(memorySessionRepo{store}, memoryEnrollmentRepo{store}, engine, nil, publisher, metrics, validate, zap.NewNop())
	bans := NewBanService(memoryBanRepo{store}, sessions, metrics, validate, zap.NewNop())
	enrollments := NewEnrollmentService(memoryEnrollmentRepo{store}, sessions, bans, metrics, validate, zap.NewNop())
	return &schedulingFixture{
		store:       store,
		clock:       clock,
		publisher:   publisher,
		metrics:     metrics,
		sessions:    sessions,
		enrollments: enrollments,
		bans:        bans,
	}
}

// tomorrowSession stores a scheduled session of tutor-1 for tomorrow.
func (f *schedulingFixture) tomorrowSession(start, end models.TimeOfDay, seats int) models.Session {
	return f.store.addSession(models.Session{
		TutorID:   tutorActor.UserID,
		SubjectID: "math",
		Title:     "Calculus review",
		Date:      testDay(1),
		StartTime: start,
		EndTime:   end,
		Location:  "Library 2.10",
		MaxSeats:  seats,
	})
}
