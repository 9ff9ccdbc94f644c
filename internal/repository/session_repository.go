package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-tutoring-api/internal/models"
	"github.com/noah-isme/campus-tutoring-api/pkg/database"
)

const sessionColumns = `s.id, s.tutor_id, s.subject_id, s.title, s.description, s.session_date, s.start_time, s.end_time,
        s.location, s.max_seats, s.status, s.created_at, s.updated_at`

const confirmedCountColumn = `(SELECT COUNT(*) FROM session_enrollments e WHERE e.session_id = s.id AND e.status = 'CONFIRMED') AS confirmed_count`

// SessionRepository persists tutoring sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// FindByID returns a session by ID.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM tutoring_sessions s WHERE s.id = $1", sessionColumns)
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// Snapshot returns a session together with its confirmed enrollment count.
func (r *SessionRepository) Snapshot(ctx context.Context, id string) (*models.SessionSnapshot, error) {
	query := fmt.Sprintf("SELECT %s, %s FROM tutoring_sessions s WHERE s.id = $1", sessionColumns, confirmedCountColumn)
	var snapshot models.SessionSnapshot
	if err := r.db.GetContext(ctx, &snapshot, query, id); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// List returns sessions matching the filter with their confirmed counts.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.SessionSnapshot, int, error) {
	var conditions []string
	var args []interface{}

	if filter.TutorID != "" {
		conditions = append(conditions, fmt.Sprintf("s.tutor_id = $%d", len(args)+1))
		args = append(args, filter.TutorID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("s.session_date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("s.session_date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	size, offset := pageWindow(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT %s, %s FROM tutoring_sessions s%s
        ORDER BY s.session_date %s, s.start_time %s LIMIT %d OFFSET %d`,
		sessionColumns, confirmedCountColumn, clause, order, order, size, offset)
	var sessions []models.SessionSnapshot
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM tutoring_sessions s"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return sessions, total, nil
}

// ListAvailable returns sessions a student can still book: scheduled or running and not
// yet over, not confirmed for the student, not owned by a tutor who banned the student,
// and not full. Enrollment stays open while a session runs, so today's sessions are kept
// until their end time.
func (r *SessionRepository) ListAvailable(ctx context.Context, filter models.AvailableSessionFilter) ([]models.SessionSnapshot, int, error) {
	conditions := []string{
		"s.status IN ('SCHEDULED', 'IN_PROGRESS')",
		"(s.session_date > $1 OR (s.session_date = $1 AND s.end_time > $2))",
		`NOT EXISTS (SELECT 1 FROM session_enrollments me WHERE me.session_id = s.id AND me.student_id = $3 AND me.status = 'CONFIRMED')`,
		`NOT EXISTS (SELECT 1 FROM tutor_bans b WHERE b.tutor_id = s.tutor_id AND b.student_id = $3)`,
		`(SELECT COUNT(*) FROM session_enrollments c WHERE c.session_id = s.id AND c.status = 'CONFIRMED') < s.max_seats`,
	}
	args := []interface{}{filter.From, filter.FromTime, filter.StudentID}
	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("s.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	clause := " WHERE " + strings.Join(conditions, " AND ")
	size, offset := pageWindow(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT %s, %s FROM tutoring_sessions s%s
        ORDER BY s.session_date ASC, s.start_time ASC LIMIT %d OFFSET %d`,
		sessionColumns, confirmedCountColumn, clause, size, offset)
	var sessions []models.SessionSnapshot
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list available sessions: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM tutoring_sessions s"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count available sessions: %w", err)
	}
	return sessions, total, nil
}

// TutorCounts aggregates a tutor's dashboard numbers in one round trip. today and now are
// the campus date and time of day that split upcoming from completed sessions.
func (r *SessionRepository) TutorCounts(ctx context.Context, tutorID string, today time.Time, now models.TimeOfDay) (*models.TutorCounts, error) {
	const notOver = "(s.session_date > $2 OR (s.session_date = $2 AND s.end_time > $3))"
	query := `SELECT
        (SELECT COUNT(*) FROM tutoring_sessions s
            WHERE s.tutor_id = $1 AND s.status <> 'CANCELLED' AND ` + notOver + `) AS upcoming_sessions,
        (SELECT COUNT(*) FROM session_enrollments e JOIN tutoring_sessions s ON s.id = e.session_id
            WHERE s.tutor_id = $1 AND e.status = 'CONFIRMED' AND s.status <> 'CANCELLED' AND ` + notOver + `) AS upcoming_enrollments,
        (SELECT COUNT(*) FROM tutoring_sessions s
            WHERE s.tutor_id = $1 AND s.status <> 'CANCELLED' AND NOT ` + notOver + `) AS completed_sessions,
        (SELECT COUNT(*) FROM tutor_bans b WHERE b.tutor_id = $1) AS banned_students`
	var counts models.TutorCounts
	if err := r.db.GetContext(ctx, &counts, query, tutorID, today, now); err != nil {
		return nil, fmt.Errorf("count tutor dashboard: %w", err)
	}
	return &counts, nil
}

// ActiveOnDate returns the tutor's scheduled or running sessions on date.
func (r *SessionRepository) ActiveOnDate(ctx context.Context, tutorID string, date time.Time, excludeID string) ([]models.Session, error) {
	return activeOnDate(ctx, r.db, tutorID, date, excludeID)
}

// ConfirmedCount returns the number of confirmed enrollments in a session.
func (r *SessionRepository) ConfirmedCount(ctx context.Context, sessionID string) (int, error) {
	return confirmedCount(ctx, r.db, sessionID)
}

// Create inserts a session while holding the tutor's scheduling lock. The guard runs under
// the lock so overlap checks cannot race with another write for the same tutor.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session, guard models.SessionGuard) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	if session.Status == "" {
		session.Status = models.SessionStatusScheduled
	}

	return database.InTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		if err := lockTutorSchedule(ctx, tx, session.TutorID); err != nil {
			return err
		}
		if guard != nil {
			if err := guard(ctx, txLookup{q: tx}); err != nil {
				return err
			}
		}
		const query = `INSERT INTO tutoring_sessions (id, tutor_id, subject_id, title, description, session_date, start_time, end_time,
        location, max_seats, status, created_at, updated_at)
        VALUES (:id, :tutor_id, :subject_id, :title, :description, :session_date, :start_time, :end_time,
        :location, :max_seats, :status, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, session); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
}

// UpdateGuarded locks the session row and the tutor's schedule, lets mutate edit a copy of
// the current row, then persists it. Moving into CANCELLED cancels confirmed enrollments;
// moving out of CANCELLED restores the ones that transition cancelled, except for students
// the tutor has banned since.
func (r *SessionRepository) UpdateGuarded(ctx context.Context, id string, mutate models.SessionMutation) (*models.SessionChange, error) {
	var change models.SessionChange
	err := database.InTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		current, err := lockSession(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := lockTutorSchedule(ctx, tx, current.TutorID); err != nil {
			return err
		}

		updated := *current
		if err := mutate(ctx, &updated, txLookup{q: tx}); err != nil {
			return err
		}
		updated.ID = current.ID
		updated.TutorID = current.TutorID
		updated.UpdatedAt = time.Now().UTC()

		const query = `UPDATE tutoring_sessions SET subject_id = :subject_id, title = :title, description = :description,
        session_date = :session_date, start_time = :start_time, end_time = :end_time, location = :location,
        max_seats = :max_seats, status = :status, updated_at = :updated_at WHERE id = :id`
		if _, err := tx.NamedExecContext(ctx, query, &updated); err != nil {
			return fmt.Errorf("update session: %w", err)
		}

		cascaded, err := cascadeStatus(ctx, tx, *current, updated)
		if err != nil {
			return err
		}
		change = models.SessionChange{Before: *current, After: updated, Cascaded: cascaded}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &change, nil
}

// CompareAndSetStatus writes status only when the stored value still equals from.
func (r *SessionRepository) CompareAndSetStatus(ctx context.Context, id string, from, to models.SessionStatus) (bool, error) {
	const query = `UPDATE tutoring_sessions SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("set session status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set session status rows: %w", err)
	}
	return affected == 1, nil
}

// ListDueForReconcile returns non-cancelled sessions whose stored status may lag behind
// the clock: scheduled or running sessions dated today or earlier.
func (r *SessionRepository) ListDueForReconcile(ctx context.Context, today time.Time, limit int) ([]models.Session, error) {
	if limit <= 0 {
		limit = 200
	}
	query := fmt.Sprintf(`SELECT %s FROM tutoring_sessions s
        WHERE s.status IN ('SCHEDULED', 'IN_PROGRESS') AND s.session_date <= $1
        ORDER BY s.session_date ASC, s.start_time ASC LIMIT $2`, sessionColumns)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, today, limit); err != nil {
		return nil, fmt.Errorf("list sessions due for reconcile: %w", err)
	}
	return sessions, nil
}

// Delete removes a session; enrollments are removed by the foreign key cascade.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tutoring_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type txLookup struct {
	q sqlx.QueryerContext
}

func (l txLookup) ActiveOnDate(ctx context.Context, tutorID string, date time.Time, excludeID string) ([]models.Session, error) {
	return activeOnDate(ctx, l.q, tutorID, date, excludeID)
}

func (l txLookup) ConfirmedCount(ctx context.Context, sessionID string) (int, error) {
	return confirmedCount(ctx, l.q, sessionID)
}

func activeOnDate(ctx context.Context, q sqlx.QueryerContext, tutorID string, date time.Time, excludeID string) ([]models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM tutoring_sessions s
        WHERE s.tutor_id = $1 AND s.session_date = $2 AND s.status IN ('SCHEDULED', 'IN_PROGRESS')`, sessionColumns)
	args := []interface{}{tutorID, date}
	if excludeID != "" {
		query += fmt.Sprintf(" AND s.id <> $%d", len(args)+1)
		args = append(args, excludeID)
	}
	query += " ORDER BY s.start_time"
	var sessions []models.Session
	if err := sqlx.SelectContext(ctx, q, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list tutor sessions on date: %w", err)
	}
	return sessions, nil
}

func confirmedCount(ctx context.Context, q sqlx.QueryerContext, sessionID string) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM session_enrollments WHERE session_id = $1 AND status = 'CONFIRMED'`
	if err := sqlx.GetContext(ctx, q, &count, query, sessionID); err != nil {
		return 0, fmt.Errorf("count confirmed enrollments: %w", err)
	}
	return count, nil
}

func lockSession(ctx context.Context, tx *sqlx.Tx, id string) (*models.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM tutoring_sessions s WHERE s.id = $1 FOR UPDATE", sessionColumns)
	var session models.Session
	if err := tx.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

func lockTutorSchedule(ctx context.Context, tx *sqlx.Tx, tutorID string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, tutorID); err != nil {
		return fmt.Errorf("lock tutor schedule: %w", err)
	}
	return nil
}

func cascadeStatus(ctx context.Context, tx *sqlx.Tx, before, after models.Session) (int, error) {
	now := time.Now().UTC()
	var (
		result sql.Result
		err    error
	)
	switch {
	case before.Status != models.SessionStatusCancelled && after.Status == models.SessionStatusCancelled:
		result, err = tx.ExecContext(ctx, `UPDATE session_enrollments SET status = 'CANCELLED', cancel_reason = $2,
        cancelled_at = $3, updated_at = $3 WHERE session_id = $1 AND status = 'CONFIRMED'`,
			after.ID, models.CancelReasonSessionCancelled, now)
	case before.Status == models.SessionStatusCancelled && after.Status != models.SessionStatusCancelled:
		result, err = tx.ExecContext(ctx, `UPDATE session_enrollments e SET status = 'CONFIRMED', cancel_reason = NULL,
        cancelled_at = NULL, updated_at = $3 WHERE e.session_id = $1 AND e.status = 'CANCELLED' AND e.cancel_reason = $2
        AND NOT EXISTS (SELECT 1 FROM tutor_bans b WHERE b.tutor_id = $4 AND b.student_id = e.student_id)`,
			after.ID, models.CancelReasonSessionCancelled, now, after.TutorID)
	default:
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cascade session status to enrollments: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cascade session status rows: %w", err)
	}
	return int(affected), nil
}

func pageWindow(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return size, (page - 1) * size
}
