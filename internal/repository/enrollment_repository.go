package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-tutoring-api/internal/models"
	"github.com/noah-isme/campus-tutoring-api/pkg/database"
	appErrors "github.com/noah-isme/campus-tutoring-api/pkg/errors"
)

const enrollmentColumns = `id, session_id, student_id, status, cancel_reason, comment, enrolled_at, cancelled_at, updated_at`

const enrollmentDetailQuery = `SELECT e.id, e.session_id, e.student_id, e.status, e.cancel_reason, e.comment, e.enrolled_at,
        e.cancelled_at, e.updated_at, s.tutor_id, s.title AS session_title, s.session_date, s.start_time, s.end_time,
        s.location, s.status AS session_status
        FROM session_enrollments e
        JOIN tutoring_sessions s ON s.id = e.session_id`

// EnrollmentRepository handles persistence of session enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Enroll confirms a seat for the student. The session row stays locked from the capacity
// read until commit, so concurrent enrollments into one session are serialised and the
// guard always sees the committed confirmed count. A previously cancelled row for the
// same pair is reactivated instead of inserting a duplicate.
func (r *EnrollmentRepository) Enroll(ctx context.Context, sessionID, studentID, comment string, guard models.EnrollGuard) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := database.InTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		session, err := lockSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}

		var banned bool
		const banQuery = `SELECT EXISTS (SELECT 1 FROM tutor_bans WHERE tutor_id = $1 AND student_id = $2)`
		if err := tx.GetContext(ctx, &banned, banQuery, session.TutorID, studentID); err != nil {
			return fmt.Errorf("check tutor ban: %w", err)
		}

		existing, err := findPair(ctx, tx, sessionID, studentID)
		if err != nil {
			return err
		}

		count, err := confirmedCount(ctx, tx, sessionID)
		if err != nil {
			return err
		}

		if guard != nil {
			snapshot := models.EnrollmentSnapshot{Session: *session, Existing: existing, Banned: banned, ConfirmedCount: count}
			if err := guard(snapshot); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		if existing != nil {
			const reactivate = `UPDATE session_enrollments SET status = 'CONFIRMED', cancel_reason = NULL, cancelled_at = NULL,
        comment = $2, enrolled_at = $3, updated_at = $3 WHERE id = $1 RETURNING ` + enrollmentColumns
			if err := tx.GetContext(ctx, &enrollment, reactivate, existing.ID, comment, now); err != nil {
				return fmt.Errorf("reactivate enrollment: %w", err)
			}
			return nil
		}

		enrollment = models.Enrollment{
			ID:         uuid.NewString(),
			SessionID:  sessionID,
			StudentID:  studentID,
			Status:     models.EnrollmentStatusConfirmed,
			Comment:    comment,
			EnrolledAt: now,
			UpdatedAt:  now,
		}
		const insert = `INSERT INTO session_enrollments (id, session_id, student_id, status, comment, enrolled_at, updated_at)
        VALUES (:id, :session_id, :student_id, :status, :comment, :enrolled_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, insert, &enrollment); err != nil {
			if database.IsUniqueViolation(err) {
				return appErrors.Clone(appErrors.ErrAlreadyEnrolled, "student already holds an enrollment in this session")
			}
			return fmt.Errorf("insert enrollment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// CancelForStudent cancels the student's confirmed enrollment in a session. It returns
// sql.ErrNoRows when there is no confirmed enrollment to cancel.
func (r *EnrollmentRepository) CancelForStudent(ctx context.Context, sessionID, studentID string, reason models.CancelReason) (*models.Enrollment, error) {
	query := `UPDATE session_enrollments SET status = 'CANCELLED', cancel_reason = $3, cancelled_at = $4, updated_at = $4
        WHERE session_id = $1 AND student_id = $2 AND status = 'CONFIRMED' RETURNING ` + enrollmentColumns
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, sessionID, studentID, reason, time.Now().UTC()); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// CancelByID cancels a confirmed enrollment by ID. It returns sql.ErrNoRows when the
// enrollment is missing or not confirmed.
func (r *EnrollmentRepository) CancelByID(ctx context.Context, id string, reason models.CancelReason) (*models.Enrollment, error) {
	query := `UPDATE session_enrollments SET status = 'CANCELLED', cancel_reason = $2, cancelled_at = $3, updated_at = $3
        WHERE id = $1 AND status = 'CONFIRMED' RETURNING ` + enrollmentColumns
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id, reason, time.Now().UTC()); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment joined with its session.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, enrollmentDetailQuery+" WHERE e.id = $1", id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListByStudent returns every enrollment of a student, most recent session first.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailQuery + " WHERE e.student_id = $1 ORDER BY s.session_date DESC, s.start_time DESC"
	var details []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &details, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return details, nil
}

// Roster lists the confirmed students of a session in enrollment order.
func (r *EnrollmentRepository) Roster(ctx context.Context, sessionID string) ([]models.RosterEntry, error) {
	const query = `SELECT id AS enrollment_id, student_id, comment, enrolled_at FROM session_enrollments
        WHERE session_id = $1 AND status = 'CONFIRMED' ORDER BY enrolled_at ASC`
	var entries []models.RosterEntry
	if err := r.db.SelectContext(ctx, &entries, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session roster: %w", err)
	}
	return entries, nil
}

func findPair(ctx context.Context, tx *sqlx.Tx, sessionID, studentID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM session_enrollments WHERE session_id = $1 AND student_id = $2`
	var enrollment models.Enrollment
	if err := tx.GetContext(ctx, &enrollment, query, sessionID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}
