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

// BanRepository persists tutor bans.
type BanRepository struct {
	db *sqlx.DB
}

// NewBanRepository constructs the repository.
func NewBanRepository(db *sqlx.DB) *BanRepository {
	return &BanRepository{db: db}
}

// BanAndCascade upserts the ban and cancels every confirmed enrollment of the student in
// the tutor's sessions, in one transaction. The tutor's session rows are share-locked
// first so an enrollment committing concurrently is either visible to the cascade or
// waits and then sees the ban. It returns the ban and the IDs of the affected sessions.
func (r *BanRepository) BanAndCascade(ctx context.Context, tutorID, studentID, reason string) (*models.Ban, []string, error) {
	var (
		ban      models.Ban
		affected []string
	)
	err := database.InTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT id FROM tutoring_sessions WHERE tutor_id = $1 ORDER BY id FOR SHARE`, tutorID); err != nil {
			return fmt.Errorf("lock tutor sessions: %w", err)
		}

		now := time.Now().UTC()
		const upsert = `INSERT INTO tutor_bans (id, tutor_id, student_id, reason, banned_at) VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (tutor_id, student_id) DO UPDATE SET reason = EXCLUDED.reason
        RETURNING id, tutor_id, student_id, reason, banned_at`
		if err := tx.GetContext(ctx, &ban, upsert, uuid.NewString(), tutorID, studentID, reason, now); err != nil {
			return fmt.Errorf("upsert tutor ban: %w", err)
		}

		const cascade = `UPDATE session_enrollments e SET status = 'CANCELLED', cancel_reason = $3, cancelled_at = $4, updated_at = $4
        FROM tutoring_sessions s
        WHERE s.id = e.session_id AND s.tutor_id = $1 AND e.student_id = $2 AND e.status = 'CONFIRMED'
        RETURNING e.session_id`
		if err := tx.SelectContext(ctx, &affected, cascade, tutorID, studentID, models.CancelReasonBanCascade, now); err != nil {
			return fmt.Errorf("cancel banned student enrollments: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &ban, affected, nil
}

// FindByID returns a ban by ID.
func (r *BanRepository) FindByID(ctx context.Context, id string) (*models.Ban, error) {
	const query = `SELECT id, tutor_id, student_id, reason, banned_at FROM tutor_bans WHERE id = $1`
	var ban models.Ban
	if err := r.db.GetContext(ctx, &ban, query, id); err != nil {
		return nil, err
	}
	return &ban, nil
}

// List returns bans matching the filter, newest first.
func (r *BanRepository) List(ctx context.Context, filter models.BanFilter) ([]models.Ban, int, error) {
	var conditions []string
	var args []interface{}
	if filter.TutorID != "" {
		conditions = append(conditions, fmt.Sprintf("tutor_id = $%d", len(args)+1))
		args = append(args, filter.TutorID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}
	size, offset := pageWindow(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT id, tutor_id, student_id, reason, banned_at FROM tutor_bans%s
        ORDER BY banned_at DESC LIMIT %d OFFSET %d`, clause, size, offset)
	var bans []models.Ban
	if err := r.db.SelectContext(ctx, &bans, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list tutor bans: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM tutor_bans"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count tutor bans: %w", err)
	}
	return bans, total, nil
}

// Delete removes a ban. Enrollments cancelled by the ban stay cancelled.
func (r *BanRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tutor_bans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete tutor ban: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete tutor ban rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
