package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is applied idempotently on start-up. Users and subjects are owned by the
// surrounding campus platform; only their ids are referenced here.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS tutoring_sessions (
		id           UUID PRIMARY KEY,
		tutor_id     TEXT NOT NULL,
		subject_id   TEXT NOT NULL,
		title        TEXT NOT NULL,
		description  TEXT NOT NULL DEFAULT '',
		session_date DATE NOT NULL,
		start_time   TIME NOT NULL,
		end_time     TIME NOT NULL,
		location     TEXT NOT NULL,
		max_seats    INTEGER NOT NULL CHECK (max_seats > 0),
		status       TEXT NOT NULL DEFAULT 'SCHEDULED',
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL,
		CHECK (start_time < end_time)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tutoring_sessions_tutor_date ON tutoring_sessions (tutor_id, session_date)`,
	`CREATE INDEX IF NOT EXISTS idx_tutoring_sessions_status_date ON tutoring_sessions (status, session_date)`,
	`CREATE TABLE IF NOT EXISTS session_enrollments (
		id            UUID PRIMARY KEY,
		session_id    UUID NOT NULL REFERENCES tutoring_sessions (id) ON DELETE CASCADE,
		student_id    TEXT NOT NULL,
		status        TEXT NOT NULL DEFAULT 'CONFIRMED',
		cancel_reason TEXT NULL,
		comment       TEXT NOT NULL DEFAULT '',
		enrolled_at   TIMESTAMPTZ NOT NULL,
		cancelled_at  TIMESTAMPTZ NULL,
		updated_at    TIMESTAMPTZ NOT NULL,
		CONSTRAINT uq_session_enrollments_student UNIQUE (student_id, session_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_session_enrollments_session_status ON session_enrollments (session_id, status)`,
	`CREATE TABLE IF NOT EXISTS tutor_bans (
		id         UUID PRIMARY KEY,
		tutor_id   TEXT NOT NULL,
		student_id TEXT NOT NULL,
		reason     TEXT NOT NULL DEFAULT '',
		banned_at  TIMESTAMPTZ NOT NULL,
		CONSTRAINT uq_tutor_bans_pair UNIQUE (tutor_id, student_id)
	)`,
}

// EnsureSchema creates the scheduling tables when they are missing.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
