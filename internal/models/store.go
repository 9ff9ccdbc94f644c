package models

import (
	"context"
	"time"
)

// SessionLookup exposes the reads a guard may perform inside a scheduling transaction.
type SessionLookup interface {
	ActiveOnDate(ctx context.Context, tutorID string, date time.Time, excludeID string) ([]Session, error)
	ConfirmedCount(ctx context.Context, sessionID string) (int, error)
}

// SessionGuard validates a session write while the tutor's schedule is locked.
type SessionGuard func(ctx context.Context, lookup SessionLookup) error

// SessionMutation applies changes to the locked current row. Returning an error aborts the write.
type SessionMutation func(ctx context.Context, current *Session, lookup SessionLookup) error

// EnrollmentSnapshot is what the store observed under the session row lock.
type EnrollmentSnapshot struct {
	Session        Session
	Existing       *Enrollment
	Banned         bool
	ConfirmedCount int
}

// EnrollGuard decides whether an enrollment may proceed given a locked snapshot.
type EnrollGuard func(snapshot EnrollmentSnapshot) error
