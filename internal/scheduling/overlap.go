package scheduling

import (
	"fmt"

	"github.com/noah-isme/campus-tutoring-api/internal/models"
	appErrors "github.com/noah-isme/campus-tutoring-api/pkg/errors"
)

// Overlaps reports whether the half-open intervals [aStart,aEnd) and [bStart,bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd models.TimeOfDay) bool {
	return aStart < bEnd && aEnd > bStart
}

// Conflicts returns the sessions in existing that collide with [start,end). Cancelled and
// completed sessions and the session identified by excludeID never conflict.
func Conflicts(start, end models.TimeOfDay, existing []models.Session, excludeID string) []models.Session {
	var out []models.Session
	for _, s := range existing {
		if excludeID != "" && s.ID == excludeID {
			continue
		}
		if s.Status != models.SessionStatusScheduled && s.Status != models.SessionStatusInProgress {
			continue
		}
		if Overlaps(start, end, s.StartTime, s.EndTime) {
			out = append(out, s)
		}
	}
	return out
}

// ToConflict converts a session into the payload reported to callers.
func ToConflict(s models.Session) models.OverlapConflict {
	return models.OverlapConflict{
		SessionID: s.ID,
		Title:     s.Title,
		Date:      s.Date,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
	}
}

// OverlapError reports the first conflicting session.
func OverlapError(conflict models.Session) error {
	msg := fmt.Sprintf("session overlaps %q from %s to %s", conflict.Title, conflict.StartTime, conflict.EndTime)
	return appErrors.WithDetails(appErrors.ErrOverlap, msg, ToConflict(conflict))
}
