package scheduling

import "github.com/noah-isme/campus-tutoring-api/internal/models"

// RemainingSeats returns the free seats of a session. Enrollments of a completed or
// cancelled session are no longer effectively confirmed, so they do not consume seats.
func RemainingSeats(maxSeats, confirmed int, effective models.SessionStatus) int {
	if effective == models.SessionStatusCompleted || effective == models.SessionStatusCancelled {
		confirmed = 0
	}
	remaining := maxSeats - confirmed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// HasCapacity reports whether one more enrollment fits.
func HasCapacity(maxSeats, confirmed int, effective models.SessionStatus) bool {
	return RemainingSeats(maxSeats, confirmed, effective) > 0
}
