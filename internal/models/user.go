package models

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTutor   UserRole = "TUTOR"
	RoleStudent UserRole = "STUDENT"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleTutor, RoleStudent:
		return true
	}
	return false
}

// Actor is the authenticated caller of a scheduling operation.
type Actor struct {
	UserID string
	Role   UserRole
}

// IsAdmin reports whether the actor administers the platform.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// IsTutor reports whether the actor offers sessions.
func (a Actor) IsTutor() bool { return a.Role == RoleTutor }

// IsStudent reports whether the actor books sessions.
func (a Actor) IsStudent() bool { return a.Role == RoleStudent }

// Owns reports whether the actor is the tutor identified by tutorID.
func (a Actor) Owns(tutorID string) bool {
	return a.Role == RoleTutor && a.UserID != "" && a.UserID == tutorID
}

// CanManage reports whether the actor may change resources owned by tutorID.
func (a Actor) CanManage(tutorID string) bool {
	return a.IsAdmin() || a.Owns(tutorID)
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
