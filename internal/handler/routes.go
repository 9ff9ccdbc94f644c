package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-tutoring-api/internal/middleware"
	"github.com/noah-isme/campus-tutoring-api/internal/models"
)

// Routes groups the handlers mounted under the API prefix. Dashboard, Metrics and Realtime
// may be nil.
type Routes struct {
	Sessions    *SessionHandler
	Enrollments *EnrollmentHandler
	Bans        *BanHandler
	Dashboard   *DashboardHandler
	Metrics     *MetricsHandler
	Realtime    *RealtimeHandler
}

// Register mounts every authenticated route on api. auth guards REST calls and wsAuth
// guards the WebSocket upgrade, which carries its token in the query string.
func (r Routes) Register(api gin.IRouter, auth, wsAuth gin.HandlerFunc) {
	tutor := middleware.RequireRoles(models.RoleTutor)
	student := middleware.RequireRoles(models.RoleStudent)
	staff := middleware.RequireRoles(models.RoleTutor, models.RoleAdmin)
	admin := middleware.RequireRoles(models.RoleAdmin)

	secured := api.Group("", auth)

	sessions := secured.Group("/sessions")
	sessions.POST("", tutor, r.Sessions.Create)
	sessions.GET("", staff, r.Sessions.List)
	sessions.GET("/available", student, r.Sessions.Available)
	sessions.POST("/overlap-check", tutor, r.Sessions.CheckOverlap)
	sessions.GET("/:id", r.Sessions.Get)
	sessions.PUT("/:id", staff, r.Sessions.Update)
	sessions.DELETE("/:id", admin, r.Sessions.Delete)
	sessions.POST("/:id/cancel", staff, r.Sessions.Cancel)
	sessions.POST("/:id/restore", admin, r.Sessions.Restore)
	sessions.POST("/:id/reconcile", staff, r.Sessions.Reconcile)
	sessions.GET("/:id/status", r.Sessions.Status)
	sessions.GET("/:id/seats", r.Sessions.Seats)
	sessions.GET("/:id/roster", staff, r.Sessions.Roster)
	sessions.GET("/:id/roster/export", staff, r.Sessions.ExportRoster)
	sessions.POST("/:id/enrollments", student, r.Enrollments.Enroll)
	sessions.DELETE("/:id/enrollments/me", student, r.Enrollments.Withdraw)

	enrollments := secured.Group("/enrollments")
	enrollments.GET("/me", student, r.Enrollments.Mine)
	enrollments.POST("/:id/exclude", staff, r.Enrollments.Exclude)

	bans := secured.Group("/bans")
	bans.GET("", staff, r.Bans.List)
	bans.POST("", tutor, r.Bans.Create)
	bans.DELETE("/:id", staff, r.Bans.Delete)

	if r.Dashboard != nil {
		secured.GET("/dashboard/tutor", tutor, r.Dashboard.Tutor)
		secured.GET("/dashboard/student", student, r.Dashboard.Student)
		secured.GET("/calendar/tutor", staff, r.Dashboard.TutorCalendar)
		secured.GET("/calendar/student", student, r.Dashboard.StudentCalendar)
	}
	if r.Metrics != nil {
		secured.GET("/metrics/summary", admin, r.Metrics.Summary)
	}
	if r.Realtime != nil {
		api.GET("/ws/sessions/:id", wsAuth, r.Realtime.Subscribe)
	}
}
