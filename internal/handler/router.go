package handler

import "github.com/gin-gonic/gin"

// Handlers groups the HTTP handlers mounted under the API prefix.
type Handlers struct {
	Sessions    *SessionHandler
	Enrollments *EnrollmentHandler
	Roster      *RosterHandler
	Sweep       *SweepHandler
}

// RegisterRoutes mounts session and enrollment endpoints on group.
func RegisterRoutes(group gin.IRouter, h Handlers) {
	sessions := group.Group("/sessions")
	sessions.POST("", h.Sessions.Create)
	sessions.GET("/:id", h.Sessions.Get)
	sessions.POST("/:id/cancel", h.Sessions.Cancel)
	sessions.PATCH("/:id/status", h.Sessions.SetStatus)
	sessions.POST("/:id/cascade", h.Sessions.ResumeCascade)
	sessions.POST("/:id/enrollments", h.Enrollments.Enroll)
	sessions.GET("/:id/enrollments", h.Enrollments.ListBySession)
	sessions.POST("/:id/waitlist", h.Enrollments.JoinWaitlist)
	sessions.GET("/:id/capacity", h.Enrollments.Capacity)
	if h.Roster != nil {
		sessions.GET("/:id/roster", h.Roster.Download)
	}

	enrollments := group.Group("/enrollments")
	enrollments.GET("/:id", h.Enrollments.Get)
	enrollments.POST("/:id/cancel", h.Enrollments.Cancel)
	enrollments.POST("/:id/attendance", h.Enrollments.MarkAttendance)

	group.GET("/instructors/:id/sessions", h.Sessions.ListForInstructor)
	group.GET("/students/:id/sessions", h.Enrollments.ListForStudent)

	if h.Sweep != nil {
		group.POST("/admin/sweep", h.Sweep.Run)
	}
}
