package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/facegate/rollcall/internal/attendance"
	"github.com/facegate/rollcall/internal/augment"
	"github.com/facegate/rollcall/internal/detector"
	"github.com/facegate/rollcall/internal/store"
	"github.com/facegate/rollcall/internal/web/handlers"
)

func (s *Server) setupRoutes(st *store.Store, det *detector.Client, ledger *attendance.Ledger, engine *augment.Engine) {
	enrollHandler := handlers.NewEnrollHandler(s.config, st, det, engine, s.jobManager)
	recognizeHandler := handlers.NewRecognizeHandler(s.config, st, det, ledger)
	usersHandler := handlers.NewUsersHandler(st)
	attendanceHandler := handlers.NewAttendanceHandler(st, ledger)
	similarHandler := handlers.NewSimilarHandler(s.config, st, det)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Enrollment
		r.Post("/enroll", enrollHandler.Enroll)
		r.Post("/enroll/batch", enrollHandler.EnrollBatch)
		r.Get("/jobs/{id}", enrollHandler.JobStatus)

		// Recognition
		r.Post("/recognize", recognizeHandler.Recognize)
		r.Post("/faces/similar", similarHandler.Similar)

		// Identity management
		r.Get("/users", usersHandler.List)
		r.Get("/users/{name}/stats", usersHandler.Stats)
		r.Put("/users/{name}/metadata", usersHandler.UpdateMetadata)
		r.Delete("/users/{name}", usersHandler.Delete)
		r.Delete("/users", usersHandler.Clear)
		r.Get("/filters", usersHandler.Filters)

		// Attendance
		r.Get("/attendance", attendanceHandler.Summary)
		r.Get("/attendance/today", attendanceHandler.Today)
		r.Get("/attendance/records", attendanceHandler.Records)
		r.Get("/attendance/absentees", attendanceHandler.Absentees)
	})
}
