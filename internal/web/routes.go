package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/attendance/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	studentsHandler := handlers.NewStudentsHandler(s.session.Students, s.session.Registry)
	recognizeHandler := handlers.NewRecognizeHandler(s.session.Detector, s.session.Processor, s.session.Students, s.log)
	sessionHandler := handlers.NewSessionHandler(s.session.ID, s.session.Students, s.session.Tracker,
		s.config.Paths.ReportFormat, s.session.Reports, s.log)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)

		r.Get("/students", studentsHandler.List)
		r.Post("/recognize", recognizeHandler.Recognize)

		r.Get("/session", sessionHandler.Get)
		r.Get("/report", sessionHandler.Report)
		r.Post("/report", sessionHandler.WriteReport)
	})
}
