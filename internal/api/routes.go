package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	r.Route("/api/cases", func(r chi.Router) {
		r.Use(RequireBearer(h.cfg.Tokens()))
		r.Post("/", h.CreateCase)
		r.Get("/", h.ListCases)

		r.Route("/{caseId}", func(r chi.Router) {
			r.Use(h.loadCase)
			r.Get("/", h.GetCase)
			r.Post("/status", h.UpdateCaseStatus)
			r.Post("/documents", h.UploadDocument)
			r.Post("/summons", h.InitSummons)

			r.Route("/summons/{summonsId}", func(r chi.Router) {
				r.Get("/", h.GetSummons)
				r.Post("/assemble", h.Assemble)
				r.Get("/sections", h.ListSections)
				r.Get("/sections/events", h.SectionEvents)
				r.Post("/sections/{sectionKey}/generate", h.GenerateSection)
				r.Post("/sections/{sectionKey}/approve", h.ApproveSection)
				r.Post("/sections/{sectionKey}/reject", h.RejectSection)
			})

			r.Get("/summons-v2/{summonsId}/pdf", h.DownloadPrintable)
			r.Get("/summons-v2/{summonsId}/html", h.DownloadHTML)
		})
	})

	return r
}
