package moderation

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns the /reports router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Post("/", h.CreateReport)
	r.Get("/me", h.ListMyReports)
	r.Get("/reasons", h.ListReasons)

	return r
}
