package relationships

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns the /relationships router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.GetState)
		r.Get("/dm-eligibility", h.GetDMEligibility)
		r.Post("/actions", h.PerformAction)
	})

	return r
}

// UserRoutes returns the /users router for follow lists and action aliases
func (h *Handler) UserRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Get("/me/blocked", h.ListBlocked)
	r.Post("/me/counts/reconcile", h.ReconcileCounts)

	r.Route("/{id}", func(r chi.Router) {
		r.Post("/follow", h.Follow)
		r.Delete("/follow", h.Unfollow)
		r.Delete("/follower", h.RemoveFollower)
		r.Post("/block", h.BlockUser)
		r.Delete("/block", h.UnblockUser)
		r.Get("/followers", h.ListFollowers)
		r.Get("/following", h.ListFollowing)
	})

	return r
}

// StreamRoutes returns the /ws router
func (h *Handler) StreamRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/relationships", h.Events)
	return r
}
