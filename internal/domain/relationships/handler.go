package relationships

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/snacc/snacc-api/internal/middleware"
	"github.com/snacc/snacc-api/internal/pkg/logger"
	"github.com/snacc/snacc-api/internal/pkg/response"
	"github.com/snacc/snacc-api/internal/pkg/validator"
)

// Handler handles relationship HTTP requests
type Handler struct {
	service  *Service
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler creates relationship handler. hub may be nil when the event
// stream is disabled.
func NewHandler(service *Service, hub *Hub, allowedOrigins []string) *Handler {
	return &Handler{
		service:  service,
		hub:      hub,
		upgrader: newUpgrader(allowedOrigins),
	}
}

// GetState handles GET /relationships/{id}
// @Summary Relationship with a user
// @Description Relationship of the current user towards the target and the actions allowed.
// @Tags Relationships
// @Produce json
// @Security BearerAuth
// @Param id path string true "Target user ID"
// @Success 200 {object} response.Response{data=State}
// @Failure 400,503 {object} response.Response
// @Router /relationships/{id} [get]
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	targetID, ok := parseTargetID(w, r)
	if !ok {
		return
	}

	st, err := h.service.Resolve(r.Context(), middleware.GetUserID(r.Context()), targetID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, st)
}

// GetDMEligibility handles GET /relationships/{id}/dm-eligibility
// @Summary Direct message eligibility
// @Tags Relationships
// @Produce json
// @Security BearerAuth
// @Param id path string true "Target user ID"
// @Success 200 {object} response.Response{data=DMEligibilityResponse}
// @Failure 400,503 {object} response.Response
// @Router /relationships/{id}/dm-eligibility [get]
func (h *Handler) GetDMEligibility(w http.ResponseWriter, r *http.Request) {
	targetID, ok := parseTargetID(w, r)
	if !ok {
		return
	}

	e, err := h.service.CheckMessageEligibility(r.Context(), middleware.GetUserID(r.Context()), targetID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, DMEligibilityResponseFrom(e))
}

// PerformAction handles POST /relationships/{id}/actions
// @Summary Perform a relationship action
// @Description Follow, unfollow, remove a follower, block or unblock. Returns the new relationship state.
// @Tags Relationships
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Target user ID"
// @Param request body ActionRequest true "Action"
// @Success 200 {object} response.Response{data=ActionResponse}
// @Failure 400,403,404,409,422,503 {object} response.Response
// @Router /relationships/{id}/actions [post]
func (h *Handler) PerformAction(w http.ResponseWriter, r *http.Request) {
	targetID, ok := parseTargetID(w, r)
	if !ok {
		return
	}

	var req ActionRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	action, err := ParseAction(req.Action)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	h.runAction(w, r, targetID, action)
}

// Follow handles POST /users/{id}/follow
func (h *Handler) Follow(w http.ResponseWriter, r *http.Request) {
	h.actionAlias(w, r, ActionFollow)
}

// Unfollow handles DELETE /users/{id}/follow
func (h *Handler) Unfollow(w http.ResponseWriter, r *http.Request) {
	h.actionAlias(w, r, ActionUnfollow)
}

// RemoveFollower handles DELETE /users/{id}/follower
func (h *Handler) RemoveFollower(w http.ResponseWriter, r *http.Request) {
	h.actionAlias(w, r, ActionRemoveFollower)
}

// BlockUser handles POST /users/{id}/block
// @Summary Block a user
// @Description A block hides both accounts from each other's follow actions and messages.
// @Tags Relationships
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID to block"
// @Success 200 {object} response.Response{data=ActionResponse}
// @Failure 400,409,503 {object} response.Response
// @Router /users/{id}/block [post]
func (h *Handler) BlockUser(w http.ResponseWriter, r *http.Request) {
	h.actionAlias(w, r, ActionBlock)
}

// UnblockUser handles DELETE /users/{id}/block
func (h *Handler) UnblockUser(w http.ResponseWriter, r *http.Request) {
	h.actionAlias(w, r, ActionUnblock)
}

// ListFollowers handles GET /users/{id}/followers
// @Summary Followers of a user
// @Tags Relationships
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param limit query int false "Page size (default 50, max 100)"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Response{data=ProfileListResponse}
// @Failure 400,403,503 {object} response.Response
// @Router /users/{id}/followers [get]
func (h *Handler) ListFollowers(w http.ResponseWriter, r *http.Request) {
	h.listProfiles(w, r, h.service.ListFollowers)
}

// ListFollowing handles GET /users/{id}/following
func (h *Handler) ListFollowing(w http.ResponseWriter, r *http.Request) {
	h.listProfiles(w, r, h.service.ListFollowing)
}

// ListBlocked handles GET /users/me/blocked
// @Summary Blocked users
// @Description Users blocked by the current user, newest first.
// @Tags Relationships
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=[]BlockedUserResponse}
// @Failure 503 {object} response.Response
// @Router /users/me/blocked [get]
func (h *Handler) ListBlocked(w http.ResponseWriter, r *http.Request) {
	blocks, err := h.service.ListMyBlocks(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]*BlockedUserResponse, 0, len(blocks))
	for _, block := range blocks {
		items = append(items, BlockedUserFromEntity(block))
	}
	response.OK(w, items)
}

// ReconcileCounts handles POST /users/me/counts/reconcile
func (h *Handler) ReconcileCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.service.ReconcileCounts(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, counts)
}

func (h *Handler) actionAlias(w http.ResponseWriter, r *http.Request, action Action) {
	targetID, ok := parseTargetID(w, r)
	if !ok {
		return
	}
	h.runAction(w, r, targetID, action)
}

func (h *Handler) runAction(w http.ResponseWriter, r *http.Request, targetID uuid.UUID, action Action) {
	viewerID := middleware.GetUserID(r.Context())
	if err := h.service.PerformAction(r.Context(), viewerID, targetID, action); err != nil {
		writeError(w, r, err)
		return
	}

	// the action is committed; a failed re-read must not turn it into an error
	st, err := h.service.Resolve(r.Context(), viewerID, targetID)
	if err != nil {
		logger.LogWarn(r.Context(), "Relationship state unavailable after action",
			"action", action.String(),
			"error", err.Error(),
		)
		st = nil
	}
	response.OK(w, &ActionResponse{Action: action.String(), State: st})
}

type listFunc func(ctx context.Context, viewerID, accountID uuid.UUID, limit, offset int) ([]*ProfileSummary, error)

func (h *Handler) listProfiles(w http.ResponseWriter, r *http.Request, list listFunc) {
	accountID, ok := parseTargetID(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, offset = normalizePage(limit, offset)

	items, err := list(r.Context(), middleware.GetUserID(r.Context()), accountID, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, &ProfileListResponse{
		Items: ProfileListFromSummaries(items),
		Page:  PageMeta{Limit: limit, Offset: offset, Count: len(items)},
	})
}

// parseTargetID accepts "me" as an alias of the current user
func parseTargetID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	if raw == "me" {
		return middleware.GetUserID(r.Context()), true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		response.BadRequest(w, "Invalid user ID")
		return uuid.Nil, false
	}
	return id, true
}

// writeError maps error classes onto HTTP statuses
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidOperation):
		response.BadRequest(w, err.Error())
	case errors.Is(err, ErrConflict):
		response.Conflict(w, err.Error())
	case errors.Is(err, ErrNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, ErrForbidden):
		response.Forbidden(w, err.Error())
	case errors.Is(err, ErrUnavailable):
		logger.LogError(r.Context(), err, "Relationship store unavailable")
		response.ServiceUnavailable(w, "Relationship store unavailable, try again")
	default:
		logger.LogError(r.Context(), err, "Relationship request failed")
		response.InternalError(w)
	}
}
