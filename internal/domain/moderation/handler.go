package moderation

import (
	"errors"
	"net/http"

	"github.com/snacc/snacc-api/internal/middleware"
	"github.com/snacc/snacc-api/internal/pkg/logger"
	"github.com/snacc/snacc-api/internal/pkg/response"
	"github.com/snacc/snacc-api/internal/pkg/validator"
)

// Handler handles report HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates moderation handler
func NewHandler(service *Service) *Handler {
	return &Handler{
		service: service,
	}
}

// CreateReport creates a new report
// POST /reports
func (h *Handler) CreateReport(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req CreateReportRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	report, err := h.service.SubmitReport(r.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidReport):
			response.BadRequest(w, err.Error())
		case errors.Is(err, ErrTargetNotFound):
			response.NotFound(w, "Reported user not found")
		default:
			logger.LogError(r.Context(), err, "Failed to submit report")
			response.InternalError(w)
		}
		return
	}

	response.Created(w, report)
}

// ListMyReports lists reports created by current user
// GET /reports/me
func (h *Handler) ListMyReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.service.ListMyReports(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		logger.LogError(r.Context(), err, "Failed to list reports")
		response.InternalError(w)
		return
	}

	response.OK(w, reports)
}

// ListReasons returns predefined reasons
// GET /reports/reasons?context=profile
func (h *Handler) ListReasons(w http.ResponseWriter, r *http.Request) {
	c := ReportContext(r.URL.Query().Get("context"))
	if c == "" {
		items := make([]*ReportReasonsResponse, 0, len(ReportContexts))
		for _, known := range ReportContexts {
			items = append(items, reasonsResponse(known))
		}
		response.OK(w, items)
		return
	}

	if err := validator.ValidateVar(string(c), "report_context"); err != nil {
		response.BadRequest(w, ErrInvalidContext.Error())
		return
	}
	response.OK(w, reasonsResponse(c))
}

func reasonsResponse(c ReportContext) *ReportReasonsResponse {
	return &ReportReasonsResponse{
		Context:     c,
		DisplayName: c.DisplayName(),
		Reasons:     ReportReasons(c),
	}
}
