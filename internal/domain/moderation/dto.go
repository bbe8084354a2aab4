package moderation

import (
	"github.com/google/uuid"

	"github.com/snacc/snacc-api/internal/pkg/validator"
)

func init() {
	names := make([]string, len(ReportContexts))
	for i, c := range ReportContexts {
		names[i] = string(c)
	}
	validator.RegisterOneOf("report_context", names)
}

// CreateReportRequest represents request to report a user
type CreateReportRequest struct {
	TargetID uuid.UUID     `json:"target_id" validate:"required"`
	Context  ReportContext `json:"context" validate:"required,report_context"`
	Reason   string        `json:"reason" validate:"required"`
}

// ReportReasonsResponse lists the predefined reasons of a context
type ReportReasonsResponse struct {
	Context     ReportContext `json:"context"`
	DisplayName string        `json:"display_name"`
	Reasons     []string      `json:"reasons"`
}
