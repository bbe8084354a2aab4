package moderation

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/snacc/snacc-api/internal/pkg/logger"
)

// MaxReasonLength is the longest accepted report reason, in characters
const MaxReasonLength = 500

var reportReasons = map[ReportContext][]string{
	ReportContextProfile: {
		"Inappropriate profile picture",
		"Offensive username or bio",
		"Impersonation",
		"Spam or fake account",
		"Underage user",
		"Other",
	},
	ReportContextSnacc: {
		"Harassment or bullying",
		"Hate speech",
		"Spam",
		"Inappropriate content",
		"Violence or threats",
		"Self-harm content",
		"Other",
	},
	ReportContextVideoCall: {
		"Inappropriate behavior",
		"Nudity or sexual content",
		"Harassment",
		"Hate speech",
		"Violence or threats",
		"Spam or scam",
		"Other",
	},
	ReportContextMessage: {
		"Harassment",
		"Spam",
		"Threats or violence",
		"Inappropriate content",
		"Scam or fraud",
		"Other",
	},
}

// Service handles report submission
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates moderation service
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// SubmitReport validates and stores a report from reporterID
func (s *Service) SubmitReport(ctx context.Context, reporterID uuid.UUID, req *CreateReportRequest) (*Report, error) {
	if reporterID == req.TargetID {
		return nil, ErrCannotReportSelf
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	if utf8.RuneCountInString(reason) > MaxReasonLength {
		return nil, ErrReasonTooLong
	}
	if !req.Context.Valid() {
		return nil, ErrInvalidContext
	}

	report := &Report{
		ID:         uuid.New(),
		ReporterID: reporterID,
		TargetID:   req.TargetID,
		Context:    req.Context,
		Reason:     reason,
		Status:     ReportStatusPending,
		CreatedAt:  s.now(),
	}
	if err := s.repo.CreateReport(ctx, report); err != nil {
		return nil, err
	}

	logger.LogInfo(ctx, "Report submitted",
		"report_id", report.ID.String(),
		"context", string(report.Context),
	)
	return report, nil
}

// ListMyReports returns reports created by the user, newest first
func (s *Service) ListMyReports(ctx context.Context, reporterID uuid.UUID) ([]*ReportWithTarget, error) {
	return s.repo.ListReportsByReporter(ctx, reporterID)
}

// ReportReasons returns the predefined reasons offered for a context.
// Unknown contexts get a single "Other".
func ReportReasons(c ReportContext) []string {
	reasons, ok := reportReasons[c]
	if !ok {
		return []string{"Other"}
	}
	out := make([]string, len(reasons))
	copy(out, reasons)
	return out
}
