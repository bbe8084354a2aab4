package moderation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Repository defines report data access
type Repository interface {
	CreateReport(ctx context.Context, report *Report) error
	ListReportsByReporter(ctx context.Context, reporterID uuid.UUID) ([]*ReportWithTarget, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates new report repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateReport(ctx context.Context, report *Report) error {
	query := `
		INSERT INTO reports (id, reporter_id, target_id, context, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		report.ID,
		report.ReporterID,
		report.TargetID,
		report.Context,
		report.Reason,
		report.Status,
		report.CreatedAt,
	)
	return mapCreateReportError(err)
}

func (r *repository) ListReportsByReporter(ctx context.Context, reporterID uuid.UUID) ([]*ReportWithTarget, error) {
	query := `
		SELECT r.id, r.reporter_id, r.target_id, r.context, r.reason, r.status, r.created_at,
		       p.username AS target_username, p.display_name AS target_display_name
		FROM reports r
		LEFT JOIN profiles p ON p.id = r.target_id
		WHERE r.reporter_id = $1
		ORDER BY r.created_at DESC
	`
	reports := []*ReportWithTarget{}
	err := r.db.SelectContext(ctx, &reports, query, reporterID)
	return reports, err
}

func mapCreateReportError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "23503":
		return fmt.Errorf("%w: %w", ErrTargetNotFound, err)
	case "23514":
		return fmt.Errorf("%w: %w", ErrInvalidReport, err)
	default:
		return err
	}
}

// MemoryRepository keeps reports in process memory
type MemoryRepository struct {
	reports []*Report
	mu      sync.RWMutex
}

// NewMemoryRepository creates an empty in-memory report store
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) CreateReport(_ context.Context, report *Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *report
	r.reports = append(r.reports, &cp)
	return nil
}

func (r *MemoryRepository) ListReportsByReporter(_ context.Context, reporterID uuid.UUID) ([]*ReportWithTarget, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*ReportWithTarget{}
	for _, report := range r.reports {
		if report.ReporterID == reporterID {
			out = append(out, &ReportWithTarget{Report: *report})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
