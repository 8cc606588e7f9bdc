package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kasigigs/kasigigs-backend/internal/models"
	"github.com/kasigigs/kasigigs-backend/internal/pkg/apperror"
	"github.com/kasigigs/kasigigs-backend/internal/repository/common"
)

type ReportRepository struct {
	db *sqlx.DB
}

func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create files a moderation report.
func (r *ReportRepository) Create(ctx context.Context, report *models.Report) error {
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO reports (reporter_id, target_type, target_id, reason, description, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		RETURNING id, status, created_at
	`, report.ReporterID, report.TargetType, report.TargetID, report.Reason, report.Description).
		Scan(&report.ID, &report.Status, &report.CreatedAt)
	if err != nil {
		return fmt.Errorf("report repository: create: %w", err)
	}
	return nil
}

// GetByID returns a report by id.
func (r *ReportRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	return common.GetByID[models.Report](ctx, r.db, "reports", id, apperror.New(apperror.ErrCodeNotFound, "missing_report", "report not found"))
}

// ListPending returns unreviewed reports, oldest first.
func (r *ReportRepository) ListPending(ctx context.Context, limit, offset int) ([]models.Report, error) {
	var reports []models.Report
	err := r.db.SelectContext(ctx, &reports, `
		SELECT * FROM reports WHERE status = 'pending' ORDER BY created_at ASC LIMIT $1 OFFSET $2
	`, limit, offset)
	return reports, err
}

// ListByReporter returns the reporter's own reports, newest first.
func (r *ReportRepository) ListByReporter(ctx context.Context, reporterID uuid.UUID, limit, offset int) ([]models.Report, error) {
	var reports []models.Report
	err := r.db.SelectContext(ctx, &reports, `
		SELECT * FROM reports WHERE reporter_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, reporterID, limit, offset)
	return reports, err
}

// Resolve closes a report with the admin's decision.
func (r *ReportRepository) Resolve(ctx context.Context, id, adminID uuid.UUID, status string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE reports SET status = $2, reviewed_by = $3, reviewed_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, status, adminID)
	if err != nil {
		return fmt.Errorf("report repository: resolve: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.ErrInvalidTransition
	}
	return nil
}
