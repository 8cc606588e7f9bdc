package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/kasigigs/kasigigs-backend/internal/models"
	"github.com/kasigigs/kasigigs-backend/internal/pkg/apperror"
	"github.com/kasigigs/kasigigs-backend/internal/validation"
)

// ReportRepository is the storage surface the report service depends on.
type ReportRepository interface {
	Create(ctx context.Context, report *models.Report) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Report, error)
	ListPending(ctx context.Context, limit, offset int) ([]models.Report, error)
	ListByReporter(ctx context.Context, reporterID uuid.UUID, limit, offset int) ([]models.Report, error)
	Resolve(ctx context.Context, id, adminID uuid.UUID, status string) error
}

// ReportService collects moderation complaints and resolves them through
// the admin queue.
type ReportService struct {
	repo ReportRepository
}

// ReportInput carries a complaint against a posting, review or user.
type ReportInput struct {
	TargetType  string
	TargetID    uuid.UUID
	Reason      string
	Description *string
}

func NewReportService(repo ReportRepository) *ReportService {
	return &ReportService{repo: repo}
}

// Create files a new pending report.
func (s *ReportService) Create(ctx context.Context, reporterID uuid.UUID, in ReportInput) (*models.Report, error) {
	switch in.TargetType {
	case models.ReportTargetPosting, models.ReportTargetReview, models.ReportTargetUser:
	default:
		return nil, apperror.New(apperror.ErrCodeValidation, "invalid_target", "target must be posting, review or user")
	}
	if err := validation.ValidateNonEmpty("reason", in.Reason); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "invalid_reason", err.Error())
	}

	report := &models.Report{
		ReporterID:  reporterID,
		TargetType:  in.TargetType,
		TargetID:    in.TargetID,
		Reason:      in.Reason,
		Description: in.Description,
		Status:      models.ReportStatusPending,
	}
	if err := s.repo.Create(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

// ListPending returns the admin moderation queue.
func (s *ReportService) ListPending(ctx context.Context, callerRole string, limit, offset int) ([]models.Report, error) {
	if callerRole != models.RoleAdmin {
		return nil, apperror.ErrForbiddenRole
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListPending(ctx, limit, offset)
}

// ListMine returns the caller's filed reports.
func (s *ReportService) ListMine(ctx context.Context, reporterID uuid.UUID, limit, offset int) ([]models.Report, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListByReporter(ctx, reporterID, limit, offset)
}

// Resolve closes a pending report; admin only.
func (s *ReportService) Resolve(ctx context.Context, adminID uuid.UUID, adminRole string, reportID uuid.UUID, actionTaken bool) error {
	if adminRole != models.RoleAdmin {
		return apperror.ErrForbiddenRole
	}
	status := models.ReportStatusDismissed
	if actionTaken {
		status = models.ReportStatusActionTaken
	}
	return s.repo.Resolve(ctx, reportID, adminID, status)
}
