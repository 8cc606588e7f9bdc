package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/kasigigs/kasigigs-backend/internal/models"
	"github.com/kasigigs/kasigigs-backend/internal/pkg/apperror"
	"github.com/kasigigs/kasigigs-backend/internal/validation"
)

// ApplicationRepository is the storage surface the application service
// depends on.
type ApplicationRepository interface {
	Create(ctx context.Context, a *models.Application) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Application, error)
	GetActive(ctx context.Context, postingID, applicantID uuid.UUID) (*models.Application, error)
	ListByPosting(ctx context.Context, postingID uuid.UUID) ([]models.Application, error)
	ListByApplicant(ctx context.Context, applicantID uuid.UUID, limit, offset int) ([]models.Application, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, toStatus string, fromStatuses []string, actorID uuid.UUID, rejectionReason *string) (*models.Application, error)
	Accept(ctx context.Context, postingID, applicationID, ownerID uuid.UUID, agreedAmount int64, milestones []models.Milestone) (*models.Application, error)
}

// ApplicationPostingStore resolves postings for gate checks.
type ApplicationPostingStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Posting, error)
}

// ApplicationTestGate answers whether the applicant passed the posting's
// skill test.
type ApplicationTestGate interface {
	HasPassedAttempt(ctx context.Context, applicantID, postingID uuid.UUID) (bool, error)
}

// ApplicationService owns the bid lifecycle: apply, shortlist, reject,
// withdraw and the hire that seeds the milestone plan.
type ApplicationService struct {
	repo     ApplicationRepository
	postings ApplicationPostingStore
	testGate ApplicationTestGate
	notify   *NotificationService
}

// ApplyInput is the payload for a new application.
type ApplyInput struct {
	PostingID     uuid.UUID
	CoverLetter   string
	ProposedRate  *int64
	Timeline      *string
	AttachmentIDs []uuid.UUID
}

// AcceptInput carries the hire decision.
type AcceptInput struct {
	ApplicationID uuid.UUID
	AgreedAmount  int64
	Milestones    []models.MilestonePlanItem
}

func NewApplicationService(repo ApplicationRepository, postings ApplicationPostingStore, testGate ApplicationTestGate, notify *NotificationService) *ApplicationService {
	return &ApplicationService{
		repo:     repo,
		postings: postings,
		testGate: testGate,
		notify:   notify,
	}
}

// Apply submits a bid on an open posting.
func (s *ApplicationService) Apply(ctx context.Context, applicantID uuid.UUID, applicantRole string, in ApplyInput) (*models.Application, error) {
	if applicantRole != models.RoleJobSeeker {
		return nil, apperror.ErrForbiddenRole
	}
	if err := validation.ValidateCoverNote(in.CoverLetter); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "invalid_cover_letter", err.Error())
	}
	if in.ProposedRate != nil && *in.ProposedRate <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "invalid_rate", "proposed rate must be positive")
	}

	posting, err := s.postings.GetByID(ctx, in.PostingID)
	if err != nil {
		return nil, err
	}
	if posting.Status != models.PostingStatusOpen {
		return nil, apperror.ErrPostingClosed
	}
	if posting.OwnerID == applicantID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "own_posting", "cannot apply to your own posting")
	}

	if posting.RequiresSkillTest() {
		passed, err := s.testGate.HasPassedAttempt(ctx, applicantID, posting.ID)
		if err != nil {
			return nil, err
		}
		if !passed {
			return nil, apperror.ErrRequiresTestNotPassed
		}
	}

	application := &models.Application{
		PostingID:     in.PostingID,
		ApplicantID:   applicantID,
		Status:        models.ApplicationStatusPending,
		CoverLetter:   in.CoverLetter,
		ProposedRate:  in.ProposedRate,
		Timeline:      in.Timeline,
		AttachmentIDs: in.AttachmentIDs,
	}

	// The partial unique index rejects a second active application.
	if err := s.repo.Create(ctx, application); err != nil {
		return nil, err
	}

	s.notify.Notify(ctx, posting.OwnerID, models.NotifyApplicationStatus,
		"New application", "A new application arrived on "+posting.Title, &application.ID)

	return application, nil
}

// Withdraw retires the applicant's own non-terminal application.
func (s *ApplicationService) Withdraw(ctx context.Context, applicationID, callerID uuid.UUID) (*models.Application, error) {
	application, err := s.repo.GetByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if application.ApplicantID != callerID {
		return nil, apperror.ErrForbidden
	}
	return s.repo.UpdateStatus(ctx, applicationID, models.ApplicationStatusWithdrawn,
		[]string{models.ApplicationStatusPending, models.ApplicationStatusShortlisted}, callerID, nil)
}

// Shortlist moves a pending application to the shortlist; owner only.
func (s *ApplicationService) Shortlist(ctx context.Context, applicationID, callerID uuid.UUID) (*models.Application, error) {
	application, err := s.ownedApplication(ctx, applicationID, callerID)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, applicationID, models.ApplicationStatusShortlisted,
		[]string{models.ApplicationStatusPending}, callerID, nil)
	if err != nil {
		return nil, err
	}

	s.notify.Notify(ctx, application.ApplicantID, models.NotifyApplicationStatus,
		"Application shortlisted", "Your application was shortlisted", &application.ID)
	return updated, nil
}

// Reject declines an application with an optional reason; owner only.
func (s *ApplicationService) Reject(ctx context.Context, applicationID, callerID uuid.UUID, reason *string) (*models.Application, error) {
	application, err := s.ownedApplication(ctx, applicationID, callerID)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, applicationID, models.ApplicationStatusRejected,
		[]string{models.ApplicationStatusPending, models.ApplicationStatusShortlisted}, callerID, reason)
	if err != nil {
		return nil, err
	}

	s.notify.Notify(ctx, application.ApplicantID, models.NotifyApplicationStatus,
		"Application rejected", "Your application was not selected", &application.ID)
	return updated, nil
}

// Accept hires the applicant. For gigs the milestone plan is materialized
// in the same transaction that closes the posting and rejects the other
// applications; a concurrent accept loses with a conflict.
func (s *ApplicationService) Accept(ctx context.Context, callerID uuid.UUID, in AcceptInput) (*models.Application, error) {
	application, err := s.repo.GetByID(ctx, in.ApplicationID)
	if err != nil {
		return nil, err
	}

	posting, err := s.postings.GetByID(ctx, application.PostingID)
	if err != nil {
		return nil, err
	}
	if posting.OwnerID != callerID {
		return nil, apperror.ErrForbidden
	}
	if in.AgreedAmount <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "invalid_amount", "agreed amount must be positive")
	}

	var milestones []models.Milestone
	if posting.IsGig() {
		milestones, err = buildMilestonePlan(posting.ID, in.Milestones, in.AgreedAmount)
		if err != nil {
			return nil, err
		}
	} else if len(in.Milestones) > 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "milestones_on_job", "milestone plans apply to gigs only")
	}

	accepted, err := s.repo.Accept(ctx, posting.ID, in.ApplicationID, callerID, in.AgreedAmount, milestones)
	if err != nil {
		return nil, err
	}

	s.notify.Notify(ctx, accepted.ApplicantID, models.NotifyApplicationStatus,
		"You are hired", "Your application on "+posting.Title+" was accepted", &accepted.ID)
	return accepted, nil
}

// ListForPosting returns a posting's applications; owner only.
func (s *ApplicationService) ListForPosting(ctx context.Context, postingID, callerID uuid.UUID) ([]models.Application, error) {
	posting, err := s.postings.GetByID(ctx, postingID)
	if err != nil {
		return nil, err
	}
	if posting.OwnerID != callerID {
		return nil, apperror.ErrForbidden
	}
	return s.repo.ListByPosting(ctx, postingID)
}

// ListMine returns the caller's applications.
func (s *ApplicationService) ListMine(ctx context.Context, applicantID uuid.UUID, limit, offset int) ([]models.Application, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListByApplicant(ctx, applicantID, limit, offset)
}

func (s *ApplicationService) ownedApplication(ctx context.Context, applicationID, callerID uuid.UUID) (*models.Application, error) {
	application, err := s.repo.GetByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	posting, err := s.postings.GetByID(ctx, application.PostingID)
	if err != nil {
		return nil, err
	}
	if posting.OwnerID != callerID {
		return nil, apperror.ErrForbidden
	}
	return application, nil
}

// buildMilestonePlan turns percentage slices into concrete milestones.
// An empty plan defaults to a single 100% milestone for the whole agreed
// amount. Percentages must sum to exactly 100; rounding cents land on the
// last milestone so the amounts sum to the agreed total.
func buildMilestonePlan(gigID uuid.UUID, items []models.MilestonePlanItem, agreedAmount int64) ([]models.Milestone, error) {
	if len(items) == 0 {
		return []models.Milestone{{
			GigID:      gigID,
			Index:      0,
			Title:      "Full delivery",
			Percentage: 100,
			Amount:     agreedAmount,
			Status:     models.MilestoneStatusPending,
		}}, nil
	}
	if len(items) > validation.MaxMilestoneCount {
		return nil, apperror.New(apperror.ErrCodeValidation, "plan_too_long", "too many milestones")
	}

	total := 0
	for _, item := range items {
		if err := validation.ValidateMilestoneTitle(item.Title); err != nil {
			return nil, apperror.New(apperror.ErrCodeValidation, "invalid_milestone_title", err.Error())
		}
		if item.Percentage <= 0 || item.Percentage > 100 {
			return nil, apperror.New(apperror.ErrCodeValidation, "invalid_percentage", "milestone percentages must be between 1 and 100")
		}
		total += item.Percentage
	}
	if total != 100 {
		return nil, apperror.New(apperror.ErrCodeValidation, "percentages_not_100", "milestone percentages must sum to 100")
	}

	milestones := make([]models.Milestone, len(items))
	var allocated int64
	for i, item := range items {
		amount := agreedAmount * int64(item.Percentage) / 100
		if i == len(items)-1 {
			amount = agreedAmount - allocated
		}
		allocated += amount

		milestones[i] = models.Milestone{
			GigID:      gigID,
			Index:      i,
			Title:      item.Title,
			Percentage: item.Percentage,
			Amount:     amount,
			Status:     models.MilestoneStatusPending,
		}
	}
	return milestones, nil
}
