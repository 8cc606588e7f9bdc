package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/kasigigs/kasigigs-backend/internal/models"
	"github.com/kasigigs/kasigigs-backend/internal/pkg/apperror"
	"github.com/kasigigs/kasigigs-backend/internal/validation"
)

// PostingRepository is the storage surface the posting service depends on.
type PostingRepository interface {
	Create(ctx context.Context, p *models.Posting) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Posting, error)
	Update(ctx context.Context, p *models.Posting) error
	SetStatus(ctx context.Context, id uuid.UUID, toStatus string, fromStatuses []string, actorID *uuid.UUID) error
	List(ctx context.Context, filter models.PostingFilter) ([]models.Posting, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Posting, error)
}

// PostingTemplateStore resolves skill test templates referenced by postings.
type PostingTemplateStore interface {
	GetTemplate(ctx context.Context, id uuid.UUID) (*models.SkillTestTemplate, error)
}

// PostingService owns the posting lifecycle up to the point an application
// is accepted; from there the milestone pipeline drives the status.
type PostingService struct {
	repo      PostingRepository
	templates PostingTemplateStore
}

// PostingInput is the payload for creating or editing a posting.
type PostingInput struct {
	Kind           string
	Title          string
	Description    string
	RequiredSkills []string
	Location       *string
	BudgetMin      *int64
	BudgetMax      *int64

	SkillTestTemplateID *uuid.UUID
	SkillTestDifficulty *string
	PassingScore        *int
}

func NewPostingService(repo PostingRepository, templates PostingTemplateStore) *PostingService {
	return &PostingService{repo: repo, templates: templates}
}

// Create publishes a new open posting owned by the caller.
func (s *PostingService) Create(ctx context.Context, ownerID uuid.UUID, ownerRole string, in PostingInput) (*models.Posting, error) {
	if ownerRole != models.RoleEmployer {
		return nil, apperror.ErrForbiddenRole
	}
	if err := s.validateInput(ctx, &in); err != nil {
		return nil, err
	}

	posting := &models.Posting{
		OwnerID:             ownerID,
		Kind:                in.Kind,
		Title:               in.Title,
		Description:         in.Description,
		RequiredSkills:      in.RequiredSkills,
		Location:            in.Location,
		BudgetMin:           in.BudgetMin,
		BudgetMax:           in.BudgetMax,
		Status:              models.PostingStatusOpen,
		SkillTestTemplateID: in.SkillTestTemplateID,
		SkillTestDifficulty: in.SkillTestDifficulty,
		PassingScore:        in.PassingScore,
	}

	if err := s.repo.Create(ctx, posting); err != nil {
		return nil, err
	}
	return posting, nil
}

// Get returns one posting.
func (s *PostingService) Get(ctx context.Context, id uuid.UUID) (*models.Posting, error) {
	return s.repo.GetByID(ctx, id)
}

// Update edits an open posting. Editing is owner-only and closed postings
// are immutable.
func (s *PostingService) Update(ctx context.Context, id, callerID uuid.UUID, in PostingInput) (*models.Posting, error) {
	posting, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if posting.OwnerID != callerID {
		return nil, apperror.ErrForbidden
	}
	if posting.Status != models.PostingStatusOpen {
		return nil, apperror.ErrInvalidTransition
	}

	// Kind is immutable after creation.
	in.Kind = posting.Kind
	if err := s.validateInput(ctx, &in); err != nil {
		return nil, err
	}

	posting.Title = in.Title
	posting.Description = in.Description
	posting.RequiredSkills = in.RequiredSkills
	posting.Location = in.Location
	posting.BudgetMin = in.BudgetMin
	posting.BudgetMax = in.BudgetMax
	posting.SkillTestTemplateID = in.SkillTestTemplateID
	posting.SkillTestDifficulty = in.SkillTestDifficulty
	posting.PassingScore = in.PassingScore

	if err := s.repo.Update(ctx, posting); err != nil {
		return nil, err
	}
	return posting, nil
}

// Cancel closes an open posting without a hire.
func (s *PostingService) Cancel(ctx context.Context, id, callerID uuid.UUID) error {
	posting, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if posting.OwnerID != callerID {
		return apperror.ErrForbidden
	}
	return s.repo.SetStatus(ctx, id, models.PostingStatusCancelled, []string{models.PostingStatusOpen}, &callerID)
}

// Flag hides a posting pending moderation review; admin only.
func (s *PostingService) Flag(ctx context.Context, id, adminID uuid.UUID, adminRole string) error {
	if adminRole != models.RoleAdmin {
		return apperror.ErrForbiddenRole
	}
	return s.repo.SetStatus(ctx, id, models.PostingStatusFlagged,
		[]string{models.PostingStatusOpen, models.PostingStatusInProgress}, &adminID)
}

// List returns postings matching the filter. Unfiltered listings default
// to open postings only.
func (s *PostingService) List(ctx context.Context, filter models.PostingFilter) ([]models.Posting, error) {
	if filter.Status == nil {
		open := models.PostingStatusOpen
		filter.Status = &open
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	return s.repo.List(ctx, filter)
}

// ListOwn returns the caller's postings in any status.
func (s *PostingService) ListOwn(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Posting, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListByOwner(ctx, ownerID, limit, offset)
}

func (s *PostingService) validateInput(ctx context.Context, in *PostingInput) error {
	if in.Kind != models.PostingKindJob && in.Kind != models.PostingKindGig {
		return apperror.New(apperror.ErrCodeValidation, "invalid_kind", "posting kind must be job or gig")
	}
	if err := validation.ValidatePostingTitle(in.Title); err != nil {
		return apperror.New(apperror.ErrCodeValidation, "invalid_title", err.Error())
	}
	if err := validation.ValidatePostingDescription(in.Description); err != nil {
		return apperror.New(apperror.ErrCodeValidation, "invalid_description", err.Error())
	}
	if err := validation.ValidateSkills(in.RequiredSkills); err != nil {
		return apperror.New(apperror.ErrCodeValidation, "invalid_skills", err.Error())
	}
	if err := validation.ValidateLocation(in.Location); err != nil {
		return apperror.New(apperror.ErrCodeValidation, "invalid_location", err.Error())
	}
	if err := validation.ValidateBudget(in.BudgetMin, in.BudgetMax); err != nil {
		return apperror.New(apperror.ErrCodeValidation, "invalid_budget", err.Error())
	}

	// A skill test gate needs the full triple: template, difficulty, score.
	if in.SkillTestTemplateID != nil {
		if in.SkillTestDifficulty == nil || in.PassingScore == nil {
			return apperror.New(apperror.ErrCodeValidation, "incomplete_skill_test", "skill test difficulty and passing score are required with a template")
		}
		if _, ok := models.ValidDifficulties[*in.SkillTestDifficulty]; !ok {
			return apperror.New(apperror.ErrCodeValidation, "invalid_difficulty", "unknown skill test difficulty")
		}
		if *in.PassingScore < 1 || *in.PassingScore > 100 {
			return apperror.New(apperror.ErrCodeValidation, "invalid_passing_score", "passing score must be between 1 and 100")
		}
		if _, err := s.templates.GetTemplate(ctx, *in.SkillTestTemplateID); err != nil {
			return err
		}
	} else if in.SkillTestDifficulty != nil || in.PassingScore != nil {
		return apperror.New(apperror.ErrCodeValidation, "incomplete_skill_test", "skill test settings require a template")
	}

	return nil
}
