package service

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/kasigigs/kasigigs-backend/internal/models"
	"github.com/kasigigs/kasigigs-backend/internal/pkg/apperror"
	"github.com/kasigigs/kasigigs-backend/internal/validation"
)

// ReviewRepository is the storage surface the review service depends on.
type ReviewRepository interface {
	Create(ctx context.Context, review *models.Review) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Review, error)
	GetByGigAndAuthor(ctx context.Context, gigID, authorID uuid.UUID) (*models.Review, error)
	ListBySubject(ctx context.Context, subjectID uuid.UUID, limit, offset int) ([]models.Review, error)
	ListByGig(ctx context.Context, gigID uuid.UUID) ([]models.Review, error)
	GetAggregate(ctx context.Context, userID uuid.UUID) (*models.RatingAggregate, error)
	Flag(ctx context.Context, id uuid.UUID, moderatorID uuid.UUID) error
}

// ReviewGigStore resolves the reviewed gig.
type ReviewGigStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Posting, error)
}

// ReviewWorkerStore resolves the accepted application of a gig.
type ReviewWorkerStore interface {
	GetAccepted(ctx context.Context, postingID uuid.UUID) (*models.Application, error)
}

// ReviewService owns the bilateral reviews on completed gigs and the
// rolling rating aggregates. Each side rates four role-specific
// dimensions; the overall rating is the one-decimal mean of the rated ones.
type ReviewService struct {
	repo    ReviewRepository
	gigs    ReviewGigStore
	workers ReviewWorkerStore
	notify  *NotificationService
}

// CreateReviewInput carries one side's review of a completed gig.
type CreateReviewInput struct {
	GigID          uuid.UUID
	Dimensions     map[string]int
	Text           *string
	WouldRecommend bool
}

func NewReviewService(repo ReviewRepository, gigs ReviewGigStore, workers ReviewWorkerStore, notify *NotificationService) *ReviewService {
	return &ReviewService{
		repo:    repo,
		gigs:    gigs,
		workers: workers,
		notify:  notify,
	}
}

// Create submits the caller's review of the other party. Only parties of a
// completed gig may review, once each.
func (s *ReviewService) Create(ctx context.Context, authorID uuid.UUID, in CreateReviewInput) (*models.Review, error) {
	posting, err := s.gigs.GetByID(ctx, in.GigID)
	if err != nil {
		return nil, err
	}
	if posting.Status != models.PostingStatusCompleted {
		return nil, apperror.ErrGigNotCompleted
	}

	accepted, err := s.workers.GetAccepted(ctx, in.GigID)
	if err != nil {
		return nil, err
	}
	if accepted == nil {
		return nil, apperror.ErrNoAcceptedApplication
	}

	var subjectID uuid.UUID
	var authorRole string
	switch authorID {
	case posting.OwnerID:
		subjectID = accepted.ApplicantID
		authorRole = models.RoleEmployer
	case accepted.ApplicantID:
		subjectID = posting.OwnerID
		authorRole = models.RoleJobSeeker
	default:
		return nil, apperror.ErrForbidden
	}

	if in.Text != nil {
		if err := validation.ValidateLength("review text", *in.Text, 0, validation.MaxReviewCommentLength); err != nil {
			return nil, apperror.New(apperror.ErrCodeValidation, "invalid_text", err.Error())
		}
	}

	review := &models.Review{
		GigID:          in.GigID,
		AuthorID:       authorID,
		SubjectID:      subjectID,
		AuthorRole:     authorRole,
		Text:           in.Text,
		WouldRecommend: in.WouldRecommend,
	}
	if err := applyDimensions(review, in.Dimensions); err != nil {
		return nil, err
	}

	// The unique (gig, author) index turns a second review into a
	// precondition failure inside Create.
	if err := s.repo.Create(ctx, review); err != nil {
		return nil, err
	}

	s.notify.Notify(ctx, subjectID, models.NotifyReviewReceived,
		"New review", "You received a review on a completed gig", &review.ID)
	return review, nil
}

// ListForUser returns a user's visible reviews, newest first.
func (s *ReviewService) ListForUser(ctx context.Context, subjectID uuid.UUID, limit, offset int) ([]models.Review, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListBySubject(ctx, subjectID, limit, offset)
}

// ListForGig returns a gig's reviews to its parties.
func (s *ReviewService) ListForGig(ctx context.Context, callerID, gigID uuid.UUID) ([]models.Review, error) {
	posting, err := s.gigs.GetByID(ctx, gigID)
	if err != nil {
		return nil, err
	}
	accepted, err := s.workers.GetAccepted(ctx, gigID)
	if err != nil {
		return nil, err
	}
	if accepted == nil {
		return nil, apperror.ErrNoAcceptedApplication
	}
	if callerID != posting.OwnerID && callerID != accepted.ApplicantID {
		return nil, apperror.ErrForbidden
	}
	return s.repo.ListByGig(ctx, gigID)
}

// Aggregate returns a user's rolling rating summary.
func (s *ReviewService) Aggregate(ctx context.Context, userID uuid.UUID) (*models.RatingAggregate, error) {
	return s.repo.GetAggregate(ctx, userID)
}

// Flag hides a review from listings and aggregates; admin only. The
// subject's aggregate is rebuilt from the remaining visible reviews.
func (s *ReviewService) Flag(ctx context.Context, moderatorID uuid.UUID, moderatorRole string, reviewID uuid.UUID) error {
	if moderatorRole != models.RoleAdmin {
		return apperror.ErrForbiddenRole
	}
	return s.repo.Flag(ctx, reviewID, moderatorID)
}

// applyDimensions validates the named ratings against the author role's
// dimension set and computes the overall rating.
func applyDimensions(review *models.Review, dimensions map[string]int) error {
	names := models.EmployerReviewDimensions
	if review.AuthorRole == models.RoleJobSeeker {
		names = models.JobSeekerReviewDimensions
	}

	if len(dimensions) == 0 {
		return apperror.New(apperror.ErrCodeValidation, "no_dimensions", "at least one dimension rating is required")
	}
	for name := range dimensions {
		known := false
		for _, n := range names {
			if n == name {
				known = true
				break
			}
		}
		if !known {
			return apperror.New(apperror.ErrCodeValidation, "unknown_dimension", "unknown review dimension: "+name)
		}
	}

	targets := []**int{&review.Dimension1, &review.Dimension2, &review.Dimension3, &review.Dimension4}

	sum, count := 0, 0
	for i, name := range names {
		if value, ok := dimensions[name]; ok {
			if value < 1 || value > 5 {
				return apperror.New(apperror.ErrCodeValidation, "rating_out_of_range", "dimension ratings must be between 1 and 5")
			}
			v := value
			*targets[i] = &v
			sum += value
			count++
		}
	}

	review.OverallRating = math.Round(float64(sum)/float64(count)*10) / 10
	return nil
}
