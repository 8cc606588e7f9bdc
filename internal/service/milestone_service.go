package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kasigigs/kasigigs-backend/internal/models"
	"github.com/kasigigs/kasigigs-backend/internal/pkg/apperror"
	"github.com/kasigigs/kasigigs-backend/internal/validation"
)

// MilestoneRepository is the storage surface the milestone service
// depends on.
type MilestoneRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
	ListByGig(ctx context.Context, gigID uuid.UUID) ([]models.Milestone, error)
	NextPending(ctx context.Context, gigID uuid.UUID) (*models.Milestone, error)
	Submit(ctx context.Context, id uuid.UUID, observedVersion int, note *string, deliverableIDs models.UUIDSlice, links models.StringSlice, actorID uuid.UUID) (*models.Milestone, error)
	Review(ctx context.Context, id uuid.UUID, observedVersion int, toStatus string, notes *string, actorID uuid.UUID) (*models.Milestone, error)
}

// MilestoneGigStore resolves the parties of a gig: the posting owner pays,
// the accepted applicant delivers.
type MilestoneGigStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Posting, error)
}

// MilestoneWorkerStore resolves the accepted application of a gig.
type MilestoneWorkerStore interface {
	GetAccepted(ctx context.Context, postingID uuid.UUID) (*models.Application, error)
}

// MilestoneEscrowStore resolves the current escrow funding a milestone.
type MilestoneEscrowStore interface {
	GetCurrentByMilestone(ctx context.Context, milestoneID uuid.UUID) (*models.EscrowPayment, error)
}

// EscrowReleaser pays out a held escrow on the payer's behalf.
type EscrowReleaser interface {
	Release(ctx context.Context, callerID, escrowID uuid.UUID) (*models.EscrowPayment, error)
}

// MilestoneService drives the delivery side of a gig: ordered submission
// by the worker, review by the employer. Approval requires the milestone
// to be escrowed and hands the payout off to the escrow service.
type MilestoneService struct {
	repo     MilestoneRepository
	gigs     MilestoneGigStore
	workers  MilestoneWorkerStore
	escrows  MilestoneEscrowStore
	releaser EscrowReleaser
	notify   *NotificationService
}

// SubmitInput carries a milestone submission.
type SubmitInput struct {
	MilestoneID     uuid.UUID
	ObservedVersion int
	Note            *string
	DeliverableIDs  []uuid.UUID
	ExternalLinks   []string
}

// ReviewInput carries the employer's decision on a submitted milestone.
type ReviewInput struct {
	MilestoneID     uuid.UUID
	ObservedVersion int
	Decision        string
	Notes           *string
}

// Review decisions.
const (
	DecisionApprove         = "approve"
	DecisionReject          = "reject"
	DecisionRequestRevision = "request_revision"
)

func NewMilestoneService(repo MilestoneRepository, gigs MilestoneGigStore, workers MilestoneWorkerStore, escrows MilestoneEscrowStore, releaser EscrowReleaser, notify *NotificationService) *MilestoneService {
	return &MilestoneService{
		repo:     repo,
		gigs:     gigs,
		workers:  workers,
		escrows:  escrows,
		releaser: releaser,
		notify:   notify,
	}
}

// Get returns one milestone to either party of the gig.
func (s *MilestoneService) Get(ctx context.Context, callerID, milestoneID uuid.UUID) (*models.Milestone, error) {
	milestone, err := s.repo.GetByID(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.parties(ctx, milestone.GigID, callerID); err != nil {
		return nil, err
	}
	return milestone, nil
}

// ListByGig returns the gig's ordered milestones to either party.
func (s *MilestoneService) ListByGig(ctx context.Context, callerID, gigID uuid.UUID) ([]models.Milestone, error) {
	if _, _, err := s.parties(ctx, gigID, callerID); err != nil {
		return nil, err
	}
	return s.repo.ListByGig(ctx, gigID)
}

// Submit hands in the next pending milestone; worker only. Ordering and
// the version check are enforced in the same transaction.
func (s *MilestoneService) Submit(ctx context.Context, callerID uuid.UUID, in SubmitInput) (*models.Milestone, error) {
	milestone, err := s.repo.GetByID(ctx, in.MilestoneID)
	if err != nil {
		return nil, err
	}

	owner, worker, err := s.parties(ctx, milestone.GigID, callerID)
	if err != nil {
		return nil, err
	}
	if callerID != worker {
		return nil, apperror.ErrForbidden
	}
	if err := validation.ValidateExternalLinks(in.ExternalLinks); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "invalid_links", err.Error())
	}

	updated, err := s.repo.Submit(ctx, in.MilestoneID, in.ObservedVersion, in.Note, in.DeliverableIDs, in.ExternalLinks, callerID)
	if err != nil {
		return nil, err
	}

	s.notify.Notify(ctx, owner, models.NotifyMilestoneStatus,
		"Milestone submitted", "Milestone \""+updated.Title+"\" was submitted for review", &updated.ID)
	return updated, nil
}

// Review applies the employer's decision on a submitted milestone.
// Approval makes the milestone payable; rejection and revision requests
// send it back to pending, the latter bumping the revision counter.
func (s *MilestoneService) Review(ctx context.Context, callerID uuid.UUID, in ReviewInput) (*models.Milestone, error) {
	milestone, err := s.repo.GetByID(ctx, in.MilestoneID)
	if err != nil {
		return nil, err
	}

	owner, worker, err := s.parties(ctx, milestone.GigID, callerID)
	if err != nil {
		return nil, err
	}
	if callerID != owner {
		return nil, apperror.ErrForbidden
	}

	var toStatus string
	switch in.Decision {
	case DecisionApprove:
		toStatus = models.MilestoneStatusApproved
	case DecisionReject:
		toStatus = models.MilestoneStatusRejected
	case DecisionRequestRevision:
		toStatus = models.MilestoneStatusRevisionRequested
	default:
		return nil, apperror.New(apperror.ErrCodeValidation, "invalid_decision", "decision must be approve, reject or request_revision")
	}
	if toStatus != models.MilestoneStatusApproved && (in.Notes == nil || *in.Notes == "") {
		return nil, apperror.New(apperror.ErrCodeValidation, "notes_required", "rejection and revision requests need review notes")
	}

	var escrow *models.EscrowPayment
	if toStatus == models.MilestoneStatusApproved {
		escrow, err = s.escrows.GetCurrentByMilestone(ctx, in.MilestoneID)
		if err != nil {
			return nil, err
		}
		if escrow == nil || escrow.Status != models.EscrowStatusHeld {
			return nil, apperror.ErrEscrowNotHeld
		}
	}

	updated, err := s.repo.Review(ctx, in.MilestoneID, in.ObservedVersion, toStatus, in.Notes, callerID)
	if err != nil {
		return nil, err
	}

	if escrow != nil {
		// A failed payout leaves the milestone approved and the held
		// escrow releasable through the escrow endpoint.
		if _, err := s.releaser.Release(ctx, callerID, escrow.ID); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"milestone_id": updated.ID,
				"escrow_id":    escrow.ID,
			}).Warn("milestone review: escrow release failed")
		}
	}

	s.notify.Notify(ctx, worker, models.NotifyMilestoneStatus,
		"Milestone reviewed", "Milestone \""+updated.Title+"\" is now "+updated.Status, &updated.ID)
	return updated, nil
}

// NextPending returns the lowest-indexed pending milestone of a gig.
func (s *MilestoneService) NextPending(ctx context.Context, callerID, gigID uuid.UUID) (*models.Milestone, error) {
	if _, _, err := s.parties(ctx, gigID, callerID); err != nil {
		return nil, err
	}
	return s.repo.NextPending(ctx, gigID)
}

// parties returns (owner, worker) of the gig and checks the caller is one
// of them.
func (s *MilestoneService) parties(ctx context.Context, gigID, callerID uuid.UUID) (uuid.UUID, uuid.UUID, error) {
	posting, err := s.gigs.GetByID(ctx, gigID)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	accepted, err := s.workers.GetAccepted(ctx, gigID)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if accepted == nil {
		return uuid.Nil, uuid.Nil, apperror.ErrNoAcceptedApplication
	}
	if callerID != posting.OwnerID && callerID != accepted.ApplicantID {
		return uuid.Nil, uuid.Nil, apperror.ErrForbidden
	}
	return posting.OwnerID, accepted.ApplicantID, nil
}
