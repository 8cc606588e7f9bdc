package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/kasigigs/kasigigs-backend/internal/gateway"
	"github.com/kasigigs/kasigigs-backend/internal/models"
	"github.com/kasigigs/kasigigs-backend/internal/pkg/apperror"
)

// EscrowRepository is the storage surface the escrow service depends on.
type EscrowRepository interface {
	Create(ctx context.Context, e *models.EscrowPayment, intent *models.PendingIntent) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.EscrowPayment, error)
	GetCurrentByMilestone(ctx context.Context, milestoneID uuid.UUID) (*models.EscrowPayment, error)
	ListByGig(ctx context.Context, gigID uuid.UUID) ([]models.EscrowPayment, error)
	ConfirmHeld(ctx context.Context, externalRef, eventType string) (*models.EscrowPayment, bool, error)
	Release(ctx context.Context, id uuid.UUID, payoutRef string, actorID *uuid.UUID) (*models.EscrowPayment, bool, error)
	Refund(ctx context.Context, id uuid.UUID, reason string, actorID *uuid.UUID) (*models.EscrowPayment, error)
	ListLedger(ctx context.Context, escrowID uuid.UUID) ([]models.LedgerEntry, error)
}

// PaymentGateway is the outbound side of the money flow.
type PaymentGateway interface {
	CreatePaymentSession(ctx context.Context, amountCents int64, currency, reference string) (*gateway.PaymentSession, error)
	InitiatePayout(ctx context.Context, account string, amountCents int64, currency, reference string) (*gateway.Payout, error)
}

// EscrowMilestoneStore resolves the milestone an escrow funds.
type EscrowMilestoneStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
}

// EscrowGigStore resolves the gig's parties.
type EscrowGigStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Posting, error)
}

// EscrowWorkerStore resolves the accepted application of a gig.
type EscrowWorkerStore interface {
	GetAccepted(ctx context.Context, postingID uuid.UUID) (*models.Application, error)
}

// EscrowService moves milestone money: funding deposits through a gateway
// session, confirming holds from webhooks, releasing approved work and
// refunding. The platform fee is carved out of the gross on release.
type EscrowService struct {
	repo       EscrowRepository
	gw         PaymentGateway
	milestones EscrowMilestoneStore
	gigs       EscrowGigStore
	workers    EscrowWorkerStore
	notify     *NotificationService
	signer     *gateway.Signer

	currency      string
	feeBps        int64
	payoutAccount string
}

// FundResult pairs the initiated escrow with the redirect the payer must
// follow to complete the hold.
type FundResult struct {
	Escrow      *models.EscrowPayment `json:"escrow"`
	RedirectURL string                `json:"redirect_url"`
}

func NewEscrowService(repo EscrowRepository, gw PaymentGateway, milestones EscrowMilestoneStore, gigs EscrowGigStore, workers EscrowWorkerStore, notify *NotificationService, signer *gateway.Signer, currency string, feeBps int64, payoutAccount string) *EscrowService {
	return &EscrowService{
		repo:          repo,
		gw:            gw,
		milestones:    milestones,
		gigs:          gigs,
		workers:       workers,
		notify:        notify,
		signer:        signer,
		currency:      currency,
		feeBps:        feeBps,
		payoutAccount: payoutAccount,
	}
}

// Fund opens a gateway session for a milestone's amount and records the
// escrow as initiated; payer only. Funding an already escrowed milestone
// fails on the one-non-terminal-escrow rule.
func (s *EscrowService) Fund(ctx context.Context, callerID, milestoneID uuid.UUID) (*FundResult, error) {
	milestone, err := s.milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return nil, err
	}

	posting, err := s.gigs.GetByID(ctx, milestone.GigID)
	if err != nil {
		return nil, err
	}
	if posting.OwnerID != callerID {
		return nil, apperror.ErrForbidden
	}
	if posting.Status != models.PostingStatusInProgress {
		return nil, apperror.New(apperror.ErrCodePrecondition, "gig_not_in_progress", "the gig is not in progress")
	}
	if milestone.Status == models.MilestoneStatusPaid {
		return nil, apperror.New(apperror.ErrCodePrecondition, "milestone_paid", "milestone is already paid")
	}

	accepted, err := s.workers.GetAccepted(ctx, milestone.GigID)
	if err != nil {
		return nil, err
	}
	if accepted == nil {
		return nil, apperror.ErrNoAcceptedApplication
	}

	if current, err := s.repo.GetCurrentByMilestone(ctx, milestoneID); err != nil {
		return nil, err
	} else if current != nil {
		return nil, apperror.New(apperror.ErrCodePrecondition, "escrow_exists", "an active escrow for this milestone already exists")
	}

	gross := milestone.Amount
	fee := gross * s.feeBps / 10000
	escrow := &models.EscrowPayment{
		GigID:       milestone.GigID,
		MilestoneID: milestoneID,
		PayerID:     posting.OwnerID,
		PayeeID:     accepted.ApplicantID,
		Gross:       gross,
		Fee:         fee,
		Net:         gross - fee,
		Method:      "gateway",
	}

	session, err := s.gw.CreatePaymentSession(ctx, gross, s.currency, uuid.NewString())
	if err != nil {
		return nil, err
	}
	escrow.ExternalRef = &session.SessionRef

	intent := &models.PendingIntent{ExternalRef: session.SessionRef}
	if err := s.repo.Create(ctx, escrow, intent); err != nil {
		return nil, err
	}

	return &FundResult{Escrow: escrow, RedirectURL: session.RedirectURL}, nil
}

// HandleWebhook verifies and applies a gateway notification. Replays of an
// already processed event succeed without re-applying anything.
func (s *EscrowService) HandleWebhook(ctx context.Context, fields map[string]string) error {
	signature := fields["signature"]
	if signature == "" || !s.signer.Verify(fields, signature) {
		return apperror.ErrBadSignature
	}

	eventType := fields["event_type"]
	externalRef := fields["external_ref"]
	if externalRef == "" {
		return apperror.New(apperror.ErrCodeBadRequest, "missing_ref", "external_ref is required")
	}

	switch eventType {
	case "payment_held":
		escrow, applied, err := s.repo.ConfirmHeld(ctx, externalRef, eventType)
		if err != nil {
			return err
		}
		if applied {
			s.notify.Notify(ctx, escrow.PayeeID, models.NotifyEscrowStatus,
				"Milestone funded", "The milestone deposit is held in escrow", &escrow.MilestoneID)
			s.notify.Notify(ctx, escrow.PayerID, models.NotifyEscrowStatus,
				"Deposit confirmed", "Your milestone deposit is held in escrow", &escrow.MilestoneID)
		}
		return nil
	case "payment_failed":
		// The session intent will be swept as stale; nothing to apply.
		return nil
	default:
		return apperror.New(apperror.ErrCodeBadRequest, "unknown_event", "unknown webhook event type")
	}
}

// Release pays out a held escrow for an approved milestone; payer only.
// The payout runs before the state flips so a gateway failure leaves the
// escrow held and retryable.
func (s *EscrowService) Release(ctx context.Context, callerID, escrowID uuid.UUID) (*models.EscrowPayment, error) {
	escrow, err := s.repo.GetByID(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if escrow.PayerID != callerID {
		return nil, apperror.ErrForbidden
	}
	if escrow.Status != models.EscrowStatusHeld {
		return nil, apperror.ErrEscrowNotHeld
	}

	milestone, err := s.milestones.GetByID(ctx, escrow.MilestoneID)
	if err != nil {
		return nil, err
	}
	if milestone.Status != models.MilestoneStatusApproved {
		return nil, apperror.New(apperror.ErrCodePrecondition, "milestone_not_approved", "only approved milestones can be released")
	}

	payout, err := s.gw.InitiatePayout(ctx, s.payoutAccount, escrow.Net, s.currency, escrow.ID.String())
	if err != nil {
		return nil, err
	}

	released, gigCompleted, err := s.repo.Release(ctx, escrowID, payout.PayoutRef, &callerID)
	if err != nil {
		return nil, err
	}

	s.notify.Notify(ctx, released.PayeeID, models.NotifyEscrowStatus,
		"Milestone paid", "The milestone payment was released to you", &released.MilestoneID)
	if gigCompleted {
		s.notify.Notify(ctx, released.PayeeID, models.NotifyEscrowStatus,
			"Gig completed", "All milestones are paid, the gig is complete", &released.GigID)
		s.notify.Notify(ctx, released.PayerID, models.NotifyEscrowStatus,
			"Gig completed", "All milestones are paid, the gig is complete", &released.GigID)
	}
	return released, nil
}

// Refund returns a held deposit to the payer; payer or admin.
func (s *EscrowService) Refund(ctx context.Context, callerID uuid.UUID, callerRole string, escrowID uuid.UUID, reason string) (*models.EscrowPayment, error) {
	escrow, err := s.repo.GetByID(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if escrow.PayerID != callerID && callerRole != models.RoleAdmin {
		return nil, apperror.ErrForbidden
	}

	refunded, err := s.repo.Refund(ctx, escrowID, reason, &callerID)
	if err != nil {
		return nil, err
	}

	s.notify.Notify(ctx, refunded.PayerID, models.NotifyEscrowStatus,
		"Deposit refunded", "The milestone deposit was refunded", &refunded.MilestoneID)
	s.notify.Notify(ctx, refunded.PayeeID, models.NotifyEscrowStatus,
		"Escrow refunded", "The milestone deposit was returned to the employer", &refunded.MilestoneID)
	return refunded, nil
}

// Get returns one escrow to either party.
func (s *EscrowService) Get(ctx context.Context, callerID, escrowID uuid.UUID) (*models.EscrowPayment, error) {
	escrow, err := s.repo.GetByID(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if escrow.PayerID != callerID && escrow.PayeeID != callerID {
		return nil, apperror.ErrForbidden
	}
	return escrow, nil
}

// ListByGig returns a gig's escrows to either party.
func (s *EscrowService) ListByGig(ctx context.Context, callerID, gigID uuid.UUID) ([]models.EscrowPayment, error) {
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

// Ledger returns the movement history of an escrow to either party.
func (s *EscrowService) Ledger(ctx context.Context, callerID, escrowID uuid.UUID) ([]models.LedgerEntry, error) {
	if _, err := s.Get(ctx, callerID, escrowID); err != nil {
		return nil, err
	}
	return s.repo.ListLedger(ctx, escrowID)
}
