package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kasigigs/kasigigs-backend/internal/models"
	"github.com/kasigigs/kasigigs-backend/internal/pkg/apperror"
	"github.com/kasigigs/kasigigs-backend/internal/validation"
)

// DisputeRepository is the storage surface the dispute service depends on.
type DisputeRepository interface {
	Create(ctx context.Context, d *models.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetActiveByMilestone(ctx context.Context, milestoneID uuid.UUID) (*models.Dispute, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error)
	ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error)
	SubmitResponse(ctx context.Context, id uuid.UUID, respondentID uuid.UUID, response string) (*models.Dispute, error)
	AddEvidence(ctx context.Context, e *models.DisputeEvidence) error
	ListEvidence(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeEvidence, error)
}

// DisputeVerdictExecutor settles the frozen escrow per the admin verdict.
type DisputeVerdictExecutor interface {
	ExecuteVerdict(ctx context.Context, disputeID uuid.UUID, verdict string, splitPayeeGross int64, feeBps int64, resolvedBy uuid.UUID, payoutRef string) (*models.EscrowPayment, bool, error)
}

// DisputeEscrowStore resolves the escrow being disputed.
type DisputeEscrowStore interface {
	GetCurrentByMilestone(ctx context.Context, milestoneID uuid.UUID) (*models.EscrowPayment, error)
}

// DisputeMilestoneStore resolves the disputed milestone.
type DisputeMilestoneStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
}

// DisputeService runs the dispute flow: open against a held escrow, gather
// the response and evidence, settle by admin verdict.
type DisputeService struct {
	repo       DisputeRepository
	executor   DisputeVerdictExecutor
	escrows    DisputeEscrowStore
	milestones DisputeMilestoneStore
	gw         PaymentGateway
	notify     *NotificationService

	responseWindow time.Duration
	feeBps         int64
	currency       string
	payoutAccount  string
}

// OpenDisputeInput carries the initiating complaint.
type OpenDisputeInput struct {
	MilestoneID uuid.UUID
	Reason      string
}

// VerdictInput carries the admin resolution.
type VerdictInput struct {
	DisputeID        uuid.UUID
	Verdict          string
	SplitPayeeAmount int64
}

func NewDisputeService(repo DisputeRepository, executor DisputeVerdictExecutor, escrows DisputeEscrowStore, milestones DisputeMilestoneStore, gw PaymentGateway, notify *NotificationService, responseWindow time.Duration, feeBps int64, currency, payoutAccount string) *DisputeService {
	return &DisputeService{
		repo:           repo,
		executor:       executor,
		escrows:        escrows,
		milestones:     milestones,
		gw:             gw,
		notify:         notify,
		responseWindow: responseWindow,
		feeBps:         feeBps,
		currency:       currency,
		payoutAccount:  payoutAccount,
	}
}

// Open freezes the milestone's held escrow and starts the response clock.
// Either party of the escrow may initiate; the other becomes respondent.
func (s *DisputeService) Open(ctx context.Context, initiatorID uuid.UUID, in OpenDisputeInput) (*models.Dispute, error) {
	if err := validation.ValidateLength("dispute reason", in.Reason, 10, validation.MaxDisputeReasonLength); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "invalid_reason", err.Error())
	}

	escrow, err := s.escrows.GetCurrentByMilestone(ctx, in.MilestoneID)
	if err != nil {
		return nil, err
	}
	if escrow == nil {
		return nil, apperror.ErrEscrowNotHeld
	}

	var respondentID uuid.UUID
	switch initiatorID {
	case escrow.PayerID:
		respondentID = escrow.PayeeID
	case escrow.PayeeID:
		respondentID = escrow.PayerID
	default:
		return nil, apperror.ErrForbidden
	}

	dispute := &models.Dispute{
		GigID:            escrow.GigID,
		MilestoneID:      in.MilestoneID,
		EscrowID:         escrow.ID,
		InitiatorID:      initiatorID,
		RespondentID:     respondentID,
		Reason:           in.Reason,
		ResponseDeadline: time.Now().Add(s.responseWindow),
	}

	// Create checks the held state and the one-active-dispute rule in the
	// same transaction that freezes the escrow.
	if err := s.repo.Create(ctx, dispute); err != nil {
		return nil, err
	}

	s.notify.Notify(ctx, respondentID, models.NotifyDisputeStatus,
		"Dispute opened", "A dispute was opened against a milestone you are party to", &dispute.ID)
	return dispute, nil
}

// Get returns a dispute to its parties or an admin.
func (s *DisputeService) Get(ctx context.Context, callerID uuid.UUID, callerRole string, disputeID uuid.UUID) (*models.Dispute, error) {
	dispute, err := s.repo.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if callerID != dispute.InitiatorID && callerID != dispute.RespondentID && callerRole != models.RoleAdmin {
		return nil, apperror.ErrForbidden
	}
	return dispute, nil
}

// Respond records the respondent's answer within the response window.
func (s *DisputeService) Respond(ctx context.Context, callerID, disputeID uuid.UUID, response string) (*models.Dispute, error) {
	if err := validation.ValidateLength("dispute response", response, 1, validation.MaxDisputeReasonLength); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "invalid_response", err.Error())
	}

	updated, err := s.repo.SubmitResponse(ctx, disputeID, callerID, response)
	if err != nil {
		return nil, err
	}

	s.notify.Notify(ctx, updated.InitiatorID, models.NotifyDisputeStatus,
		"Dispute response received", "The other party responded to your dispute", &updated.ID)
	return updated, nil
}

// AddEvidence lets either party attach supporting material while the
// dispute is unresolved.
func (s *DisputeService) AddEvidence(ctx context.Context, callerID, disputeID uuid.UUID, note string, attachmentID *uuid.UUID) (*models.DisputeEvidence, error) {
	if err := validation.ValidateLength("evidence note", note, 1, validation.MaxEvidenceNoteLength); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "invalid_note", err.Error())
	}

	dispute, err := s.repo.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if callerID != dispute.InitiatorID && callerID != dispute.RespondentID {
		return nil, apperror.ErrForbidden
	}
	if dispute.Status == models.DisputeStatusResolved {
		return nil, apperror.ErrInvalidTransition
	}

	evidence := &models.DisputeEvidence{
		DisputeID:    disputeID,
		AuthorID:     callerID,
		Note:         note,
		AttachmentID: attachmentID,
	}
	if err := s.repo.AddEvidence(ctx, evidence); err != nil {
		return nil, err
	}
	return evidence, nil
}

// ListEvidence returns a dispute's evidence to its parties or an admin.
func (s *DisputeService) ListEvidence(ctx context.Context, callerID uuid.UUID, callerRole string, disputeID uuid.UUID) ([]models.DisputeEvidence, error) {
	if _, err := s.Get(ctx, callerID, callerRole, disputeID); err != nil {
		return nil, err
	}
	return s.repo.ListEvidence(ctx, disputeID)
}

// ListMine returns disputes the caller is a party to.
func (s *DisputeService) ListMine(ctx context.Context, callerID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListByUser(ctx, callerID, limit, offset)
}

// ListOpen returns the admin resolution queue.
func (s *DisputeService) ListOpen(ctx context.Context, callerRole string, limit, offset int) ([]models.Dispute, error) {
	if callerRole != models.RoleAdmin {
		return nil, apperror.ErrForbiddenRole
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListOpen(ctx, limit, offset)
}

// Resolve settles the dispute per the admin verdict. When any money goes to
// the payee the payout runs first, so a gateway failure leaves the dispute
// open and retryable.
func (s *DisputeService) Resolve(ctx context.Context, adminID uuid.UUID, adminRole string, in VerdictInput) (*models.Dispute, error) {
	if adminRole != models.RoleAdmin {
		return nil, apperror.ErrForbiddenRole
	}

	dispute, err := s.repo.GetByID(ctx, in.DisputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Status == models.DisputeStatusResolved {
		return nil, apperror.ErrInvalidTransition
	}

	var payeeGross int64
	switch in.Verdict {
	case models.VerdictReleaseToPayee:
		milestone, err := s.milestones.GetByID(ctx, dispute.MilestoneID)
		if err != nil {
			return nil, err
		}
		payeeGross = milestone.Amount
	case models.VerdictRefundToPayer:
		payeeGross = 0
	case models.VerdictSplit:
		payeeGross = in.SplitPayeeAmount
	default:
		return nil, apperror.New(apperror.ErrCodeValidation, "bad_verdict", "verdict must be release_to_payee, refund_to_payer or split")
	}

	payoutRef := ""
	if payeeGross > 0 {
		payeeNet := payeeGross - payeeGross*s.feeBps/10000
		payout, err := s.gw.InitiatePayout(ctx, s.payoutAccount, payeeNet, s.currency, dispute.EscrowID.String())
		if err != nil {
			return nil, err
		}
		payoutRef = payout.PayoutRef
	}

	if _, _, err := s.executor.ExecuteVerdict(ctx, in.DisputeID, in.Verdict, in.SplitPayeeAmount, s.feeBps, adminID, payoutRef); err != nil {
		return nil, err
	}

	resolved, err := s.repo.GetByID(ctx, in.DisputeID)
	if err != nil {
		return nil, err
	}

	s.notify.Notify(ctx, resolved.InitiatorID, models.NotifyDisputeStatus,
		"Dispute resolved", "Your dispute was resolved: "+in.Verdict, &resolved.ID)
	s.notify.Notify(ctx, resolved.RespondentID, models.NotifyDisputeStatus,
		"Dispute resolved", "A dispute you are party to was resolved: "+in.Verdict, &resolved.ID)
	return resolved, nil
}
