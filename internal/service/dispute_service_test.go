package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kasigigs/kasigigs-backend/internal/gateway"
	"github.com/kasigigs/kasigigs-backend/internal/models"
	"github.com/kasigigs/kasigigs-backend/internal/pkg/apperror"
)

type mockDisputeRepo struct {
	mock.Mock
}

func (m *mockDisputeRepo) Create(ctx context.Context, d *models.Dispute) error {
	args := m.Called(ctx, d)
	if args.Error(0) == nil {
		d.ID = uuid.New()
		d.Status = models.DisputeStatusAwaitingResponse
	}
	return args.Error(0)
}

func (m *mockDisputeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) GetActiveByMilestone(ctx context.Context, milestoneID uuid.UUID) (*models.Dispute, error) {
	args := m.Called(ctx, milestoneID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) SubmitResponse(ctx context.Context, id uuid.UUID, respondentID uuid.UUID, response string) (*models.Dispute, error) {
	args := m.Called(ctx, id, respondentID, response)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) AddEvidence(ctx context.Context, e *models.DisputeEvidence) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *mockDisputeRepo) ListEvidence(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeEvidence, error) {
	args := m.Called(ctx, disputeID)
	return args.Get(0).([]models.DisputeEvidence), args.Error(1)
}

type mockVerdictExecutor struct {
	mock.Mock
}

func (m *mockVerdictExecutor) ExecuteVerdict(ctx context.Context, disputeID uuid.UUID, verdict string, splitPayeeGross int64, feeBps int64, resolvedBy uuid.UUID, payoutRef string) (*models.EscrowPayment, bool, error) {
	args := m.Called(ctx, disputeID, verdict, splitPayeeGross, feeBps, resolvedBy, payoutRef)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.EscrowPayment), args.Bool(1), args.Error(2)
}

type mockDisputeEscrowStore struct {
	current map[uuid.UUID]*models.EscrowPayment
}

func (m *mockDisputeEscrowStore) GetCurrentByMilestone(ctx context.Context, milestoneID uuid.UUID) (*models.EscrowPayment, error) {
	return m.current[milestoneID], nil
}

type disputeFixture struct {
	repo     *mockDisputeRepo
	executor *mockVerdictExecutor
	gw       *mockGateway
	svc      *DisputeService
	notices  *recordingNotificationRepo

	milestone *models.Milestone
	escrow    *models.EscrowPayment
	payer     uuid.UUID
	payee     uuid.UUID
}

func newDisputeFixture(t *testing.T) *disputeFixture {
	t.Helper()

	payerID := uuid.New()
	payeeID := uuid.New()
	milestone := &models.Milestone{
		ID:     uuid.New(),
		GigID:  uuid.New(),
		Amount: 10000,
		Status: models.MilestoneStatusSubmitted,
	}
	escrow := &models.EscrowPayment{
		ID:          uuid.New(),
		GigID:       milestone.GigID,
		MilestoneID: milestone.ID,
		PayerID:     payerID,
		PayeeID:     payeeID,
		Gross:       10000,
		Fee:         1000,
		Net:         9000,
		Status:      models.EscrowStatusHeld,
	}

	repo := new(mockDisputeRepo)
	executor := new(mockVerdictExecutor)
	gw := new(mockGateway)
	notify, notices := newTestNotifier()

	svc := NewDisputeService(
		repo,
		executor,
		&mockDisputeEscrowStore{current: map[uuid.UUID]*models.EscrowPayment{milestone.ID: escrow}},
		&mockMilestoneStore{milestones: map[uuid.UUID]*models.Milestone{milestone.ID: milestone}},
		gw,
		notify,
		168*time.Hour,
		1000,
		"ZAR",
		"platform",
	)

	return &disputeFixture{
		repo:      repo,
		executor:  executor,
		gw:        gw,
		svc:       svc,
		notices:   notices,
		milestone: milestone,
		escrow:    escrow,
		payer:     payerID,
		payee:     payeeID,
	}
}

func TestDisputeService_Open_SetsRespondentAndDeadline(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()

	f.repo.On("Create", ctx, mock.AnythingOfType("*models.Dispute")).Return(nil)

	dispute, err := f.svc.Open(ctx, f.payer, OpenDisputeInput{
		MilestoneID: f.milestone.ID,
		Reason:      "the delivered work does not match the milestone description",
	})
	require.NoError(t, err)

	assert.Equal(t, f.payee, dispute.RespondentID)
	assert.Equal(t, f.escrow.ID, dispute.EscrowID)
	assert.WithinDuration(t, time.Now().Add(168*time.Hour), dispute.ResponseDeadline, time.Minute)
	assert.Len(t, f.notices.forUser(f.payee), 1)
}

func TestDisputeService_Open_StrangerForbidden(t *testing.T) {
	f := newDisputeFixture(t)

	_, err := f.svc.Open(context.Background(), uuid.New(), OpenDisputeInput{
		MilestoneID: f.milestone.ID,
		Reason:      "a long enough reason for a dispute to be opened",
	})
	assert.True(t, apperror.IsForbidden(err))
}

func TestDisputeService_Open_NoHeldEscrow(t *testing.T) {
	f := newDisputeFixture(t)

	_, err := f.svc.Open(context.Background(), f.payer, OpenDisputeInput{
		MilestoneID: uuid.New(),
		Reason:      "a long enough reason for a dispute to be opened",
	})
	assert.ErrorIs(t, err, apperror.ErrEscrowNotHeld)
}

func TestDisputeService_Open_ShortReasonRejected(t *testing.T) {
	f := newDisputeFixture(t)

	_, err := f.svc.Open(context.Background(), f.payer, OpenDisputeInput{
		MilestoneID: f.milestone.ID,
		Reason:      "too short",
	})
	assert.Error(t, err)
}

func TestDisputeService_Resolve_SplitPaysFeeAdjustedNet(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()
	adminID := uuid.New()

	disputeID := uuid.New()
	open := &models.Dispute{
		ID:           disputeID,
		MilestoneID:  f.milestone.ID,
		EscrowID:     f.escrow.ID,
		InitiatorID:  f.payer,
		RespondentID: f.payee,
		Status:       models.DisputeStatusUnderReview,
	}
	verdict := models.VerdictSplit
	resolved := *open
	resolved.Status = models.DisputeStatusResolved
	resolved.Verdict = &verdict

	f.repo.On("GetByID", ctx, disputeID).Return(open, nil).Once()
	// Payee gets 6000 gross; the 10% fee leaves 5400 to pay out.
	f.gw.On("InitiatePayout", ctx, "platform", int64(5400), "ZAR", f.escrow.ID.String()).
		Return(&gateway.Payout{PayoutRef: "po_split", Status: "completed"}, nil)
	f.executor.On("ExecuteVerdict", ctx, disputeID, models.VerdictSplit, int64(6000), int64(1000), adminID, "po_split").
		Return(&models.EscrowPayment{}, false, nil)
	f.repo.On("GetByID", ctx, disputeID).Return(&resolved, nil)

	result, err := f.svc.Resolve(ctx, adminID, models.RoleAdmin, VerdictInput{
		DisputeID:        disputeID,
		Verdict:          models.VerdictSplit,
		SplitPayeeAmount: 6000,
	})
	require.NoError(t, err)

	assert.Equal(t, models.DisputeStatusResolved, result.Status)
	assert.Len(t, f.notices.forUser(f.payer), 1)
	assert.Len(t, f.notices.forUser(f.payee), 1)
	f.executor.AssertExpectations(t)
}

func TestDisputeService_Resolve_RefundSkipsPayout(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()
	adminID := uuid.New()

	disputeID := uuid.New()
	open := &models.Dispute{
		ID:           disputeID,
		MilestoneID:  f.milestone.ID,
		EscrowID:     f.escrow.ID,
		InitiatorID:  f.payer,
		RespondentID: f.payee,
		Status:       models.DisputeStatusUnderReview,
	}
	resolved := *open
	resolved.Status = models.DisputeStatusResolved

	f.repo.On("GetByID", ctx, disputeID).Return(open, nil).Once()
	f.executor.On("ExecuteVerdict", ctx, disputeID, models.VerdictRefundToPayer, int64(0), int64(1000), adminID, "").
		Return(&models.EscrowPayment{}, false, nil)
	f.repo.On("GetByID", ctx, disputeID).Return(&resolved, nil)

	_, err := f.svc.Resolve(ctx, adminID, models.RoleAdmin, VerdictInput{
		DisputeID: disputeID,
		Verdict:   models.VerdictRefundToPayer,
	})
	require.NoError(t, err)
	f.gw.AssertNotCalled(t, "InitiatePayout", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDisputeService_Resolve_GatewayFailureLeavesDisputeOpen(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()
	adminID := uuid.New()

	disputeID := uuid.New()
	f.repo.On("GetByID", ctx, disputeID).Return(&models.Dispute{
		ID:          disputeID,
		MilestoneID: f.milestone.ID,
		EscrowID:    f.escrow.ID,
		Status:      models.DisputeStatusUnderReview,
	}, nil)
	f.gw.On("InitiatePayout", ctx, "platform", int64(9000), "ZAR", f.escrow.ID.String()).
		Return(nil, assert.AnError)

	_, err := f.svc.Resolve(ctx, adminID, models.RoleAdmin, VerdictInput{
		DisputeID: disputeID,
		Verdict:   models.VerdictReleaseToPayee,
	})
	assert.Error(t, err)
	f.executor.AssertNotCalled(t, "ExecuteVerdict", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDisputeService_Resolve_NonAdminForbidden(t *testing.T) {
	f := newDisputeFixture(t)

	_, err := f.svc.Resolve(context.Background(), f.payer, models.RoleEmployer, VerdictInput{
		DisputeID: uuid.New(),
		Verdict:   models.VerdictRefundToPayer,
	})
	assert.True(t, apperror.IsForbidden(err))
}

func TestDisputeService_AddEvidence_ResolvedDisputeClosed(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()

	disputeID := uuid.New()
	f.repo.On("GetByID", ctx, disputeID).Return(&models.Dispute{
		ID:           disputeID,
		InitiatorID:  f.payer,
		RespondentID: f.payee,
		Status:       models.DisputeStatusResolved,
	}, nil)

	_, err := f.svc.AddEvidence(ctx, f.payer, disputeID, "late evidence", nil)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
}
