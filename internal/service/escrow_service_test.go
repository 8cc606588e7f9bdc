package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kasigigs/kasigigs-backend/internal/gateway"
	"github.com/kasigigs/kasigigs-backend/internal/models"
	"github.com/kasigigs/kasigigs-backend/internal/pkg/apperror"
)

type mockEscrowRepo struct {
	mock.Mock
}

func (m *mockEscrowRepo) Create(ctx context.Context, e *models.EscrowPayment, intent *models.PendingIntent) error {
	args := m.Called(ctx, e, intent)
	return args.Error(0)
}

func (m *mockEscrowRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.EscrowPayment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EscrowPayment), args.Error(1)
}

func (m *mockEscrowRepo) GetCurrentByMilestone(ctx context.Context, milestoneID uuid.UUID) (*models.EscrowPayment, error) {
	args := m.Called(ctx, milestoneID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EscrowPayment), args.Error(1)
}

func (m *mockEscrowRepo) ListByGig(ctx context.Context, gigID uuid.UUID) ([]models.EscrowPayment, error) {
	args := m.Called(ctx, gigID)
	return args.Get(0).([]models.EscrowPayment), args.Error(1)
}

func (m *mockEscrowRepo) ConfirmHeld(ctx context.Context, externalRef, eventType string) (*models.EscrowPayment, bool, error) {
	args := m.Called(ctx, externalRef, eventType)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.EscrowPayment), args.Bool(1), args.Error(2)
}

func (m *mockEscrowRepo) Release(ctx context.Context, id uuid.UUID, payoutRef string, actorID *uuid.UUID) (*models.EscrowPayment, bool, error) {
	args := m.Called(ctx, id, payoutRef, actorID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.EscrowPayment), args.Bool(1), args.Error(2)
}

func (m *mockEscrowRepo) Refund(ctx context.Context, id uuid.UUID, reason string, actorID *uuid.UUID) (*models.EscrowPayment, error) {
	args := m.Called(ctx, id, reason, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EscrowPayment), args.Error(1)
}

func (m *mockEscrowRepo) ListLedger(ctx context.Context, escrowID uuid.UUID) ([]models.LedgerEntry, error) {
	args := m.Called(ctx, escrowID)
	return args.Get(0).([]models.LedgerEntry), args.Error(1)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreatePaymentSession(ctx context.Context, amountCents int64, currency, reference string) (*gateway.PaymentSession, error) {
	args := m.Called(ctx, amountCents, currency, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.PaymentSession), args.Error(1)
}

func (m *mockGateway) InitiatePayout(ctx context.Context, account string, amountCents int64, currency, reference string) (*gateway.Payout, error) {
	args := m.Called(ctx, account, amountCents, currency, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Payout), args.Error(1)
}

type mockMilestoneStore struct {
	milestones map[uuid.UUID]*models.Milestone
}

func (m *mockMilestoneStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	if ms, ok := m.milestones[id]; ok {
		return ms, nil
	}
	return nil, apperror.ErrMilestoneNotFound
}

type mockWorkerStore struct {
	accepted map[uuid.UUID]*models.Application
}

// GetAccepted mirrors the repository contract: no accepted application is
// (nil, nil), not an error.
func (m *mockWorkerStore) GetAccepted(ctx context.Context, postingID uuid.UUID) (*models.Application, error) {
	if a, ok := m.accepted[postingID]; ok {
		return a, nil
	}
	return nil, nil
}

type escrowFixture struct {
	repo    *mockEscrowRepo
	gw      *mockGateway
	svc     *EscrowService
	notices *recordingNotificationRepo
	workers *mockWorkerStore

	gig       *models.Posting
	milestone *models.Milestone
	worker    uuid.UUID
}

func newEscrowFixture(t *testing.T) *escrowFixture {
	t.Helper()

	ownerID := uuid.New()
	workerID := uuid.New()
	gig := &models.Posting{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Kind:    models.PostingKindGig,
		Status:  models.PostingStatusInProgress,
	}
	milestone := &models.Milestone{
		ID:     uuid.New(),
		GigID:  gig.ID,
		Amount: 10000,
		Status: models.MilestoneStatusPending,
	}

	repo := new(mockEscrowRepo)
	gw := new(mockGateway)
	notify, notices := newTestNotifier()
	signer := gateway.NewSigner("test-secret")
	workers := &mockWorkerStore{accepted: map[uuid.UUID]*models.Application{gig.ID: {ID: uuid.New(), PostingID: gig.ID, ApplicantID: workerID, Status: models.ApplicationStatusAccepted}}}

	svc := NewEscrowService(
		repo,
		gw,
		&mockMilestoneStore{milestones: map[uuid.UUID]*models.Milestone{milestone.ID: milestone}},
		&mockPostingStore{postings: map[uuid.UUID]*models.Posting{gig.ID: gig}},
		workers,
		notify,
		signer,
		"ZAR",
		1000,
		"platform",
	)

	return &escrowFixture{
		repo:      repo,
		gw:        gw,
		svc:       svc,
		notices:   notices,
		workers:   workers,
		gig:       gig,
		milestone: milestone,
		worker:    workerID,
	}
}

func TestEscrowService_Fund_CarvesFeeFromGross(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()

	f.repo.On("GetCurrentByMilestone", ctx, f.milestone.ID).Return(nil, nil)
	f.gw.On("CreatePaymentSession", ctx, int64(10000), "ZAR", mock.AnythingOfType("string")).
		Return(&gateway.PaymentSession{SessionRef: "sess_1", RedirectURL: "https://pay.example/sess_1"}, nil)
	f.repo.On("Create", ctx, mock.AnythingOfType("*models.EscrowPayment"), mock.AnythingOfType("*models.PendingIntent")).Return(nil)

	result, err := f.svc.Fund(ctx, f.gig.OwnerID, f.milestone.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(10000), result.Escrow.Gross)
	assert.Equal(t, int64(1000), result.Escrow.Fee)
	assert.Equal(t, int64(9000), result.Escrow.Net)
	assert.Equal(t, f.worker, result.Escrow.PayeeID)
	assert.Equal(t, "https://pay.example/sess_1", result.RedirectURL)
	f.repo.AssertExpectations(t)
}

func TestEscrowService_Fund_NoAcceptedApplicationRejected(t *testing.T) {
	f := newEscrowFixture(t)
	delete(f.workers.accepted, f.gig.ID)

	_, err := f.svc.Fund(context.Background(), f.gig.OwnerID, f.milestone.ID)
	assert.ErrorIs(t, err, apperror.ErrNoAcceptedApplication)
	f.gw.AssertNotCalled(t, "CreatePaymentSession", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEscrowService_Fund_NonOwnerForbidden(t *testing.T) {
	f := newEscrowFixture(t)

	_, err := f.svc.Fund(context.Background(), uuid.New(), f.milestone.ID)
	assert.True(t, apperror.IsForbidden(err))
}

func TestEscrowService_Fund_ExistingEscrowRejected(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()

	f.repo.On("GetCurrentByMilestone", ctx, f.milestone.ID).
		Return(&models.EscrowPayment{ID: uuid.New(), Status: models.EscrowStatusHeld}, nil)

	_, err := f.svc.Fund(ctx, f.gig.OwnerID, f.milestone.ID)
	assert.True(t, apperror.IsPrecondition(err))
	f.gw.AssertNotCalled(t, "CreatePaymentSession", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func signedWebhook(secret string, fields map[string]string) map[string]string {
	signer := gateway.NewSigner(secret)
	fields["signature"] = signer.Sign(fields)
	return fields
}

func TestEscrowService_Webhook_HeldNotifiesBothParties(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()

	escrow := &models.EscrowPayment{
		ID:          uuid.New(),
		GigID:       f.gig.ID,
		MilestoneID: f.milestone.ID,
		PayerID:     f.gig.OwnerID,
		PayeeID:     f.worker,
		Status:      models.EscrowStatusHeld,
	}
	f.repo.On("ConfirmHeld", ctx, "sess_1", "payment_held").Return(escrow, true, nil)

	fields := signedWebhook("test-secret", map[string]string{
		"event_id":     "evt_1",
		"event_type":   "payment_held",
		"external_ref": "sess_1",
	})

	require.NoError(t, f.svc.HandleWebhook(ctx, fields))
	assert.Len(t, f.notices.forUser(f.worker), 1)
	assert.Len(t, f.notices.forUser(f.gig.OwnerID), 1)
}

func TestEscrowService_Webhook_ReplayAppliesNothing(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()

	escrow := &models.EscrowPayment{ID: uuid.New(), PayerID: f.gig.OwnerID, PayeeID: f.worker}
	f.repo.On("ConfirmHeld", ctx, "sess_1", "payment_held").Return(escrow, false, nil)

	fields := signedWebhook("test-secret", map[string]string{
		"event_id":     "evt_1",
		"event_type":   "payment_held",
		"external_ref": "sess_1",
	})

	require.NoError(t, f.svc.HandleWebhook(ctx, fields))
	assert.Empty(t, f.notices.forUser(f.worker))
	assert.Empty(t, f.notices.forUser(f.gig.OwnerID))
}

func TestEscrowService_Webhook_BadSignatureRejected(t *testing.T) {
	f := newEscrowFixture(t)

	fields := signedWebhook("wrong-secret", map[string]string{
		"event_type":   "payment_held",
		"external_ref": "sess_1",
	})

	err := f.svc.HandleWebhook(context.Background(), fields)
	assert.ErrorIs(t, err, apperror.ErrBadSignature)
	f.repo.AssertNotCalled(t, "ConfirmHeld", mock.Anything, mock.Anything, mock.Anything)
}

func TestEscrowService_Release_PayoutPrecedesStateFlip(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()

	f.milestone.Status = models.MilestoneStatusApproved
	escrowID := uuid.New()
	held := &models.EscrowPayment{
		ID:          escrowID,
		GigID:       f.gig.ID,
		MilestoneID: f.milestone.ID,
		PayerID:     f.gig.OwnerID,
		PayeeID:     f.worker,
		Gross:       10000,
		Fee:         1000,
		Net:         9000,
		Status:      models.EscrowStatusHeld,
	}
	released := *held
	released.Status = models.EscrowStatusReleased

	f.repo.On("GetByID", ctx, escrowID).Return(held, nil)
	f.gw.On("InitiatePayout", ctx, "platform", int64(9000), "ZAR", escrowID.String()).
		Return(&gateway.Payout{PayoutRef: "po_1", Status: "completed"}, nil)
	f.repo.On("Release", ctx, escrowID, "po_1", &f.gig.OwnerID).Return(&released, true, nil)

	result, err := f.svc.Release(ctx, f.gig.OwnerID, escrowID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusReleased, result.Status)

	// Worker gets a payment notice plus a completion notice; the payer
	// only the completion notice.
	assert.Len(t, f.notices.forUser(f.worker), 2)
	assert.Len(t, f.notices.forUser(f.gig.OwnerID), 1)
	f.repo.AssertExpectations(t)
}

func TestEscrowService_Release_GatewayFailureKeepsEscrowHeld(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()

	f.milestone.Status = models.MilestoneStatusApproved
	escrowID := uuid.New()
	held := &models.EscrowPayment{
		ID:          escrowID,
		MilestoneID: f.milestone.ID,
		PayerID:     f.gig.OwnerID,
		PayeeID:     f.worker,
		Net:         9000,
		Status:      models.EscrowStatusHeld,
	}

	f.repo.On("GetByID", ctx, escrowID).Return(held, nil)
	f.gw.On("InitiatePayout", ctx, "platform", int64(9000), "ZAR", escrowID.String()).
		Return(nil, assert.AnError)

	_, err := f.svc.Release(ctx, f.gig.OwnerID, escrowID)
	assert.Error(t, err)
	f.repo.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEscrowService_Release_NotHeldRejected(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()

	escrowID := uuid.New()
	f.repo.On("GetByID", ctx, escrowID).Return(&models.EscrowPayment{
		ID:      escrowID,
		PayerID: f.gig.OwnerID,
		Status:  models.EscrowStatusInitiated,
	}, nil)

	_, err := f.svc.Release(ctx, f.gig.OwnerID, escrowID)
	assert.ErrorIs(t, err, apperror.ErrEscrowNotHeld)
}

func TestEscrowService_Get_StrangerForbidden(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()

	escrowID := uuid.New()
	f.repo.On("GetByID", ctx, escrowID).Return(&models.EscrowPayment{
		ID:      escrowID,
		PayerID: f.gig.OwnerID,
		PayeeID: f.worker,
	}, nil)

	_, err := f.svc.Get(ctx, uuid.New(), escrowID)
	assert.True(t, apperror.IsForbidden(err))
}
