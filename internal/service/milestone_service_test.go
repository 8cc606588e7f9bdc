package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasigigs/kasigigs-backend/internal/models"
	"github.com/kasigigs/kasigigs-backend/internal/pkg/apperror"
)

type mockMilestoneRepo struct {
	milestones map[uuid.UUID]*models.Milestone
}

func newMockMilestoneRepo(milestones ...*models.Milestone) *mockMilestoneRepo {
	m := &mockMilestoneRepo{milestones: make(map[uuid.UUID]*models.Milestone)}
	for _, ms := range milestones {
		m.milestones[ms.ID] = ms
	}
	return m
}

func (m *mockMilestoneRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	if ms, ok := m.milestones[id]; ok {
		return ms, nil
	}
	return nil, apperror.ErrMilestoneNotFound
}

func (m *mockMilestoneRepo) ListByGig(ctx context.Context, gigID uuid.UUID) ([]models.Milestone, error) {
	var out []models.Milestone
	for _, ms := range m.milestones {
		if ms.GigID == gigID {
			out = append(out, *ms)
		}
	}
	return out, nil
}

func (m *mockMilestoneRepo) NextPending(ctx context.Context, gigID uuid.UUID) (*models.Milestone, error) {
	var next *models.Milestone
	for _, ms := range m.milestones {
		if ms.GigID != gigID || ms.Status != models.MilestoneStatusPending {
			continue
		}
		if next == nil || ms.Index < next.Index {
			next = ms
		}
	}
	if next == nil {
		return nil, apperror.ErrMilestoneNotFound
	}
	return next, nil
}

func (m *mockMilestoneRepo) Submit(ctx context.Context, id uuid.UUID, observedVersion int, note *string, deliverableIDs models.UUIDSlice, links models.StringSlice, actorID uuid.UUID) (*models.Milestone, error) {
	ms, ok := m.milestones[id]
	if !ok {
		return nil, apperror.ErrMilestoneNotFound
	}
	if ms.Version != observedVersion {
		return nil, apperror.ErrConflict
	}
	if ms.Status != models.MilestoneStatusPending {
		return nil, apperror.ErrInvalidTransition
	}
	next, err := m.NextPending(ctx, ms.GigID)
	if err != nil {
		return nil, err
	}
	if next.ID != id {
		return nil, apperror.ErrMilestoneNotNext
	}
	now := time.Now()
	ms.Status = models.MilestoneStatusSubmitted
	ms.Version++
	ms.SubmissionNote = note
	ms.DeliverableIDs = deliverableIDs
	ms.ExternalLinks = links
	ms.SubmittedAt = &now
	return ms, nil
}

func (m *mockMilestoneRepo) Review(ctx context.Context, id uuid.UUID, observedVersion int, toStatus string, notes *string, actorID uuid.UUID) (*models.Milestone, error) {
	ms, ok := m.milestones[id]
	if !ok {
		return nil, apperror.ErrMilestoneNotFound
	}
	if ms.Version != observedVersion {
		return nil, apperror.ErrConflict
	}
	if ms.Status != models.MilestoneStatusSubmitted {
		return nil, apperror.ErrInvalidTransition
	}
	ms.Status = toStatus
	ms.Version++
	ms.ReviewNotes = notes
	if toStatus == models.MilestoneStatusRevisionRequested {
		ms.RevisionCount++
	}
	return ms, nil
}

type mockEscrowStore struct {
	current map[uuid.UUID]*models.EscrowPayment
}

func (m *mockEscrowStore) GetCurrentByMilestone(ctx context.Context, milestoneID uuid.UUID) (*models.EscrowPayment, error) {
	if e, ok := m.current[milestoneID]; ok {
		return e, nil
	}
	return nil, nil
}

type mockReleaser struct {
	released []uuid.UUID
	err      error
}

func (m *mockReleaser) Release(ctx context.Context, callerID, escrowID uuid.UUID) (*models.EscrowPayment, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.released = append(m.released, escrowID)
	return &models.EscrowPayment{ID: escrowID, Status: models.EscrowStatusReleased}, nil
}

type milestoneFixture struct {
	repo     *mockMilestoneRepo
	svc      *MilestoneService
	notices  *recordingNotificationRepo
	workers  *mockWorkerStore
	escrows  *mockEscrowStore
	releaser *mockReleaser

	gig      *models.Posting
	workerID uuid.UUID
	first    *models.Milestone
	second   *models.Milestone
}

func newMilestoneFixture(t *testing.T) *milestoneFixture {
	t.Helper()

	gig := &models.Posting{
		ID:      uuid.New(),
		OwnerID: uuid.New(),
		Kind:    models.PostingKindGig,
		Status:  models.PostingStatusInProgress,
	}
	workerID := uuid.New()
	first := &models.Milestone{
		ID:     uuid.New(),
		GigID:  gig.ID,
		Index:  0,
		Title:  "Design",
		Amount: 5000,
		Status: models.MilestoneStatusPending,
	}
	second := &models.Milestone{
		ID:     uuid.New(),
		GigID:  gig.ID,
		Index:  1,
		Title:  "Build",
		Amount: 5000,
		Status: models.MilestoneStatusPending,
	}

	repo := newMockMilestoneRepo(first, second)
	notify, notices := newTestNotifier()
	workers := &mockWorkerStore{accepted: map[uuid.UUID]*models.Application{gig.ID: {ID: uuid.New(), PostingID: gig.ID, ApplicantID: workerID, Status: models.ApplicationStatusAccepted}}}
	escrows := &mockEscrowStore{current: map[uuid.UUID]*models.EscrowPayment{
		first.ID:  {ID: uuid.New(), MilestoneID: first.ID, GigID: gig.ID, Status: models.EscrowStatusHeld},
		second.ID: {ID: uuid.New(), MilestoneID: second.ID, GigID: gig.ID, Status: models.EscrowStatusHeld},
	}}
	releaser := &mockReleaser{}
	svc := NewMilestoneService(
		repo,
		&mockPostingStore{postings: map[uuid.UUID]*models.Posting{gig.ID: gig}},
		workers,
		escrows,
		releaser,
		notify,
	)

	return &milestoneFixture{
		repo:     repo,
		svc:      svc,
		notices:  notices,
		workers:  workers,
		escrows:  escrows,
		releaser: releaser,
		gig:      gig,
		workerID: workerID,
		first:    first,
		second:   second,
	}
}

func TestMilestoneService_Submit_NotifiesOwner(t *testing.T) {
	f := newMilestoneFixture(t)
	note := "delivered, see the mockups"

	updated, err := f.svc.Submit(context.Background(), f.workerID, SubmitInput{
		MilestoneID:   f.first.ID,
		Note:          &note,
		ExternalLinks: []string{"https://example.com/mockups"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.MilestoneStatusSubmitted, updated.Status)
	assert.Equal(t, 1, updated.Version)
	assert.NotNil(t, updated.SubmittedAt)
	assert.Len(t, f.notices.forUser(f.gig.OwnerID), 1)
}

func TestMilestoneService_Submit_OwnerForbidden(t *testing.T) {
	f := newMilestoneFixture(t)

	_, err := f.svc.Submit(context.Background(), f.gig.OwnerID, SubmitInput{MilestoneID: f.first.ID})
	assert.True(t, apperror.IsForbidden(err))
}

func TestMilestoneService_Submit_OutOfOrderRejected(t *testing.T) {
	f := newMilestoneFixture(t)

	_, err := f.svc.Submit(context.Background(), f.workerID, SubmitInput{MilestoneID: f.second.ID})
	assert.ErrorIs(t, err, apperror.ErrMilestoneNotNext)
}

func TestMilestoneService_Submit_StaleVersionConflicts(t *testing.T) {
	f := newMilestoneFixture(t)
	f.first.Version = 3

	_, err := f.svc.Submit(context.Background(), f.workerID, SubmitInput{
		MilestoneID:     f.first.ID,
		ObservedVersion: 2,
	})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestMilestoneService_Submit_BadLinkRejected(t *testing.T) {
	f := newMilestoneFixture(t)

	_, err := f.svc.Submit(context.Background(), f.workerID, SubmitInput{
		MilestoneID:   f.first.ID,
		ExternalLinks: []string{"ftp://example.com/file"},
	})
	assert.Error(t, err)
	assert.Equal(t, models.MilestoneStatusPending, f.first.Status)
}

func TestMilestoneService_Review_ApproveNotifiesWorker(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()

	submitted, err := f.svc.Submit(ctx, f.workerID, SubmitInput{MilestoneID: f.first.ID})
	require.NoError(t, err)

	updated, err := f.svc.Review(ctx, f.gig.OwnerID, ReviewInput{
		MilestoneID:     f.first.ID,
		ObservedVersion: submitted.Version,
		Decision:        DecisionApprove,
	})
	require.NoError(t, err)

	assert.Equal(t, models.MilestoneStatusApproved, updated.Status)
	assert.Len(t, f.notices.forUser(f.workerID), 1)
}

func TestMilestoneService_Review_ApproveReleasesHeldEscrow(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.workerID, SubmitInput{MilestoneID: f.first.ID})
	require.NoError(t, err)

	_, err = f.svc.Review(ctx, f.gig.OwnerID, ReviewInput{
		MilestoneID:     f.first.ID,
		ObservedVersion: 1,
		Decision:        DecisionApprove,
	})
	require.NoError(t, err)

	require.Len(t, f.releaser.released, 1)
	assert.Equal(t, f.escrows.current[f.first.ID].ID, f.releaser.released[0])
}

func TestMilestoneService_Review_ApproveWithoutHeldEscrowRejected(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.workerID, SubmitInput{MilestoneID: f.first.ID})
	require.NoError(t, err)

	delete(f.escrows.current, f.first.ID)
	_, err = f.svc.Review(ctx, f.gig.OwnerID, ReviewInput{
		MilestoneID:     f.first.ID,
		ObservedVersion: 1,
		Decision:        DecisionApprove,
	})
	assert.ErrorIs(t, err, apperror.ErrEscrowNotHeld)
	assert.Equal(t, models.MilestoneStatusSubmitted, f.first.Status)

	f.escrows.current[f.first.ID] = &models.EscrowPayment{ID: uuid.New(), MilestoneID: f.first.ID, Status: models.EscrowStatusInitiated}
	_, err = f.svc.Review(ctx, f.gig.OwnerID, ReviewInput{
		MilestoneID:     f.first.ID,
		ObservedVersion: 1,
		Decision:        DecisionApprove,
	})
	assert.ErrorIs(t, err, apperror.ErrEscrowNotHeld)
	assert.Empty(t, f.releaser.released)
}

func TestMilestoneService_Review_ApproveSurvivesPayoutFailure(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()
	f.releaser.err = assert.AnError

	_, err := f.svc.Submit(ctx, f.workerID, SubmitInput{MilestoneID: f.first.ID})
	require.NoError(t, err)

	updated, err := f.svc.Review(ctx, f.gig.OwnerID, ReviewInput{
		MilestoneID:     f.first.ID,
		ObservedVersion: 1,
		Decision:        DecisionApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, models.MilestoneStatusApproved, updated.Status)
}

func TestMilestoneService_ListByGig_NoAcceptedApplication(t *testing.T) {
	f := newMilestoneFixture(t)
	delete(f.workers.accepted, f.gig.ID)

	_, err := f.svc.ListByGig(context.Background(), f.gig.OwnerID, f.gig.ID)
	assert.ErrorIs(t, err, apperror.ErrNoAcceptedApplication)
}

func TestMilestoneService_Review_WorkerForbidden(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.workerID, SubmitInput{MilestoneID: f.first.ID})
	require.NoError(t, err)

	_, err = f.svc.Review(ctx, f.workerID, ReviewInput{
		MilestoneID:     f.first.ID,
		ObservedVersion: 1,
		Decision:        DecisionApprove,
	})
	assert.True(t, apperror.IsForbidden(err))
}

func TestMilestoneService_Review_RejectionNeedsNotes(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.workerID, SubmitInput{MilestoneID: f.first.ID})
	require.NoError(t, err)

	_, err = f.svc.Review(ctx, f.gig.OwnerID, ReviewInput{
		MilestoneID:     f.first.ID,
		ObservedVersion: 1,
		Decision:        DecisionReject,
	})
	assert.Error(t, err)
	assert.Equal(t, models.MilestoneStatusSubmitted, f.first.Status)
}

func TestMilestoneService_Review_RevisionBumpsCounter(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()
	notes := "logo is missing on the landing page"

	_, err := f.svc.Submit(ctx, f.workerID, SubmitInput{MilestoneID: f.first.ID})
	require.NoError(t, err)

	updated, err := f.svc.Review(ctx, f.gig.OwnerID, ReviewInput{
		MilestoneID:     f.first.ID,
		ObservedVersion: 1,
		Decision:        DecisionRequestRevision,
		Notes:           &notes,
	})
	require.NoError(t, err)

	assert.Equal(t, models.MilestoneStatusRevisionRequested, updated.Status)
	assert.Equal(t, 1, updated.RevisionCount)
}

func TestMilestoneService_Review_UnknownDecision(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.workerID, SubmitInput{MilestoneID: f.first.ID})
	require.NoError(t, err)

	_, err = f.svc.Review(ctx, f.gig.OwnerID, ReviewInput{
		MilestoneID:     f.first.ID,
		ObservedVersion: 1,
		Decision:        "maybe",
	})
	assert.Error(t, err)
}

func TestMilestoneService_Get_StrangerForbidden(t *testing.T) {
	f := newMilestoneFixture(t)

	_, err := f.svc.Get(context.Background(), uuid.New(), f.first.ID)
	assert.True(t, apperror.IsForbidden(err))
}

func TestMilestoneService_NextPending_AdvancesAfterSubmission(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()

	next, err := f.svc.NextPending(ctx, f.workerID, f.gig.ID)
	require.NoError(t, err)
	assert.Equal(t, f.first.ID, next.ID)

	_, err = f.svc.Submit(ctx, f.workerID, SubmitInput{MilestoneID: f.first.ID})
	require.NoError(t, err)

	next, err = f.svc.NextPending(ctx, f.workerID, f.gig.ID)
	require.NoError(t, err)
	assert.Equal(t, f.second.ID, next.ID)
}
