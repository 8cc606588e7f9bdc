package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasigigs/kasigigs-backend/internal/pkg/apperror"
	"github.com/kasigigs/kasigigs-backend/internal/models"
)

type mockSkillTestRepo struct {
	templates map[uuid.UUID]*models.SkillTestTemplate
	attempts  map[uuid.UUID]*models.SkillTestAttempt
}

func newMockSkillTestRepo() *mockSkillTestRepo {
	return &mockSkillTestRepo{
		templates: make(map[uuid.UUID]*models.SkillTestTemplate),
		attempts:  make(map[uuid.UUID]*models.SkillTestAttempt),
	}
}

func (m *mockSkillTestRepo) GetTemplate(ctx context.Context, id uuid.UUID) (*models.SkillTestTemplate, error) {
	if t, ok := m.templates[id]; ok {
		return t, nil
	}
	return nil, assert.AnError
}

func (m *mockSkillTestRepo) GetActiveAttempt(ctx context.Context, applicantID, postingID uuid.UUID) (*models.SkillTestAttempt, error) {
	for _, a := range m.attempts {
		if a.ApplicantID == applicantID && a.PostingID == postingID && a.Status == models.AttemptStatusInProgress {
			return a, nil
		}
	}
	return nil, nil
}

func (m *mockSkillTestRepo) GetLastTerminalAttempt(ctx context.Context, applicantID, postingID uuid.UUID) (*models.SkillTestAttempt, error) {
	var last *models.SkillTestAttempt
	for _, a := range m.attempts {
		if a.ApplicantID != applicantID || a.PostingID != postingID || a.Status == models.AttemptStatusInProgress {
			continue
		}
		if last == nil || (a.CompletedAt != nil && last.CompletedAt != nil && a.CompletedAt.After(*last.CompletedAt)) {
			last = a
		}
	}
	return last, nil
}

func (m *mockSkillTestRepo) HasPassedAttempt(ctx context.Context, applicantID, postingID uuid.UUID) (bool, error) {
	for _, a := range m.attempts {
		if a.ApplicantID == applicantID && a.PostingID == postingID && a.Passed {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockSkillTestRepo) CreateAttempt(ctx context.Context, attempt *models.SkillTestAttempt) error {
	m.attempts[attempt.ID] = attempt
	return nil
}

func (m *mockSkillTestRepo) GetAttempt(ctx context.Context, id uuid.UUID) (*models.SkillTestAttempt, error) {
	if a, ok := m.attempts[id]; ok {
		return a, nil
	}
	return nil, assert.AnError
}

func (m *mockSkillTestRepo) SealAttempt(ctx context.Context, attempt *models.SkillTestAttempt) error {
	m.attempts[attempt.ID] = attempt
	return nil
}

func (m *mockSkillTestRepo) ListAttemptsByPosting(ctx context.Context, postingID uuid.UUID) ([]models.SkillTestAttempt, error) {
	var out []models.SkillTestAttempt
	for _, a := range m.attempts {
		if a.PostingID == postingID {
			out = append(out, *a)
		}
	}
	return out, nil
}

type mockPostingStore struct {
	postings map[uuid.UUID]*models.Posting
}

func (m *mockPostingStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Posting, error) {
	if p, ok := m.postings[id]; ok {
		return p, nil
	}
	return nil, apperror.ErrPostingNotFound
}

func testSkillTestFixture() (*mockSkillTestRepo, *mockPostingStore, *SkillTestService, *models.Posting) {
	repo := newMockSkillTestRepo()

	templateID := uuid.New()
	pool := make(models.QuestionPool, 0, 12)
	for i := 0; i < 12; i++ {
		pool = append(pool, models.SkillQuestion{
			ID:           uuid.NewString(),
			Difficulty:   models.DifficultyIntermediate,
			Text:         "question",
			Options:      []string{"a", "b", "c", "d"},
			CorrectIndex: i % 4,
		})
	}
	repo.templates[templateID] = &models.SkillTestTemplate{
		ID:        templateID,
		Category:  "general",
		Title:     "General aptitude",
		Questions: pool,
	}

	difficulty := models.DifficultyIntermediate
	passing := 70
	posting := &models.Posting{
		ID:                  uuid.New(),
		OwnerID:             uuid.New(),
		Kind:                models.PostingKindGig,
		Status:              models.PostingStatusOpen,
		SkillTestTemplateID: &templateID,
		SkillTestDifficulty: &difficulty,
		PassingScore:        &passing,
	}
	postings := &mockPostingStore{postings: map[uuid.UUID]*models.Posting{posting.ID: posting}}

	svc := NewSkillTestService(repo, postings, 168*time.Hour, func(string) time.Duration { return 30 * time.Minute }, 10)
	return repo, postings, svc, posting
}

func TestSkillTestService_StartAttempt_DrawsWithoutAnswerKeys(t *testing.T) {
	_, _, svc, posting := testSkillTestFixture()
	ctx := context.Background()
	applicantID := uuid.New()

	view, err := svc.StartAttempt(ctx, applicantID, models.RoleJobSeeker, posting.ID)
	require.NoError(t, err)
	assert.Len(t, view.Questions, 10)
	assert.True(t, view.Deadline.After(time.Now()))
}

func TestSkillTestService_StartAttempt_EmployerForbidden(t *testing.T) {
	_, _, svc, posting := testSkillTestFixture()

	_, err := svc.StartAttempt(context.Background(), uuid.New(), models.RoleEmployer, posting.ID)
	assert.True(t, apperror.IsForbidden(err))
}

func TestSkillTestService_DeterministicDraw(t *testing.T) {
	pool := make(models.QuestionPool, 0, 20)
	for i := 0; i < 20; i++ {
		pool = append(pool, models.SkillQuestion{ID: uuid.NewString()})
	}
	attemptID := uuid.New()

	first := drawQuestions(pool, 10, attemptID)
	second := drawQuestions(pool, 10, attemptID)

	require.Len(t, first, 10)
	require.Len(t, second, 10)
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestSkillTestService_Cooldown(t *testing.T) {
	repo, _, svc, posting := testSkillTestFixture()
	ctx := context.Background()
	applicantID := uuid.New()

	completed := time.Now().Add(-time.Hour)
	repo.attempts[uuid.New()] = &models.SkillTestAttempt{
		ID:          uuid.New(),
		ApplicantID: applicantID,
		PostingID:   posting.ID,
		Status:      models.AttemptStatusCompleted,
		Passed:      false,
		CompletedAt: &completed,
	}

	eligibility, err := svc.CanAttempt(ctx, applicantID, posting.ID)
	require.NoError(t, err)
	assert.False(t, eligibility.CanAttempt)
	assert.Equal(t, "cooldown", eligibility.Reason)
	require.NotNil(t, eligibility.CooldownUntil)
	assert.WithinDuration(t, completed.Add(168*time.Hour), *eligibility.CooldownUntil, time.Second)

	_, err = svc.StartAttempt(ctx, applicantID, models.RoleJobSeeker, posting.ID)
	assert.True(t, apperror.IsPrecondition(err))
}

func TestSkillTestService_CanAttempt_PassWaivesCooldown(t *testing.T) {
	repo, _, svc, posting := testSkillTestFixture()
	ctx := context.Background()
	applicantID := uuid.New()

	completed := time.Now().Add(-time.Hour)
	repo.attempts[uuid.New()] = &models.SkillTestAttempt{
		ID:          uuid.New(),
		ApplicantID: applicantID,
		PostingID:   posting.ID,
		Status:      models.AttemptStatusCompleted,
		Passed:      true,
		CompletedAt: &completed,
	}

	eligibility, err := svc.CanAttempt(ctx, applicantID, posting.ID)
	require.NoError(t, err)
	assert.True(t, eligibility.CanAttempt)
	assert.Empty(t, eligibility.Reason)
}

func TestSkillTestService_CanAttempt_MissingPosting(t *testing.T) {
	_, _, svc, posting := testSkillTestFixture()
	ctx := context.Background()

	eligibility, err := svc.CanAttempt(ctx, uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.False(t, eligibility.CanAttempt)
	assert.Equal(t, ReasonMissingPosting, eligibility.Reason)

	// A posting without a test gate denies the same way.
	posting.SkillTestTemplateID = nil
	eligibility, err = svc.CanAttempt(ctx, uuid.New(), posting.ID)
	require.NoError(t, err)
	assert.False(t, eligibility.CanAttempt)
	assert.Equal(t, ReasonMissingPosting, eligibility.Reason)
}

func TestSkillTestService_CanAttempt_InProgress(t *testing.T) {
	_, _, svc, posting := testSkillTestFixture()
	ctx := context.Background()
	applicantID := uuid.New()

	_, err := svc.StartAttempt(ctx, applicantID, models.RoleJobSeeker, posting.ID)
	require.NoError(t, err)

	eligibility, err := svc.CanAttempt(ctx, applicantID, posting.ID)
	require.NoError(t, err)
	assert.False(t, eligibility.CanAttempt)
	assert.Equal(t, ReasonInProgress, eligibility.Reason)
}

func TestSkillTestService_CooldownExpired(t *testing.T) {
	repo, _, svc, posting := testSkillTestFixture()
	ctx := context.Background()
	applicantID := uuid.New()

	completed := time.Now().Add(-169 * time.Hour)
	repo.attempts[uuid.New()] = &models.SkillTestAttempt{
		ID:          uuid.New(),
		ApplicantID: applicantID,
		PostingID:   posting.ID,
		Status:      models.AttemptStatusCompleted,
		CompletedAt: &completed,
	}

	eligibility, err := svc.CanAttempt(ctx, applicantID, posting.ID)
	require.NoError(t, err)
	assert.True(t, eligibility.CanAttempt)
}

func TestSkillTestService_Submit_ScoresAgainstSnapshot(t *testing.T) {
	_, _, svc, posting := testSkillTestFixture()
	ctx := context.Background()
	applicantID := uuid.New()

	view, err := svc.StartAttempt(ctx, applicantID, models.RoleJobSeeker, posting.ID)
	require.NoError(t, err)

	// Answer everything with option 0: with correct indexes cycling 0..3
	// over the snapshot, some answers hit and some miss, but the score
	// must come from the server-side keys.
	answers := make([]int, len(view.Questions))
	result, err := svc.SubmitAttempt(ctx, applicantID, view.ID, answers, 0)
	require.NoError(t, err)

	assert.Equal(t, models.AttemptStatusCompleted, result.Status)
	require.NotNil(t, result.Score)
	assert.GreaterOrEqual(t, *result.Score, 0)
	assert.LessOrEqual(t, *result.Score, 100)
	assert.Equal(t, *result.Score >= 70, result.Passed)
	assert.False(t, result.TimedOut)
}

func TestSkillTestService_Submit_TabSwitchingFailsAttempt(t *testing.T) {
	_, _, svc, posting := testSkillTestFixture()
	ctx := context.Background()
	applicantID := uuid.New()

	view, err := svc.StartAttempt(ctx, applicantID, models.RoleJobSeeker, posting.ID)
	require.NoError(t, err)

	answers := make([]int, len(view.Questions))
	result, err := svc.SubmitAttempt(ctx, applicantID, view.ID, answers, 2)
	require.NoError(t, err)

	assert.Equal(t, models.AttemptStatusFailedCheat, result.Status)
	assert.False(t, result.Passed)
	assert.Nil(t, result.Score)
}

func TestSkillTestService_Submit_PastDeadlineFailsAttempt(t *testing.T) {
	repo, _, svc, posting := testSkillTestFixture()
	ctx := context.Background()
	applicantID := uuid.New()

	view, err := svc.StartAttempt(ctx, applicantID, models.RoleJobSeeker, posting.ID)
	require.NoError(t, err)

	// Move the deadline into the past, beyond the grace window.
	attempt := repo.attempts[view.ID]
	attempt.Deadline = time.Now().Add(-time.Minute)

	answers := make([]int, len(view.Questions))
	result, err := svc.SubmitAttempt(ctx, applicantID, view.ID, answers, 0)
	require.NoError(t, err)

	assert.Equal(t, models.AttemptStatusFailedCheat, result.Status)
	assert.True(t, result.TimedOut)
	assert.False(t, result.Passed)
	assert.Nil(t, result.Score)
}

func TestSkillTestService_Submit_SealedAttemptRejected(t *testing.T) {
	_, _, svc, posting := testSkillTestFixture()
	ctx := context.Background()
	applicantID := uuid.New()

	view, err := svc.StartAttempt(ctx, applicantID, models.RoleJobSeeker, posting.ID)
	require.NoError(t, err)

	answers := make([]int, len(view.Questions))
	_, err = svc.SubmitAttempt(ctx, applicantID, view.ID, answers, 0)
	require.NoError(t, err)

	_, err = svc.SubmitAttempt(ctx, applicantID, view.ID, answers, 0)
	assert.True(t, apperror.IsPrecondition(err))
}

func TestSkillTestService_Submit_AnswerCountMismatch(t *testing.T) {
	_, _, svc, posting := testSkillTestFixture()
	ctx := context.Background()
	applicantID := uuid.New()

	view, err := svc.StartAttempt(ctx, applicantID, models.RoleJobSeeker, posting.ID)
	require.NoError(t, err)

	_, err = svc.SubmitAttempt(ctx, applicantID, view.ID, []int{0, 1}, 0)
	assert.Error(t, err)
}

func TestSkillTestService_GetAttempt_OwnerOnly(t *testing.T) {
	_, _, svc, posting := testSkillTestFixture()
	ctx := context.Background()
	applicantID := uuid.New()

	view, err := svc.StartAttempt(ctx, applicantID, models.RoleJobSeeker, posting.ID)
	require.NoError(t, err)

	_, err = svc.GetAttempt(ctx, uuid.New(), view.ID)
	assert.True(t, apperror.IsForbidden(err))
}
