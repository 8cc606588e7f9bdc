package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasigigs/kasigigs-backend/internal/models"
	"github.com/kasigigs/kasigigs-backend/internal/pkg/apperror"
)

type mockReviewRepo struct {
	reviews map[uuid.UUID]*models.Review
}

func newMockReviewRepo() *mockReviewRepo {
	return &mockReviewRepo{reviews: make(map[uuid.UUID]*models.Review)}
}

func (m *mockReviewRepo) Create(ctx context.Context, review *models.Review) error {
	for _, existing := range m.reviews {
		if existing.GigID == review.GigID && existing.AuthorID == review.AuthorID {
			return apperror.ErrAlreadyReviewed
		}
	}
	review.ID = uuid.New()
	m.reviews[review.ID] = review
	return nil
}

func (m *mockReviewRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Review, error) {
	if r, ok := m.reviews[id]; ok {
		return r, nil
	}
	return nil, apperror.ErrReviewNotFound
}

func (m *mockReviewRepo) GetByGigAndAuthor(ctx context.Context, gigID, authorID uuid.UUID) (*models.Review, error) {
	for _, r := range m.reviews {
		if r.GigID == gigID && r.AuthorID == authorID {
			return r, nil
		}
	}
	return nil, apperror.ErrReviewNotFound
}

func (m *mockReviewRepo) ListBySubject(ctx context.Context, subjectID uuid.UUID, limit, offset int) ([]models.Review, error) {
	var out []models.Review
	for _, r := range m.reviews {
		if r.SubjectID == subjectID && !r.Flagged {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockReviewRepo) ListByGig(ctx context.Context, gigID uuid.UUID) ([]models.Review, error) {
	var out []models.Review
	for _, r := range m.reviews {
		if r.GigID == gigID && !r.Flagged {
			out = append(out, *r)
		}
	}
	return out, nil
}

// GetAggregate mirrors the repository's recompute: dimension means average
// only the reviews that rated the dimension.
func (m *mockReviewRepo) GetAggregate(ctx context.Context, userID uuid.UUID) (*models.RatingAggregate, error) {
	agg := &models.RatingAggregate{UserID: userID}
	var sum float64
	var dimSum [4]float64
	var dimN [4]int
	for _, r := range m.reviews {
		if r.SubjectID != userID || r.Flagged {
			continue
		}
		agg.TotalReviews++
		sum += r.OverallRating
		if r.WouldRecommend {
			agg.RecommendCount++
		}
		for i, d := range []*int{r.Dimension1, r.Dimension2, r.Dimension3, r.Dimension4} {
			if d != nil {
				dimSum[i] += float64(*d)
				dimN[i]++
			}
		}
	}
	if agg.TotalReviews > 0 {
		agg.OverallMean = sum / float64(agg.TotalReviews)
	}
	means := []*float64{&agg.Dimension1Mean, &agg.Dimension2Mean, &agg.Dimension3Mean, &agg.Dimension4Mean}
	for i, mean := range means {
		if dimN[i] > 0 {
			*mean = dimSum[i] / float64(dimN[i])
		}
	}
	return agg, nil
}

func (m *mockReviewRepo) Flag(ctx context.Context, id uuid.UUID, moderatorID uuid.UUID) error {
	r, ok := m.reviews[id]
	if !ok {
		return apperror.ErrReviewNotFound
	}
	r.Flagged = true
	return nil
}

type reviewFixture struct {
	repo    *mockReviewRepo
	svc     *ReviewService
	workers *mockWorkerStore

	gig      *models.Posting
	workerID uuid.UUID
	notices  *recordingNotificationRepo
}

func newReviewFixture(t *testing.T) *reviewFixture {
	t.Helper()

	gig := &models.Posting{
		ID:      uuid.New(),
		OwnerID: uuid.New(),
		Kind:    models.PostingKindGig,
		Status:  models.PostingStatusCompleted,
	}
	workerID := uuid.New()

	repo := newMockReviewRepo()
	notify, notices := newTestNotifier()
	workers := &mockWorkerStore{accepted: map[uuid.UUID]*models.Application{gig.ID: {ID: uuid.New(), PostingID: gig.ID, ApplicantID: workerID, Status: models.ApplicationStatusAccepted}}}
	svc := NewReviewService(
		repo,
		&mockPostingStore{postings: map[uuid.UUID]*models.Posting{gig.ID: gig}},
		workers,
		notify,
	)

	return &reviewFixture{repo: repo, svc: svc, workers: workers, gig: gig, workerID: workerID, notices: notices}
}

func TestReviewService_Create_EmployerRatesWorker(t *testing.T) {
	f := newReviewFixture(t)

	review, err := f.svc.Create(context.Background(), f.gig.OwnerID, CreateReviewInput{
		GigID: f.gig.ID,
		Dimensions: map[string]int{
			"technical_skills": 5,
			"communication":    4,
			"work_quality":     4,
			"professionalism":  5,
		},
		WouldRecommend: true,
	})
	require.NoError(t, err)

	assert.Equal(t, f.workerID, review.SubjectID)
	assert.Equal(t, models.RoleEmployer, review.AuthorRole)
	assert.Equal(t, 4.5, review.OverallRating)
	assert.Len(t, f.notices.forUser(f.workerID), 1)
}

func TestReviewService_Create_PartialDimensionsMean(t *testing.T) {
	f := newReviewFixture(t)

	review, err := f.svc.Create(context.Background(), f.workerID, CreateReviewInput{
		GigID: f.gig.ID,
		Dimensions: map[string]int{
			"work_environment": 4,
			"management":       3,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, models.RoleJobSeeker, review.AuthorRole)
	// Mean of the rated dimensions only, rounded to one decimal.
	assert.Equal(t, 3.5, review.OverallRating)
}

func TestReviewService_Create_WrongRoleDimensionRejected(t *testing.T) {
	f := newReviewFixture(t)

	_, err := f.svc.Create(context.Background(), f.workerID, CreateReviewInput{
		GigID:      f.gig.ID,
		Dimensions: map[string]int{"technical_skills": 5},
	})
	assert.Error(t, err)
}

func TestReviewService_Create_RatingOutOfRange(t *testing.T) {
	f := newReviewFixture(t)

	_, err := f.svc.Create(context.Background(), f.gig.OwnerID, CreateReviewInput{
		GigID:      f.gig.ID,
		Dimensions: map[string]int{"communication": 6},
	})
	assert.Error(t, err)
}

func TestReviewService_Create_GigNotCompleted(t *testing.T) {
	f := newReviewFixture(t)
	f.gig.Status = models.PostingStatusInProgress

	_, err := f.svc.Create(context.Background(), f.gig.OwnerID, CreateReviewInput{
		GigID:      f.gig.ID,
		Dimensions: map[string]int{"communication": 4},
	})
	assert.ErrorIs(t, err, apperror.ErrGigNotCompleted)
}

func TestReviewService_Create_StrangerForbidden(t *testing.T) {
	f := newReviewFixture(t)

	_, err := f.svc.Create(context.Background(), uuid.New(), CreateReviewInput{
		GigID:      f.gig.ID,
		Dimensions: map[string]int{"communication": 4},
	})
	assert.True(t, apperror.IsForbidden(err))
}

func TestReviewService_Create_NoAcceptedApplicationRejected(t *testing.T) {
	f := newReviewFixture(t)
	delete(f.workers.accepted, f.gig.ID)

	_, err := f.svc.Create(context.Background(), f.gig.OwnerID, CreateReviewInput{
		GigID:      f.gig.ID,
		Dimensions: map[string]int{"technical_skills": 4},
	})
	assert.ErrorIs(t, err, apperror.ErrNoAcceptedApplication)
}

func TestReviewService_Aggregate_PartialDimensionsAverageOverRated(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()
	five, three, four := 5, 3, 4

	require.NoError(t, f.repo.Create(ctx, &models.Review{
		GigID:      f.gig.ID,
		AuthorID:   f.gig.OwnerID,
		SubjectID:  f.workerID,
		AuthorRole: models.RoleEmployer,
		Dimension1: &five, Dimension2: &three,
		OverallRating:  4,
		WouldRecommend: true,
	}))
	require.NoError(t, f.repo.Create(ctx, &models.Review{
		GigID:         uuid.New(),
		AuthorID:      uuid.New(),
		SubjectID:     f.workerID,
		AuthorRole:    models.RoleEmployer,
		Dimension1:    &four,
		OverallRating: 4,
	}))

	agg, err := f.svc.Aggregate(ctx, f.workerID)
	require.NoError(t, err)
	assert.Equal(t, 2, agg.TotalReviews)
	assert.InDelta(t, 4.5, agg.Dimension1Mean, 1e-9)
	// The review that skipped the dimension stays out of its mean.
	assert.InDelta(t, 3.0, agg.Dimension2Mean, 1e-9)
}

func TestReviewService_Create_SecondReviewRejected(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()
	in := CreateReviewInput{
		GigID:      f.gig.ID,
		Dimensions: map[string]int{"communication": 4},
	}

	_, err := f.svc.Create(ctx, f.gig.OwnerID, in)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, f.gig.OwnerID, in)
	assert.ErrorIs(t, err, apperror.ErrAlreadyReviewed)
}

func TestReviewService_Flag_HidesFromAggregate(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()

	review, err := f.svc.Create(ctx, f.gig.OwnerID, CreateReviewInput{
		GigID:      f.gig.ID,
		Dimensions: map[string]int{"communication": 2},
	})
	require.NoError(t, err)

	agg, err := f.svc.Aggregate(ctx, f.workerID)
	require.NoError(t, err)
	assert.Equal(t, 1, agg.TotalReviews)

	require.NoError(t, f.svc.Flag(ctx, uuid.New(), models.RoleAdmin, review.ID))

	agg, err = f.svc.Aggregate(ctx, f.workerID)
	require.NoError(t, err)
	assert.Equal(t, 0, agg.TotalReviews)
}

func TestReviewService_Flag_NonAdminForbidden(t *testing.T) {
	f := newReviewFixture(t)

	err := f.svc.Flag(context.Background(), uuid.New(), models.RoleEmployer, uuid.New())
	assert.True(t, apperror.IsForbidden(err))
}
