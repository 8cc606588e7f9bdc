package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kasigigs/kasigigs-backend/internal/models"
	"github.com/kasigigs/kasigigs-backend/internal/pkg/apperror"
	"github.com/kasigigs/kasigigs-backend/internal/repository/common"
)

type ReviewRepository struct {
	db *sqlx.DB
}

func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create inserts a review and folds it into the subject's rating aggregate
// in the same transaction, so readers never observe one without the other.
func (r *ReviewRepository) Create(ctx context.Context, review *models.Review) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, review, `
			INSERT INTO reviews (gig_id, author_id, subject_id, author_role,
				dimension_1, dimension_2, dimension_3, dimension_4,
				overall_rating, text, would_recommend)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING *
		`, review.GigID, review.AuthorID, review.SubjectID, review.AuthorRole,
			review.Dimension1, review.Dimension2, review.Dimension3, review.Dimension4,
			review.OverallRating, review.Text, review.WouldRecommend)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.ErrAlreadyReviewed
			}
			return fmt.Errorf("review repository: create: %w", err)
		}
		return rebuildAggregate(ctx, tx, review.SubjectID)
	})
}

// GetByID returns a review by id.
func (r *ReviewRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Review, error) {
	return common.GetByID[models.Review](ctx, r.db, "reviews", id, apperror.ErrReviewNotFound)
}

// GetByGigAndAuthor returns the author's review of a gig, if any.
func (r *ReviewRepository) GetByGigAndAuthor(ctx context.Context, gigID, authorID uuid.UUID) (*models.Review, error) {
	var review models.Review
	err := r.db.GetContext(ctx, &review, `
		SELECT * FROM reviews WHERE gig_id = $1 AND author_id = $2
	`, gigID, authorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("review repository: get by gig and author: %w", err)
	}
	return &review, nil
}

// ListBySubject returns non-flagged reviews about a user, newest first.
func (r *ReviewRepository) ListBySubject(ctx context.Context, subjectID uuid.UUID, limit, offset int) ([]models.Review, error) {
	var reviews []models.Review
	err := r.db.SelectContext(ctx, &reviews, `
		SELECT * FROM reviews WHERE subject_id = $1 AND flagged = FALSE
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, subjectID, limit, offset)
	return reviews, err
}

// ListByGig returns the (at most two) reviews on a gig.
func (r *ReviewRepository) ListByGig(ctx context.Context, gigID uuid.UUID) ([]models.Review, error) {
	var reviews []models.Review
	err := r.db.SelectContext(ctx, &reviews, `
		SELECT * FROM reviews WHERE gig_id = $1 AND flagged = FALSE ORDER BY created_at ASC
	`, gigID)
	return reviews, err
}

// GetAggregate returns a user's rating aggregate; zero-valued when the user
// has no reviews yet.
func (r *ReviewRepository) GetAggregate(ctx context.Context, userID uuid.UUID) (*models.RatingAggregate, error) {
	var agg models.RatingAggregate
	err := r.db.GetContext(ctx, &agg, `SELECT * FROM rating_aggregates WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.RatingAggregate{UserID: userID}, nil
		}
		return nil, fmt.Errorf("review repository: get aggregate: %w", err)
	}
	return &agg, nil
}

// Flag marks a review as moderated and rebuilds the subject's aggregate
// from the remaining rows in the same transaction.
func (r *ReviewRepository) Flag(ctx context.Context, id uuid.UUID, moderatorID uuid.UUID) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var review models.Review
		err := tx.GetContext(ctx, &review, `SELECT * FROM reviews WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.ErrReviewNotFound
			}
			return err
		}
		if review.Flagged {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE reviews SET flagged = TRUE WHERE id = $1`, id); err != nil {
			return fmt.Errorf("review repository: flag: %w", err)
		}
		if err := common.InsertStatusHistory(ctx, tx, "review", id, nil, "flagged", &moderatorID); err != nil {
			return err
		}
		return rebuildAggregate(ctx, tx, review.SubjectID)
	})
}

// rebuildAggregate recomputes a user's aggregate as the exact mean of the
// non-flagged reviews; dimension means average only the reviews that rated
// the dimension. Runs after every review write and after flagging.
func rebuildAggregate(ctx context.Context, tx *sqlx.Tx, subjectID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO rating_aggregates (user_id, overall_mean,
			dimension_1_mean, dimension_2_mean, dimension_3_mean, dimension_4_mean,
			total_reviews, recommend_count, updated_at)
		SELECT $1,
			COALESCE(AVG(overall_rating), 0),
			COALESCE(AVG(dimension_1), 0),
			COALESCE(AVG(dimension_2), 0),
			COALESCE(AVG(dimension_3), 0),
			COALESCE(AVG(dimension_4), 0),
			COUNT(*),
			COUNT(*) FILTER (WHERE would_recommend),
			NOW()
		FROM reviews WHERE subject_id = $1 AND flagged = FALSE
		ON CONFLICT (user_id) DO UPDATE SET
			overall_mean = EXCLUDED.overall_mean,
			dimension_1_mean = EXCLUDED.dimension_1_mean,
			dimension_2_mean = EXCLUDED.dimension_2_mean,
			dimension_3_mean = EXCLUDED.dimension_3_mean,
			dimension_4_mean = EXCLUDED.dimension_4_mean,
			total_reviews = EXCLUDED.total_reviews,
			recommend_count = EXCLUDED.recommend_count,
			updated_at = NOW()
	`, subjectID)
	if err != nil {
		return fmt.Errorf("review repository: rebuild aggregate: %w", err)
	}
	return nil
}

// RoundRating rounds to one decimal, the storage precision for overall ratings.
func RoundRating(v float64) float64 {
	return math.Round(v*10) / 10
}
