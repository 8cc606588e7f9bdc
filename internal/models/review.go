package models

import (
	"time"

	"github.com/google/uuid"
)

// Review dimension names per author role. Employers rate the job seeker's
// delivery; job seekers rate the employer as a workplace.
var (
	EmployerReviewDimensions  = []string{"technical_skills", "communication", "work_quality", "professionalism"}
	JobSeekerReviewDimensions = []string{"work_environment", "management", "compensation", "career_growth"}
)

// Review is one side of the bilateral review on a completed gig.
// Dimension pointers are nil when the author skipped that dimension;
// OverallRating is the mean of the non-nil dimensions, one decimal.
type Review struct {
	ID             uuid.UUID `db:"id" json:"id"`
	GigID          uuid.UUID `db:"gig_id" json:"gig_id"`
	AuthorID       uuid.UUID `db:"author_id" json:"author_id"`
	SubjectID      uuid.UUID `db:"subject_id" json:"subject_id"`
	AuthorRole     string    `db:"author_role" json:"author_role"`
	Dimension1     *int      `db:"dimension_1" json:"-"`
	Dimension2     *int      `db:"dimension_2" json:"-"`
	Dimension3     *int      `db:"dimension_3" json:"-"`
	Dimension4     *int      `db:"dimension_4" json:"-"`
	OverallRating  float64   `db:"overall_rating" json:"overall_rating"`
	Text           *string   `db:"text" json:"text,omitempty"`
	WouldRecommend bool      `db:"would_recommend" json:"would_recommend"`
	Flagged        bool      `db:"flagged" json:"flagged"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Dimensions returns the named ratings for the author's role.
func (r *Review) Dimensions() map[string]*int {
	names := EmployerReviewDimensions
	if r.AuthorRole == RoleJobSeeker {
		names = JobSeekerReviewDimensions
	}
	return map[string]*int{
		names[0]: r.Dimension1,
		names[1]: r.Dimension2,
		names[2]: r.Dimension3,
		names[3]: r.Dimension4,
	}
}

// RatingAggregate is the rolling summary of a user's non-flagged reviews.
// It is recomputable exactly from the review rows.
type RatingAggregate struct {
	UserID         uuid.UUID `db:"user_id" json:"user_id"`
	OverallMean    float64   `db:"overall_mean" json:"overall_mean"`
	Dimension1Mean float64   `db:"dimension_1_mean" json:"dimension_1_mean"`
	Dimension2Mean float64   `db:"dimension_2_mean" json:"dimension_2_mean"`
	Dimension3Mean float64   `db:"dimension_3_mean" json:"dimension_3_mean"`
	Dimension4Mean float64   `db:"dimension_4_mean" json:"dimension_4_mean"`
	TotalReviews   int       `db:"total_reviews" json:"total_reviews"`
	RecommendCount int       `db:"recommend_count" json:"recommend_count"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
