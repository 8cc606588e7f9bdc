package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Posting is a job (long-term, application only) or a gig (short-term,
// escrowed milestones). All money is in ZAR cents.
type Posting struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	OwnerID        uuid.UUID      `db:"owner_id" json:"owner_id"`
	Kind           string         `db:"kind" json:"kind"`
	Title          string         `db:"title" json:"title"`
	Description    string         `db:"description" json:"description"`
	RequiredSkills pq.StringArray `db:"required_skills" json:"required_skills"`
	Location       *string        `db:"location" json:"location,omitempty"`
	BudgetMin      *int64         `db:"budget_min" json:"budget_min,omitempty"`
	BudgetMax      *int64         `db:"budget_max" json:"budget_max,omitempty"`
	Status         string         `db:"status" json:"status"`

	// Agreed total of the gig, set when an application is accepted.
	AgreedAmount *int64 `db:"agreed_amount" json:"agreed_amount,omitempty"`

	// Template-based skill test gate. LegacySkillTestID is an inert pointer
	// kept for rows created before the template form existed.
	SkillTestTemplateID *uuid.UUID `db:"skill_test_template_id" json:"skill_test_template_id,omitempty"`
	SkillTestDifficulty *string    `db:"skill_test_difficulty" json:"skill_test_difficulty,omitempty"`
	PassingScore        *int       `db:"passing_score" json:"passing_score,omitempty"`
	LegacySkillTestID   *uuid.UUID `db:"skill_test_id" json:"skill_test_id,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// RequiresSkillTest reports whether applications are gated on a passed test.
func (p *Posting) RequiresSkillTest() bool {
	return p.SkillTestTemplateID != nil
}

// IsGig reports whether the posting runs the milestone/escrow pipeline.
func (p *Posting) IsGig() bool {
	return p.Kind == PostingKindGig
}

// PostingFilter narrows posting listings.
type PostingFilter struct {
	Skills    []string
	Location  *string
	BudgetMin *int64
	BudgetMax *int64
	Status    *string
	Kind      *string
	Limit     int
	Offset    int
}
