package dto

import "github.com/google/uuid"

// Auth.

type RegisterRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	Phone       string `json:"phone"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name"`
	Bio         *string `json:"bio"`
	Location    *string `json:"location"`
	Phone       *string `json:"phone"`
}

type VerifyCodeRequest struct {
	Type string `json:"type" binding:"required"`
	Code string `json:"code" binding:"required"`
}

// Postings.

type PostingRequest struct {
	Kind           string   `json:"kind" binding:"required"`
	Title          string   `json:"title" binding:"required"`
	Description    string   `json:"description" binding:"required"`
	RequiredSkills []string `json:"required_skills"`
	Location       *string  `json:"location"`
	BudgetMin      *int64   `json:"budget_min"`
	BudgetMax      *int64   `json:"budget_max"`

	SkillTestTemplateID *uuid.UUID `json:"skill_test_template_id"`
	SkillTestDifficulty *string    `json:"skill_test_difficulty"`
	PassingScore        *int       `json:"passing_score"`
}

// Applications.

type ApplyRequest struct {
	PostingID     uuid.UUID   `json:"posting_id" binding:"required"`
	CoverLetter   string      `json:"cover_letter" binding:"required"`
	ProposedRate  *int64      `json:"proposed_rate"`
	Timeline      *string     `json:"timeline"`
	AttachmentIDs []uuid.UUID `json:"attachment_ids"`
}

type RejectApplicationRequest struct {
	Reason *string `json:"reason"`
}

type MilestonePlanItemRequest struct {
	Title      string `json:"title" binding:"required"`
	Percentage int    `json:"percentage" binding:"required"`
}

type AcceptApplicationRequest struct {
	AgreedAmount int64                      `json:"agreed_amount" binding:"required"`
	Milestones   []MilestonePlanItemRequest `json:"milestones"`
}

// Skill tests.

type SubmitAttemptRequest struct {
	Answers     []int `json:"answers" binding:"required"`
	TabSwitches int   `json:"tab_switches"`
}

// Milestones.

type SubmitMilestoneRequest struct {
	ObservedVersion int         `json:"observed_version" binding:"required"`
	Note            *string     `json:"note"`
	DeliverableIDs  []uuid.UUID `json:"deliverable_ids"`
	ExternalLinks   []string    `json:"external_links"`
}

type ReviewMilestoneRequest struct {
	ObservedVersion int     `json:"observed_version" binding:"required"`
	Decision        string  `json:"decision" binding:"required"`
	Notes           *string `json:"notes"`
}

// Escrow.

type RefundEscrowRequest struct {
	Reason string `json:"reason"`
}

// Disputes.

type OpenDisputeRequest struct {
	MilestoneID uuid.UUID `json:"milestone_id" binding:"required"`
	Reason      string    `json:"reason" binding:"required"`
}

type DisputeResponseRequest struct {
	Response string `json:"response" binding:"required"`
}

type DisputeEvidenceRequest struct {
	Note         string     `json:"note" binding:"required"`
	AttachmentID *uuid.UUID `json:"attachment_id"`
}

type ResolveDisputeRequest struct {
	Verdict          string `json:"verdict" binding:"required"`
	SplitPayeeAmount int64  `json:"split_payee_amount"`
}

// Reviews.

type CreateReviewRequest struct {
	GigID          uuid.UUID      `json:"gig_id" binding:"required"`
	Dimensions     map[string]int `json:"dimensions" binding:"required"`
	Text           *string        `json:"text"`
	WouldRecommend bool           `json:"would_recommend"`
}

// Reports.

type CreateReportRequest struct {
	TargetType  string    `json:"target_type" binding:"required"`
	TargetID    uuid.UUID `json:"target_id" binding:"required"`
	Reason      string    `json:"reason" binding:"required"`
	Description *string   `json:"description"`
}

type ResolveReportRequest struct {
	ActionTaken bool `json:"action_taken"`
}
