package models

import (
	"time"

	"github.com/google/uuid"
)

// Dispute freezes one milestone's escrow until an admin verdict.
// At most one unresolved dispute per milestone; the resolution is immutable.
type Dispute struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	GigID            uuid.UUID  `db:"gig_id" json:"gig_id"`
	MilestoneID      uuid.UUID  `db:"milestone_id" json:"milestone_id"`
	EscrowID         uuid.UUID  `db:"escrow_id" json:"escrow_id"`
	InitiatorID      uuid.UUID  `db:"initiator_id" json:"initiator_id"`
	RespondentID     uuid.UUID  `db:"respondent_id" json:"respondent_id"`
	Reason           string     `db:"reason" json:"reason"`
	Response         *string    `db:"response" json:"response,omitempty"`
	NoResponse       bool       `db:"no_response" json:"no_response"`
	Status           string     `db:"status" json:"status"`
	Verdict          *string    `db:"verdict" json:"verdict,omitempty"`
	SplitPayeeAmount *int64     `db:"split_payee_amount" json:"split_payee_amount,omitempty"`
	ResolvedBy       *uuid.UUID `db:"resolved_by" json:"resolved_by,omitempty"`
	ResponseDeadline time.Time  `db:"response_deadline" json:"response_deadline"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt       *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// DisputeEvidence is one item submitted by either party.
type DisputeEvidence struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	DisputeID    uuid.UUID  `db:"dispute_id" json:"dispute_id"`
	AuthorID     uuid.UUID  `db:"author_id" json:"author_id"`
	Note         string     `db:"note" json:"note"`
	AttachmentID *uuid.UUID `db:"attachment_id" json:"attachment_id,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}
