package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification event types emitted on state transitions.
const (
	NotifyApplicationStatus = "application_status"
	NotifyMilestoneStatus   = "milestone_status"
	NotifyEscrowStatus      = "escrow_status"
	NotifyDisputeStatus     = "dispute_status"
	NotifyReviewReceived    = "review_received"
)

// Notification is one event delivered to a user over the websocket hub
// and persisted for later reads.
type Notification struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	UserID    uuid.UUID  `db:"user_id" json:"user_id"`
	Type      string     `db:"type" json:"type"`
	Title     string     `db:"title" json:"title"`
	Body      string     `db:"body" json:"body"`
	EntityID  *uuid.UUID `db:"entity_id" json:"entity_id,omitempty"`
	Read      bool       `db:"read" json:"read"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// StatusHistory is the append-only transition log kept per entity.
type StatusHistory struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	EntityType string     `db:"entity_type" json:"entity_type"`
	EntityID   uuid.UUID  `db:"entity_id" json:"entity_id"`
	FromStatus *string    `db:"from_status" json:"from_status,omitempty"`
	ToStatus   string     `db:"to_status" json:"to_status"`
	ActorID    *uuid.UUID `db:"actor_id" json:"actor_id,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// Report is a moderation complaint against a posting, review or user.
type Report struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	ReporterID  uuid.UUID  `db:"reporter_id" json:"reporter_id"`
	TargetType  string     `db:"target_type" json:"target_type"`
	TargetID    uuid.UUID  `db:"target_id" json:"target_id"`
	Reason      string     `db:"reason" json:"reason"`
	Description *string    `db:"description" json:"description,omitempty"`
	Status      string     `db:"status" json:"status"`
	ReviewedBy  *uuid.UUID `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
