package models

import (
	"time"

	"github.com/google/uuid"
)

// EscrowPayment is the authoritative money state for one milestone.
// Gross = Fee + Net always; the states form a DAG
// initiated → held → {released | refunded | disputed → {released | refunded}}.
type EscrowPayment struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	GigID       uuid.UUID  `db:"gig_id" json:"gig_id"`
	MilestoneID uuid.UUID  `db:"milestone_id" json:"milestone_id"`
	PayerID     uuid.UUID  `db:"payer_id" json:"payer_id"`
	PayeeID     uuid.UUID  `db:"payee_id" json:"payee_id"`
	Gross       int64      `db:"gross" json:"gross"`
	Fee         int64      `db:"fee" json:"fee"`
	Net         int64      `db:"net" json:"net"`
	Status      string     `db:"status" json:"status"`
	Method      string     `db:"method" json:"method"`
	ExternalRef *string    `db:"external_ref" json:"external_ref,omitempty"`
	HeldAt      *time.Time `db:"held_at" json:"held_at,omitempty"`
	ResolvedAt  *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// Terminal reports whether the state is absorbing.
func (e *EscrowPayment) Terminal() bool {
	return e.Status == EscrowStatusReleased || e.Status == EscrowStatusRefunded
}

// PendingIntent reifies an in-flight gateway call so it survives restarts.
// Intents without a callback are swept after a TTL and marked failed.
type PendingIntent struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	EscrowID    uuid.UUID  `db:"escrow_id" json:"escrow_id"`
	Kind        string     `db:"kind" json:"kind"`
	ExternalRef string     `db:"external_ref" json:"external_ref"`
	Status      string     `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// LedgerEntry is one append-only monetary movement. For every terminal
// escrow transition the movements sum to the original gross.
type LedgerEntry struct {
	ID        uuid.UUID `db:"id" json:"id"`
	EscrowID  uuid.UUID `db:"escrow_id" json:"escrow_id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Type      string    `db:"type" json:"type"`
	Amount    int64     `db:"amount" json:"amount"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// WebhookEvent records a processed gateway notification; replays of the
// same (external_ref, event_type) pair are no-ops.
type WebhookEvent struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ExternalRef string    `db:"external_ref" json:"external_ref"`
	EventType   string    `db:"event_type" json:"event_type"`
	ReceivedAt  time.Time `db:"received_at" json:"received_at"`
}
