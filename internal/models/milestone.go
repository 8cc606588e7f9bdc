package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Milestone is an ordered, percentage-weighted slice of a gig's fee.
// Writes are guarded by the Version counter: a stale write fails with a
// conflict instead of clobbering a concurrent transition.
type Milestone struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	GigID          uuid.UUID   `db:"gig_id" json:"gig_id"`
	Index          int         `db:"idx" json:"index"`
	Title          string      `db:"title" json:"title"`
	Percentage     int         `db:"percentage" json:"percentage"`
	Amount         int64       `db:"amount" json:"amount"`
	Status         string      `db:"status" json:"status"`
	Version        int         `db:"version" json:"version"`
	RevisionCount  int         `db:"revision_count" json:"revision_count"`
	SubmissionNote *string     `db:"submission_note" json:"submission_note,omitempty"`
	DeliverableIDs UUIDSlice   `db:"deliverable_ids" json:"deliverable_ids,omitempty"`
	ExternalLinks  StringSlice `db:"external_links" json:"external_links,omitempty"`
	ReviewNotes    *string     `db:"review_notes" json:"review_notes,omitempty"`
	SubmittedAt    *time.Time  `db:"submitted_at" json:"submitted_at,omitempty"`
	ApprovedAt     *time.Time  `db:"approved_at" json:"approved_at,omitempty"`
	PaidAt         *time.Time  `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

// StringSlice stores deliverable links as JSONB.
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *StringSlice) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	case nil:
		*s = nil
		return nil
	default:
		return fmt.Errorf("string slice: unsupported scan type %T", src)
	}
}
