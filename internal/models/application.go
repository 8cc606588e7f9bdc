package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Application is a job seeker's bid on a posting. At most one non-terminal
// application may exist per (applicant, posting), and at most one accepted
// application per posting.
type Application struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PostingID       uuid.UUID  `db:"posting_id" json:"posting_id"`
	ApplicantID     uuid.UUID  `db:"applicant_id" json:"applicant_id"`
	Status          string     `db:"status" json:"status"`
	CoverLetter     string     `db:"cover_letter" json:"cover_letter"`
	ProposedRate    *int64     `db:"proposed_rate" json:"proposed_rate,omitempty"`
	Timeline        *string    `db:"timeline" json:"timeline,omitempty"`
	AttachmentIDs   UUIDSlice  `db:"attachment_ids" json:"attachment_ids,omitempty"`
	RejectionReason *string    `db:"rejection_reason" json:"rejection_reason,omitempty"`
	ReviewedBy      *uuid.UUID `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether the status admits no further transition.
func (a *Application) Terminal() bool {
	_, ok := TerminalApplicationStatuses[a.Status]
	return ok
}

// UUIDSlice stores uuid references as JSONB.
type UUIDSlice []uuid.UUID

func (s UUIDSlice) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *UUIDSlice) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	case nil:
		*s = nil
		return nil
	default:
		return fmt.Errorf("uuid slice: unsupported scan type %T", src)
	}
}

// MilestonePlanItem is one slice of the milestone plan supplied at hire.
type MilestonePlanItem struct {
	Title      string `json:"title"`
	Percentage int    `json:"percentage"`
}
