package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kasigigs/kasigigs-backend/internal/models"
	"github.com/kasigigs/kasigigs-backend/internal/pkg/apperror"
	"github.com/kasigigs/kasigigs-backend/internal/repository/common"
)

type MilestoneRepository struct {
	db *sqlx.DB
}

func NewMilestoneRepository(db *sqlx.DB) *MilestoneRepository {
	return &MilestoneRepository{db: db}
}

// GetByID returns a milestone by id.
func (r *MilestoneRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	return common.GetByID[models.Milestone](ctx, r.db, "milestones", id, apperror.ErrMilestoneNotFound)
}

// ListByGig returns the milestones of a gig ordered by index.
func (r *MilestoneRepository) ListByGig(ctx context.Context, gigID uuid.UUID) ([]models.Milestone, error) {
	var milestones []models.Milestone
	err := r.db.SelectContext(ctx, &milestones, `
		SELECT * FROM milestones WHERE gig_id = $1 ORDER BY idx ASC
	`, gigID)
	return milestones, err
}

// NextPending returns the lowest-indexed pending milestone of a gig, if any.
func (r *MilestoneRepository) NextPending(ctx context.Context, gigID uuid.UUID) (*models.Milestone, error) {
	var m models.Milestone
	err := r.db.GetContext(ctx, &m, `
		SELECT * FROM milestones WHERE gig_id = $1 AND status = 'pending' ORDER BY idx ASC LIMIT 1
	`, gigID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("milestone repository: next pending: %w", err)
	}
	return &m, nil
}

// Submit moves the milestone from pending to submitted with the deliverable
// payload. The write is versioned: a stale observed version loses with a
// conflict, and only the lowest-indexed pending milestone is accepted.
func (r *MilestoneRepository) Submit(ctx context.Context, id uuid.UUID, observedVersion int, note *string, deliverableIDs models.UUIDSlice, links models.StringSlice, actorID uuid.UUID) (*models.Milestone, error) {
	var updated models.Milestone
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		m, err := lockMilestone(ctx, tx, id)
		if err != nil {
			return err
		}
		if m.Status != models.MilestoneStatusPending {
			return apperror.ErrInvalidTransition
		}
		if m.Version != observedVersion {
			return apperror.ErrConflict
		}

		// Ordered gating: this must be the lowest-indexed pending milestone,
		// so an earlier one still awaiting delivery or review blocks it.
		var blockers int
		err = tx.GetContext(ctx, &blockers, `
			SELECT COUNT(*) FROM milestones
			WHERE gig_id = $1 AND idx < $2 AND status IN ('pending', 'submitted')
		`, m.GigID, m.Index)
		if err != nil {
			return fmt.Errorf("milestone repository: check ordering: %w", err)
		}
		if blockers > 0 {
			return apperror.ErrMilestoneNotNext
		}

		err = tx.GetContext(ctx, &updated, `
			UPDATE milestones
			SET status = 'submitted', submission_note = $2, deliverable_ids = $3,
				external_links = $4, submitted_at = NOW(), version = version + 1, updated_at = NOW()
			WHERE id = $1 AND version = $5
			RETURNING *
		`, id, note, deliverableIDs, links, observedVersion)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.ErrConflict
			}
			return fmt.Errorf("milestone repository: submit: %w", err)
		}
		return common.InsertStatusHistory(ctx, tx, "milestone", id, &m.Status, models.MilestoneStatusSubmitted, &actorID)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Review moves a submitted milestone to approved, or back to pending on a
// rejection or a revision request. Revision requests bump the counter and
// are idempotent on the same index.
func (r *MilestoneRepository) Review(ctx context.Context, id uuid.UUID, observedVersion int, toStatus string, notes *string, actorID uuid.UUID) (*models.Milestone, error) {
	var updated models.Milestone
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		m, err := lockMilestone(ctx, tx, id)
		if err != nil {
			return err
		}
		if m.Status != models.MilestoneStatusSubmitted {
			return apperror.ErrInvalidTransition
		}
		if m.Version != observedVersion {
			return apperror.ErrConflict
		}

		switch toStatus {
		case models.MilestoneStatusApproved:
			err = tx.GetContext(ctx, &updated, `
				UPDATE milestones
				SET status = 'approved', review_notes = $2, approved_at = NOW(),
					version = version + 1, updated_at = NOW()
				WHERE id = $1 AND version = $3
				RETURNING *
			`, id, notes, observedVersion)
		case models.MilestoneStatusRejected:
			// A rejection lands the milestone back on pending so the
			// freelancer can resubmit; the notes explain why.
			err = tx.GetContext(ctx, &updated, `
				UPDATE milestones
				SET status = 'pending', review_notes = $2,
					version = version + 1, updated_at = NOW()
				WHERE id = $1 AND version = $3
				RETURNING *
			`, id, notes, observedVersion)
		case models.MilestoneStatusRevisionRequested:
			err = tx.GetContext(ctx, &updated, `
				UPDATE milestones
				SET status = 'pending', review_notes = $2, revision_count = revision_count + 1,
					version = version + 1, updated_at = NOW()
				WHERE id = $1 AND version = $3
				RETURNING *
			`, id, notes, observedVersion)
		default:
			return apperror.ErrInvalidTransition
		}
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.ErrConflict
			}
			return fmt.Errorf("milestone repository: review: %w", err)
		}
		return common.InsertStatusHistory(ctx, tx, "milestone", id, &m.Status, toStatus, &actorID)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func lockMilestone(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.Milestone, error) {
	var m models.Milestone
	err := tx.GetContext(ctx, &m, `SELECT * FROM milestones WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrMilestoneNotFound
		}
		return nil, err
	}
	return &m, nil
}
