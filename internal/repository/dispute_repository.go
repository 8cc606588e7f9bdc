package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kasigigs/kasigigs-backend/internal/models"
	"github.com/kasigigs/kasigigs-backend/internal/pkg/apperror"
	"github.com/kasigigs/kasigigs-backend/internal/repository/common"
)

type DisputeRepository struct {
	db      *sqlx.DB
	escrows *EscrowRepository
}

func NewDisputeRepository(db *sqlx.DB, escrows *EscrowRepository) *DisputeRepository {
	return &DisputeRepository{db: db, escrows: escrows}
}

// Create opens a dispute and freezes its escrow in one transaction.
func (r *DisputeRepository) Create(ctx context.Context, d *models.Dispute) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var active int
		err := tx.GetContext(ctx, &active, `
			SELECT COUNT(*) FROM disputes WHERE milestone_id = $1 AND status <> 'resolved'
		`, d.MilestoneID)
		if err != nil {
			return fmt.Errorf("dispute repository: check active: %w", err)
		}
		if active > 0 {
			return apperror.ErrDisputeExists
		}

		if err := r.escrows.MarkDisputed(ctx, tx, d.EscrowID, d.InitiatorID); err != nil {
			return err
		}

		err = tx.GetContext(ctx, d, `
			INSERT INTO disputes (gig_id, milestone_id, escrow_id, initiator_id, respondent_id,
				reason, status, response_deadline)
			VALUES ($1, $2, $3, $4, $5, $6, 'awaiting_response', $7)
			RETURNING *
		`, d.GigID, d.MilestoneID, d.EscrowID, d.InitiatorID, d.RespondentID, d.Reason, d.ResponseDeadline)
		if err != nil {
			return fmt.Errorf("dispute repository: create: %w", err)
		}
		return common.InsertStatusHistory(ctx, tx, "dispute", d.ID, nil, d.Status, &d.InitiatorID)
	})
}

// GetByID returns a dispute by id.
func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return common.GetByID[models.Dispute](ctx, r.db, "disputes", id, apperror.ErrDisputeNotFound)
}

// GetActiveByMilestone returns the milestone's unresolved dispute, if any.
func (r *DisputeRepository) GetActiveByMilestone(ctx context.Context, milestoneID uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `
		SELECT * FROM disputes WHERE milestone_id = $1 AND status <> 'resolved'
	`, milestoneID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("dispute repository: get active by milestone: %w", err)
	}
	return &d, nil
}

// ListByUser returns disputes where the user is a party, newest first.
func (r *DisputeRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT * FROM disputes
		WHERE initiator_id = $1 OR respondent_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return disputes, err
}

// ListOpen returns unresolved disputes for the admin queue, oldest first.
func (r *DisputeRepository) ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT * FROM disputes WHERE status <> 'resolved' ORDER BY created_at ASC LIMIT $1 OFFSET $2
	`, limit, offset)
	return disputes, err
}

// SubmitResponse records the respondent's answer and moves the dispute to
// under_review.
func (r *DisputeRepository) SubmitResponse(ctx context.Context, id uuid.UUID, respondentID uuid.UUID, response string) (*models.Dispute, error) {
	var updated models.Dispute
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var d models.Dispute
		err := tx.GetContext(ctx, &d, `SELECT * FROM disputes WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.ErrDisputeNotFound
			}
			return err
		}
		if d.RespondentID != respondentID {
			return apperror.ErrForbidden
		}
		if d.Status != models.DisputeStatusOpen && d.Status != models.DisputeStatusAwaitingResponse {
			return apperror.ErrInvalidTransition
		}

		err = tx.GetContext(ctx, &updated, `
			UPDATE disputes SET status = 'under_review', response = $2 WHERE id = $1 RETURNING *
		`, id, response)
		if err != nil {
			return fmt.Errorf("dispute repository: submit response: %w", err)
		}
		return common.InsertStatusHistory(ctx, tx, "dispute", id, &d.Status, models.DisputeStatusUnderReview, &respondentID)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// AddEvidence appends one evidence item from either party.
func (r *DisputeRepository) AddEvidence(ctx context.Context, e *models.DisputeEvidence) error {
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO dispute_evidence (dispute_id, author_id, note, attachment_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, e.DisputeID, e.AuthorID, e.Note, e.AttachmentID).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("dispute repository: add evidence: %w", err)
	}
	return nil
}

// ListEvidence returns a dispute's evidence in submission order.
func (r *DisputeRepository) ListEvidence(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeEvidence, error) {
	var evidence []models.DisputeEvidence
	err := r.db.SelectContext(ctx, &evidence, `
		SELECT * FROM dispute_evidence WHERE dispute_id = $1 ORDER BY created_at ASC
	`, disputeID)
	return evidence, err
}

// AdvanceOverdue moves awaiting_response disputes past their deadline to
// under_review with the no-response marker set.
func (r *DisputeRepository) AdvanceOverdue(ctx context.Context, now time.Time) (int64, error) {
	var advancedIDs []uuid.UUID
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.SelectContext(ctx, &advancedIDs, `
			UPDATE disputes SET status = 'under_review', no_response = TRUE
			WHERE status = 'awaiting_response' AND response_deadline < $1
			RETURNING id
		`, now)
		if err != nil {
			return fmt.Errorf("dispute repository: advance overdue: %w", err)
		}
		from := models.DisputeStatusAwaitingResponse
		for _, id := range advancedIDs {
			if err := common.InsertStatusHistory(ctx, tx, "dispute", id, &from, models.DisputeStatusUnderReview, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int64(len(advancedIDs)), nil
}
