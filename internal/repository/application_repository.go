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

type ApplicationRepository struct {
	db *sqlx.DB
}

func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create inserts a pending application. The partial unique index on
// (posting_id, applicant_id) where status IN ('pending','shortlisted')
// backs the one-active-application invariant under races.
func (r *ApplicationRepository) Create(ctx context.Context, a *models.Application) error {
	query := `
		INSERT INTO applications (posting_id, applicant_id, status, cover_letter, proposed_rate, timeline, attachment_ids)
		VALUES ($1, $2, 'pending', $3, $4, $5, $6)
		RETURNING id, status, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		a.PostingID, a.ApplicantID, a.CoverLetter, a.ProposedRate, a.Timeline, a.AttachmentIDs,
	).Scan(&a.ID, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ErrDuplicateApplication
		}
		return fmt.Errorf("application repository: create: %w", err)
	}
	return nil
}

// GetByID returns an application by id.
func (r *ApplicationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	return common.GetByID[models.Application](ctx, r.db, "applications", id, apperror.ErrApplicationNotFound)
}

// GetActive returns the applicant's non-terminal application for a posting, if any.
func (r *ApplicationRepository) GetActive(ctx context.Context, postingID, applicantID uuid.UUID) (*models.Application, error) {
	var a models.Application
	err := r.db.GetContext(ctx, &a, `
		SELECT * FROM applications
		WHERE posting_id = $1 AND applicant_id = $2 AND status IN ('pending', 'shortlisted')
	`, postingID, applicantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("application repository: get active: %w", err)
	}
	return &a, nil
}

// GetAccepted returns the single accepted application on a posting, if any.
// "Current accepted application" is a lookup, never a stored back-pointer.
func (r *ApplicationRepository) GetAccepted(ctx context.Context, postingID uuid.UUID) (*models.Application, error) {
	var a models.Application
	err := r.db.GetContext(ctx, &a, `
		SELECT * FROM applications WHERE posting_id = $1 AND status = 'accepted'
	`, postingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("application repository: get accepted: %w", err)
	}
	return &a, nil
}

// ListByPosting returns every application on a posting, newest first.
func (r *ApplicationRepository) ListByPosting(ctx context.Context, postingID uuid.UUID) ([]models.Application, error) {
	var apps []models.Application
	err := r.db.SelectContext(ctx, &apps, `
		SELECT * FROM applications WHERE posting_id = $1 ORDER BY created_at DESC
	`, postingID)
	return apps, err
}

// ListByApplicant returns the applicant's applications, newest first.
func (r *ApplicationRepository) ListByApplicant(ctx context.Context, applicantID uuid.UUID, limit, offset int) ([]models.Application, error) {
	var apps []models.Application
	err := r.db.SelectContext(ctx, &apps, `
		SELECT * FROM applications WHERE applicant_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, applicantID, limit, offset)
	return apps, err
}

// UpdateStatus performs a guarded non-accept transition (shortlist, reject,
// withdraw) and records it. Terminal statuses admit no further writes.
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, toStatus string, fromStatuses []string, actorID uuid.UUID, rejectionReason *string) (*models.Application, error) {
	var updated models.Application
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var a models.Application
		err := tx.GetContext(ctx, &a, `SELECT * FROM applications WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.ErrApplicationNotFound
			}
			return err
		}
		if !contains(fromStatuses, a.Status) {
			return apperror.ErrInvalidTransition
		}

		err = tx.GetContext(ctx, &updated, `
			UPDATE applications
			SET status = $2, rejection_reason = $3, reviewed_by = $4, reviewed_at = NOW(), updated_at = NOW()
			WHERE id = $1
			RETURNING *
		`, id, toStatus, rejectionReason, actorID)
		if err != nil {
			return fmt.Errorf("application repository: update status: %w", err)
		}
		return common.InsertStatusHistory(ctx, tx, "application", id, &a.Status, toStatus, &actorID)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Accept atomically accepts one application: the posting is locked and must
// still be open, every other non-terminal application is rejected, the
// posting moves to in_progress with the agreed amount, and gig milestones
// are created. A concurrent accept loses on the open-status check.
func (r *ApplicationRepository) Accept(ctx context.Context, postingID, applicationID, ownerID uuid.UUID, agreedAmount int64, milestones []models.Milestone) (*models.Application, error) {
	var accepted models.Application
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var posting models.Posting
		err := tx.GetContext(ctx, &posting, `SELECT * FROM postings WHERE id = $1 FOR UPDATE`, postingID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.ErrPostingNotFound
			}
			return err
		}
		if posting.OwnerID != ownerID {
			return apperror.ErrForbidden
		}
		if posting.Status != models.PostingStatusOpen {
			// The first successful accept moved the posting on; later
			// accepts surface as a conflict.
			return apperror.ErrConflict
		}

		var a models.Application
		err = tx.GetContext(ctx, &a, `SELECT * FROM applications WHERE id = $1 AND posting_id = $2 FOR UPDATE`, applicationID, postingID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.ErrApplicationNotFound
			}
			return err
		}
		if a.Status != models.ApplicationStatusPending && a.Status != models.ApplicationStatusShortlisted {
			return apperror.ErrInvalidTransition
		}

		err = tx.GetContext(ctx, &accepted, `
			UPDATE applications
			SET status = 'accepted', reviewed_by = $2, reviewed_at = NOW(), updated_at = NOW()
			WHERE id = $1
			RETURNING *
		`, applicationID, ownerID)
		if err != nil {
			return fmt.Errorf("application repository: accept: %w", err)
		}
		if err := common.InsertStatusHistory(ctx, tx, "application", applicationID, &a.Status, models.ApplicationStatusAccepted, &ownerID); err != nil {
			return err
		}

		// Reject every other non-terminal application on the posting.
		reason := "another applicant was accepted"
		var rejectedIDs []uuid.UUID
		err = tx.SelectContext(ctx, &rejectedIDs, `
			UPDATE applications
			SET status = 'rejected', rejection_reason = $3, reviewed_by = $2, reviewed_at = NOW(), updated_at = NOW()
			WHERE posting_id = $1 AND id <> $4 AND status IN ('pending', 'shortlisted')
			RETURNING id
		`, postingID, ownerID, reason, applicationID)
		if err != nil {
			return fmt.Errorf("application repository: reject losers: %w", err)
		}
		for _, rid := range rejectedIDs {
			if err := common.InsertStatusHistory(ctx, tx, "application", rid, nil, models.ApplicationStatusRejected, &ownerID); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE postings SET status = 'in_progress', agreed_amount = $2, updated_at = NOW() WHERE id = $1
		`, postingID, agreedAmount)
		if err != nil {
			return fmt.Errorf("application repository: advance posting: %w", err)
		}
		from := models.PostingStatusOpen
		if err := common.InsertStatusHistory(ctx, tx, "posting", postingID, &from, models.PostingStatusInProgress, &ownerID); err != nil {
			return err
		}

		for i := range milestones {
			m := &milestones[i]
			err := tx.GetContext(ctx, m, `
				INSERT INTO milestones (gig_id, idx, title, percentage, amount, status, version)
				VALUES ($1, $2, $3, $4, $5, 'pending', 1)
				RETURNING *
			`, m.GigID, m.Index, m.Title, m.Percentage, m.Amount)
			if err != nil {
				return fmt.Errorf("application repository: create milestone %d: %w", m.Index, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &accepted, nil
}
