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

type SkillTestRepository struct {
	db *sqlx.DB
}

func NewSkillTestRepository(db *sqlx.DB) *SkillTestRepository {
	return &SkillTestRepository{db: db}
}

// GetTemplate returns an immutable question bank by id.
func (r *SkillTestRepository) GetTemplate(ctx context.Context, id uuid.UUID) (*models.SkillTestTemplate, error) {
	return common.GetByID[models.SkillTestTemplate](ctx, r.db, "skill_test_templates", id, apperror.ErrTemplateNotFound)
}

// GetActiveAttempt returns the in-progress attempt for the pair, if any.
func (r *SkillTestRepository) GetActiveAttempt(ctx context.Context, applicantID, postingID uuid.UUID) (*models.SkillTestAttempt, error) {
	var attempt models.SkillTestAttempt
	err := r.db.GetContext(ctx, &attempt, `
		SELECT * FROM skill_test_attempts
		WHERE applicant_id = $1 AND posting_id = $2 AND status = 'in_progress'
	`, applicantID, postingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("skill test repository: get active attempt: %w", err)
	}
	return &attempt, nil
}

// GetLastTerminalAttempt returns the newest sealed attempt for the pair, if any.
func (r *SkillTestRepository) GetLastTerminalAttempt(ctx context.Context, applicantID, postingID uuid.UUID) (*models.SkillTestAttempt, error) {
	var attempt models.SkillTestAttempt
	err := r.db.GetContext(ctx, &attempt, `
		SELECT * FROM skill_test_attempts
		WHERE applicant_id = $1 AND posting_id = $2 AND status <> 'in_progress'
		ORDER BY completed_at DESC NULLS LAST, started_at DESC
		LIMIT 1
	`, applicantID, postingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("skill test repository: get last attempt: %w", err)
	}
	return &attempt, nil
}

// HasPassedAttempt reports a completed, passed attempt for the pair.
func (r *SkillTestRepository) HasPassedAttempt(ctx context.Context, applicantID, postingID uuid.UUID) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM skill_test_attempts
		WHERE applicant_id = $1 AND posting_id = $2 AND status = 'completed' AND passed = TRUE
	`, applicantID, postingID)
	if err != nil {
		return false, fmt.Errorf("skill test repository: has passed attempt: %w", err)
	}
	return count > 0, nil
}

// CreateAttempt inserts a fresh in-progress attempt with its question
// snapshot. The partial unique index on (applicant_id, posting_id) where
// status = 'in_progress' backs the one-active-attempt invariant under races.
func (r *SkillTestRepository) CreateAttempt(ctx context.Context, attempt *models.SkillTestAttempt) error {
	query := `
		INSERT INTO skill_test_attempts
			(id, applicant_id, posting_id, template_id, difficulty, questions, status, deadline, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'in_progress', $7, NOW())
		RETURNING started_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		attempt.ID, attempt.ApplicantID, attempt.PostingID, attempt.TemplateID,
		attempt.Difficulty, attempt.Questions, attempt.Deadline,
	).Scan(&attempt.StartedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ErrAttemptInProgress
		}
		return fmt.Errorf("skill test repository: create attempt: %w", err)
	}
	attempt.Status = models.AttemptStatusInProgress
	return nil
}

// GetAttempt returns an attempt by id.
func (r *SkillTestRepository) GetAttempt(ctx context.Context, id uuid.UUID) (*models.SkillTestAttempt, error) {
	return common.GetByID[models.SkillTestAttempt](ctx, r.db, "skill_test_attempts", id, apperror.ErrAttemptNotFound)
}

// SealAttempt finalizes an in-progress attempt with its terminal status,
// answers and score. Sealing an already terminal attempt fails.
func (r *SkillTestRepository) SealAttempt(ctx context.Context, attempt *models.SkillTestAttempt) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var current string
		err := tx.GetContext(ctx, &current,
			`SELECT status FROM skill_test_attempts WHERE id = $1 FOR UPDATE`, attempt.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.ErrAttemptNotFound
			}
			return err
		}
		if current != models.AttemptStatusInProgress {
			return apperror.ErrInvalidTransition
		}

		now := time.Now()
		attempt.CompletedAt = &now
		_, err = tx.ExecContext(ctx, `
			UPDATE skill_test_attempts
			SET status = $2, answers = $3, score = $4, passed = $5,
				tab_switches = $6, timed_out = $7, completed_at = $8
			WHERE id = $1
		`, attempt.ID, attempt.Status, attempt.Answers, attempt.Score, attempt.Passed,
			attempt.TabSwitches, attempt.TimedOut, now)
		if err != nil {
			return fmt.Errorf("skill test repository: seal attempt: %w", err)
		}
		return common.InsertStatusHistory(ctx, tx, "skill_test_attempt", attempt.ID, &current, attempt.Status, &attempt.ApplicantID)
	})
}

// ListAttemptsByPosting returns every attempt for a posting, newest first.
func (r *SkillTestRepository) ListAttemptsByPosting(ctx context.Context, postingID uuid.UUID) ([]models.SkillTestAttempt, error) {
	var attempts []models.SkillTestAttempt
	err := r.db.SelectContext(ctx, &attempts, `
		SELECT * FROM skill_test_attempts WHERE posting_id = $1 ORDER BY started_at DESC
	`, postingID)
	return attempts, err
}

// AbandonOverdue seals in-progress attempts whose deadline passed without a
// submit. Returns the number of attempts sealed.
func (r *SkillTestRepository) AbandonOverdue(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE skill_test_attempts
		SET status = 'abandoned', completed_at = NOW()
		WHERE status = 'in_progress' AND deadline < NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("skill test repository: abandon overdue: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
