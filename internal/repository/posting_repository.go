package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kasigigs/kasigigs-backend/internal/models"
	"github.com/kasigigs/kasigigs-backend/internal/pkg/apperror"
	"github.com/kasigigs/kasigigs-backend/internal/repository/common"
)

type PostingRepository struct {
	db *sqlx.DB
}

func NewPostingRepository(db *sqlx.DB) *PostingRepository {
	return &PostingRepository{db: db}
}

// Create inserts a new open posting.
func (r *PostingRepository) Create(ctx context.Context, p *models.Posting) error {
	query := `
		INSERT INTO postings (owner_id, kind, title, description, required_skills, location,
			budget_min, budget_max, status, skill_test_template_id, skill_test_difficulty, passing_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'open', $9, $10, $11)
		RETURNING id, status, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		p.OwnerID, p.Kind, p.Title, p.Description, p.RequiredSkills, p.Location,
		p.BudgetMin, p.BudgetMax, p.SkillTestTemplateID, p.SkillTestDifficulty, p.PassingScore,
	).Scan(&p.ID, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("posting repository: create: %w", err)
	}
	return nil
}

// GetByID returns a posting by id.
func (r *PostingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Posting, error) {
	return common.GetByID[models.Posting](ctx, r.db, "postings", id, apperror.ErrPostingNotFound)
}

// Update persists the owner-editable fields of an open posting.
func (r *PostingRepository) Update(ctx context.Context, p *models.Posting) error {
	query := `
		UPDATE postings
		SET title = $2, description = $3, required_skills = $4, location = $5,
			budget_min = $6, budget_max = $7, skill_test_template_id = $8,
			skill_test_difficulty = $9, passing_score = $10, updated_at = NOW()
		WHERE id = $1 AND status = 'open'
	`
	res, err := r.db.ExecContext(ctx, query,
		p.ID, p.Title, p.Description, p.RequiredSkills, p.Location,
		p.BudgetMin, p.BudgetMax, p.SkillTestTemplateID, p.SkillTestDifficulty, p.PassingScore,
	)
	if err != nil {
		return fmt.Errorf("posting repository: update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.ErrInvalidTransition
	}
	return nil
}

// SetStatus transitions a posting and appends to the status history.
// fromStatuses guards the transition; an empty guard set allows any source.
func (r *PostingRepository) SetStatus(ctx context.Context, id uuid.UUID, toStatus string, fromStatuses []string, actorID *uuid.UUID) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var current string
		if err := tx.GetContext(ctx, &current,
			`SELECT status FROM postings WHERE id = $1 FOR UPDATE`, id); err != nil {
			return apperror.ErrPostingNotFound
		}
		if len(fromStatuses) > 0 && !contains(fromStatuses, current) {
			return apperror.ErrInvalidTransition
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE postings SET status = $2, updated_at = NOW() WHERE id = $1`, id, toStatus); err != nil {
			return fmt.Errorf("posting repository: set status: %w", err)
		}
		return common.InsertStatusHistory(ctx, tx, "posting", id, &current, toStatus, actorID)
	})
}

// List returns postings matching the filter, newest first.
func (r *PostingRepository) List(ctx context.Context, filter models.PostingFilter) ([]models.Posting, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	idx := 1

	add := func(cond string, value interface{}) {
		conditions = append(conditions, fmt.Sprintf(cond, idx))
		args = append(args, value)
		idx++
	}

	if filter.Status != nil {
		add("status = $%d", *filter.Status)
	} else {
		conditions = append(conditions, "status <> 'flagged'")
	}
	if filter.Kind != nil {
		add("kind = $%d", *filter.Kind)
	}
	if filter.Location != nil {
		add("location ILIKE $%d", "%"+*filter.Location+"%")
	}
	if filter.BudgetMin != nil {
		add("budget_max >= $%d", *filter.BudgetMin)
	}
	if filter.BudgetMax != nil {
		add("budget_min <= $%d", *filter.BudgetMax)
	}
	if len(filter.Skills) > 0 {
		add("required_skills && $%d", pq.StringArray(filter.Skills))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT * FROM postings
		WHERE %s
		ORDER BY created_at DESC
		LIMIT %d OFFSET %d
	`, strings.Join(conditions, " AND "), limit, offset)

	var postings []models.Posting
	if err := r.db.SelectContext(ctx, &postings, query, args...); err != nil {
		return nil, fmt.Errorf("posting repository: list: %w", err)
	}
	return postings, nil
}

// ListByOwner returns the owner's postings, newest first.
func (r *PostingRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Posting, error) {
	var postings []models.Posting
	err := r.db.SelectContext(ctx, &postings, `
		SELECT * FROM postings WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	return postings, err
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
