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
)

type VerificationRepository struct {
	db *sqlx.DB
}

func NewVerificationRepository(db *sqlx.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// Create stores a fresh verification code, invalidating earlier unused ones
// of the same type.
func (r *VerificationRepository) Create(ctx context.Context, code *models.VerificationCode) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE verification_codes SET used = TRUE WHERE user_id = $1 AND type = $2 AND used = FALSE
	`, code.UserID, code.Type); err != nil {
		return fmt.Errorf("verification repository: invalidate old codes: %w", err)
	}

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO verification_codes (user_id, type, code, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, code.UserID, code.Type, code.Code, code.ExpiresAt).Scan(&code.ID, &code.CreatedAt)
	if err != nil {
		return fmt.Errorf("verification repository: create: %w", err)
	}
	return tx.Commit()
}

// Consume marks a matching live code as used; returns false when no match.
func (r *VerificationRepository) Consume(ctx context.Context, userID uuid.UUID, verificationType, code string, now time.Time) (bool, error) {
	var id uuid.UUID
	err := r.db.GetContext(ctx, &id, `
		UPDATE verification_codes SET used = TRUE
		WHERE user_id = $1 AND type = $2 AND code = $3 AND used = FALSE AND expires_at > $4
		RETURNING id
	`, userID, verificationType, code, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("verification repository: consume: %w", err)
	}
	return true, nil
}
