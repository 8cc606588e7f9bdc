package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kasigigs/kasigigs-backend/internal/models"
	"github.com/kasigigs/kasigigs-backend/internal/pkg/apperror"
	"github.com/kasigigs/kasigigs-backend/internal/repository/common"
)

type AttachmentRepository struct {
	db *sqlx.DB
}

func NewAttachmentRepository(db *sqlx.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// Create records an uploaded file.
func (r *AttachmentRepository) Create(ctx context.Context, a *models.Attachment) error {
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO attachments (user_id, file_path, file_name, file_type, file_size)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, a.UserID, a.FilePath, a.FileName, a.FileType, a.FileSize).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("attachment repository: create: %w", err)
	}
	return nil
}

// GetByID returns an attachment by id.
func (r *AttachmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Attachment, error) {
	return common.GetByID[models.Attachment](ctx, r.db, "attachments", id, apperror.New(apperror.ErrCodeNotFound, "missing_attachment", "attachment not found"))
}

// Delete removes an attachment owned by the user.
func (r *AttachmentRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("attachment repository: delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.ErrForbidden
	}
	return nil
}
