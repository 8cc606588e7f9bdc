package handlers

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/h2non/filetype"

	"github.com/kasigigs/kasigigs-backend/internal/http/handlers/common"
	"github.com/kasigigs/kasigigs-backend/internal/models"
	"github.com/kasigigs/kasigigs-backend/internal/repository"
	"github.com/kasigigs/kasigigs-backend/internal/storage"
)

// Accepted upload types: CVs, deliverable archives and images.
var allowedMimeTypes = map[string]bool{
	"application/pdf": true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/zip": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
}

var allowedExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".zip":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// AttachmentHandler manages file uploads: CVs on applications, milestone
// deliverables and dispute evidence.
type AttachmentHandler struct {
	repo    *repository.AttachmentRepository
	storage *storage.FileStorage
}

func NewAttachmentHandler(repo *repository.AttachmentRepository, storage *storage.FileStorage) *AttachmentHandler {
	return &AttachmentHandler{repo: repo, storage: storage}
}

// Upload handles POST /attachments.
func (h *AttachmentHandler) Upload(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		common.RespondBadRequest(c, "the file field is required")
		return
	}

	if file.Size == 0 {
		common.RespondBadRequest(c, "the file is empty")
		return
	}
	if file.Size > h.storage.MaxUploadBytes() {
		common.RespondError(c, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("the file exceeds the %d byte upload limit", h.storage.MaxUploadBytes()))
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedExtensions[ext] {
		common.RespondBadRequest(c, "unsupported file extension")
		return
	}

	src, err := file.Open()
	if err != nil {
		_ = c.Error(err)
		return
	}
	defer src.Close()

	// Check magic bytes so the declared extension can't smuggle in
	// another format.
	buffer := make([]byte, 512)
	n, err := src.Read(buffer)
	if err != nil && err != io.EOF {
		common.RespondBadRequest(c, "could not read the file")
		return
	}

	kind, err := filetype.Match(buffer[:n])
	if err != nil || kind == filetype.Unknown {
		common.RespondBadRequest(c, "could not determine the file type")
		return
	}
	if !allowedMimeTypes[kind.MIME.Value] {
		common.RespondBadRequest(c, fmt.Sprintf("unsupported file type %s", kind.MIME.Value))
		return
	}

	if seeker, ok := src.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			_ = c.Error(err)
			return
		}
	}

	relativePath, size, err := h.storage.Save(c.Request.Context(), userID, file.Filename, src)
	if err != nil {
		_ = c.Error(err)
		return
	}

	attachment := &models.Attachment{
		ID:        uuid.New(),
		UserID:    userID,
		FilePath:  relativePath,
		FileName:  file.Filename,
		FileType:  kind.MIME.Value,
		FileSize:  size,
		CreatedAt: time.Now(),
	}
	if err := h.repo.Create(c.Request.Context(), attachment); err != nil {
		// Keep storage consistent with the database.
		_ = h.storage.Delete(c.Request.Context(), relativePath)
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, attachment)
}

// Download handles GET /media/:id.
func (h *AttachmentHandler) Download(c *gin.Context) {
	attachmentID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	attachment, err := h.repo.GetByID(c.Request.Context(), attachmentID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	f, err := h.storage.Open(c.Request.Context(), attachment.FilePath)
	if err != nil {
		_ = c.Error(err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", attachment.FileType)
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", attachment.FileName))
	if _, err := io.Copy(c.Writer, f); err != nil {
		_ = c.Error(err)
	}
}

// Delete handles DELETE /attachments/:id. Owner only.
func (h *AttachmentHandler) Delete(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	attachmentID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	attachment, err := h.repo.GetByID(c.Request.Context(), attachmentID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.repo.Delete(c.Request.Context(), userID, attachmentID); err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.storage.Delete(c.Request.Context(), attachment.FilePath); err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondSuccess(c, http.StatusOK, "attachment deleted", nil)
}
