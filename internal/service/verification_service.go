package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/kasigigs/kasigigs-backend/internal/models"
	"github.com/kasigigs/kasigigs-backend/internal/pkg/apperror"
)

// VerificationRepository stores one-time codes.
type VerificationRepository interface {
	Create(ctx context.Context, code *models.VerificationCode) error
	Consume(ctx context.Context, userID uuid.UUID, verificationType, code string, now time.Time) (bool, error)
}

// VerificationUserStore flips the verified flags on the account.
type VerificationUserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetVerified(ctx context.Context, id uuid.UUID, verificationType string) error
}

// VerificationService issues and checks email/phone verification codes.
// Delivery (email, SMS) is out of band; the code is returned to the caller
// so the transport can be swapped without touching this service.
type VerificationService struct {
	repo  VerificationRepository
	users VerificationUserStore
}

func NewVerificationService(repo VerificationRepository, users VerificationUserStore) *VerificationService {
	return &VerificationService{repo: repo, users: users}
}

// SendEmailCode issues a fresh email code valid for 15 minutes.
func (s *VerificationService) SendEmailCode(ctx context.Context, userID uuid.UUID) (string, error) {
	return s.issue(ctx, userID, models.VerificationTypeEmail, 15*time.Minute)
}

// SendPhoneCode issues a fresh phone code valid for 5 minutes.
func (s *VerificationService) SendPhoneCode(ctx context.Context, userID uuid.UUID) (string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.Phone == nil || *user.Phone == "" {
		return "", apperror.New(apperror.ErrCodePrecondition, "no_phone", "no phone number on the account")
	}
	return s.issue(ctx, userID, models.VerificationTypePhone, 5*time.Minute)
}

// Confirm consumes a code and marks the channel verified.
func (s *VerificationService) Confirm(ctx context.Context, userID uuid.UUID, verificationType, code string) error {
	if verificationType != models.VerificationTypeEmail && verificationType != models.VerificationTypePhone {
		return apperror.New(apperror.ErrCodeValidation, "invalid_verification_type", "verification type must be email or phone")
	}

	ok, err := s.repo.Consume(ctx, userID, verificationType, code, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		return apperror.New(apperror.ErrCodeBadRequest, "invalid_code", "verification code is invalid or expired")
	}

	return s.users.SetVerified(ctx, userID, verificationType)
}

func (s *VerificationService) issue(ctx context.Context, userID uuid.UUID, verificationType string, ttl time.Duration) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}

	record := &models.VerificationCode{
		UserID:    userID,
		Type:      verificationType,
		Code:      code,
		ExpiresAt: time.Now().Add(ttl),
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return "", err
	}
	return code, nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
