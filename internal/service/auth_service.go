package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kasigigs/kasigigs-backend/internal/models"
	"github.com/kasigigs/kasigigs-backend/internal/pkg/apperror"
	"github.com/kasigigs/kasigigs-backend/internal/repository"
	"github.com/kasigigs/kasigigs-backend/internal/validation"
)

// AuthRepository is the storage surface the auth service depends on.
type AuthRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateProfile(ctx context.Context, user *models.User) error
	TouchLastLogin(ctx context.Context, id uuid.UUID) error
	CreateSession(ctx context.Context, session *models.Session) error
	GetSessionByToken(ctx context.Context, token string) (*models.Session, error)
	ListSessions(ctx context.Context, userID uuid.UUID) ([]models.Session, error)
	DeleteSession(ctx context.Context, userID, sessionID uuid.UUID) error
	DeleteSessionsExcept(ctx context.Context, userID, keepID uuid.UUID) error
	RotateSession(ctx context.Context, sessionID uuid.UUID, newToken string, expiresAt time.Time) error
}

// AuthService owns registration, login and session management.
type AuthService struct {
	repo         AuthRepository
	tokenManager *TokenManager
}

// RegisterInput is the payload for a new account.
type RegisterInput struct {
	Email       string
	Password    string
	Username    string
	Role        string
	DisplayName string
	Phone       string
}

type LoginInput struct {
	Email    string
	Password string
}

// SessionMeta carries request metadata attached to the stored session.
type SessionMeta struct {
	UserAgent string
	IP        string
}

// AuthResult is the outcome of a registration or login.
type AuthResult struct {
	User      *models.User
	TokenPair *TokenPair
}

func NewAuthService(repo AuthRepository, tokenManager *TokenManager) *AuthService {
	return &AuthService{
		repo:         repo,
		tokenManager: tokenManager,
	}
}

// Register creates a new account with an unverified email and phone.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, meta SessionMeta) (*AuthResult, error) {
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "invalid_email", err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "weak_password", err.Error())
	}
	if in.Phone != "" {
		if err := validation.ValidatePhone(in.Phone); err != nil {
			return nil, apperror.New(apperror.ErrCodeValidation, "invalid_phone", err.Error())
		}
	}

	role := in.Role
	if role == "" {
		role = models.RoleJobSeeker
	}
	if role != models.RoleEmployer && role != models.RoleJobSeeker {
		return nil, apperror.New(apperror.ErrCodeValidation, "invalid_role", "role must be employer or job_seeker")
	}

	username := strings.TrimSpace(in.Username)
	if username == "" {
		username = deriveUsername(in.Email)
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "hash_failed", "could not hash password")
	}

	user := &models.User{
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Username:     username,
		PasswordHash: string(passHash),
		Role:         role,
		IsActive:     true,
	}
	if in.DisplayName != "" {
		if err := validation.ValidateDisplayName(in.DisplayName); err != nil {
			return nil, apperror.New(apperror.ErrCodeValidation, "invalid_display_name", err.Error())
		}
		user.DisplayName = &in.DisplayName
	}
	if in.Phone != "" {
		user.Phone = &in.Phone
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, apperror.New(apperror.ErrCodeConflict, "email_taken", "email is already registered")
		}
		return nil, err
	}

	return s.openSession(ctx, user, meta)
}

// Login verifies credentials and opens a session.
func (s *AuthService) Login(ctx context.Context, in LoginInput, meta SessionMeta) (*AuthResult, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(in.Email)))
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, apperror.New(apperror.ErrCodeForbidden, "account_disabled", "account is disabled")
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)) != nil {
		return nil, apperror.ErrInvalidCredentials
	}

	if err := s.repo.TouchLastLogin(ctx, user.ID); err != nil {
		return nil, err
	}

	return s.openSession(ctx, user, meta)
}

// Refresh rotates a refresh token in place and issues a new pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if _, err := s.tokenManager.ParseRefresh(refreshToken); err != nil {
		return nil, apperror.ErrUnauthorized
	}

	session, err := s.repo.GetSessionByToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if time.Now().After(session.ExpiresAt) {
		return nil, apperror.ErrUnauthorized
	}

	user, err := s.repo.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, apperror.New(apperror.ErrCodeForbidden, "account_disabled", "account is disabled")
	}

	pair, _, refreshExp, err := s.tokenManager.GeneratePair(user)
	if err != nil {
		return nil, err
	}

	if err := s.repo.RotateSession(ctx, session.ID, pair.RefreshToken, refreshExp); err != nil {
		return nil, err
	}

	return &AuthResult{User: user, TokenPair: pair}, nil
}

// Logout removes the session carrying the given refresh token.
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	session, err := s.repo.GetSessionByToken(ctx, refreshToken)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return apperror.ErrForbidden
	}
	return s.repo.DeleteSession(ctx, userID, session.ID)
}

// Sessions lists the user's active sessions.
func (s *AuthService) Sessions(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	return s.repo.ListSessions(ctx, userID)
}

// RevokeSession deletes one of the user's sessions.
func (s *AuthService) RevokeSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	return s.repo.DeleteSession(ctx, userID, sessionID)
}

// RevokeOtherSessions deletes every session except the one holding the
// given refresh token.
func (s *AuthService) RevokeOtherSessions(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	session, err := s.repo.GetSessionByToken(ctx, refreshToken)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return apperror.ErrForbidden
	}
	return s.repo.DeleteSessionsExcept(ctx, userID, session.ID)
}

// GetUser returns the account by id.
func (s *AuthService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateProfileInput carries the mutable profile fields.
type UpdateProfileInput struct {
	DisplayName *string
	Bio         *string
	Location    *string
	Phone       *string
}

// UpdateProfile applies profile edits to the caller's account.
func (s *AuthService) UpdateProfile(ctx context.Context, userID uuid.UUID, in UpdateProfileInput) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.DisplayName != nil {
		if err := validation.ValidateDisplayName(*in.DisplayName); err != nil {
			return nil, apperror.New(apperror.ErrCodeValidation, "invalid_display_name", err.Error())
		}
		user.DisplayName = in.DisplayName
	}
	if in.Bio != nil {
		user.Bio = in.Bio
	}
	if in.Location != nil {
		if err := validation.ValidateLocation(in.Location); err != nil {
			return nil, apperror.New(apperror.ErrCodeValidation, "invalid_location", err.Error())
		}
		user.Location = in.Location
	}
	if in.Phone != nil {
		if err := validation.ValidatePhone(*in.Phone); err != nil {
			return nil, apperror.New(apperror.ErrCodeValidation, "invalid_phone", err.Error())
		}
		// A new number restarts phone verification.
		user.Phone = in.Phone
		user.PhoneVerified = false
	}

	if err := s.repo.UpdateProfile(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) openSession(ctx context.Context, user *models.User, meta SessionMeta) (*AuthResult, error) {
	pair, _, refreshExp, err := s.tokenManager.GeneratePair(user)
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		UserID:       user.ID,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    refreshExp,
	}
	if meta.UserAgent != "" {
		session.UserAgent = &meta.UserAgent
	}
	if meta.IP != "" {
		session.IPAddress = &meta.IP
	}

	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	return &AuthResult{User: user, TokenPair: pair}, nil
}

// deriveUsername builds a username from the email local part.
func deriveUsername(email string) string {
	local := strings.SplitN(strings.ToLower(email), "@", 2)[0]
	cleaned := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, local)
	if cleaned == "" {
		cleaned = "user"
	}
	return cleaned
}
