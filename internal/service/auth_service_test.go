package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasigigs/kasigigs-backend/internal/models"
	"github.com/kasigigs/kasigigs-backend/internal/pkg/apperror"
	"github.com/kasigigs/kasigigs-backend/internal/repository"
)

type mockAuthRepo struct {
	users    map[uuid.UUID]*models.User
	sessions map[uuid.UUID]*models.Session
	rotated  int
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{
		users:    make(map[uuid.UUID]*models.User),
		sessions: make(map[uuid.UUID]*models.Session),
	}
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return repository.ErrEmailTaken
		}
	}
	user.ID = uuid.New()
	m.users[user.ID] = user
	return nil
}

func (m *mockAuthRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, apperror.ErrUserNotFound
}

func (m *mockAuthRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, apperror.ErrUserNotFound
}

func (m *mockAuthRepo) UpdateProfile(ctx context.Context, user *models.User) error {
	if _, ok := m.users[user.ID]; !ok {
		return apperror.ErrUserNotFound
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockAuthRepo) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	u, ok := m.users[id]
	if !ok {
		return apperror.ErrUserNotFound
	}
	now := time.Now()
	u.LastLoginAt = &now
	return nil
}

func (m *mockAuthRepo) CreateSession(ctx context.Context, session *models.Session) error {
	session.ID = uuid.New()
	m.sessions[session.ID] = session
	return nil
}

func (m *mockAuthRepo) GetSessionByToken(ctx context.Context, token string) (*models.Session, error) {
	for _, s := range m.sessions {
		if s.RefreshToken == token {
			return s, nil
		}
	}
	return nil, apperror.ErrUnauthorized
}

func (m *mockAuthRepo) ListSessions(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	var out []models.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockAuthRepo) DeleteSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	s, ok := m.sessions[sessionID]
	if !ok || s.UserID != userID {
		return apperror.ErrUnauthorized
	}
	delete(m.sessions, sessionID)
	return nil
}

func (m *mockAuthRepo) DeleteSessionsExcept(ctx context.Context, userID, keepID uuid.UUID) error {
	for id, s := range m.sessions {
		if s.UserID == userID && id != keepID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *mockAuthRepo) RotateSession(ctx context.Context, sessionID uuid.UUID, newToken string, expiresAt time.Time) error {
	s, ok := m.sessions[sessionID]
	if !ok {
		return apperror.ErrUnauthorized
	}
	s.RefreshToken = newToken
	s.ExpiresAt = expiresAt
	m.rotated++
	return nil
}

func newAuthFixture() (*AuthService, *mockAuthRepo) {
	repo := newMockAuthRepo()
	tokens := NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)
	return NewAuthService(repo, tokens), repo
}

func validRegisterInput() RegisterInput {
	return RegisterInput{
		Email:    "thandi@example.co.za",
		Password: "Str0ngEnough",
		Username: "thandi",
	}
}

func TestAuthService_Register_OpensSession(t *testing.T) {
	svc, repo := newAuthFixture()

	result, err := svc.Register(context.Background(), validRegisterInput(), SessionMeta{UserAgent: "test", IP: "10.0.0.1"})
	require.NoError(t, err)

	assert.Equal(t, models.RoleJobSeeker, result.User.Role)
	assert.True(t, result.User.IsActive)
	assert.NotEmpty(t, result.TokenPair.AccessToken)
	assert.NotEmpty(t, result.TokenPair.RefreshToken)
	assert.Len(t, repo.sessions, 1)
	assert.NotEqual(t, "Str0ngEnough", result.User.PasswordHash)
}

func TestAuthService_Register_NormalizesEmail(t *testing.T) {
	svc, _ := newAuthFixture()
	in := validRegisterInput()
	in.Email = "  Thandi@Example.co.za "

	result, err := svc.Register(context.Background(), in, SessionMeta{})
	require.NoError(t, err)
	assert.Equal(t, "thandi@example.co.za", result.User.Email)
}

func TestAuthService_Register_DuplicateEmailConflicts(t *testing.T) {
	svc, _ := newAuthFixture()
	ctx := context.Background()

	_, err := svc.Register(ctx, validRegisterInput(), SessionMeta{})
	require.NoError(t, err)

	_, err = svc.Register(ctx, validRegisterInput(), SessionMeta{})
	assert.True(t, apperror.IsConflict(err))
}

func TestAuthService_Register_WeakPasswordRejected(t *testing.T) {
	svc, _ := newAuthFixture()
	in := validRegisterInput()
	in.Password = "alllowercase"

	_, err := svc.Register(context.Background(), in, SessionMeta{})
	assert.Error(t, err)
}

func TestAuthService_Register_AdminRoleRejected(t *testing.T) {
	svc, _ := newAuthFixture()
	in := validRegisterInput()
	in.Role = models.RoleAdmin

	_, err := svc.Register(context.Background(), in, SessionMeta{})
	assert.Error(t, err)
}

func TestAuthService_Login_RoundTrip(t *testing.T) {
	svc, _ := newAuthFixture()
	ctx := context.Background()

	registered, err := svc.Register(ctx, validRegisterInput(), SessionMeta{})
	require.NoError(t, err)

	result, err := svc.Login(ctx, LoginInput{Email: "thandi@example.co.za", Password: "Str0ngEnough"}, SessionMeta{})
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, result.User.ID)
	assert.NotNil(t, result.User.LastLoginAt)
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	svc, _ := newAuthFixture()
	ctx := context.Background()

	_, err := svc.Register(ctx, validRegisterInput(), SessionMeta{})
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginInput{Email: "thandi@example.co.za", Password: "WrongPass1"}, SessionMeta{})
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)
}

func TestAuthService_Login_UnknownEmail(t *testing.T) {
	svc, _ := newAuthFixture()

	_, err := svc.Login(context.Background(), LoginInput{Email: "nobody@example.co.za", Password: "Str0ngEnough"}, SessionMeta{})
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)
}

func TestAuthService_Login_DisabledAccount(t *testing.T) {
	svc, repo := newAuthFixture()
	ctx := context.Background()

	registered, err := svc.Register(ctx, validRegisterInput(), SessionMeta{})
	require.NoError(t, err)
	repo.users[registered.User.ID].IsActive = false

	_, err = svc.Login(ctx, LoginInput{Email: "thandi@example.co.za", Password: "Str0ngEnough"}, SessionMeta{})
	assert.True(t, apperror.IsForbidden(err))
}

func TestAuthService_Refresh_RotatesSession(t *testing.T) {
	svc, repo := newAuthFixture()
	ctx := context.Background()

	registered, err := svc.Register(ctx, validRegisterInput(), SessionMeta{})
	require.NoError(t, err)

	result, err := svc.Refresh(ctx, registered.TokenPair.RefreshToken)
	require.NoError(t, err)

	assert.Equal(t, registered.User.ID, result.User.ID)
	assert.Equal(t, 1, repo.rotated)
	assert.Len(t, repo.sessions, 1)
}

func TestAuthService_Refresh_GarbageToken(t *testing.T) {
	svc, _ := newAuthFixture()

	_, err := svc.Refresh(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestAuthService_Refresh_ExpiredSession(t *testing.T) {
	svc, repo := newAuthFixture()
	ctx := context.Background()

	registered, err := svc.Register(ctx, validRegisterInput(), SessionMeta{})
	require.NoError(t, err)
	for _, s := range repo.sessions {
		s.ExpiresAt = time.Now().Add(-time.Hour)
	}

	_, err = svc.Refresh(ctx, registered.TokenPair.RefreshToken)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestAuthService_Logout_OtherUsersTokenForbidden(t *testing.T) {
	svc, _ := newAuthFixture()
	ctx := context.Background()

	registered, err := svc.Register(ctx, validRegisterInput(), SessionMeta{})
	require.NoError(t, err)

	err = svc.Logout(ctx, uuid.New(), registered.TokenPair.RefreshToken)
	assert.True(t, apperror.IsForbidden(err))
}

func TestAuthService_RevokeOtherSessions_KeepsCurrent(t *testing.T) {
	svc, repo := newAuthFixture()
	ctx := context.Background()

	registered, err := svc.Register(ctx, validRegisterInput(), SessionMeta{})
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginInput{Email: "thandi@example.co.za", Password: "Str0ngEnough"}, SessionMeta{})
	require.NoError(t, err)
	require.Len(t, repo.sessions, 2)

	require.NoError(t, svc.RevokeOtherSessions(ctx, registered.User.ID, registered.TokenPair.RefreshToken))

	sessions, err := svc.Sessions(ctx, registered.User.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, registered.TokenPair.RefreshToken, sessions[0].RefreshToken)
}

func TestAuthService_UpdateProfile_NewPhoneResetsVerification(t *testing.T) {
	svc, repo := newAuthFixture()
	ctx := context.Background()

	registered, err := svc.Register(ctx, validRegisterInput(), SessionMeta{})
	require.NoError(t, err)
	repo.users[registered.User.ID].PhoneVerified = true

	phone := "+27821234567"
	updated, err := svc.UpdateProfile(ctx, registered.User.ID, UpdateProfileInput{Phone: &phone})
	require.NoError(t, err)

	assert.Equal(t, phone, *updated.Phone)
	assert.False(t, updated.PhoneVerified)
}
