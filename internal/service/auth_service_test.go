package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/scholaris/records-api/internal/models"
	appErrors "github.com/scholaris/records-api/pkg/errors"
)

type mockAuthUserRepo struct {
	user         *models.User
	lastLoginSet bool
	lastLoginErr error
}

func (m *mockAuthUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if m.user == nil || m.user.Email != email {
		return nil, sql.ErrNoRows
	}
	return m.user, nil
}

func (m *mockAuthUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	if m.user == nil || m.user.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.user, nil
}

func (m *mockAuthUserRepo) UpdateLastLogin(_ context.Context, _ string, _ time.Time) error {
	m.lastLoginSet = true
	return m.lastLoginErr
}

func newAuthFixture(t *testing.T, password string) (*AuthService, *mockAuthUserRepo) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &mockAuthUserRepo{user: &models.User{
		ID:           "usr-1",
		Email:        "reg@school.test",
		PasswordHash: string(hash),
		FullName:     "Pat Registrar",
		Roles:        `["Faculty","Admin"]`,
		Active:       true,
	}}
	svc := NewAuthService(repo, nil, nil, AuthConfig{
		Secret: "test-secret",
		Expiry: time.Hour,
		Issuer: "records-api-test",
	})
	return svc, repo
}

func TestAuthServiceLoginNormalizesRoles(t *testing.T) {
	svc, repo := newAuthFixture(t, "s3cret")

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "reg@school.test", Password: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, []string{"teacher", "admin"}, resp.User.Roles)
	assert.True(t, repo.lastLoginSet)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "usr-1", claims.UserID)
	assert.Equal(t, "teacher", claims.PrimaryRole())
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	svc, _ := newAuthFixture(t, "s3cret")

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "reg@school.test", Password: "nope"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestAuthServiceLoginUnknownEmail(t *testing.T) {
	svc, _ := newAuthFixture(t, "s3cret")

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ghost@school.test", Password: "s3cret"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	svc, repo := newAuthFixture(t, "s3cret")
	repo.user.Active = false

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "reg@school.test", Password: "s3cret"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInactiveAccount))
}

func TestAuthServiceLoginSurvivesLastLoginFailure(t *testing.T) {
	svc, repo := newAuthFixture(t, "s3cret")
	repo.lastLoginErr = errors.New("write timeout")

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "reg@school.test", Password: "s3cret"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
}

func TestAuthServiceValidateTokenRejectsForeignSecret(t *testing.T) {
	svc, _ := newAuthFixture(t, "s3cret")
	other := NewAuthService(&mockAuthUserRepo{}, nil, nil, AuthConfig{Secret: "other-secret", Expiry: time.Hour})

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "reg@school.test", Password: "s3cret"})
	require.NoError(t, err)

	_, err = other.ValidateToken(resp.AccessToken)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}
