package auth

import (
	"context"
	"strings"
	"testing"

	"bookhaven/pkg/apperrors"
	"bookhaven/pkg/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newAuthenticator() *Authenticator {
	return NewAuthenticator(memory.New(), bcrypt.MinCost)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("secret123", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", hash)
	assert.True(t, CheckPassword(hash, "secret123"))
	assert.False(t, CheckPassword(hash, "secret124"))
}

func TestHashPasswordRejectsBadInput(t *testing.T) {
	_, err := HashPassword("", bcrypt.MinCost)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = HashPassword(strings.Repeat("a", 73), bcrypt.MinCost)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	a := newAuthenticator()

	u, err := a.Register(ctx, Registration{Username: "reader", Password: "secret123", Name: "Reader", Email: "reader@example.com"})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.False(t, u.IsAdmin)
	assert.NotEqual(t, "secret123", u.Password)

	got, err := a.Login(ctx, "reader", "secret123")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = a.Login(ctx, "reader", "wrong")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = a.Login(ctx, "nobody", "secret123")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	a := newAuthenticator()

	_, err := a.Register(ctx, Registration{Username: "reader", Password: "secret123", Name: "R", Email: "r@example.com"})
	require.NoError(t, err)

	_, err = a.Register(ctx, Registration{Username: "reader", Password: "secret123", Name: "R", Email: "other@example.com"})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)

	_, err = a.Register(ctx, Registration{Username: "other", Password: "secret123", Name: "R", Email: "r@example.com"})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
}

func TestPrincipalCanAccess(t *testing.T) {
	owner := Principal{ID: 1}
	stranger := Principal{ID: 2}
	admin := Principal{ID: 3, IsAdmin: true}

	assert.True(t, owner.CanAccess(1))
	assert.False(t, stranger.CanAccess(1))
	assert.True(t, admin.CanAccess(1))
}

func TestResolveUnknownUser(t *testing.T) {
	_, err := newAuthenticator().Resolve(context.Background(), 42)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}
