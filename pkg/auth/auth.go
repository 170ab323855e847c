// Package auth turns stored users into principals and checks their credentials.
// Session handling belongs to the fronting proxy; requests reach the API already identified.
package auth

import (
	"context"
	"errors"
	"fmt"

	"bookhaven/pkg/apperrors"
	"bookhaven/pkg/models"
	"bookhaven/pkg/store"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores input past 72 bytes, reject it instead of silently truncating.
const maxPasswordLength = 72

// Principal is the authenticated caller passed to operations that need authorization context.
type Principal struct {
	ID      uint
	IsAdmin bool
}

func PrincipalOf(u *models.User) Principal {
	return Principal{ID: u.ID, IsAdmin: u.IsAdmin}
}

// CanAccess reports whether the principal may act on something owned by ownerID.
func (p Principal) CanAccess(ownerID uint) bool {
	return p.IsAdmin || p.ID == ownerID
}

func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", apperrors.Validation("password cannot be empty")
	}
	if len(password) > maxPasswordLength {
		return "", apperrors.Validation("password exceeds maximum length")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Registration is the signup payload.
type Registration struct {
	Username string `json:"username" binding:"required,min=3,max=80"`
	Password string `json:"password" binding:"required,min=6,max=72"`
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
}

type Authenticator struct {
	store store.Store
	cost  int
}

func NewAuthenticator(s store.Store, cost int) *Authenticator {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Authenticator{store: s, cost: cost}
}

// Register creates a non-admin user. Username and email must be unused.
func (a *Authenticator) Register(ctx context.Context, r Registration) (*models.User, error) {
	if _, err := a.store.GetUserByUsername(ctx, r.Username); err == nil {
		return nil, apperrors.AlreadyExists("username already exists")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if _, err := a.store.GetUserByEmail(ctx, r.Email); err == nil {
		return nil, apperrors.AlreadyExists("email already exists")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(r.Password, a.cost)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		Username: r.Username,
		Password: hash,
		Name:     r.Name,
		Email:    r.Email,
	}
	if err := a.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login returns the user whose credentials match. Unknown user and wrong password look the same.
func (a *Authenticator) Login(ctx context.Context, username, password string) (*models.User, error) {
	u, err := a.store.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(u.Password, password) {
		return nil, apperrors.ErrInvalidCredentials
	}
	return u, nil
}

// Resolve loads the principal for a user id taken from a trusted request header.
func (a *Authenticator) Resolve(ctx context.Context, userID uint) (*models.User, error) {
	u, err := a.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ErrUnauthorized
	}
	return u, err
}
