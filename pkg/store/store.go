// Package store defines the entity store shared by the borrowing, review and catalog services.
// Backends live in sub-packages: memory for tests and local runs, gormstore for sqlite and postgres.
package store

import (
	"context"
	"fmt"

	"bookhaven/pkg/apperrors"
	"bookhaven/pkg/models"
)

// ErrNotFound is returned for an unknown id. It matches apperrors.ErrNotFound.
var ErrNotFound = apperrors.ErrNotFound

// BorrowingFilter narrows ListBorrowings. Zero fields match everything.
type BorrowingFilter struct {
	UserID     uint
	BookID     uint
	ActiveOnly bool
}

func (f BorrowingFilter) Match(b models.Borrowing) bool {
	if f.UserID != 0 && b.UserID != f.UserID {
		return false
	}
	if f.BookID != 0 && b.BookID != f.BookID {
		return false
	}
	if f.ActiveOnly && !b.Active() {
		return false
	}
	return true
}

// ReviewFilter narrows ListReviews. Zero fields match everything.
type ReviewFilter struct {
	UserID uint
	BookID uint
}

func (f ReviewFilter) Match(r models.Review) bool {
	if f.UserID != 0 && r.UserID != f.UserID {
		return false
	}
	if f.BookID != 0 && r.BookID != f.BookID {
		return false
	}
	return true
}

// Store maps ids to entities. Create assigns the next id and writes it back into the argument;
// lists are ordered by ascending id; Get and Update on an unknown id return ErrNotFound;
// Delete reports whether something was removed.
type Store interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, id uint, patch models.UserPatch) (*models.User, error)
	DeleteUser(ctx context.Context, id uint) (bool, error)

	CreateBook(ctx context.Context, b *models.Book) error
	GetBook(ctx context.Context, id uint) (*models.Book, error)
	ListBooks(ctx context.Context) ([]models.Book, error)
	UpdateBook(ctx context.Context, id uint, patch models.BookPatch) (*models.Book, error)
	DeleteBook(ctx context.Context, id uint) (bool, error)

	CreateBorrowing(ctx context.Context, b *models.Borrowing) error
	GetBorrowing(ctx context.Context, id uint) (*models.Borrowing, error)
	ListBorrowings(ctx context.Context, f BorrowingFilter) ([]models.Borrowing, error)
	UpdateBorrowing(ctx context.Context, id uint, patch models.BorrowingPatch) (*models.Borrowing, error)

	CreateReview(ctx context.Context, r *models.Review) error
	GetReview(ctx context.Context, id uint) (*models.Review, error)
	ListReviews(ctx context.Context, f ReviewFilter) ([]models.Review, error)

	// WithTx runs fn against a view of the store whose writes become visible together,
	// or not at all when fn returns an error. Nested calls join the outer transaction.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	// LockBook reads a book; inside WithTx the book stays locked until the transaction ends.
	LockBook(ctx context.Context, id uint) (*models.Book, error)

	Ping(ctx context.Context) error
	Close() error
}

// CheckCopies enforces 0 <= availableCopies <= totalCopies and totalCopies >= 1.
func CheckCopies(b models.Book) error {
	if b.TotalCopies < 1 {
		return apperrors.Validation(fmt.Sprintf("total copies must be at least 1, got %d", b.TotalCopies))
	}
	if b.AvailableCopies < 0 || b.AvailableCopies > b.TotalCopies {
		return apperrors.Validation(fmt.Sprintf("available copies %d outside 0..%d", b.AvailableCopies, b.TotalCopies))
	}
	return nil
}
