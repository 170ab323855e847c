// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"bookhaven/pkg/apperrors"
	"bookhaven/pkg/models"
	"bookhaven/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) store.Store

func Run(t *testing.T, newStore Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("UserUniqueness", func(t *testing.T) { testUserUniqueness(t, newStore(t)) })
	t.Run("Books", func(t *testing.T) { testBooks(t, newStore(t)) })
	t.Run("BookCopiesInvariant", func(t *testing.T) { testBookCopiesInvariant(t, newStore(t)) })
	t.Run("Borrowings", func(t *testing.T) { testBorrowings(t, newStore(t)) })
	t.Run("Reviews", func(t *testing.T) { testReviews(t, newStore(t)) })
	t.Run("TxCommit", func(t *testing.T) { testTxCommit(t, newStore(t)) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, newStore(t)) })
	t.Run("EmptyListsAreNotNil", func(t *testing.T) { testEmptyLists(t, newStore(t)) })
}

func NewBook(title string, copies int) *models.Book {
	return &models.Book{
		Title:           title,
		Author:          "Author",
		Description:     "Description",
		ISBN:            "isbn-" + title,
		Genre:           "Fiction",
		TotalCopies:     copies,
		AvailableCopies: copies,
	}
}

func NewUser(username string) *models.User {
	return &models.User{
		Username: username,
		Password: "hash",
		Name:     username,
		Email:    username + "@example.com",
	}
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()

	alice := NewUser("alice")
	bob := NewUser("bob")
	require.NoError(t, s.CreateUser(ctx, alice))
	require.NoError(t, s.CreateUser(ctx, bob))
	assert.NotZero(t, alice.ID)
	assert.Greater(t, bob.ID, alice.ID)

	got, err := s.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	got, err = s.GetUserByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, got.ID)

	got, err = s.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	_, err = s.GetUserByUsername(ctx, "carol")
	assert.ErrorIs(t, err, store.ErrNotFound)

	name := "Alice Liddell"
	updated, err := s.UpdateUser(ctx, alice.ID, models.UserPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, "alice", updated.Username)

	_, err = s.UpdateUser(ctx, 999, models.UserPatch{Name: &name})
	assert.ErrorIs(t, err, store.ErrNotFound)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, alice.ID, users[0].ID)

	deleted, err := s.DeleteUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = s.GetUser(ctx, bob.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testUserUniqueness(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, NewUser("alice")))

	dup := NewUser("alice")
	dup.Email = "other@example.com"
	assert.ErrorIs(t, s.CreateUser(ctx, dup), apperrors.ErrAlreadyExists)

	dup = NewUser("other")
	dup.Email = "alice@example.com"
	assert.ErrorIs(t, s.CreateUser(ctx, dup), apperrors.ErrAlreadyExists)

	bob := NewUser("bob")
	require.NoError(t, s.CreateUser(ctx, bob))
	taken := "alice"
	_, err := s.UpdateUser(ctx, bob.ID, models.UserPatch{Username: &taken})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
}

func testBooks(t *testing.T, s store.Store) {
	ctx := context.Background()

	b := NewBook("Dune", 2)
	year := 1965
	b.PublicationYear = &year
	require.NoError(t, s.CreateBook(ctx, b))
	assert.NotZero(t, b.ID)

	got, err := s.GetBook(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.Title)
	require.NotNil(t, got.PublicationYear)
	assert.Equal(t, 1965, *got.PublicationYear)
	assert.Equal(t, 0, got.Rating)
	assert.Equal(t, 0, got.ReviewCount)

	genre := "Science Fiction"
	available := 1
	updated, err := s.UpdateBook(ctx, b.ID, models.BookPatch{Genre: &genre, AvailableCopies: &available})
	require.NoError(t, err)
	assert.Equal(t, genre, updated.Genre)
	assert.Equal(t, 1, updated.AvailableCopies)
	assert.Equal(t, "Dune", updated.Title)

	got, err = s.LockBook(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AvailableCopies)

	_, err = s.GetBook(ctx, 999)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.LockBook(ctx, 999)
	assert.ErrorIs(t, err, store.ErrNotFound)

	deleted, err := s.DeleteBook(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	books, err := s.ListBooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, books)
}

func testBookCopiesInvariant(t *testing.T, s store.Store) {
	ctx := context.Background()

	bad := NewBook("Zero", 0)
	assert.ErrorIs(t, s.CreateBook(ctx, bad), apperrors.ErrValidation)

	b := NewBook("Dune", 2)
	require.NoError(t, s.CreateBook(ctx, b))

	tooMany := 3
	_, err := s.UpdateBook(ctx, b.ID, models.BookPatch{AvailableCopies: &tooMany})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	negative := -1
	_, err = s.UpdateBook(ctx, b.ID, models.BookPatch{AvailableCopies: &negative})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	got, err := s.GetBook(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AvailableCopies)
}

func testBorrowings(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	first := &models.Borrowing{UserID: 1, BookID: 10, BorrowDate: now, DueDate: now.Add(time.Hour), Status: models.StatusBorrowed}
	second := &models.Borrowing{UserID: 2, BookID: 10, BorrowDate: now, DueDate: now.Add(time.Hour), Status: models.StatusBorrowed}
	third := &models.Borrowing{UserID: 1, BookID: 20, BorrowDate: now, DueDate: now.Add(time.Hour), Status: models.StatusBorrowed}
	for _, b := range []*models.Borrowing{first, second, third} {
		require.NoError(t, s.CreateBorrowing(ctx, b))
	}

	got, err := s.GetBorrowing(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(2), got.UserID)
	assert.Nil(t, got.ReturnDate)
	assert.WithinDuration(t, now.Add(time.Hour), got.DueDate, time.Second)

	returned := models.StatusReturned
	_, err = s.UpdateBorrowing(ctx, first.ID, models.BorrowingPatch{ReturnDate: &now, Status: &returned})
	require.NoError(t, err)

	byUser, err := s.ListBorrowings(ctx, store.BorrowingFilter{UserID: 1})
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	assert.Equal(t, first.ID, byUser[0].ID)
	assert.Equal(t, third.ID, byUser[1].ID)

	active, err := s.ListBorrowings(ctx, store.BorrowingFilter{BookID: 10, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)

	all, err := s.ListBorrowings(ctx, store.BorrowingFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = s.UpdateBorrowing(ctx, 999, models.BorrowingPatch{Status: &returned})
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetBorrowing(ctx, 999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testReviews(t *testing.T, s store.Store) {
	ctx := context.Background()
	comment := "great"

	r1 := &models.Review{UserID: 1, BookID: 10, Rating: 5, Comment: &comment, CreatedAt: time.Now()}
	r2 := &models.Review{UserID: 2, BookID: 10, Rating: 3, CreatedAt: time.Now()}
	r3 := &models.Review{UserID: 1, BookID: 20, Rating: 4, CreatedAt: time.Now()}
	for _, r := range []*models.Review{r1, r2, r3} {
		require.NoError(t, s.CreateReview(ctx, r))
	}

	got, err := s.GetReview(ctx, r1.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Comment)
	assert.Equal(t, "great", *got.Comment)

	got, err = s.GetReview(ctx, r2.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Comment)

	forBook, err := s.ListReviews(ctx, store.ReviewFilter{BookID: 10})
	require.NoError(t, err)
	require.Len(t, forBook, 2)
	assert.Equal(t, r1.ID, forBook[0].ID)

	byUser, err := s.ListReviews(ctx, store.ReviewFilter{UserID: 1, BookID: 20})
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, r3.ID, byUser[0].ID)

	_, err = s.GetReview(ctx, 999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testTxCommit(t *testing.T, s store.Store) {
	ctx := context.Background()
	b := NewBook("Dune", 2)
	require.NoError(t, s.CreateBook(ctx, b))

	err := s.WithTx(ctx, func(tx store.Store) error {
		locked, err := tx.LockBook(ctx, b.ID)
		if err != nil {
			return err
		}
		available := locked.AvailableCopies - 1
		if _, err := tx.UpdateBook(ctx, b.ID, models.BookPatch{AvailableCopies: &available}); err != nil {
			return err
		}
		// Nested calls join the outer transaction.
		return tx.WithTx(ctx, func(inner store.Store) error {
			return inner.CreateBorrowing(ctx, &models.Borrowing{
				UserID: 1, BookID: b.ID, BorrowDate: time.Now(), DueDate: time.Now(), Status: models.StatusBorrowed,
			})
		})
	})
	require.NoError(t, err)

	got, err := s.GetBook(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AvailableCopies)

	borrowings, err := s.ListBorrowings(ctx, store.BorrowingFilter{BookID: b.ID})
	require.NoError(t, err)
	assert.Len(t, borrowings, 1)
}

func testTxRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	b := NewBook("Dune", 2)
	require.NoError(t, s.CreateBook(ctx, b))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx store.Store) error {
		available := 0
		if _, err := tx.UpdateBook(ctx, b.ID, models.BookPatch{AvailableCopies: &available}); err != nil {
			return err
		}
		if err := tx.CreateBorrowing(ctx, &models.Borrowing{
			UserID: 1, BookID: b.ID, BorrowDate: time.Now(), DueDate: time.Now(), Status: models.StatusBorrowed,
		}); err != nil {
			return err
		}
		if err := tx.CreateUser(ctx, NewUser("ghost")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetBook(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AvailableCopies)

	borrowings, err := s.ListBorrowings(ctx, store.BorrowingFilter{})
	require.NoError(t, err)
	assert.Empty(t, borrowings)

	_, err = s.GetUserByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testEmptyLists(t *testing.T, s store.Store) {
	ctx := context.Background()

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.NotNil(t, users)

	books, err := s.ListBooks(ctx)
	require.NoError(t, err)
	assert.NotNil(t, books)

	borrowings, err := s.ListBorrowings(ctx, store.BorrowingFilter{})
	require.NoError(t, err)
	assert.NotNil(t, borrowings)

	reviews, err := s.ListReviews(ctx, store.ReviewFilter{})
	require.NoError(t, err)
	assert.NotNil(t, reviews)
}
