// Package ledger keeps a book's available copy count in step with its active borrowings.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bookhaven/pkg/apperrors"
	"bookhaven/pkg/keylock"
	"bookhaven/pkg/models"
	"bookhaven/pkg/store"
)

const DefaultLoanPeriod = 14 * 24 * time.Hour

// Result is a borrowing together with its book as it stands after the operation.
type Result struct {
	Borrowing *models.Borrowing `json:"borrowing"`
	Book      *models.Book      `json:"book"`
}

type Ledger struct {
	store      store.Store
	locks      *keylock.Map[uint]
	log        *slog.Logger
	now        func() time.Time
	loanPeriod time.Duration
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithLoanPeriod(d time.Duration) Option {
	return func(l *Ledger) { l.loanPeriod = d }
}

// New returns a ledger over s. locks is shared with every other writer of book rows.
func New(s store.Store, locks *keylock.Map[uint], log *slog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:      s,
		locks:      locks,
		log:        log,
		now:        time.Now,
		loanPeriod: DefaultLoanPeriod,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Borrow takes one copy of bookID for userID. The decrement and the new borrowing commit together.
func (l *Ledger) Borrow(ctx context.Context, userID, bookID uint) (*Result, error) {
	unlock := l.locks.Lock(bookID)
	defer unlock()

	var res *Result
	err := l.store.WithTx(ctx, func(tx store.Store) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return notFound(err, "user not found")
		}
		book, err := tx.LockBook(ctx, bookID)
		if err != nil {
			return notFound(err, "book not found")
		}
		if book.AvailableCopies <= 0 {
			return apperrors.ErrUnavailable
		}

		available := book.AvailableCopies - 1
		book, err = tx.UpdateBook(ctx, bookID, models.BookPatch{AvailableCopies: &available})
		if err != nil {
			return fmt.Errorf("decrement available copies: %w", err)
		}

		now := l.now().UTC()
		borrowing := &models.Borrowing{
			UserID:     userID,
			BookID:     bookID,
			BorrowDate: now,
			DueDate:    now.Add(l.loanPeriod),
			Status:     models.StatusBorrowed,
		}
		if err := tx.CreateBorrowing(ctx, borrowing); err != nil {
			return fmt.Errorf("create borrowing: %w", err)
		}
		res = &Result{Borrowing: borrowing, Book: book}
		return nil
	})
	if err != nil {
		l.log.Debug("Borrow rejected", "user_id", userID, "book_id", bookID, "error", err)
		return nil, err
	}

	l.log.Info("Book borrowed",
		"borrowing_id", res.Borrowing.ID, "user_id", userID, "book_id", bookID,
		"available_copies", res.Book.AvailableCopies)
	return res, nil
}

// Return closes an active borrowing and puts its copy back.
func (l *Ledger) Return(ctx context.Context, borrowingID uint) (*Result, error) {
	// The book id is needed to pick the lock; it is re-read under the lock below.
	pending, err := l.store.GetBorrowing(ctx, borrowingID)
	if err != nil {
		return nil, notFound(err, "borrowing not found")
	}

	unlock := l.locks.Lock(pending.BookID)
	defer unlock()

	var res *Result
	err = l.store.WithTx(ctx, func(tx store.Store) error {
		borrowing, err := tx.GetBorrowing(ctx, borrowingID)
		if err != nil {
			return notFound(err, "borrowing not found")
		}
		if !borrowing.Active() {
			return apperrors.ErrAlreadyReturned
		}

		book, err := tx.LockBook(ctx, borrowing.BookID)
		if err != nil {
			return notFound(err, "book not found")
		}
		if book.AvailableCopies >= book.TotalCopies {
			l.log.Error("Return would exceed total copies",
				"borrowing_id", borrowingID, "book_id", book.ID,
				"available_copies", book.AvailableCopies, "total_copies", book.TotalCopies)
			return apperrors.Inconsistent(fmt.Sprintf("book %d already has all %d copies available", book.ID, book.TotalCopies))
		}

		available := book.AvailableCopies + 1
		book, err = tx.UpdateBook(ctx, book.ID, models.BookPatch{AvailableCopies: &available})
		if err != nil {
			return fmt.Errorf("increment available copies: %w", err)
		}

		now := l.now().UTC()
		status := models.StatusReturned
		borrowing, err = tx.UpdateBorrowing(ctx, borrowingID, models.BorrowingPatch{ReturnDate: &now, Status: &status})
		if err != nil {
			return fmt.Errorf("close borrowing: %w", err)
		}
		res = &Result{Borrowing: borrowing, Book: book}
		return nil
	})
	if err != nil {
		l.log.Debug("Return rejected", "borrowing_id", borrowingID, "error", err)
		return nil, err
	}

	l.log.Info("Book returned",
		"borrowing_id", borrowingID, "book_id", res.Book.ID,
		"available_copies", res.Book.AvailableCopies)
	return res, nil
}

func notFound(err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.NotFound(msg)
	}
	return err
}
