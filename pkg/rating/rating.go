// Package rating keeps a book's rating and review count derived from its reviews.
package rating

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

const (
	MinRating = 1
	MaxRating = 5
)

// ReviewInput is what a reader submits. Rating is validated here, not by the binding layer,
// so an out-of-range value surfaces as INVALID_RATING.
type ReviewInput struct {
	UserID  uint    `json:"-"`
	BookID  uint    `json:"-"`
	Rating  int     `json:"rating"`
	Comment *string `json:"comment"`
}

type Result struct {
	Review *models.Review `json:"review"`
	Book   *models.Book   `json:"book"`
}

// Summary is the derived pair stored on a book.
type Summary struct {
	Rating      int
	ReviewCount int
}

// RoundedMean is the mean of ratings rounded half up, 0 for no ratings.
func RoundedMean(ratings []int) int {
	n := len(ratings)
	if n == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return (2*sum + n) / (2 * n)
}

func Summarize(reviews []models.Review) Summary {
	ratings := make([]int, len(reviews))
	for i, r := range reviews {
		ratings[i] = r.Rating
	}
	return Summary{Rating: RoundedMean(ratings), ReviewCount: len(reviews)}
}

type Aggregator struct {
	store store.Store
	locks *keylock.Map[uint]
	log   *slog.Logger
	now   func() time.Time
}

type Option func(*Aggregator)

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

func New(s store.Store, locks *keylock.Map[uint], log *slog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{store: s, locks: locks, log: log, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AddReview stores the review and rebuilds the book's rating from every review it has.
func (a *Aggregator) AddReview(ctx context.Context, in ReviewInput) (*Result, error) {
	if in.Rating < MinRating || in.Rating > MaxRating {
		return nil, apperrors.ErrInvalidRating
	}

	unlock := a.locks.Lock(in.BookID)
	defer unlock()

	var res *Result
	err := a.store.WithTx(ctx, func(tx store.Store) error {
		if _, err := tx.LockBook(ctx, in.BookID); err != nil {
			return notFound(err, "book not found")
		}
		review := &models.Review{
			UserID:    in.UserID,
			BookID:    in.BookID,
			Rating:    in.Rating,
			Comment:   in.Comment,
			CreatedAt: a.now().UTC(),
		}
		if err := tx.CreateReview(ctx, review); err != nil {
			return fmt.Errorf("create review: %w", err)
		}
		book, err := recompute(ctx, tx, in.BookID)
		if err != nil {
			return err
		}
		res = &Result{Review: review, Book: book}
		return nil
	})
	if err != nil {
		a.log.Debug("Review rejected", "user_id", in.UserID, "book_id", in.BookID, "error", err)
		return nil, err
	}

	a.log.Info("Review added",
		"review_id", res.Review.ID, "book_id", in.BookID,
		"rating", res.Book.Rating, "review_count", res.Book.ReviewCount)
	return res, nil
}

// Recompute rebuilds rating and reviewCount for bookID from scratch.
func (a *Aggregator) Recompute(ctx context.Context, bookID uint) (*models.Book, error) {
	unlock := a.locks.Lock(bookID)
	defer unlock()

	var book *models.Book
	err := a.store.WithTx(ctx, func(tx store.Store) error {
		if _, err := tx.LockBook(ctx, bookID); err != nil {
			return notFound(err, "book not found")
		}
		var err error
		book, err = recompute(ctx, tx, bookID)
		return err
	})
	if err != nil {
		return nil, err
	}
	a.log.Info("Rating recomputed", "book_id", bookID, "rating", book.Rating, "review_count", book.ReviewCount)
	return book, nil
}

func recompute(ctx context.Context, tx store.Store, bookID uint) (*models.Book, error) {
	reviews, err := tx.ListReviews(ctx, store.ReviewFilter{BookID: bookID})
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	sum := Summarize(reviews)
	book, err := tx.UpdateBook(ctx, bookID, models.BookPatch{Rating: &sum.Rating, ReviewCount: &sum.ReviewCount})
	if err != nil {
		return nil, fmt.Errorf("store rating: %w", err)
	}
	return book, nil
}

func notFound(err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.NotFound(msg)
	}
	return err
}
