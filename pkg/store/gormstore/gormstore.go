// Package gormstore implements store.Store on gorm, for postgres in production and sqlite in tests.
package gormstore

import (
	"context"
	"errors"

	"bookhaven/pkg/apperrors"
	"bookhaven/pkg/models"
	"bookhaven/pkg/store"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db   *gorm.DB
	inTx bool
}

var _ store.Store = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperrors.AlreadyExists("already exists").WithCause(err)
	}
	return err
}

func getByID[T any](db *gorm.DB, id uint) (*T, error) {
	var row T
	if err := db.First(&row, id).Error; err != nil {
		return nil, translate(err)
	}
	return &row, nil
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, inTx: true})
	})
}

// LockBook takes a row lock on postgres. SQLite serializes writers on its own.
func (s *Store) LockBook(ctx context.Context, id uint) (*models.Book, error) {
	q := s.conn(ctx)
	if s.inTx && s.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return getByID[models.Book](q, id)
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Users

func (s *Store) checkUnique(ctx context.Context, u models.User) error {
	var count int64
	err := s.conn(ctx).Model(&models.User{}).
		Where("username = ? AND id <> ?", u.Username, u.ID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return apperrors.AlreadyExists("username already exists")
	}
	err = s.conn(ctx).Model(&models.User{}).
		Where("email = ? AND id <> ?", u.Email, u.ID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return apperrors.AlreadyExists("email already exists")
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	u.ID = 0
	if err := s.checkUnique(ctx, *u); err != nil {
		return err
	}
	return translate(s.conn(ctx).Create(u).Error)
}

func (s *Store) GetUser(ctx context.Context, id uint) (*models.User, error) {
	return getByID[models.User](s.conn(ctx), id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.conn(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.conn(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	users := make([]models.User, 0)
	if err := s.conn(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUser(ctx context.Context, id uint, patch models.UserPatch) (*models.User, error) {
	var out *models.User
	err := s.WithTx(ctx, func(tx store.Store) error {
		t := tx.(*Store)
		u, err := getByID[models.User](t.conn(ctx), id)
		if err != nil {
			return err
		}
		patch.Apply(u)
		if err := t.checkUnique(ctx, *u); err != nil {
			return err
		}
		if err := t.conn(ctx).Save(u).Error; err != nil {
			return translate(err)
		}
		out = u
		return nil
	})
	return out, err
}

func (s *Store) DeleteUser(ctx context.Context, id uint) (bool, error) {
	res := s.conn(ctx).Delete(&models.User{}, id)
	return res.RowsAffected > 0, res.Error
}

// Books

func (s *Store) CreateBook(ctx context.Context, b *models.Book) error {
	if err := store.CheckCopies(*b); err != nil {
		return err
	}
	b.ID = 0
	return translate(s.conn(ctx).Create(b).Error)
}

func (s *Store) GetBook(ctx context.Context, id uint) (*models.Book, error) {
	return getByID[models.Book](s.conn(ctx), id)
}

func (s *Store) ListBooks(ctx context.Context) ([]models.Book, error) {
	books := make([]models.Book, 0)
	if err := s.conn(ctx).Order("id").Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

func (s *Store) UpdateBook(ctx context.Context, id uint, patch models.BookPatch) (*models.Book, error) {
	var out *models.Book
	err := s.WithTx(ctx, func(tx store.Store) error {
		t := tx.(*Store)
		b, err := t.LockBook(ctx, id)
		if err != nil {
			return err
		}
		patch.Apply(b)
		if err := store.CheckCopies(*b); err != nil {
			return err
		}
		if err := t.conn(ctx).Save(b).Error; err != nil {
			return translate(err)
		}
		out = b
		return nil
	})
	return out, err
}

func (s *Store) DeleteBook(ctx context.Context, id uint) (bool, error) {
	res := s.conn(ctx).Delete(&models.Book{}, id)
	return res.RowsAffected > 0, res.Error
}

// Borrowings

func (s *Store) CreateBorrowing(ctx context.Context, b *models.Borrowing) error {
	b.ID = 0
	return translate(s.conn(ctx).Create(b).Error)
}

func (s *Store) GetBorrowing(ctx context.Context, id uint) (*models.Borrowing, error) {
	return getByID[models.Borrowing](s.conn(ctx), id)
}

func (s *Store) ListBorrowings(ctx context.Context, f store.BorrowingFilter) ([]models.Borrowing, error) {
	q := s.conn(ctx).Order("id")
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.BookID != 0 {
		q = q.Where("book_id = ?", f.BookID)
	}
	if f.ActiveOnly {
		q = q.Where("return_date IS NULL")
	}

	borrowings := make([]models.Borrowing, 0)
	if err := q.Find(&borrowings).Error; err != nil {
		return nil, err
	}
	return borrowings, nil
}

func (s *Store) UpdateBorrowing(ctx context.Context, id uint, patch models.BorrowingPatch) (*models.Borrowing, error) {
	var out *models.Borrowing
	err := s.WithTx(ctx, func(tx store.Store) error {
		t := tx.(*Store)
		b, err := getByID[models.Borrowing](t.conn(ctx), id)
		if err != nil {
			return err
		}
		patch.Apply(b)
		if err := t.conn(ctx).Save(b).Error; err != nil {
			return translate(err)
		}
		out = b
		return nil
	})
	return out, err
}

// Reviews

func (s *Store) CreateReview(ctx context.Context, r *models.Review) error {
	r.ID = 0
	return translate(s.conn(ctx).Create(r).Error)
}

func (s *Store) GetReview(ctx context.Context, id uint) (*models.Review, error) {
	return getByID[models.Review](s.conn(ctx), id)
}

func (s *Store) ListReviews(ctx context.Context, f store.ReviewFilter) ([]models.Review, error) {
	q := s.conn(ctx).Order("id")
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.BookID != 0 {
		q = q.Where("book_id = ?", f.BookID)
	}

	reviews := make([]models.Review, 0)
	if err := q.Find(&reviews).Error; err != nil {
		return nil, err
	}
	return reviews, nil
}
