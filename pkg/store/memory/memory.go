// Package memory is an in-process entity store backed by maps.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"bookhaven/pkg/apperrors"
	"bookhaven/pkg/models"
	"bookhaven/pkg/store"
)

type cloner[T any] interface {
	Clone() T
}

// table hands out and stores clones only, so no caller shares memory with a stored row.
type table[T cloner[T]] struct {
	rows map[uint]T
	seq  uint
}

func newTable[T cloner[T]]() *table[T] {
	return &table[T]{rows: make(map[uint]T)}
}

func (t *table[T]) nextID() uint {
	t.seq++
	return t.seq
}

func (t *table[T]) get(id uint) (T, bool) {
	row, ok := t.rows[id]
	if !ok {
		return row, false
	}
	return row.Clone(), true
}

func (t *table[T]) list(keep func(T) bool) []T {
	out := make([]T, 0, len(t.rows))
	for _, id := range slices.Sorted(maps.Keys(t.rows)) {
		if row := t.rows[id]; keep == nil || keep(row) {
			out = append(out, row.Clone())
		}
	}
	return out
}

type tables struct {
	users      *table[models.User]
	books      *table[models.Book]
	borrowings *table[models.Borrowing]
	reviews    *table[models.Review]
}

// Store keeps all entities behind one RWMutex. A transaction holds the write lock for its
// whole duration and records undo steps so a failed transaction leaves no trace.
type Store struct {
	data *tables
	mu   *sync.RWMutex
	undo *[]func()
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		data: &tables{
			users:      newTable[models.User](),
			books:      newTable[models.Book](),
			borrowings: newTable[models.Borrowing](),
			reviews:    newTable[models.Review](),
		},
		mu: &sync.RWMutex{},
	}
}

func (s *Store) inTx() bool {
	return s.undo != nil
}

func (s *Store) rlock() func() {
	if s.inTx() {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *Store) lock() func() {
	if s.inTx() {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) onRollback(fn func()) {
	if s.inTx() {
		*s.undo = append(*s.undo, fn)
	}
}

// put stores row under id and remembers how to restore the previous state.
func put[T cloner[T]](s *Store, t *table[T], id uint, row T) {
	prev, existed := t.rows[id]
	t.rows[id] = row.Clone()
	s.onRollback(func() {
		if existed {
			t.rows[id] = prev
		} else {
			delete(t.rows, id)
		}
	})
}

func remove[T cloner[T]](s *Store, t *table[T], id uint) bool {
	prev, existed := t.rows[id]
	if !existed {
		return false
	}
	delete(t.rows, id)
	s.onRollback(func() { t.rows[id] = prev })
	return true
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Store) error) (err error) {
	if s.inTx() {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var undo []func()
	tx := &Store{data: s.data, mu: s.mu, undo: &undo}

	rollback := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}
	defer func() {
		if r := recover(); r != nil {
			rollback()
			panic(r)
		}
	}()

	if err = ctx.Err(); err != nil {
		return err
	}
	if err = fn(tx); err != nil {
		rollback()
		return err
	}
	return nil
}

func (s *Store) LockBook(ctx context.Context, id uint) (*models.Book, error) {
	return s.GetBook(ctx, id)
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}

// Users

func (s *Store) checkUnique(u models.User) error {
	for _, existing := range s.data.users.rows {
		if existing.ID == u.ID {
			continue
		}
		if existing.Username == u.Username {
			return apperrors.AlreadyExists("username already exists")
		}
		if existing.Email == u.Email {
			return apperrors.AlreadyExists("email already exists")
		}
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	defer s.lock()()
	row := *u
	row.ID = 0
	if err := s.checkUnique(row); err != nil {
		return err
	}
	row.ID = s.data.users.nextID()
	put(s, s.data.users, row.ID, row)
	*u = row
	return nil
}

func (s *Store) GetUser(ctx context.Context, id uint) (*models.User, error) {
	defer s.rlock()()
	u, ok := s.data.users.get(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) findUser(match func(models.User) bool) (*models.User, error) {
	defer s.rlock()()
	found := s.data.users.list(match)
	if len(found) == 0 {
		return nil, store.ErrNotFound
	}
	return &found[0], nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findUser(func(u models.User) bool { return u.Username == username })
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(func(u models.User) bool { return u.Email == email })
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	defer s.rlock()()
	return s.data.users.list(nil), nil
}

func (s *Store) UpdateUser(ctx context.Context, id uint, patch models.UserPatch) (*models.User, error) {
	defer s.lock()()
	u, ok := s.data.users.get(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	patch.Apply(&u)
	if err := s.checkUnique(u); err != nil {
		return nil, err
	}
	put(s, s.data.users, id, u)
	return &u, nil
}

func (s *Store) DeleteUser(ctx context.Context, id uint) (bool, error) {
	defer s.lock()()
	return remove(s, s.data.users, id), nil
}

// Books

func (s *Store) CreateBook(ctx context.Context, b *models.Book) error {
	defer s.lock()()
	if err := store.CheckCopies(*b); err != nil {
		return err
	}
	row := *b
	row.ID = s.data.books.nextID()
	put(s, s.data.books, row.ID, row)
	*b = row
	return nil
}

func (s *Store) GetBook(ctx context.Context, id uint) (*models.Book, error) {
	defer s.rlock()()
	b, ok := s.data.books.get(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

func (s *Store) ListBooks(ctx context.Context) ([]models.Book, error) {
	defer s.rlock()()
	return s.data.books.list(nil), nil
}

func (s *Store) UpdateBook(ctx context.Context, id uint, patch models.BookPatch) (*models.Book, error) {
	defer s.lock()()
	b, ok := s.data.books.get(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	patch.Apply(&b)
	if err := store.CheckCopies(b); err != nil {
		return nil, err
	}
	put(s, s.data.books, id, b)
	return &b, nil
}

func (s *Store) DeleteBook(ctx context.Context, id uint) (bool, error) {
	defer s.lock()()
	return remove(s, s.data.books, id), nil
}

// Borrowings

func (s *Store) CreateBorrowing(ctx context.Context, b *models.Borrowing) error {
	defer s.lock()()
	row := *b
	row.ID = s.data.borrowings.nextID()
	put(s, s.data.borrowings, row.ID, row)
	*b = row
	return nil
}

func (s *Store) GetBorrowing(ctx context.Context, id uint) (*models.Borrowing, error) {
	defer s.rlock()()
	b, ok := s.data.borrowings.get(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

func (s *Store) ListBorrowings(ctx context.Context, f store.BorrowingFilter) ([]models.Borrowing, error) {
	defer s.rlock()()
	return s.data.borrowings.list(f.Match), nil
}

func (s *Store) UpdateBorrowing(ctx context.Context, id uint, patch models.BorrowingPatch) (*models.Borrowing, error) {
	defer s.lock()()
	b, ok := s.data.borrowings.get(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	patch.Apply(&b)
	put(s, s.data.borrowings, id, b)
	return &b, nil
}

// Reviews

func (s *Store) CreateReview(ctx context.Context, r *models.Review) error {
	defer s.lock()()
	row := *r
	row.ID = s.data.reviews.nextID()
	put(s, s.data.reviews, row.ID, row)
	*r = row
	return nil
}

func (s *Store) GetReview(ctx context.Context, id uint) (*models.Review, error) {
	defer s.rlock()()
	r, ok := s.data.reviews.get(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (s *Store) ListReviews(ctx context.Context, f store.ReviewFilter) ([]models.Review, error) {
	defer s.rlock()()
	return s.data.reviews.list(f.Match), nil
}
