package catalog

import (
	"context"

	"bookhaven/pkg/models"
	"bookhaven/pkg/store"
)

const DefaultPageSize = 10

// Query is a browse request. Search wins over Genre when both are set.
type Query struct {
	Search       string
	Genre        string
	Availability Availability
	Sort         SortKey
	Page         int
	PageSize     int
}

// Service answers catalog queries from the entity store.
type Service struct {
	store store.Store
}

func NewService(s store.Store) *Service {
	return &Service{store: s}
}

// List returns books matching search, or genre when search is empty, or all books.
func (s *Service) List(ctx context.Context, search, genre string) ([]models.Book, error) {
	books, err := s.store.ListBooks(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case search != "":
		return Search(books, search), nil
	case genre != "":
		return ByGenre(books, genre), nil
	}
	return books, nil
}

// Browse filters, sorts and pages the catalog. A page past the end is reset to the first page.
func (s *Service) Browse(ctx context.Context, q Query) (Page, error) {
	books, err := s.List(ctx, q.Search, q.Genre)
	if err != nil {
		return Page{}, err
	}
	books = Sort(FilterByAvailability(books, q.Availability), q.Sort)

	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	page := ClampPage(q.Page, TotalPages(len(books), pageSize))
	return Paginate(books, page, pageSize), nil
}

func (s *Service) Genres(ctx context.Context) ([]string, error) {
	books, err := s.store.ListBooks(ctx)
	if err != nil {
		return nil, err
	}
	return Genres(books), nil
}
