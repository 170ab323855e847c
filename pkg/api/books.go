package api

import (
	"errors"
	"net/http"
	"strconv"

	"bookhaven/pkg/apperrors"
	"bookhaven/pkg/catalog"
	"bookhaven/pkg/models"

	"github.com/gin-gonic/gin"
)

type bookRequest struct {
	Title           string `json:"title" binding:"required"`
	Author          string `json:"author" binding:"required"`
	Description     string `json:"description" binding:"required"`
	ISBN            string `json:"isbn" binding:"required"`
	Genre           string `json:"genre" binding:"required"`
	PublicationYear *int   `json:"publicationYear"`
	CoverImage      string `json:"coverImage"`
	TotalCopies     *int   `json:"totalCopies" binding:"omitempty,min=1"`
	AvailableCopies *int   `json:"availableCopies" binding:"omitempty,min=0"`
	Pages           *int   `json:"pages" binding:"omitempty,min=1"`
}

// book fills the copy defaults: one copy, all of them on the shelf.
func (r bookRequest) book() models.Book {
	b := models.Book{
		Title:           r.Title,
		Author:          r.Author,
		Description:     r.Description,
		ISBN:            r.ISBN,
		Genre:           r.Genre,
		PublicationYear: r.PublicationYear,
		CoverImage:      r.CoverImage,
		Pages:           r.Pages,
		TotalCopies:     1,
	}
	if r.TotalCopies != nil {
		b.TotalCopies = *r.TotalCopies
	}
	b.AvailableCopies = b.TotalCopies
	if r.AvailableCopies != nil {
		b.AvailableCopies = *r.AvailableCopies
	}
	return b
}

func (s *Server) listBooks(c *gin.Context) {
	books, err := s.catalog.List(c.Request.Context(), c.Query("search"), c.Query("genre"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, books)
}

func (s *Server) searchBooks(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		respondError(c, apperrors.Validation("Search query is required"))
		return
	}
	books, err := s.catalog.List(c.Request.Context(), query, "")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, books)
}

func (s *Server) browseCatalog(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(c.DefaultQuery("pageSize", strconv.Itoa(catalog.DefaultPageSize)))
	if err != nil || size < 1 || size > 100 {
		size = catalog.DefaultPageSize
	}

	result, err := s.catalog.Browse(c.Request.Context(), catalog.Query{
		Search:       c.Query("search"),
		Genre:        c.Query("genre"),
		Availability: catalog.ParseAvailability(c.Query("availability")),
		Sort:         catalog.ParseSort(c.Query("sort")),
		Page:         page,
		PageSize:     size,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) listGenres(c *gin.Context) {
	genres, err := s.catalog.Genres(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, genres)
}

func (s *Server) getBook(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	book, err := s.store.GetBook(c.Request.Context(), id)
	if err != nil {
		respondError(c, notFound(err, "Book not found"))
		return
	}
	c.JSON(http.StatusOK, book)
}

func (s *Server) createBook(c *gin.Context) {
	var req bookRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	book := req.book()
	if err := s.store.CreateBook(c.Request.Context(), &book); err != nil {
		respondError(c, err)
		return
	}
	s.log.Info("Book created", "book_id", book.ID, "title", book.Title)
	c.JSON(http.StatusCreated, book)
}

func (s *Server) updateBook(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var patch models.BookPatch
	if err := bindJSON(c, &patch); err != nil {
		respondError(c, err)
		return
	}
	// Rating and review count are derived from reviews.
	patch.Rating, patch.ReviewCount = nil, nil

	unlock := s.locks.Lock(id)
	defer unlock()

	book, err := s.store.UpdateBook(c.Request.Context(), id, patch)
	if err != nil {
		respondError(c, notFound(err, "Book not found"))
		return
	}
	s.log.Info("Book updated", "book_id", id)
	c.JSON(http.StatusOK, book)
}

func (s *Server) deleteBook(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	deleted, err := s.store.DeleteBook(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if !deleted {
		respondError(c, apperrors.NotFound("Book not found"))
		return
	}
	s.log.Info("Book deleted", "book_id", id)
	c.Status(http.StatusNoContent)
}

func (s *Server) recomputeRating(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	book, err := s.ratings.Recompute(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

// notFound swaps a store miss for a message naming the missing entity.
func notFound(err error, msg string) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.NotFound(msg)
	}
	return err
}
