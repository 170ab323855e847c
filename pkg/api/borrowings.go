package api

import (
	"context"
	"errors"
	"net/http"

	"bookhaven/pkg/apperrors"
	"bookhaven/pkg/models"
	"bookhaven/pkg/store"

	"github.com/gin-gonic/gin"
)

type borrowRequest struct {
	BookID uint `json:"bookId" binding:"required"`
}

// borrowingView is a borrowing as listed to readers, with its book and the derived status.
type borrowingView struct {
	models.Borrowing
	DisplayStatus string       `json:"displayStatus"`
	Book          *models.Book `json:"book"`
}

func (s *Server) listBorrowings(c *gin.Context) {
	ctx := c.Request.Context()
	p, _ := principal(c)

	filter := store.BorrowingFilter{}
	if !p.IsAdmin {
		filter.UserID = p.ID
	}
	borrowings, err := s.store.ListBorrowings(ctx, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	views, err := s.borrowingViews(ctx, borrowings)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) borrowingViews(ctx context.Context, borrowings []models.Borrowing) ([]borrowingView, error) {
	now := s.now()
	books := make(map[uint]*models.Book)
	views := make([]borrowingView, 0, len(borrowings))
	for _, b := range borrowings {
		book, seen := books[b.BookID]
		if !seen {
			got, err := s.store.GetBook(ctx, b.BookID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			book = got
			books[b.BookID] = got
		}
		views = append(views, borrowingView{
			Borrowing:     b,
			DisplayStatus: b.DisplayStatus(now),
			Book:          book,
		})
	}
	return views, nil
}

func (s *Server) createBorrowing(c *gin.Context) {
	var req borrowRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	p, _ := principal(c)

	res, err := s.ledger.Borrow(c.Request.Context(), p.ID, req.BookID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) returnBorrowing(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	ctx := c.Request.Context()
	p, _ := principal(c)

	borrowing, err := s.store.GetBorrowing(ctx, id)
	if err != nil {
		respondError(c, notFound(err, "Borrowing record not found"))
		return
	}
	if !p.CanAccess(borrowing.UserID) {
		respondError(c, apperrors.ErrForbidden)
		return
	}

	res, err := s.ledger.Return(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
