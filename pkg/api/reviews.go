package api

import (
	"context"
	"errors"
	"net/http"

	"bookhaven/pkg/models"
	"bookhaven/pkg/rating"
	"bookhaven/pkg/store"

	"github.com/gin-gonic/gin"
)

type reviewAuthor struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

type reviewView struct {
	models.Review
	User *reviewAuthor `json:"user,omitempty"`
}

func (s *Server) author(ctx context.Context, userID uint) (*reviewAuthor, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reviewAuthor{ID: u.ID, Username: u.Username, Name: u.Name}, nil
}

func (s *Server) listReviews(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	ctx := c.Request.Context()

	if _, err := s.store.GetBook(ctx, id); err != nil {
		respondError(c, notFound(err, "Book not found"))
		return
	}
	reviews, err := s.store.ListReviews(ctx, store.ReviewFilter{BookID: id})
	if err != nil {
		respondError(c, err)
		return
	}

	authors := make(map[uint]*reviewAuthor)
	views := make([]reviewView, 0, len(reviews))
	for _, r := range reviews {
		a, seen := authors[r.UserID]
		if !seen {
			if a, err = s.author(ctx, r.UserID); err != nil {
				respondError(c, err)
				return
			}
			authors[r.UserID] = a
		}
		views = append(views, reviewView{Review: r, User: a})
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) createReview(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var in rating.ReviewInput
	if err := bindJSON(c, &in); err != nil {
		respondError(c, err)
		return
	}
	p, _ := principal(c)
	in.UserID, in.BookID = p.ID, id

	ctx := c.Request.Context()
	res, err := s.ratings.AddReview(ctx, in)
	if err != nil {
		respondError(c, err)
		return
	}
	a, err := s.author(ctx, p.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"review": reviewView{Review: *res.Review, User: a},
		"book":   res.Book,
	})
}
