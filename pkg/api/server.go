// Package api maps the REST endpoints onto the borrowing, review and catalog services.
package api

import (
	"log/slog"
	"time"

	"bookhaven/pkg/auth"
	"bookhaven/pkg/catalog"
	"bookhaven/pkg/keylock"
	"bookhaven/pkg/ledger"
	"bookhaven/pkg/rating"
	"bookhaven/pkg/ratelimit"
	"bookhaven/pkg/store"

	"github.com/gin-gonic/gin"
)

// Deps are the collaborators a Server is built from. Limiter may be nil to disable rate limiting.
type Deps struct {
	Store   store.Store
	Auth    *auth.Authenticator
	Ledger  *ledger.Ledger
	Ratings *rating.Aggregator
	Catalog *catalog.Service
	Locks   *keylock.Map[uint]
	Limiter *ratelimit.KeyedLimiter
	Logger  *slog.Logger
	Clock   func() time.Time

	// UserHeader decides whether X-User-Id is believed. The zero value trusts it.
	UserHeader UserHeaderPolicy
}

type UserHeaderPolicy struct {
	Ignore     bool
	ProxyToken string
}

type Server struct {
	store   store.Store
	auth    *auth.Authenticator
	ledger  *ledger.Ledger
	ratings *rating.Aggregator
	catalog *catalog.Service
	locks   *keylock.Map[uint]
	limiter *ratelimit.KeyedLimiter
	log     *slog.Logger
	now     func() time.Time

	userHeader UserHeaderPolicy
}

func NewServer(d Deps) *Server {
	registerJSONFieldNames()

	now := d.Clock
	if now == nil {
		now = time.Now
	}
	return &Server{
		store:   d.Store,
		auth:    d.Auth,
		ledger:  d.Ledger,
		ratings: d.Ratings,
		catalog: d.Catalog,
		locks:   d.Locks,
		limiter: d.Limiter,
		log:     d.Logger,
		now:     now,

		userHeader: d.UserHeader,
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(s.log))

	r.GET("/manage/health", s.healthCheck)

	api := r.Group("/api")
	if s.limiter != nil {
		api.Use(ratelimit.Middleware(s.limiter, s.log))
	}
	api.Use(s.identify())

	api.POST("/users", s.createUser)
	api.POST("/auth/login", s.login)
	api.POST("/auth/logout", s.logout)
	api.GET("/auth/session", s.requireUser(), s.session)

	api.GET("/books", s.listBooks)
	api.GET("/books/:id", s.getBook)
	api.POST("/books", s.requireAdmin(), s.createBook)
	api.PUT("/books/:id", s.requireAdmin(), s.updateBook)
	api.DELETE("/books/:id", s.requireAdmin(), s.deleteBook)
	api.POST("/books/:id/rating/recompute", s.requireAdmin(), s.recomputeRating)

	api.GET("/books/:id/reviews", s.listReviews)
	api.POST("/books/:id/reviews", s.requireUser(), s.createReview)

	api.GET("/search", s.searchBooks)
	api.GET("/genres", s.listGenres)
	api.GET("/catalog", s.browseCatalog)

	api.GET("/borrowings", s.requireUser(), s.listBorrowings)
	api.POST("/borrowings", s.requireUser(), s.createBorrowing)
	api.PUT("/borrowings/:id/return", s.requireUser(), s.returnBorrowing)

	return r
}
