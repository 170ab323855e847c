package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bookhaven/pkg/auth"
	"bookhaven/pkg/catalog"
	"bookhaven/pkg/keylock"
	"bookhaven/pkg/ledger"
	"bookhaven/pkg/logger"
	"bookhaven/pkg/models"
	"bookhaven/pkg/rating"
	"bookhaven/pkg/store/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	server *Server
	router *gin.Engine
	store  *memory.Store
	admin  *models.User
	reader *models.User
	other  *models.User
	book   *models.Book
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	s := memory.New()
	locks := keylock.New[uint]()
	log := logger.Discard()
	clock := func() time.Time { return testNow }
	authn := auth.NewAuthenticator(s, bcrypt.MinCost)

	env := &testEnv{store: s}
	var err error
	env.admin, err = authn.Register(ctx, auth.Registration{Username: "admin", Password: "admin123", Name: "Admin", Email: "admin@example.com"})
	require.NoError(t, err)
	isAdmin := true
	env.admin, err = s.UpdateUser(ctx, env.admin.ID, models.UserPatch{IsAdmin: &isAdmin})
	require.NoError(t, err)
	env.reader, err = authn.Register(ctx, auth.Registration{Username: "reader", Password: "secret123", Name: "Reader", Email: "reader@example.com"})
	require.NoError(t, err)
	env.other, err = authn.Register(ctx, auth.Registration{Username: "other", Password: "secret123", Name: "Other", Email: "other@example.com"})
	require.NoError(t, err)

	env.book = &models.Book{
		Title: "1984", Author: "George Orwell", Description: "Dystopia", ISBN: "9780451524935",
		Genre: "Science Fiction", TotalCopies: 1, AvailableCopies: 1,
	}
	require.NoError(t, s.CreateBook(ctx, env.book))

	env.server = NewServer(Deps{
		Store:   s,
		Auth:    authn,
		Ledger:  ledger.New(s, locks, log, ledger.WithClock(clock)),
		Ratings: rating.New(s, locks, log, rating.WithClock(clock)),
		Catalog: catalog.NewService(s),
		Locks:   locks,
		Logger:  log,
		Clock:   clock,
	})
	env.router = env.server.Router()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, as *models.User, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set(headerUserID, fmt.Sprint(as.ID))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type borrowResponse struct {
	Borrowing models.Borrowing `json:"borrowing"`
	Book      models.Book      `json:"book"`
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/manage/health", nil)

	env.server.healthCheck(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "UP", response["status"])
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/genres", nil, nil)
	assert.NotEmpty(t, w.Header().Get(headerRequestID))

	req := httptest.NewRequest("GET", "/api/genres", nil)
	req.Header.Set(headerRequestID, "abc")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(headerRequestID))
}

func TestGetBook(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/api/books/1", nil)
	c.Params = gin.Params{gin.Param{Key: "id", Value: fmt.Sprint(env.book.ID)}}

	env.server.getBook(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "1984", response["title"])
	assert.Equal(t, float64(1), response["availableCopies"])

	w = env.do(t, "GET", "/api/books/999", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Book not found", decode[map[string]any](t, w)["message"])

	w = env.do(t, "GET", "/api/books/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListBooks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.CreateBook(ctx, &models.Book{
		Title: "Emma", Author: "Jane Austen", Description: "Comedy of manners", ISBN: "1", Genre: "Fiction",
		TotalCopies: 1, AvailableCopies: 1,
	}))

	w := env.do(t, "GET", "/api/books", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Book](t, w), 2)

	w = env.do(t, "GET", "/api/books?search=ORWELL&genre=Fiction", nil, nil)
	books := decode[[]models.Book](t, w)
	require.Len(t, books, 1)
	assert.Equal(t, "1984", books[0].Title)

	w = env.do(t, "GET", "/api/books?genre=fiction", nil, nil)
	books = decode[[]models.Book](t, w)
	require.Len(t, books, 1)
	assert.Equal(t, "Emma", books[0].Title)

	w = env.do(t, "GET", "/api/books?search=tolkien", nil, nil)
	assert.Equal(t, "[]", w.Body.String())

	w = env.do(t, "GET", "/api/search?query=austen", nil, nil)
	books = decode[[]models.Book](t, w)
	require.Len(t, books, 1)
	assert.Equal(t, "Emma", books[0].Title)

	w = env.do(t, "GET", "/api/search", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "GET", "/api/genres", nil, nil)
	assert.Equal(t, []string{"Fiction", "Science Fiction"}, decode[[]string](t, w))
}

func TestBrowseCatalog(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := 0; i < 9; i++ {
		require.NoError(t, env.store.CreateBook(ctx, &models.Book{
			Title: fmt.Sprintf("Book %d", i), Author: "A", Description: "D", ISBN: fmt.Sprint(i), Genre: "Fiction",
			TotalCopies: 1, AvailableCopies: 1,
		}))
	}

	w := env.do(t, "GET", "/api/catalog?page=2&pageSize=4", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[catalog.Page](t, w)
	assert.Equal(t, 2, page.CurrentPage)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 10, page.TotalItems)
	require.Len(t, page.Items, 4)
	assert.Equal(t, uint(6), page.Items[0].ID)

	w = env.do(t, "GET", "/api/catalog?page=7&pageSize=4&sort=title_asc", nil, nil)
	page = decode[catalog.Page](t, w)
	assert.Equal(t, 1, page.CurrentPage)
	assert.Equal(t, "1984", page.Items[0].Title)
}

func TestBookAdmin(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{
		"title": "Dune", "author": "Frank Herbert", "description": "Spice", "isbn": "9780441013593", "genre": "Science Fiction",
		"totalCopies": 4,
	}

	w := env.do(t, "POST", "/api/books", nil, body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, "POST", "/api/books", env.reader, body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, "POST", "/api/books", env.admin, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.Book](t, w)
	assert.Equal(t, 4, created.TotalCopies)
	assert.Equal(t, 4, created.AvailableCopies)

	w = env.do(t, "POST", "/api/books", env.admin, map[string]any{"title": "No author"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	details := decode[map[string]any](t, w)["details"].(map[string]any)
	assert.Equal(t, "is required", details["author"])

	w = env.do(t, "PUT", fmt.Sprintf("/api/books/%d", created.ID), env.admin, map[string]any{"availableCopies": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "POST", "/api/books", env.admin, map[string]any{
		"title": "Empty", "author": "Nobody", "description": "-", "isbn": "0", "genre": "Fiction", "pages": 0,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "PUT", fmt.Sprintf("/api/books/%d", created.ID), env.admin, map[string]any{"pages": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[map[string]any](t, w)["details"], "pages")

	w = env.do(t, "PUT", fmt.Sprintf("/api/books/%d", created.ID), env.admin, map[string]any{"pages": 412})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, decode[models.Book](t, w).Pages)

	w = env.do(t, "PUT", fmt.Sprintf("/api/books/%d", created.ID), env.admin, map[string]any{"genre": "Classics", "rating": 5})
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode[models.Book](t, w)
	assert.Equal(t, "Classics", updated.Genre)
	assert.Equal(t, 0, updated.Rating)

	w = env.do(t, "PUT", "/api/books/999", env.admin, map[string]any{"genre": "Classics"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, "DELETE", fmt.Sprintf("/api/books/%d", created.ID), env.admin, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, "DELETE", fmt.Sprintf("/api/books/%d", created.ID), env.admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBorrowAndReturn(t *testing.T) {
	env := newTestEnv(t)
	path := "/api/borrowings"

	w := env.do(t, "POST", path, nil, map[string]any{"bookId": env.book.ID})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, "POST", path, env.reader, map[string]any{"bookId": env.book.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	borrowed := decode[borrowResponse](t, w)
	assert.Equal(t, env.reader.ID, borrowed.Borrowing.UserID)
	assert.Equal(t, models.StatusBorrowed, borrowed.Borrowing.Status)
	assert.Equal(t, 0, borrowed.Book.AvailableCopies)

	w = env.do(t, "POST", path, env.other, map[string]any{"bookId": env.book.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UNAVAILABLE", decode[map[string]any](t, w)["code"])

	w = env.do(t, "POST", path, env.other, map[string]any{"bookId": 999})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, "POST", path, env.other, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	returnPath := fmt.Sprintf("/api/borrowings/%d/return", borrowed.Borrowing.ID)
	w = env.do(t, "PUT", returnPath, env.other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, "PUT", returnPath, env.reader, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	returned := decode[borrowResponse](t, w)
	assert.Equal(t, models.StatusReturned, returned.Borrowing.Status)
	assert.NotNil(t, returned.Borrowing.ReturnDate)
	assert.Equal(t, 1, returned.Book.AvailableCopies)

	w = env.do(t, "PUT", returnPath, env.admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ALREADY_RETURNED", decode[map[string]any](t, w)["code"])

	w = env.do(t, "PUT", "/api/borrowings/999/return", env.reader, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, "POST", path, env.other, map[string]any{"bookId": env.book.ID})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestListBorrowings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	overdue := &models.Borrowing{
		UserID: env.other.ID, BookID: env.book.ID, Status: models.StatusBorrowed,
		BorrowDate: testNow.AddDate(0, 0, -30), DueDate: testNow.AddDate(0, 0, -16),
	}
	require.NoError(t, env.store.CreateBorrowing(ctx, overdue))
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/api/borrowings", env.reader, map[string]any{"bookId": env.book.ID}).Code)

	w := env.do(t, "GET", "/api/borrowings", env.reader, nil)
	require.Equal(t, http.StatusOK, w.Code)
	own := decode[[]map[string]any](t, w)
	require.Len(t, own, 1)
	assert.Equal(t, "borrowed", own[0]["displayStatus"])
	assert.Equal(t, "1984", own[0]["book"].(map[string]any)["title"])

	w = env.do(t, "GET", "/api/borrowings", env.admin, nil)
	all := decode[[]map[string]any](t, w)
	require.Len(t, all, 2)
	assert.Equal(t, "overdue", all[0]["displayStatus"])
	assert.Equal(t, "borrowed", all[0]["status"])

	w = env.do(t, "GET", "/api/borrowings", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReviews(t *testing.T) {
	env := newTestEnv(t)
	path := fmt.Sprintf("/api/books/%d/reviews", env.book.ID)

	w := env.do(t, "POST", path, nil, map[string]any{"rating": 4})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	for _, r := range []struct {
		user   *models.User
		rating int
	}{{env.reader, 4}, {env.other, 5}, {env.admin, 3}} {
		w = env.do(t, "POST", path, r.user, map[string]any{"rating": r.rating, "comment": "ok"})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	created := decode[map[string]any](t, w)
	book := created["book"].(map[string]any)
	assert.Equal(t, float64(4), book["rating"])
	assert.Equal(t, float64(3), book["reviewCount"])
	review := created["review"].(map[string]any)
	assert.Equal(t, "admin", review["user"].(map[string]any)["username"])

	w = env.do(t, "POST", path, env.reader, map[string]any{"rating": 6})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_RATING", decode[map[string]any](t, w)["code"])

	w = env.do(t, "POST", "/api/books/999/reviews", env.reader, map[string]any{"rating": 5})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, "GET", path, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	reviews := decode[[]map[string]any](t, w)
	require.Len(t, reviews, 3)
	author := reviews[0]["user"].(map[string]any)
	assert.Equal(t, "reader", author["username"])
	assert.NotContains(t, author, "password")

	w = env.do(t, "GET", "/api/books/999/reviews", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, "POST", fmt.Sprintf("/api/books/%d/rating/recompute", env.book.ID), env.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4, decode[models.Book](t, w).Rating)
}

func TestUsersAndAuth(t *testing.T) {
	env := newTestEnv(t)

	signup := map[string]any{"username": "newbie", "password": "secret123", "name": "New", "email": "new@example.com"}
	w := env.do(t, "POST", "/api/users", nil, signup)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	user := decode[map[string]any](t, w)
	assert.Equal(t, "newbie", user["username"])
	assert.Equal(t, false, user["isAdmin"])
	assert.NotContains(t, user, "password")

	w = env.do(t, "POST", "/api/users", nil, signup)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ALREADY_EXISTS", decode[map[string]any](t, w)["code"])

	w = env.do(t, "POST", "/api/users", nil, map[string]any{"username": "x", "password": "1", "name": "", "email": "bad"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	details := decode[map[string]any](t, w)["details"].(map[string]any)
	assert.Contains(t, details, "email")
	assert.Contains(t, details, "username")

	w = env.do(t, "POST", "/api/auth/login", nil, map[string]any{"username": "newbie", "password": "secret123"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "POST", "/api/auth/login", nil, map[string]any{"username": "newbie", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, "GET", "/api/auth/session", env.reader, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "reader", decode[map[string]any](t, w)["username"])

	w = env.do(t, "GET", "/api/auth/session", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest("GET", "/api/auth/session", nil)
	req.Header.Set(headerUserID, "999")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, "POST", "/api/auth/logout", env.reader, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUserHeaderPolicy(t *testing.T) {
	env := newTestEnv(t)

	sessionAs := func(token string) int {
		req := httptest.NewRequest("GET", "/api/auth/session", nil)
		req.Header.Set(headerUserID, fmt.Sprint(env.admin.ID))
		if token != "" {
			req.Header.Set(headerProxy, token)
		}
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, sessionAs(""))

	env.server.userHeader = UserHeaderPolicy{ProxyToken: "s3cret"}
	assert.Equal(t, http.StatusUnauthorized, sessionAs(""))
	assert.Equal(t, http.StatusUnauthorized, sessionAs("wrong"))
	assert.Equal(t, http.StatusOK, sessionAs("s3cret"))

	env.server.userHeader = UserHeaderPolicy{Ignore: true}
	assert.Equal(t, http.StatusUnauthorized, sessionAs(""))
	w := env.do(t, "GET", "/api/genres", env.admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
