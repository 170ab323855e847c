package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bookhaven/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestAllowPerKey(t *testing.T) {
	k := New(1, 2)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	k.now = func() time.Time { return now }

	assert.True(t, k.Allow("a"))
	assert.True(t, k.Allow("a"))
	assert.False(t, k.Allow("a"))

	// Other keys have their own bucket.
	assert.True(t, k.Allow("b"))

	now = now.Add(time.Second)
	assert.True(t, k.Allow("a"))
}

func TestSweep(t *testing.T) {
	k := New(1, 1)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	k.now = func() time.Time { return now }

	k.Allow("old")
	now = now.Add(time.Hour)
	k.Allow("fresh")

	assert.Equal(t, 1, k.Sweep(30*time.Minute))
	assert.Equal(t, 1, k.Len())
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(New(0.001, 1), logger.Discard()))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
