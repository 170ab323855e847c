package api

import (
	"crypto/subtle"
	"log/slog"
	"strconv"
	"time"

	"bookhaven/pkg/apperrors"
	"bookhaven/pkg/auth"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerRequestID = "X-Request-Id"
	headerUserID    = "X-User-Id"
	headerProxy     = "X-Proxy-Token"

	ctxRequestID = "requestID"
	ctxPrincipal = "principal"
)

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

func accessLog(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"request_id", c.GetString(ctxRequestID),
		}
		if err := c.Errors.Last(); err != nil {
			attrs = append(attrs, "error", err.Error())
		}
		if c.Writer.Status() >= 500 {
			log.Error("Request failed", attrs...)
			return
		}
		log.Info("Request handled", attrs...)
	}
}

// identify resolves the X-User-Id header set by the fronting auth proxy into a principal.
// Requests without the header continue anonymously. When the policy names a proxy token,
// a user header without the matching X-Proxy-Token is rejected.
func (s *Server) identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(headerUserID)
		if raw == "" || s.userHeader.Ignore {
			c.Next()
			return
		}
		if want := s.userHeader.ProxyToken; want != "" {
			got := c.GetHeader(headerProxy)
			if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
				s.log.Warn("User header without proxy token", "client_ip", c.ClientIP())
				abortWithError(c, apperrors.ErrUnauthorized)
				return
			}
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			abortWithError(c, apperrors.ErrUnauthorized)
			return
		}
		u, err := s.auth.Resolve(c.Request.Context(), uint(id))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(ctxPrincipal, auth.PrincipalOf(u))
		c.Next()
	}
}

func principal(c *gin.Context) (auth.Principal, bool) {
	v, ok := c.Get(ctxPrincipal)
	if !ok {
		return auth.Principal{}, false
	}
	p, ok := v.(auth.Principal)
	return p, ok
}

func (s *Server) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := principal(c); !ok {
			abortWithError(c, apperrors.ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			abortWithError(c, apperrors.ErrUnauthorized)
			return
		}
		if !p.IsAdmin {
			abortWithError(c, apperrors.ErrForbidden)
			return
		}
		c.Next()
	}
}
