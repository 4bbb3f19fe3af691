package handlers

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/alexivashchenko/auth-service/internal/common"
	"github.com/alexivashchenko/auth-service/internal/server/auth"
	"github.com/alexivashchenko/auth-service/internal/server/metrics"
)

// userIDKey is the gin context key under which AuthMiddleware stores the
// verified subject.
const userIDKey = "userID"

// AuthMiddleware verifies the Bearer access token and stores the user ID
// in the request context. Expired tokens get a distinct error code so
// clients know to refresh.
func AuthMiddleware(secretKey []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(common.AuthorizationHeaderName)
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ApiError{Code: "INVALID_TOKEN", Message: "missing Authorization header"})
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ApiError{Code: "INVALID_TOKEN", Message: "invalid Authorization header"})
			return
		}

		userID, err := auth.GetUserIDFromToken(token, secretKey, time.Now())
		if err != nil {
			code := "INVALID_TOKEN"
			if errors.Is(err, common.ErrTokenExpired) {
				code = "TOKEN_EXPIRED"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, ApiError{Code: code, Message: "invalid or expired token"})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// RateLimitMiddleware enforces a per-client-IP token bucket on the routes
// it wraps. Buckets are created lazily and kept for the process lifetime.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	var limiters sync.Map // map[string]*rate.Limiter

	getLimiter := func(key string) *rate.Limiter {
		if v, ok := limiters.Load(key); ok {
			return v.(*rate.Limiter)
		}
		lim := rate.NewLimiter(rate.Limit(rps), burst)
		actual, _ := limiters.LoadOrStore(key, lim)
		return actual.(*rate.Limiter)
	}

	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}

		if !getLimiter(ip).Allow() {
			c.Header("Retry-After", "1")
			metrics.RateLimitRejected.WithLabelValues(c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ApiError{Code: "RATE_LIMITED", Message: "too many requests"})
			return
		}
		c.Next()
	}
}
