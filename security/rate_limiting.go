package security

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// PurchaseRateLimit guards the purchase endpoints on the main router.
// Counts are kept in redis so limits hold across instances.
func (r *RateLimiter) PurchaseRateLimit(maxPerMinute int64) func(*core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		key := fmt.Sprintf("ratelimit:purchase:%s", e.RealIP())
		if e.Auth != nil {
			key = fmt.Sprintf("ratelimit:purchase:user:%s", e.Auth.Id)
		}

		ctx := e.Request.Context()
		count, err := r.redis.Incr(ctx, key).Result()
		if err != nil {
			// Redis trouble must not take the storefront down.
			return e.Next()
		}
		if count == 1 {
			r.redis.Expire(ctx, key, time.Minute)
		}
		if count > maxPerMinute {
			return apis.NewApiError(http.StatusTooManyRequests, "Too many purchase attempts. Please try again later.", nil)
		}

		return e.Next()
	}
}

// OpsRateLimit protects the standalone ops server.
func (r *RateLimiter) OpsRateLimit() echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: &redisStore{redis: r.redis, limit: 60, window: time.Minute},
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(429, map[string]string{
				"error": "Rate limit exceeded. Please try again later.",
			})
		},
	})
}

type redisStore struct {
	redis  *redis.Client
	limit  int64
	window time.Duration
}

func (s *redisStore) Allow(identifier string) (bool, error) {
	ctx := context.Background()
	key := fmt.Sprintf("ratelimit:ops:%s", identifier)

	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return true, nil
	}
	if count == 1 {
		s.redis.Expire(ctx, key, s.window)
	}
	return count <= s.limit, nil
}

// HashAdminKey derives the stored form of the operator API key.
func HashAdminKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("security: hash admin key: %v", err)
	}
	return string(hash), nil
}

// VerifyAdminKey checks a presented key against the stored hash.
func VerifyAdminKey(hash, key string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
