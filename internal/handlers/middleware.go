// Package handlers contains middleware for the settlement service.
package handlers

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Context keys set by the auth middleware.
const (
	ctxMemberID = "member_id"
	ctxRole     = "role"
)

// RoleAdmin may act on any member's resources.
const RoleAdmin = "admin"

// CORSMiddleware handles Cross-Origin Resource Sharing.
func CORSMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// RequestIDMiddleware adds a unique request ID to each request.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// MemberAuthMiddleware validates the member's HS256 Bearer token and stores
// the member_id and role claims in the context.
func MemberAuthMiddleware(secret string) gin.HandlerFunc {
	key := []byte(secret)

	return func(c *gin.Context) {
		if len(key) == 0 {
			abort(c, http.StatusInternalServerError, "JWT secret not configured", "CONFIG_ERROR")
			return
		}

		tokenString, ok := bearerToken(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "Authorization header required", "UNAUTHORIZED")
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			abort(c, http.StatusUnauthorized, "Invalid or expired token", "UNAUTHORIZED")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			abort(c, http.StatusUnauthorized, "Invalid token claims", "UNAUTHORIZED")
			return
		}

		raw, _ := claims["member_id"].(string)
		memberID, err := uuid.Parse(raw)
		if err != nil {
			abort(c, http.StatusUnauthorized, "Token has no valid member_id", "UNAUTHORIZED")
			return
		}

		role, _ := claims["role"].(string)
		c.Set(ctxMemberID, memberID)
		c.Set(ctxRole, role)
		c.Next()
	}
}

// RequireRole rejects callers whose token carries another role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxRole) != role {
			abort(c, http.StatusForbidden, "Access denied", "FORBIDDEN")
			return
		}
		c.Next()
	}
}

// ServiceAuthMiddleware validates the shared API key for server-to-server
// calls from FitStack Core. The key is read from X-Internal-API-Key or a
// Bearer token. An empty configured key rejects every call.
func ServiceAuthMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader("X-Internal-API-Key")
		if provided == "" {
			provided, _ = bearerToken(c)
		}
		if provided == "" {
			abort(c, http.StatusUnauthorized, "Service credentials required", "UNAUTHORIZED")
			return
		}

		if apiKey == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			abort(c, http.StatusUnauthorized, "Invalid service credentials", "UNAUTHORIZED")
			return
		}
		c.Next()
	}
}

// RateLimitMiddleware applies a token bucket per member, falling back to the
// client IP for anonymous calls.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	limiters := newLimiterSet(rate.Limit(rps), burst)

	return func(c *gin.Context) {
		key := c.ClientIP()
		if id, ok := c.Get(ctxMemberID); ok {
			key = id.(uuid.UUID).String()
		}

		if !limiters.get(key, time.Now()).Allow() {
			abort(c, http.StatusTooManyRequests, "Too many requests, slow down", "RATE_LIMITED")
			return
		}
		c.Next()
	}
}

const limiterIdleTTL = 10 * time.Minute

type limiterSet struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	entries map[string]*limiterEntry
	swept   time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterSet(limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{limit: limit, burst: burst, entries: make(map[string]*limiterEntry)}
}

func (s *limiterSet) get(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.swept) > limiterIdleTTL {
		for k, e := range s.entries {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(s.entries, k)
			}
		}
		s.swept = now
	}

	e, ok := s.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func abort(c *gin.Context, status int, msg, code string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Success: false,
		Error:   msg,
		Code:    code,
	})
}

// memberFromContext returns the authenticated member and whether they are an admin.
func memberFromContext(c *gin.Context) (uuid.UUID, bool) {
	id, _ := c.Get(ctxMemberID)
	memberID, _ := id.(uuid.UUID)
	return memberID, c.GetString(ctxRole) == RoleAdmin
}
