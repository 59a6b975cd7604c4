package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/orrn/printdispatch/internal/config"
	"github.com/orrn/printdispatch/internal/db"
)

const (
	issuer               = "printdispatch"
	settingsKeyJWTSecret = "jwt_secret"
	adminKeyHeader       = "X-Admin-Key"
	contextRestaurantID  = "restaurant_id"
	contextClaims        = "claims"
)

var ErrInvalidToken = errors.New("invalid worker token")

// WorkerClaims identify the restaurant a worker token acts for.
type WorkerClaims struct {
	jwt.RegisteredClaims
	RestaurantID int64 `json:"restaurant_id"`
}

type SettingsStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

type AuthMiddleware struct {
	secret       []byte
	ttl          time.Duration
	adminKeyHash []byte
}

// NewAuthMiddleware uses the configured signing secret, or one persisted in
// settings, creating it on first start.
func NewAuthMiddleware(ctx context.Context, settings SettingsStore, cfg config.AuthConfig) (*AuthMiddleware, error) {
	a := &AuthMiddleware{ttl: cfg.TokenTTL, adminKeyHash: []byte(cfg.AdminKeyHash)}

	if cfg.JWTSecret != "" {
		a.secret = []byte(cfg.JWTSecret)
		return a, nil
	}

	secret, err := getOrCreateSecret(ctx, settings)
	if err != nil {
		return nil, err
	}
	a.secret = secret
	return a, nil
}

func getOrCreateSecret(ctx context.Context, settings SettingsStore) ([]byte, error) {
	value, err := settings.Get(ctx, settingsKeyJWTSecret)
	if err == nil {
		return hex.DecodeString(value)
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate jwt secret: %w", err)
	}
	if err := settings.Set(ctx, settingsKeyJWTSecret, hex.EncodeToString(secret)); err != nil {
		return nil, err
	}
	return secret, nil
}

// IssueWorkerToken signs a bearer token scoped to one restaurant.
func (a *AuthMiddleware) IssueWorkerToken(restaurantID int64) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(a.ttl)
	claims := &WorkerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   "restaurant:" + strconv.FormatInt(restaurantID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			Issuer:    issuer,
		},
		RestaurantID: restaurantID,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

func (a *AuthMiddleware) ValidateWorkerToken(tokenString string) (*WorkerClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &WorkerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*WorkerClaims)
	if !ok || !token.Valid || claims.RestaurantID <= 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": message})
}

// RequireWorker authenticates a worker bearer token and scopes the request to
// its restaurant.
func (a *AuthMiddleware) RequireWorker() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			abort(c, http.StatusUnauthorized, "unauthorized", "bearer token required")
			return
		}

		claims, err := a.ValidateWorkerToken(token)
		if err != nil {
			abort(c, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}

		c.Set(contextRestaurantID, claims.RestaurantID)
		c.Set(contextClaims, claims)
		c.Next()
	}
}

// RestaurantID returns the restaurant the authenticated worker acts for.
func RestaurantID(c *gin.Context) int64 {
	return c.GetInt64(contextRestaurantID)
}

// RequireAdminKey checks X-Admin-Key against the configured bcrypt hash.
// Without a configured hash every admin request is refused.
func (a *AuthMiddleware) RequireAdminKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(a.adminKeyHash) == 0 {
			abort(c, http.StatusUnauthorized, "unauthorized", "admin access is not configured")
			return
		}

		key := c.GetHeader(adminKeyHeader)
		if key == "" || bcrypt.CompareHashAndPassword(a.adminKeyHash, []byte(key)) != nil {
			abort(c, http.StatusUnauthorized, "unauthorized", "invalid admin key")
			return
		}
		c.Next()
	}
}

// HashAdminKey produces the value for auth.admin_key_hash.
func HashAdminKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
