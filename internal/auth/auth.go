// Package auth resolves bearer tokens to learner identities.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/store"
)

// ErrInvalidToken is returned for a token that matches no user.
var ErrInvalidToken = errors.New("invalid token")

const identityKey = "mudra.identity"

// Identity says who is practising. The zero value is anonymous.
type Identity struct {
	UserID string `json:"userId,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Anonymous is the identity of a learner who is not signed in.
var Anonymous = Identity{}

// Authenticated reports whether the identity belongs to a known user.
func (i Identity) Authenticated() bool {
	return i.UserID != ""
}

// Resolver maps a token to an identity.
type Resolver interface {
	Resolve(ctx context.Context, token string) (Identity, error)
}

// StoreResolver looks tokens up in the users table.
type StoreResolver struct {
	users *store.UserRepository
}

// NewStoreResolver creates a resolver over s.
func NewStoreResolver(s *store.Store) *StoreResolver {
	return &StoreResolver{users: s.Users()}
}

// Resolve returns the identity for token. An empty token is anonymous.
func (r *StoreResolver) Resolve(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Anonymous, nil
	}
	u, err := r.users.GetByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return Anonymous, ErrInvalidToken
	}
	if err != nil {
		return Anonymous, err
	}
	return Identity{UserID: u.ID, Name: u.Name}, nil
}

// NewToken returns a random 32-byte hex token.
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// Middleware attaches the caller's identity to the request. Requests without
// a token continue anonymously; an unknown token is rejected.
func Middleware(r Resolver, logger *zap.SugaredLogger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return func(c *gin.Context) {
		token := BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("token")
		}

		id, err := r.Resolve(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, ErrInvalidToken) {
				logger.Warnw("token lookup failed", "error", err)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(identityKey, id)
		c.Next()
	}
}

// Required rejects anonymous requests. It must run after Middleware.
func Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !FromContext(c).Authenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// FromContext returns the identity attached by Middleware, or Anonymous.
func FromContext(c *gin.Context) Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(Identity); ok {
			return id
		}
	}
	return Anonymous
}
