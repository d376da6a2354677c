package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/reelrank/internal/models"
)

var (
	// ErrUnauthenticated means no bearer credentials were presented.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrUnauthorized means the presented credentials were rejected.
	ErrUnauthorized = errors.New("invalid or expired token")
)

// UserLookup resolves the user a token was issued to.
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// Authenticator turns an Authorization header into a user.
type Authenticator struct {
	tokens *JWTManager
	users  UserLookup
}

// NewAuthenticator returns an Authenticator over tokens and users.
func NewAuthenticator(tokens *JWTManager, users UserLookup) *Authenticator {
	return &Authenticator{tokens: tokens, users: users}
}

// Tokens returns the token manager used for login.
func (a *Authenticator) Tokens() *JWTManager {
	return a.tokens
}

// Authenticate validates a "Bearer <token>" header value and loads the
// token's user. A user deleted since the token was issued is unauthorized.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (*models.User, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, ErrUnauthenticated
	}
	claims, err := a.tokens.ValidateToken(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	user, err := a.users.GetUser(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return user, nil
}
