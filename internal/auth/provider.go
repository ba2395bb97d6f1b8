package auth

import (
	"context"

	"github.com/chatwire/chatwire/internal/store"
)

// Identity is the unified identity representation for all auth providers.
type Identity struct {
	UserID   string // internal user ID (builtin) or external provider user ID
	Username string
}

// Provider validates bearer tokens and returns identities.
type Provider interface {
	ValidateToken(ctx context.Context, token string) (*Identity, error)
	Name() string
}

// LoginProvider is implemented by providers that support username/password
// login and account registration.
type LoginProvider interface {
	Login(ctx context.Context, username, password string) (string, *store.User, error)
	Register(ctx context.Context, email, username, password string) (*store.User, error)
}
