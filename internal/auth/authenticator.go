// Package auth proves which principal an invocation acts for.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmynk/settlex/internal/models"
)

var (
	ErrNoPrincipal       = errors.New("no authenticated principal")
	ErrPrincipalMismatch = errors.New("authenticated principal does not match")
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal returns a context carrying the authenticated principal.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom extracts the authenticated principal from the context.
// Returns the zero principal if none was set.
func PrincipalFrom(ctx context.Context) models.Principal {
	p, _ := ctx.Value(principalKey).(models.Principal)
	return p
}

// ContextAuthenticator authorizes an invocation for a principal when the
// request carried a valid token for exactly that principal.
type ContextAuthenticator struct{}

// RequireAuthorization fails unless ctx was authenticated as principal.
func (ContextAuthenticator) RequireAuthorization(ctx context.Context, principal models.Principal) error {
	got := PrincipalFrom(ctx)
	if got.IsZero() {
		return ErrNoPrincipal
	}
	if got != principal {
		return fmt.Errorf("%w: token is for %s, call needs %s", ErrPrincipalMismatch, got, principal)
	}
	return nil
}
