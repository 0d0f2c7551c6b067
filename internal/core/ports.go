package core

import (
	"context"

	"github.com/dkeye/Setlist/internal/domain"
)

// SetlistLoader is the setlist persistence boundary. It returns an error
// wrapping domain.ErrNotFound for unknown setlists.
type SetlistLoader interface {
	LoadSetlist(ctx context.Context, id domain.SetlistID) (domain.SetlistSnapshot, error)
}

type SetlistLoaderFunc func(ctx context.Context, id domain.SetlistID) (domain.SetlistSnapshot, error)

func (f SetlistLoaderFunc) LoadSetlist(ctx context.Context, id domain.SetlistID) (domain.SetlistSnapshot, error) {
	return f(ctx, id)
}

// IdentityVerifier is the auth boundary. It returns an error wrapping
// domain.ErrUnauthorized when the token is not acceptable.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*domain.User, error)
}
