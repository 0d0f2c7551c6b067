// Package auth verifies the bearer tokens clients present when they join
// a performance.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Setlist/internal/domain"
	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog/log"
)

const issuer = "setlist"

var ErrNoSecret = errors.New("auth: empty signing secret")

// Claims carries the user id in the subject and an optional display name.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier accepts HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	now    func() time.Time
}

func NewJWTVerifier(secret string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &JWTVerifier{secret: []byte(secret), now: time.Now}, nil
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", domain.ErrUnauthorized)
	}

	var claims Claims
	parser := jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}}
	parsed, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}
	if claims.Issuer != issuer {
		return nil, fmt.Errorf("%w: unexpected issuer %q", domain.ErrUnauthorized, claims.Issuer)
	}

	user, err := domain.NewUser(domain.UserID(claims.Subject), claims.Name)
	if errors.Is(err, domain.ErrDisplayNameTooLong) {
		// A bad name claim should not lock the user out.
		log.Warn().Str("module", "auth").Str("user", claims.Subject).Msg("ignoring oversized name claim")
		user, err = domain.NewUser(domain.UserID(claims.Subject), "")
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Issue signs a token for userID. A zero ttl issues a non-expiring token.
func (v *JWTVerifier) Issue(userID domain.UserID, name string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			Subject:  string(userID),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
