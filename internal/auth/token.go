// Package auth validates inbound provider callbacks: the signed bearer token
// on the request, and the per-call secret carried in the URL path.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthorized = errors.New("unauthorized")

// Providers recommend a few minutes of leeway to absorb clock skew between
// their signing infrastructure and ours.
const tokenLeeway = 5 * time.Minute

// TokenValidator checks provider-signed bearer tokens against the provider's
// published signing keys. Keys are fetched once and cached with background
// refresh.
type TokenValidator struct {
	keys     keyfunc.Keyfunc
	issuer   string
	audience string
}

func NewTokenValidator(ctx context.Context, jwksURL, issuer, audience string) (*TokenValidator, error) {
	keys, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("fetch signing keys: %w", err)
	}
	return &TokenValidator{
		keys:     keys,
		issuer:   issuer,
		audience: audience,
	}, nil
}

// Validate checks the Authorization header of a callback request. Any failure
// (missing header, bad signature, wrong issuer/audience, expired token) maps
// to ErrUnauthorized.
func (v *TokenValidator) Validate(authorization string) error {
	const scheme = "Bearer "
	header := strings.TrimSpace(authorization)
	if !strings.HasPrefix(header, scheme) {
		return fmt.Errorf("%w: authorization header must use the Bearer scheme", ErrUnauthorized)
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, scheme))
	if raw == "" {
		return fmt.Errorf("%w: bearer token missing", ErrUnauthorized)
	}

	_, err := jwt.Parse(
		raw,
		v.keys.Keyfunc,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithLeeway(tokenLeeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("%w: invalid token: %v", ErrUnauthorized, err)
	}
	return nil
}
