package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/flightcrawl/core/auth"
)

// sessionTokenTTL is how long a signed session token stays valid: long
// enough to cover one crawl, short enough that a leaked token from a log
// line ages out quickly.
const sessionTokenTTL = 2 * time.Minute

// sessionClaims is the minimal claim set a site's search API checks: who
// (the adapter name) and until when.
type sessionClaims struct {
	jwt.RegisteredClaims
}

// signSessionToken issues an HS256-signed bearer token for site. It
// resolves the signing key through auth.KeyProvider rather than handling
// a raw secret string inline.
func signSessionToken(ctx context.Context, site string, keys auth.KeyProvider) (string, error) {
	key, err := keys.GetKey(ctx, site)
	if err != nil {
		return "", fmt.Errorf("adapter: resolve session signing key: %w", err)
	}
	secret, ok := key.([]byte)
	if !ok {
		return "", fmt.Errorf("adapter: session signing key for %q is not a byte secret", site)
	}

	now := time.Now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   site,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("adapter: sign session token: %w", err)
	}
	return signed, nil
}
