package remote

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiresWithin reports whether the session token's exp claim falls
// inside the given window. The claim is read without signature verification,
// since the client holds no signing key and the server remains the authority,
// only to decide when to re-authenticate before a request would bounce with
// 401.
// Malformed or claimless tokens count as expiring.
func TokenExpiresWithin(token string, window time.Duration) bool {
	if token == "" {
		return true
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return time.Until(exp.Time) < window
}
