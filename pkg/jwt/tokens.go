package jwt

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Claims defines JWT payload.
type Claims struct {
	IdentityID string `json:"identity_id"`
	Guest      bool   `json:"guest,omitempty"`
	jwtlib.RegisteredClaims
}

// GenerateToken issues a signed session token bound to one identity.
func GenerateToken(identityID string, guest bool, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		IdentityID: identityID,
		Guest:      guest,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    "heybe",
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Parse validates and extracts claims from token.
func Parse(token string, secret string) (*Claims, error) {
	parsed, err := jwtlib.ParseWithClaims(token, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwtlib.ErrTokenInvalidClaims
	}
	return claims, nil
}
