package utils // package utils provides helpers for identifiers, codes and signed cookies

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for signing flash cookies
)

// Flash is a one-shot message shown to the user after a redirect.  Category
// is one of "success", "warning" or "danger" and maps onto a CSS class.
type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// flashClaims carries pending flash messages inside an HS256 JWT.  Signing
// keeps clients from forging messages into the page.
type flashClaims struct {
	Flashes []Flash `json:"flashes"`
	jwt.RegisteredClaims
}

var ErrInvalidFlash = errors.New("invalid flash cookie")

// SignFlashes serialises flashes into a signed token that expires after ttl.
func SignFlashes(secret string, flashes []Flash, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := flashClaims{
		Flashes: flashes,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}

// ParseFlashes validates a token produced by SignFlashes and returns its
// messages.  Tokens signed with another key or algorithm, or expired ones,
// yield ErrInvalidFlash.
func ParseFlashes(secret, raw string) ([]Flash, error) {
	var claims flashClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidFlash
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalidFlash
	}
	return claims.Flashes, nil
}
