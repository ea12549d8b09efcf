package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// codeSpace is the exclusive upper bound of verification codes (6 digits).
var codeSpace = big.NewInt(1_000_000)

// NewReferenceID returns a short public complaint identifier of the form
// REF-XXXXXXXX where X is an upper-case hex digit.  The digits come from a
// random (crypto sourced) v4 UUID.
func NewReferenceID() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "REF-" + strings.ToUpper(hex[:8])
}

// NewVerificationCode returns a zero-padded 6-digit code drawn uniformly
// from [0, 1000000) using crypto/rand.
func NewVerificationCode() string {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		// crypto/rand does not fail on supported platforms
		panic(fmt.Sprintf("utils: read random code: %v", err))
	}
	return fmt.Sprintf("%06d", n.Int64())
}

// SecureGenerator produces reference ids and verification codes from
// cryptographically secure sources.  It satisfies repository.Generator.
type SecureGenerator struct{}

func (SecureGenerator) ReferenceID() string { return NewReferenceID() }

func (SecureGenerator) Code() string { return NewVerificationCode() }
