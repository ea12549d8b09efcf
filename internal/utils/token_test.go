package utils

import (
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	refPattern  = regexp.MustCompile(`^REF-[0-9A-F]{8}$`)
	codePattern = regexp.MustCompile(`^[0-9]{6}$`)
)

func TestNewReferenceID_Format(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewReferenceID()
		require.Regexp(t, refPattern, id)
		seen[id] = struct{}{}
	}
	// 32 bits of randomness; 1000 draws colliding would point at a broken source
	assert.Greater(t, len(seen), 990)
}

func TestNewVerificationCode_FixedWidthAndRange(t *testing.T) {
	for i := 0; i < 2000; i++ {
		code := NewVerificationCode()
		require.Regexp(t, codePattern, code)
		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 0)
		assert.Less(t, n, 1_000_000)
	}
}

func TestSecureGenerator(t *testing.T) {
	var g SecureGenerator
	assert.Regexp(t, refPattern, g.ReferenceID())
	assert.Regexp(t, codePattern, g.Code())
}
