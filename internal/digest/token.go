package digest

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// ackTokenBytes is the entropy of an acknowledgment token. 32 random bytes,
// hex-encoded to 64 characters. The token is the only credential protecting
// the public acknowledgment link, so it must be unguessable.
const ackTokenBytes = 32

// NewAckToken generates a fresh acknowledgment token. Called exactly once
// per digest, at creation; tokens are never rotated.
func NewAckToken() (string, error) {
	buf := make([]byte, ackTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("crypto/rand read failed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// TokensEqual compares a presented token against the stored token in
// constant time. The acknowledgment link is public-facing, so a comparison
// that short-circuits on the first mismatched byte would leak prefix
// information through response timing.
func TokensEqual(presented, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) == 1
}
