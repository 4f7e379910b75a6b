// Package auth provides bearer-token issuance and verification for arena
// agents. Tokens are opaque random strings handed out once at enrollment;
// only their SHA3-256 digest is stored.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/sha3"
)

// TokenBytes is the entropy of an issued token.
const TokenBytes = 32

// NewToken generates a fresh agent token and returns it alongside its digest.
// The plaintext token is shown to the caller exactly once.
func NewToken() (token, digest string, err error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	token = hex.EncodeToString(buf)
	return token, HashToken(token), nil
}

// HashToken returns the lowercase hex SHA3-256 digest of a token.
func HashToken(token string) string {
	sum := sha3.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// BearerToken extracts the bearer token from an Authorization header.
// Returns an error when the header is missing or malformed.
func BearerToken(req *http.Request) (string, error) {
	h := req.Header.Get("Authorization")
	if h == "" {
		return "", fmt.Errorf("missing Authorization header")
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", fmt.Errorf("malformed Authorization header")
	}
	return strings.TrimSpace(token), nil
}
