package api

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// credentialPrefix marks issued mining credentials so they are
// recognizable in agent configs without revealing anything.
const credentialPrefix = "kwd_live_"

// generateCredential creates a new mining server credential. The
// plaintext is returned exactly once at issuance; only its digest is
// ever stored.
func generateCredential() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}

	return credentialPrefix + hex.EncodeToString(b), nil
}

// hashCredential returns the hex SHA-256 digest of a credential. The
// digest is deterministic so it can back an indexed lookup.
func hashCredential(credential string) string {
	sum := sha256.Sum256([]byte(credential))

	return hex.EncodeToString(sum[:])
}

// extractCredential pulls the presented credential from the request.
// Both the Authorization Bearer scheme and the X-API-Key header are
// accepted; Bearer wins when both are present.
func extractCredential(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}

	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
