// Package token issues and compares per-run session secrets. A secret is
// generated once per server process, handed to the operator inside the
// bootstrap URL, and echoed back as a cookie on every privileged request.
// Restarting the server invalidates all previously issued secrets.
package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// SecretBytes is the entropy of a session secret before encoding.
const SecretBytes = 32

// SecretLen is the length of the hex-encoded secret.
const SecretLen = SecretBytes * 2

// New returns a fresh 256-bit session secret encoded as lowercase hex.
// Hex is safe in both a URL query string and a cookie value without
// escaping.
func New() (string, error) {
	buf := make([]byte, SecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("token: read entropy: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Equal compares a presented secret against the in-memory secret without
// leaking timing information about the match prefix.
func Equal(presented, secret string) bool {
	if presented == "" || secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) == 1
}
