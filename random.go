package wsclient

import (
	"crypto/rand"
	"encoding/base64"
	"io"
)

// generateNonce returns a fresh 16-byte CSPRNG value, base64-encoded for
// use as Sec-WebSocket-Key (spec.md §4.3 step 4). Per spec.md §1 the
// CSPRNG is consumed as a free function with a fixed contract, so this
// stays on the standard library rather than a third-party RNG.
func generateNonce() (string, error) {
	var key [16]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key[:]), nil
}

// generateMaskingKey returns a fresh 4-byte CSPRNG masking key. Each
// outbound frame gets its own key (spec.md §4.4 step 3, §8 invariant 2,
// §9 "masking key randomness").
func generateMaskingKey() ([4]byte, error) {
	var key [4]byte
	_, err := io.ReadFull(rand.Reader, key[:])
	return key, err
}
