package crypto

import (
	"crypto/rand"
	"encoding/hex"
)

// SecureBytes returns n cryptographically random bytes. It panics only if
// the platform CSPRNG is broken, which is not a recoverable condition.
func SecureBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("crypto: csprng unavailable: " + err.Error())
	}
	return b
}

// SecureID returns a cryptographically random 128-bit hex identifier.
func SecureID() string {
	return hex.EncodeToString(SecureBytes(16))
}
