// Package crypto provides the hashing, key management, and signing
// primitives behind the audit trail: SHA-256 content addressing, RSA and
// ECDSA keyrings persisted as owner-only PEM files, and RSA-PSS signatures
// over RFC 8785 canonical JSON.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// HashBytes returns the hex SHA-256 digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashReader streams r through SHA-256 and returns the hex digest.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("crypto: hash stream: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile returns the hex SHA-256 digest of the file at path, read as a
// stream so large documents never load fully into memory.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("crypto: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return HashReader(f)
}

// CanonicalHash returns the SHA-256 hex digest of the RFC 8785 canonical
// JSON representation of v.
func CanonicalHash(v any) (string, error) {
	b, err := CanonicalMarshal(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}
