package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrVerifyFailed is returned when a signature does not match its content.
var ErrVerifyFailed = errors.New("crypto: signature verification failed")

// Signer produces and verifies detached signatures over content hashes.
// Audit signing uses the RSA-PSS path; ECDSA is kept as an alternate key
// type for deployments that require it.
type Signer struct {
	keyring *Keyring
}

// NewSigner wraps a keyring.
func NewSigner(k *Keyring) *Signer {
	return &Signer{keyring: k}
}

// SignHash signs a hex-encoded SHA-256 content hash and returns the
// signature base64-encoded. Signing the hash (not the raw content) means an
// unchanged record keeps its content hash, so callers can detect an already
// signed record and skip re-signing.
func (s *Signer) SignHash(contentHash string) (string, error) {
	digest, err := hex.DecodeString(contentHash)
	if err != nil || len(digest) != sha256.Size {
		return "", fmt.Errorf("crypto: content hash must be hex SHA-256: %w", err)
	}

	switch s.keyring.Type {
	case KeyTypeRSA:
		sig, err := rsa.SignPSS(rand.Reader, s.keyring.rsaKey, crypto.SHA256, digest, &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthEqualsHash,
			Hash:       crypto.SHA256,
		})
		if err != nil {
			return "", fmt.Errorf("crypto: rsa-pss sign: %w", err)
		}
		return base64.StdEncoding.EncodeToString(sig), nil
	case KeyTypeECDSA:
		sig, err := ecdsa.SignASN1(rand.Reader, s.keyring.ecdsaKey, digest)
		if err != nil {
			return "", fmt.Errorf("crypto: ecdsa sign: %w", err)
		}
		return base64.StdEncoding.EncodeToString(sig), nil
	default:
		return "", fmt.Errorf("crypto: unsupported key type %q", s.keyring.Type)
	}
}

// VerifyHash checks a base64 signature against a hex content hash.
func (s *Signer) VerifyHash(contentHash, signature string) error {
	digest, err := hex.DecodeString(contentHash)
	if err != nil || len(digest) != sha256.Size {
		return fmt.Errorf("crypto: content hash must be hex SHA-256: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("crypto: signature is not base64: %w", err)
	}

	switch s.keyring.Type {
	case KeyTypeRSA:
		err := rsa.VerifyPSS(&s.keyring.rsaKey.PublicKey, crypto.SHA256, digest, sig, &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthEqualsHash,
			Hash:       crypto.SHA256,
		})
		if err != nil {
			return ErrVerifyFailed
		}
		return nil
	case KeyTypeECDSA:
		if !ecdsa.VerifyASN1(&s.keyring.ecdsaKey.PublicKey, digest, sig) {
			return ErrVerifyFailed
		}
		return nil
	default:
		return fmt.Errorf("crypto: unsupported key type %q", s.keyring.Type)
	}
}

// SignCanonical canonicalizes v (RFC 8785), hashes it, and signs the hash.
func (s *Signer) SignCanonical(v any) (signature, contentHash string, err error) {
	contentHash, err = CanonicalHash(v)
	if err != nil {
		return "", "", err
	}
	signature, err = s.SignHash(contentHash)
	return signature, contentHash, err
}
