package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Key material on disk is always owner-only.
const keyFileMode = 0o600

// ErrKeyNotFound is returned when a PEM file is absent.
var ErrKeyNotFound = errors.New("crypto: key not found")

// KeyType selects the signature algorithm family for a keyring.
type KeyType string

const (
	KeyTypeRSA   KeyType = "rsa"   // RSA-2048, used for audit signing (RSA-PSS)
	KeyTypeECDSA KeyType = "ecdsa" // P-256, optional alternate
)

// Keyring holds one signing keypair. Exactly one of the private keys is
// non-nil, matching Type.
type Keyring struct {
	Type     KeyType
	rsaKey   *rsa.PrivateKey
	ecdsaKey *ecdsa.PrivateKey
}

// GenerateKeyring creates a fresh keypair of the requested type.
func GenerateKeyring(t KeyType) (*Keyring, error) {
	switch t {
	case KeyTypeRSA:
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("crypto: rsa keygen: %w", err)
		}
		return &Keyring{Type: KeyTypeRSA, rsaKey: key}, nil
	case KeyTypeECDSA:
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("crypto: ecdsa keygen: %w", err)
		}
		return &Keyring{Type: KeyTypeECDSA, ecdsaKey: key}, nil
	default:
		return nil, fmt.Errorf("crypto: unknown key type %q", t)
	}
}

// Save writes private.pem and public.pem under dir with 0600 permissions,
// creating dir (0700) if needed.
func (k *Keyring) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("crypto: create key dir: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(k.private())
	if err != nil {
		return fmt.Errorf("crypto: marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(k.Public())
	if err != nil {
		return fmt.Errorf("crypto: marshal public key: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	if err := os.WriteFile(filepath.Join(dir, "private.pem"), privPEM, keyFileMode); err != nil {
		return fmt.Errorf("crypto: write private.pem: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "public.pem"), pubPEM, keyFileMode); err != nil {
		return fmt.Errorf("crypto: write public.pem: %w", err)
	}
	return nil
}

// LoadKeyring reads private.pem from dir and reconstructs the keyring.
func LoadKeyring(dir string) (*Keyring, error) {
	data, err := os.ReadFile(filepath.Join(dir, "private.pem"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("crypto: read private.pem: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("crypto: private.pem is not PEM encoded")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("crypto: parse private key: %w", err)
	}

	switch k := key.(type) {
	case *rsa.PrivateKey:
		return &Keyring{Type: KeyTypeRSA, rsaKey: k}, nil
	case *ecdsa.PrivateKey:
		return &Keyring{Type: KeyTypeECDSA, ecdsaKey: k}, nil
	default:
		return nil, fmt.Errorf("crypto: unsupported private key type %T", key)
	}
}

// LoadOrGenerateKeyring loads the keyring under dir, generating and saving a
// new one of the given type when none exists yet.
func LoadOrGenerateKeyring(dir string, t KeyType) (*Keyring, error) {
	k, err := LoadKeyring(dir)
	if err == nil {
		return k, nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return nil, err
	}
	k, err = GenerateKeyring(t)
	if err != nil {
		return nil, err
	}
	if err := k.Save(dir); err != nil {
		return nil, err
	}
	return k, nil
}

// Public returns the public half of the keypair.
func (k *Keyring) Public() any {
	switch k.Type {
	case KeyTypeRSA:
		return &k.rsaKey.PublicKey
	case KeyTypeECDSA:
		return &k.ecdsaKey.PublicKey
	}
	return nil
}

func (k *Keyring) private() any {
	switch k.Type {
	case KeyTypeRSA:
		return k.rsaKey
	case KeyTypeECDSA:
		return k.ecdsaKey
	}
	return nil
}
