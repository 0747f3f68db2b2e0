// Package secureio provides scoped handling of sensitive bytes on disk and
// in memory: temp files and directories that are overwritten with random
// data before removal, optional authenticated encryption at rest, and a
// registry that zeroes sensitive buffers on cleanup.
package secureio

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"

	gcrypto "github.com/gopnik-forensics/gopnik/pkg/crypto"
)

const (
	tempFileMode = 0o600
	tempDirMode  = 0o700

	nonceSize = 24
	keySize   = 32
)

// ErrClosed is returned by operations on an already-closed scope.
var ErrClosed = errors.New("secureio: scope closed")

// TempFile is a temp file with owner-only permissions whose contents are
// overwritten with random bytes and removed on Close, on every exit path.
// With encryption enabled, each Write is sealed with a per-file secretbox
// key that never leaves memory.
type TempFile struct {
	mu        sync.Mutex
	f         *os.File
	path      string
	closed    bool
	encrypted bool
	key       [keySize]byte
}

// NewTempFile creates a secure temp file in dir (or the system temp dir when
// dir is empty). Pattern follows os.CreateTemp conventions.
func NewTempFile(dir, pattern string, encrypted bool) (*TempFile, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("secureio: create temp file: %w", err)
	}
	if err := f.Chmod(tempFileMode); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("secureio: chmod temp file: %w", err)
	}

	t := &TempFile{f: f, path: f.Name(), encrypted: encrypted}
	if encrypted {
		copy(t.key[:], gcrypto.SecureBytes(keySize))
	}
	return t, nil
}

// Path returns the location of the file on disk.
func (t *TempFile) Path() string { return t.path }

// Write appends data, sealing it first when encryption is enabled.
func (t *TempFile) Write(data []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrClosed
	}

	if !t.encrypted {
		return t.f.Write(data)
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return 0, fmt.Errorf("secureio: nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], data, &nonce, &t.key)
	if _, err := t.f.Write(sealed); err != nil {
		return 0, err
	}
	return len(data), nil
}

// ReadAll returns the full plaintext contents. For encrypted files the
// whole file must have been written as a single sealed record.
func (t *TempFile) ReadAll() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}

	data, err := os.ReadFile(t.path)
	if err != nil {
		return nil, fmt.Errorf("secureio: read temp file: %w", err)
	}
	if !t.encrypted {
		return data, nil
	}

	if len(data) < nonceSize {
		return nil, errors.New("secureio: sealed record truncated")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], data[:nonceSize])
	plain, ok := secretbox.Open(nil, data[nonceSize:], &nonce, &t.key)
	if !ok {
		return nil, errors.New("secureio: sealed record authentication failed")
	}
	return plain, nil
}

// Close shreds and removes the file. Safe to call more than once.
func (t *TempFile) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	err := shredAndRemove(t.f, t.path)
	ZeroBytes(t.key[:])
	return err
}

// shredAndRemove overwrites the file with random bytes, syncs, closes, and
// unlinks it. Overwrite failures do not stop the removal.
func shredAndRemove(f *os.File, path string) error {
	var firstErr error

	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		if _, err := f.Seek(0, 0); err == nil {
			junk := gcrypto.SecureBytes(int(info.Size()))
			if _, err := f.Write(junk); err != nil && firstErr == nil {
				firstErr = err
			}
			_ = f.Sync()
			ZeroBytes(junk)
		}
	}
	if err := f.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := os.Remove(path); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// TempDir is a 0700 scratch directory whose files are shredded recursively
// on Close.
type TempDir struct {
	mu     sync.Mutex
	path   string
	closed bool
}

// NewTempDir creates a secure scratch directory under parent (or the system
// temp dir when parent is empty).
func NewTempDir(parent, pattern string) (*TempDir, error) {
	path, err := os.MkdirTemp(parent, pattern)
	if err != nil {
		return nil, fmt.Errorf("secureio: create temp dir: %w", err)
	}
	if err := os.Chmod(path, tempDirMode); err != nil {
		_ = os.RemoveAll(path)
		return nil, fmt.Errorf("secureio: chmod temp dir: %w", err)
	}
	return &TempDir{path: path}, nil
}

// Path returns the directory location.
func (d *TempDir) Path() string { return d.path }

// Close shreds every regular file under the directory and removes the tree.
func (d *TempDir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	var firstErr error
	_ = filepath.Walk(d.path, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		f, openErr := os.OpenFile(path, os.O_WRONLY, 0)
		if openErr != nil {
			return nil
		}
		if shredErr := shredAndRemove(f, path); shredErr != nil && firstErr == nil {
			firstErr = shredErr
		}
		return nil
	})
	if err := os.RemoveAll(d.path); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
