package snapshot

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Encryption errors.
var (
	ErrPassphraseTooWeak = errors.New("snapshot: passphrase too weak (minimum 8 characters)")
	ErrDecryptionFailed  = errors.New("snapshot: decryption failed - wrong passphrase or corrupted data")
)

const (
	// MinPassphraseLength is the minimum passphrase length.
	MinPassphraseLength = 8

	// SaltLength is the salt length for both the root and per-file salts.
	SaltLength = 16

	// SaltFileName holds the root salt next to the identity directories.
	// It starts with a dot so identity listings skip it.
	SaltFileName = ".gridbackup-salt"

	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32

	subkeyInfo = "gridbackup snapshot v1"
)

// Cipher seals snapshot data blocks.
type Cipher struct {
	master []byte
}

// NewCipher derives the master key from passphrase and salt with Argon2id.
func NewCipher(passphrase, salt []byte) (*Cipher, error) {
	if len(passphrase) < MinPassphraseLength {
		return nil, ErrPassphraseTooWeak
	}
	if len(salt) != SaltLength {
		return nil, fmt.Errorf("snapshot: salt must be %d bytes, got %d", SaltLength, len(salt))
	}
	key := argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return &Cipher{master: key}, nil
}

// LoadOrCreateSalt reads the root salt file, creating it on first use.
func LoadOrCreateSalt(root string) ([]byte, error) {
	path := filepath.Join(root, SaltFileName)
	salt, err := os.ReadFile(path)
	if err == nil {
		if len(salt) != SaltLength {
			return nil, fmt.Errorf("snapshot: salt file %s has %d bytes, want %d", path, len(salt), SaltLength)
		}
		return salt, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("snapshot: read salt: %w", err)
	}

	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("snapshot: create root: %w", err)
	}
	salt, err = randomBytes(SaltLength)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			// lost a creation race; use the winner's salt
			return LoadOrCreateSalt(root)
		}
		return nil, fmt.Errorf("snapshot: create salt: %w", err)
	}
	if _, err := f.Write(salt); err != nil {
		f.Close()
		return nil, fmt.Errorf("snapshot: write salt: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("snapshot: sync salt: %w", err)
	}
	return salt, f.Close()
}

// Seal encrypts plain with a fresh per-file salt. The nonce is prepended
// to the returned ciphertext.
func (c *Cipher) Seal(plain []byte) (sealed, fileSalt []byte, err error) {
	fileSalt, err = randomBytes(SaltLength)
	if err != nil {
		return nil, nil, err
	}
	aead, err := c.aead(fileSalt)
	if err != nil {
		return nil, nil, err
	}
	nonce, err := randomBytes(aead.NonceSize())
	if err != nil {
		return nil, nil, err
	}
	return aead.Seal(nonce, nonce, plain, nil), fileSalt, nil
}

// Open reverses Seal.
func (c *Cipher) Open(sealed, fileSalt []byte) ([]byte, error) {
	aead, err := c.aead(fileSalt)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrDecryptionFailed
	}
	nonce, body := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plain, nil
}

func (c *Cipher) aead(fileSalt []byte) (cipher.AEAD, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, c.master, fileSalt, []byte(subkeyInfo)), key); err != nil {
		return nil, fmt.Errorf("snapshot: derive subkey: %w", err)
	}
	return chacha20poly1305.NewX(key)
}

// Zero wipes the master key.
func (c *Cipher) Zero() {
	for i := range c.master {
		c.master[i] = 0
	}
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("snapshot: random: %w", err)
	}
	return b, nil
}
