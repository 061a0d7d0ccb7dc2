// Package secretstore encrypts and decrypts venue API credentials at rest.
// Plaintext secrets exist only in process memory after Open; they are never
// logged or re-serialized.
package secretstore

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"hedgearb/internal/models"
	"hedgearb/pkg/crypto"
)

// DeriveKey stretches an operator-supplied passphrase (e.g. from
// ENCRYPTION_PASSPHRASE) into a 32-byte AES-256 key via HKDF-SHA256, with
// no salt and a fixed application-specific info string so the same passphrase never
// collides with a key derived for an unrelated purpose.
func DeriveKey(passphrase string) ([]byte, error) {
	reader := hkdf.New(sha256.New, []byte(passphrase), nil, []byte("hedgearb-secretstore-v1"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Seal encrypts plaintext with AES-256-GCM under key, producing a Secret
// ready to persist in configuration. The nonce is carried inside the
// ciphertext blob (crypto.Encrypt's convention); Secret.Nonce is kept empty
// for forward compatibility with a detached-nonce format.
func Seal(label, plaintext string, key []byte) (models.Secret, error) {
	ciphertext, err := crypto.Encrypt(plaintext, key)
	if err != nil {
		return models.Secret{}, err
	}
	return models.Secret{Label: label, Ciphertext: ciphertext}, nil
}

// Open decrypts a Secret back to its plaintext credential.
func Open(s models.Secret, key []byte) (string, error) {
	return crypto.Decrypt(s.Ciphertext, key)
}
