package crypto

import (
	"encoding/base64"
	"strings"
	"testing"
)

// TestEncryptDecrypt checks the basic encrypt/decrypt round trip.
func TestEncryptDecrypt(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	tests := []struct {
		name      string
		plaintext string
	}{
		{"empty string", ""},
		{"simple text", "Hello, World!"},
		{"api key example", "abc123def456ghi789"},
		{"unicode text", "Привет мир 你好世界"},
		{"special chars", "!@#$%^&*()_+-=[]{}|;':\",./<>?"},
		{"long text", strings.Repeat("a", 1000)},
		{"json data", `{"api_key": "secret", "api_secret": "very_secret"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encrypted, err := Encrypt(tt.plaintext, key)
			if err != nil {
				t.Fatalf("Encrypt failed: %v", err)
			}

			// Result must be valid base64.
			_, err = base64.StdEncoding.DecodeString(encrypted)
			if err != nil {
				t.Errorf("Encrypted result is not valid base64: %v", err)
			}

			// Ciphertext must differ from the plaintext.
			if encrypted == tt.plaintext && tt.plaintext != "" {
				t.Error("Encrypted text should not equal plaintext")
			}

			decrypted, err := Decrypt(encrypted, key)
			if err != nil {
				t.Fatalf("Decrypt failed: %v", err)
			}

			if decrypted != tt.plaintext {
				t.Errorf("Decrypted text mismatch: got %q, want %q", decrypted, tt.plaintext)
			}
		})
	}
}

// TestEncryptDifferentResults checks that each encryption produces a different ciphertext (distinct nonce).
func TestEncryptDifferentResults(t *testing.T) {
	key, _ := GenerateKey()
	plaintext := "same text"

	encrypted1, _ := Encrypt(plaintext, key)
	encrypted2, _ := Encrypt(plaintext, key)

	if encrypted1 == encrypted2 {
		t.Error("Two encryptions of the same text should produce different ciphertexts")
	}

	// Both must still decrypt correctly.
	decrypted1, _ := Decrypt(encrypted1, key)
	decrypted2, _ := Decrypt(encrypted2, key)

	if decrypted1 != plaintext || decrypted2 != plaintext {
		t.Error("Both ciphertexts should decrypt to the same plaintext")
	}
}

// TestEncryptInvalidKeyLength checks the error returned for a wrong key length.
func TestEncryptInvalidKeyLength(t *testing.T) {
	tests := []struct {
		name    string
		keyLen  int
		wantErr error
	}{
		{"too short - 16 bytes", 16, ErrInvalidKeyLength},
		{"too short - 31 bytes", 31, ErrInvalidKeyLength},
		{"too long - 33 bytes", 33, ErrInvalidKeyLength},
		{"too long - 64 bytes", 64, ErrInvalidKeyLength},
		{"empty key", 0, ErrInvalidKeyLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := make([]byte, tt.keyLen)
			_, err := Encrypt("test", key)
			if err != tt.wantErr {
				t.Errorf("Encrypt with %d byte key: got error %v, want %v", tt.keyLen, err, tt.wantErr)
			}
		})
	}
}

// TestDecryptInvalidKeyLength checks the decrypt-side error for a wrong key length.
func TestDecryptInvalidKeyLength(t *testing.T) {
	// Build a valid ciphertext first.
	validKey, _ := GenerateKey()
	encrypted, _ := Encrypt("test", validKey)

	tests := []struct {
		name    string
		keyLen  int
		wantErr error
	}{
		{"too short", 16, ErrInvalidKeyLength},
		{"too long", 64, ErrInvalidKeyLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := make([]byte, tt.keyLen)
			_, err := Decrypt(encrypted, key)
			if err != tt.wantErr {
				t.Errorf("Decrypt with %d byte key: got error %v, want %v", tt.keyLen, err, tt.wantErr)
			}
		})
	}
}

// TestDecryptWrongKey checks that decrypting with the wrong key returns an error.
func TestDecryptWrongKey(t *testing.T) {
	key1, _ := GenerateKey()
	key2, _ := GenerateKey()

	encrypted, _ := Encrypt("secret data", key1)

	_, err := Decrypt(encrypted, key2)
	if err != ErrDecryptionFailed {
		t.Errorf("Decrypt with wrong key: got error %v, want %v", err, ErrDecryptionFailed)
	}
}

// TestDecryptInvalidBase64 checks handling of malformed base64 input.
func TestDecryptInvalidBase64(t *testing.T) {
	key, _ := GenerateKey()

	tests := []struct {
		name       string
		ciphertext string
		wantErr    error
	}{
		{"not base64", "not-valid-base64!!!", ErrInvalidCiphertext},
		{"truncated base64", "YWJj", ErrCiphertextTooShort}, // too short once decoded
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decrypt(tt.ciphertext, key)
			if err != tt.wantErr {
				t.Errorf("Decrypt(%q): got error %v, want %v", tt.ciphertext, err, tt.wantErr)
			}
		})
	}
}

// TestDecryptTamperedCiphertext checks that a tampered ciphertext is rejected.
func TestDecryptTamperedCiphertext(t *testing.T) {
	key, _ := GenerateKey()
	encrypted, _ := Encrypt("original data", key)

	// Decode, flip a byte, re-encode.
	decoded, _ := base64.StdEncoding.DecodeString(encrypted)
	if len(decoded) > 20 {
		decoded[20] ^= 0xFF // flip the byte
	}
	tampered := base64.StdEncoding.EncodeToString(decoded)

	_, err := Decrypt(tampered, key)
	if err != ErrDecryptionFailed {
		t.Errorf("Decrypt tampered ciphertext: got error %v, want %v", err, ErrDecryptionFailed)
	}
}

// TestGenerateKey checks key generation.
func TestGenerateKey(t *testing.T) {
	key1, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	if len(key1) != 32 {
		t.Errorf("GenerateKey: got %d bytes, want 32", len(key1))
	}

	// A second generated key must differ.
	key2, _ := GenerateKey()
	if string(key1) == string(key2) {
		t.Error("Two generated keys should be different")
	}
}

// TestGenerateKeyString checks generating a key encoded as a string.
func TestGenerateKeyString(t *testing.T) {
	keyStr, err := GenerateKeyString()
	if err != nil {
		t.Fatalf("GenerateKeyString failed: %v", err)
	}

	if len(keyStr) != 32 {
		t.Errorf("GenerateKeyString: got %d bytes, want 32", len(keyStr))
	}
}

// TestValidateKey checks key length validation.
func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		keyLen  int
		wantErr error
	}{
		{"valid 32 bytes", 32, nil},
		{"too short", 16, ErrInvalidKeyLength},
		{"too long", 64, ErrInvalidKeyLength},
		{"empty", 0, ErrInvalidKeyLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := make([]byte, tt.keyLen)
			err := ValidateKey(key)
			if err != tt.wantErr {
				t.Errorf("ValidateKey(%d bytes): got error %v, want %v", tt.keyLen, err, tt.wantErr)
			}
		})
	}
}

// TestEncryptWithKeyString checks encryption with a string-encoded key.
func TestEncryptWithKeyString(t *testing.T) {
	keyString := "12345678901234567890123456789012" // 32 bytes

	encrypted, err := EncryptWithKeyString("test data", keyString)
	if err != nil {
		t.Fatalf("EncryptWithKeyString failed: %v", err)
	}

	decrypted, err := DecryptWithKeyString(encrypted, keyString)
	if err != nil {
		t.Fatalf("DecryptWithKeyString failed: %v", err)
	}

	if decrypted != "test data" {
		t.Errorf("Got %q, want %q", decrypted, "test data")
	}
}

// TestEncryptWithKeyStringInvalidLength checks the error for a wrong-length string key.
func TestEncryptWithKeyStringInvalidLength(t *testing.T) {
	shortKey := "short"
	_, err := EncryptWithKeyString("test", shortKey)
	if err != ErrInvalidKeyLength {
		t.Errorf("EncryptWithKeyString with short key: got error %v, want %v", err, ErrInvalidKeyLength)
	}
}

// BenchmarkEncrypt measures encryption throughput.
func BenchmarkEncrypt(b *testing.B) {
	key, _ := GenerateKey()
	plaintext := "This is a typical API key: abc123def456"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Encrypt(plaintext, key)
	}
}

// BenchmarkDecrypt measures decryption throughput.
func BenchmarkDecrypt(b *testing.B) {
	key, _ := GenerateKey()
	encrypted, _ := Encrypt("This is a typical API key: abc123def456", key)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Decrypt(encrypted, key)
	}
}

// BenchmarkEncryptDecryptCycle measures a full encrypt/decrypt cycle.
func BenchmarkEncryptDecryptCycle(b *testing.B) {
	key, _ := GenerateKey()
	plaintext := "This is a typical API key: abc123def456"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		encrypted, _ := Encrypt(plaintext, key)
		_, _ = Decrypt(encrypted, key)
	}
}
