package secretstore

import "testing"

func TestSealOpenRoundTrip(t *testing.T) {
	key, err := DeriveKey("correct horse battery staple")
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}

	secret, err := Seal("venue-a-api-key", "super-secret-value", key)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if secret.Ciphertext == "" || secret.Nonce != "" {
		t.Fatalf("Seal should set Ciphertext and leave Nonce empty: %+v", secret)
	}

	plaintext, err := Open(secret, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if plaintext != "super-secret-value" {
		t.Errorf("Open = %q, want %q", plaintext, "super-secret-value")
	}
}

func TestOpenWithWrongKeyFails(t *testing.T) {
	key1, _ := DeriveKey("passphrase-one")
	key2, _ := DeriveKey("passphrase-two")

	secret, err := Seal("label", "value", key1)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := Open(secret, key2); err == nil {
		t.Error("Open with wrong key should fail")
	}
}

func TestDeriveKeyIsDeterministic(t *testing.T) {
	k1, _ := DeriveKey("same-passphrase")
	k2, _ := DeriveKey("same-passphrase")
	if string(k1) != string(k2) {
		t.Error("DeriveKey should be deterministic for the same passphrase")
	}
}
