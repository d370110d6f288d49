package crypto

import (
	"strings"
	"testing"
)

const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	c, err := NewCipher(testKey)
	if err != nil {
		t.Fatalf("NewCipher() error: %v", err)
	}

	plaintext := "sk-proj-abc123"
	stored, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if !strings.HasPrefix(stored, "enc:") {
		t.Errorf("expected enc: prefix, got %q", stored)
	}
	if strings.Contains(stored, plaintext) {
		t.Error("ciphertext contains plaintext")
	}

	got, err := c.Decrypt(stored)
	if err != nil {
		t.Fatalf("Decrypt() error: %v", err)
	}
	if got != plaintext {
		t.Errorf("round trip mismatch: got %q, want %q", got, plaintext)
	}
}

func TestEncrypt_NonceUniqueness(t *testing.T) {
	c, err := NewCipher(testKey)
	if err != nil {
		t.Fatalf("NewCipher() error: %v", err)
	}

	first, _ := c.Encrypt("same input")
	second, _ := c.Encrypt("same input")
	if first == second {
		t.Error("expected distinct ciphertexts for repeated encryption")
	}
}

func TestNilCipher_PassThrough(t *testing.T) {
	var c *Cipher

	stored, err := c.Encrypt("plain value")
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if stored != "plain value" {
		t.Errorf("expected pass-through, got %q", stored)
	}

	got, err := c.Decrypt(stored)
	if err != nil {
		t.Fatalf("Decrypt() error: %v", err)
	}
	if got != "plain value" {
		t.Errorf("expected pass-through, got %q", got)
	}
}

func TestDecrypt_UnprefixedValuePassesThrough(t *testing.T) {
	c, err := NewCipher(testKey)
	if err != nil {
		t.Fatalf("NewCipher() error: %v", err)
	}

	// A value stored before encryption was enabled.
	got, err := c.Decrypt("legacy-plaintext-key")
	if err != nil {
		t.Fatalf("Decrypt() error: %v", err)
	}
	if got != "legacy-plaintext-key" {
		t.Errorf("expected pass-through, got %q", got)
	}
}

func TestDecrypt_EncryptedValueWithoutCipher(t *testing.T) {
	var c *Cipher
	if _, err := c.Decrypt("enc:abcdef"); err == nil {
		t.Error("expected error decrypting without a cipher")
	}
}

func TestNewCipher_InvalidKeys(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"not hex", "zzzz"},
		{"too short", "0123456789abcdef"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCipher(tt.key); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewCipher_EmptyKeyDisables(t *testing.T) {
	c, err := NewCipher("")
	if err != nil {
		t.Fatalf("NewCipher(\"\") error: %v", err)
	}
	if c != nil {
		t.Error("expected nil cipher for empty key")
	}
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	c, err := NewCipher(testKey)
	if err != nil {
		t.Fatalf("NewCipher() error: %v", err)
	}

	stored, _ := c.Encrypt("secret")
	tampered := stored[:len(stored)-2] + "AA"
	if _, err := c.Decrypt(tampered); err == nil {
		t.Error("expected error for tampered ciphertext")
	}
}
