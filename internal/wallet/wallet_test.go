package wallet

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestGenerateDistinctKeypairs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		kp, err := Generate()
		if err != nil {
			t.Fatalf("generate failed: %v", err)
		}
		if kp.PublicKey == "" || len(kp.Secret) == 0 {
			t.Fatal("generated keypair has empty fields")
		}
		if seen[kp.PublicKey] {
			t.Fatalf("duplicate public key generated: %s", kp.PublicKey)
		}
		seen[kp.PublicKey] = true
	}
}

func TestGenerateSecretEncoding(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(string(kp.Secret))
	if err != nil {
		t.Fatalf("secret is not valid base64: %v", err)
	}
	if len(raw) != 64 {
		t.Fatalf("decoded secret length = %d, want 64", len(raw))
	}
}

func TestSealOpenRoundtrip(t *testing.T) {
	enc, err := NewEncryptor("process-secret")
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}
	secret := []byte("private-key-material")

	sealed, err := enc.Seal(secret)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if strings.Contains(sealed, string(secret)) {
		t.Fatal("ciphertext contains the plaintext secret")
	}

	opened, err := enc.Open(sealed)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if !bytes.Equal(opened, secret) {
		t.Fatalf("opened secret mismatch: %q", opened)
	}
}

func TestOpenTamperedFails(t *testing.T) {
	enc, err := NewEncryptor("process-secret")
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}
	sealed, err := enc.Seal([]byte("private-key-material"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		t.Fatalf("decode sealed: %v", err)
	}
	raw[len(raw)-2] ^= 0xFF
	tampered := base64.StdEncoding.EncodeToString(raw)

	if _, err := enc.Open(tampered); !errors.Is(err, ErrAuthFailed) && !errors.Is(err, ErrInvalidCiphertext) {
		t.Fatalf("expected authentication failure, got %v", err)
	}
}

func TestOpenWrongPassphraseFails(t *testing.T) {
	enc, _ := NewEncryptor("right-secret")
	sealed, err := enc.Seal([]byte("private-key-material"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	other, _ := NewEncryptor("wrong-secret")
	if _, err := other.Open(sealed); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestNewEncryptorRequiresKey(t *testing.T) {
	if _, err := NewEncryptor(""); err == nil {
		t.Fatal("expected error for empty passphrase")
	}
}

func TestZeroWipesSecret(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	kp.Zero()
	for _, b := range kp.Secret {
		if b != 0 {
			t.Fatal("secret not wiped")
		}
	}
}
