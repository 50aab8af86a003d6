package archive

import (
	"bytes"
	"testing"
)

func TestDeriveKeyDeterminism(t *testing.T) {
	salt := []byte("1234567890abcdef")

	key1 := deriveKey("mypassphrase", salt)
	key2 := deriveKey("mypassphrase", salt)

	if !bytes.Equal(key1, key2) {
		t.Error("same passphrase+salt should produce same key")
	}
	if len(key1) != keySize {
		t.Errorf("key length = %d, want %d", len(key1), keySize)
	}
	if bytes.Equal(key1, deriveKey("other", salt)) {
		t.Error("different passphrases should produce different keys")
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	original := []byte(`{"version":1,"tenant_id":7}`)

	sealed, err := seal(original, "test-passphrase-123")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(sealed, original) {
		t.Error("sealed output should not contain the plaintext")
	}
	if len(sealed) <= saltSize+nonceSize {
		t.Fatalf("sealed length = %d, too small", len(sealed))
	}

	opened, err := open(sealed, "test-passphrase-123")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(opened, original) {
		t.Errorf("opened = %q, want %q", opened, original)
	}
}

func TestSealUsesFreshSalt(t *testing.T) {
	a, err := seal([]byte("same"), "pass")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	b, err := seal([]byte("same"), "pass")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Equal(a[:saltSize], b[:saltSize]) {
		t.Error("two seals should not share a salt")
	}
}

func TestOpenWrongPassphrase(t *testing.T) {
	sealed, err := seal([]byte("secret data"), "correct")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := open(sealed, "wrong"); err == nil {
		t.Error("expected error with wrong passphrase")
	}
}

func TestOpenTooSmall(t *testing.T) {
	if _, err := open([]byte("short"), "pass"); err != errSealedTooSmall {
		t.Errorf("err = %v, want errSealedTooSmall", err)
	}
}
