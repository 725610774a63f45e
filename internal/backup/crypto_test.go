package backup

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	salt, err := NewSalt()
	if err != nil {
		t.Fatalf("new salt: %v", err)
	}

	plaintext := []byte("sqlite snapshot bytes")
	sealed, err := Seal(plaintext, "correct horse", salt)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Error("ciphertext contains plaintext")
	}

	opened, err := Open(sealed, "correct horse")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("round trip mismatch: %q", opened)
	}
}

func TestOpenWrongPassphrase(t *testing.T) {
	salt, _ := NewSalt()
	sealed, err := Seal([]byte("secret"), "right", salt)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := Open(sealed, "wrong"); err == nil {
		t.Error("expected error for wrong passphrase")
	}
}

func TestOpenTruncated(t *testing.T) {
	if _, err := Open([]byte("short"), "pass"); err == nil {
		t.Error("expected error for truncated input")
	}
}

func TestEncryptDecryptFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "plain.db")
	enc := filepath.Join(dir, "plain.db.enc")
	dec := filepath.Join(dir, "restored.db")

	content := []byte("database contents")
	if err := os.WriteFile(src, content, 0600); err != nil {
		t.Fatalf("write source: %v", err)
	}

	if err := EncryptFile(src, enc, "passphrase"); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if err := DecryptFile(enc, dec, "passphrase"); err != nil {
		t.Fatalf("decrypt: %v", err)
	}

	restored, err := os.ReadFile(dec)
	if err != nil {
		t.Fatalf("read restored: %v", err)
	}
	if !bytes.Equal(restored, content) {
		t.Errorf("restored = %q, want %q", restored, content)
	}
}

func TestNewSaltUnique(t *testing.T) {
	a, _ := NewSalt()
	b, _ := NewSalt()
	if bytes.Equal(a, b) {
		t.Error("two salts should differ")
	}
}
