package encryption

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"rmt-go/internal/config"
)

func newTestAgeEncryptor(t *testing.T) *AgeEncryptor {
	t.Helper()
	dir := t.TempDir()
	return NewAgeEncryptor(config.EncryptionConfig{
		PublicKeyPath:  filepath.Join(dir, "rmt.pub"),
		PrivateKeyPath: filepath.Join(dir, "rmt.key"),
	})
}

func TestAgeEncryptor_Setup(t *testing.T) {
	t.Parallel()
	enc := newTestAgeEncryptor(t)

	if enc.IsConfigured() {
		t.Error("encryptor should not be configured before setup")
	}
	if err := enc.Setup("test-passphrase"); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if !enc.IsConfigured() {
		t.Error("encryptor should be configured after setup")
	}
}

func TestAgeEncryptor_RoundTrip(t *testing.T) {
	t.Parallel()
	enc := newTestAgeEncryptor(t)
	if err := enc.Setup("test-passphrase"); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	plaintext := "id,collection,createdAt\ns1,Students,2025-01-01T00:00:00Z\n"

	var sealed bytes.Buffer
	if err := enc.Encrypt(strings.NewReader(plaintext), &sealed); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if strings.Contains(sealed.String(), "Students") {
		t.Error("ciphertext should not contain the plaintext")
	}

	dc, err := enc.Unlock("test-passphrase")
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	var opened bytes.Buffer
	if err := dc.Decrypt(bytes.NewReader(sealed.Bytes()), &opened); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if opened.String() != plaintext {
		t.Errorf("round trip produced %q, want %q", opened.String(), plaintext)
	}
}

func TestAgeEncryptor_WrongPassphrase(t *testing.T) {
	t.Parallel()
	enc := newTestAgeEncryptor(t)
	if err := enc.Setup("correct"); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	if _, err := enc.Unlock("wrong"); err == nil {
		t.Fatal("Unlock should fail with the wrong passphrase")
	}
}

func TestTestEncryptor_RoundTrip(t *testing.T) {
	t.Parallel()
	enc := NewTestEncryptor()

	var sealed bytes.Buffer
	if err := enc.Encrypt(strings.NewReader("hello"), &sealed); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if sealed.String() == "hello" {
		t.Error("encrypted output should differ from plaintext")
	}

	dc, err := enc.Unlock("")
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	var opened bytes.Buffer
	if err := dc.Decrypt(bytes.NewReader(sealed.Bytes()), &opened); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if opened.String() != "hello" {
		t.Errorf("round trip produced %q, want %q", opened.String(), "hello")
	}
}

func TestNewEncryptorFromConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ      string
		wantType string
		wantErr  bool
	}{
		{typ: "", wantType: "*encryption.AgeEncryptor"},
		{typ: "age", wantType: "*encryption.AgeEncryptor"},
		{typ: "test", wantType: "*encryption.TestEncryptor"},
		{typ: "rot13", wantErr: true},
	}

	for _, tt := range tests {
		enc, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: tt.typ})
		if tt.wantErr {
			if err == nil {
				t.Errorf("type %q: expected error", tt.typ)
			}
			continue
		}
		if err != nil {
			t.Errorf("type %q: %v", tt.typ, err)
			continue
		}
		switch tt.wantType {
		case "*encryption.AgeEncryptor":
			if _, ok := enc.(*AgeEncryptor); !ok {
				t.Errorf("type %q: got %T", tt.typ, enc)
			}
		case "*encryption.TestEncryptor":
			if _, ok := enc.(*TestEncryptor); !ok {
				t.Errorf("type %q: got %T", tt.typ, enc)
			}
		}
	}
}
