package rmt

import "io"

// Encryptor protects snapshot data at rest. Snapshots of student records
// carry personal data, so sinks can be configured to encrypt everything
// they write.
type Encryptor interface {
	// Setup generates and stores the key material, protected by
	// passphrase.
	Setup(passphrase string) error

	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock opens the key material using passphrase and returns a
	// context that can decrypt.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether key material exists.
	IsConfigured() bool
}

// DecryptionContext decrypts data using an unlocked key.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
