package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	MinPassphraseLength  = 32
	DefaultKDFIterations = 100000

	saltLength = 64
	ivLength   = 16
	tagLength  = 16
	keyLength  = 32
)

var (
	ErrInvalidEncryptionKey = errors.New("INTEGRATION_ENCRYPTION_KEY must be at least 32 characters")
	ErrCredentialsCorrupted = errors.New("credentials corrupted or tampered")
)

// Vault encrypts small secret blobs with a key derived per call from a long-lived passphrase.
// Token layout: base64(salt[64] | iv[16] | tag[16] | ciphertext).
type Vault struct {
	passphrase []byte
	iterations int
}

func NewVault(passphrase string, iterations int) (*Vault, error) {
	if len(passphrase) < MinPassphraseLength {
		return nil, ErrInvalidEncryptionKey
	}
	if iterations <= 0 {
		return nil, fmt.Errorf("kdf iterations must be positive, got %d", iterations)
	}
	return &Vault{
		passphrase: []byte(passphrase),
		iterations: iterations,
	}, nil
}

func (v *Vault) deriveKey(salt []byte) []byte {
	return pbkdf2.Key(v.passphrase, salt, v.iterations, keyLength, sha512.New)
}

func (v *Vault) newGCM(salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.deriveKey(salt))
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, ivLength)
}

func (v *Vault) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	iv := make([]byte, ivLength)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	gcm, err := v.newGCM(salt)
	if err != nil {
		return "", err
	}

	// Seal appends the tag after the ciphertext; the token stores it first.
	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-tagLength]
	tag := sealed[len(sealed)-tagLength:]

	token := make([]byte, 0, saltLength+ivLength+tagLength+len(ciphertext))
	token = append(token, salt...)
	token = append(token, iv...)
	token = append(token, tag...)
	token = append(token, ciphertext...)

	return base64.StdEncoding.EncodeToString(token), nil
}

func (v *Vault) Decrypt(token string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: invalid encoding", ErrCredentialsCorrupted)
	}
	if len(decoded) < saltLength+ivLength+tagLength {
		return "", fmt.Errorf("%w: token too short", ErrCredentialsCorrupted)
	}

	salt := decoded[:saltLength]
	iv := decoded[saltLength : saltLength+ivLength]
	tag := decoded[saltLength+ivLength : saltLength+ivLength+tagLength]
	ciphertext := decoded[saltLength+ivLength+tagLength:]

	gcm, err := v.newGCM(salt)
	if err != nil {
		return "", err
	}

	sealed := make([]byte, 0, len(ciphertext)+tagLength)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", ErrCredentialsCorrupted
	}
	return string(plaintext), nil
}

// EncryptJSON marshals v and encrypts the result
func (v *Vault) EncryptJSON(value any) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to marshal credentials: %w", err)
	}
	return v.Encrypt(string(raw))
}

// DecryptJSON decrypts token and unmarshals it into out
func (v *Vault) DecryptJSON(token string, out any) error {
	plaintext, err := v.Decrypt(token)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(plaintext), out); err != nil {
		return fmt.Errorf("%w: %v", ErrCredentialsCorrupted, err)
	}
	return nil
}
