package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
)

var (
	ErrInvalidKeySize = errors.New("invalid key size")
	ErrEncryption     = errors.New("encryption failed")
	ErrDecryption     = errors.New("decryption failed")
)

// Encryptor is the cipher the PHI codec runs every protected field value
// through. Implementations must be safe for concurrent use.
type Encryptor interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// NewAESEncryptor returns an AES-256-GCM Encryptor. The key must be exactly
// 32 bytes; shorter AES key sizes are rejected so every stored field is
// protected at the same strength.
func NewAESEncryptor(key []byte) (Encryptor, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrInvalidKeySize
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrEncryption
	}

	return &gcmEncryptor{aead: gcm}, nil
}

// gcmEncryptor prefixes each ciphertext with its random nonce, so a stored
// field value is self-contained and fields can be re-encrypted one at a
// time without coordination.
type gcmEncryptor struct {
	aead cipher.AEAD
}

func (e *gcmEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, ErrEncryption
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (e *gcmEncryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	nonceSize := e.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, ErrDecryption
	}

	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		// GCM authentication failure covers both tampering and a wrong
		// key; neither detail is worth distinguishing to callers.
		return nil, ErrDecryption
	}
	return plaintext, nil
}
