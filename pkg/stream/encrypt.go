package stream

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"
)

// Encryptor seals and opens whole blocks.
type Encryptor interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

type aesEncryptor struct {
	aead cipher.AEAD
}

// NewAESEncryptor derives a 256-bit key from the passphrase with PBKDF2
// and seals blocks with AES-GCM. Both ends of a stream must agree on
// passphrase and salt.
func NewAESEncryptor(passphrase, salt string) (Encryptor, error) {
	if passphrase == "" {
		return nil, errors.New("encrypt: empty passphrase")
	}
	key := pbkdf2.Key([]byte(passphrase), []byte(salt), 10000, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "encrypt: init cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "encrypt: init GCM")
	}
	return &aesEncryptor{aead: aead}, nil
}

func (e *aesEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	out := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(plaintext)+e.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, out); err != nil {
		return nil, errors.Wrap(err, "encrypt: generate nonce")
	}
	return e.aead.Seal(out, out[:e.aead.NonceSize()], plaintext, nil), nil
}

func (e *aesEncryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	ns := e.aead.NonceSize()
	if len(ciphertext) < ns {
		return nil, errors.New("encrypt: ciphertext shorter than nonce")
	}
	plain, err := e.aead.Open(nil, ciphertext[:ns], ciphertext[ns:], nil)
	if err != nil {
		return nil, errors.Wrap(err, "encrypt: open block")
	}
	return plain, nil
}
