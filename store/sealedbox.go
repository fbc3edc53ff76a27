package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"

	"github.com/goliatone/go-errors"
)

const gcmTagSize = 16

// ErrDecryptFailed is returned when an envelope cannot be opened: wrong
// key, truncated file, or a failed integrity check.
var ErrDecryptFailed = errors.New("unable to open sealed envelope", errors.CategoryInternal).
	WithTextCode("storage_decrypt_failed").
	WithCode(errors.CodeInternal)

// Envelope is the on-disk shape of sealed data. The authentication tag is
// kept as its own field so tampering with either part is detectable.
type Envelope struct {
	IV      string `json:"iv"`
	AuthTag string `json:"authTag"`
	Data    string `json:"data"`
}

// SealedBox encrypts values with AES-256-GCM using a random IV per write.
type SealedBox struct {
	key []byte
}

// NewSealedBox wraps the given 32-byte key.
func NewSealedBox(key []byte) (*SealedBox, error) {
	if len(key) != keySize {
		return nil, errors.New("sealed box key must be 32 bytes", errors.CategoryInternal)
	}

	box := &SealedBox{key: make([]byte, keySize)}
	copy(box.key, key)
	return box, nil
}

// Seal marshals v and encrypts it into an envelope.
func (b *SealedBox) Seal(v any) (*Envelope, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "unable to marshal sealed payload")
	}

	gcm, err := b.aead()
	if err != nil {
		return nil, err
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "unable to generate iv")
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	ciphertext, tag := sealed[:len(sealed)-gcmTagSize], sealed[len(sealed)-gcmTagSize:]

	return &Envelope{
		IV:      base64.StdEncoding.EncodeToString(iv),
		AuthTag: base64.StdEncoding.EncodeToString(tag),
		Data:    base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

// Open verifies and decrypts an envelope into v.
func (b *SealedBox) Open(env *Envelope, v any) error {
	if env == nil {
		return ErrDecryptFailed
	}

	iv, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return ErrDecryptFailed
	}
	tag, err := base64.StdEncoding.DecodeString(env.AuthTag)
	if err != nil {
		return ErrDecryptFailed
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return ErrDecryptFailed
	}

	gcm, err := b.aead()
	if err != nil {
		return err
	}

	if len(iv) != gcm.NonceSize() || len(tag) != gcmTagSize {
		return ErrDecryptFailed
	}

	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return ErrDecryptFailed
	}

	if err := json.Unmarshal(plaintext, v); err != nil {
		return ErrDecryptFailed
	}

	return nil
}

func (b *SealedBox) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "unable to create cipher")
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "unable to create GCM")
	}

	return gcm, nil
}
