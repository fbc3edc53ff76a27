package store

import (
	"crypto/rand"
	"encoding/base64"
	"os"
	"strings"

	"github.com/goliatone/go-errors"
)

const keySize = 32

// LoadOrCreateKey returns the symmetric key stored at path, generating and
// persisting a fresh one when the file does not exist. The key is kept in
// a separate file from the data it protects, with owner-only permissions.
// The operation is idempotent and safe to run at every service start.
func LoadOrCreateKey(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		key, decErr := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
		if decErr != nil || len(key) != keySize {
			return nil, errors.New("key file is malformed", errors.CategoryInternal).
				WithMetadata(map[string]any{"path": path})
		}
		return key, nil
	}

	if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "unable to read key file")
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "unable to generate key")
	}

	encoded := base64.StdEncoding.EncodeToString(key)
	if err := writeFileAtomic(path, []byte(encoded), 0o600); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "unable to persist key file")
	}

	return key, nil
}
