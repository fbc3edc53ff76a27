package store

import (
	"os"
	"path/filepath"

	admingate "github.com/goliatone/go-admin-gate"
	"github.com/goliatone/go-errors"
)

// File names under the data directory.
const (
	KeyFileName      = "store.key"
	PasswordFileName = "credentials.json"
	PasskeyFileName  = "passkeys.enc"
	TrustFileName    = "trust.json"
	EventLogFileName = "security_log.json"
)

// Bundle is everything Bootstrap provisions: the credential store plus
// snapshotters for the trust registry and the security event log.
type Bundle struct {
	Credentials *Credentials
	TrustState  *FileStore
	EventState  *FileStore
}

// Bootstrap provisions the data directory once at service start: the
// directory itself (0700), the encryption key, and a default password hash
// when none exists yet. Every step is create-if-absent, so running it on
// every start is safe.
func Bootstrap(dir, initialPassword string, logger admingate.Logger, opts ...CredentialsOption) (*Bundle, error) {
	if logger == nil {
		logger = admingate.DefaultLogger()
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "unable to create data directory").
			WithMetadata(map[string]any{"dir": dir})
	}

	key, err := LoadOrCreateKey(filepath.Join(dir, KeyFileName))
	if err != nil {
		return nil, err
	}

	opts = append([]CredentialsOption{WithCredentialsLogger(logger)}, opts...)
	credentials, err := NewCredentials(
		filepath.Join(dir, PasswordFileName),
		filepath.Join(dir, PasskeyFileName),
		key,
		opts...,
	)
	if err != nil {
		return nil, err
	}

	if !credentials.HasPasswordHash() {
		if initialPassword == "" {
			return nil, errors.New("no stored credentials and no initial password configured", errors.CategoryBadInput)
		}

		hash, err := admingate.HashPassword(initialPassword)
		if err != nil {
			return nil, err
		}
		if err := credentials.SetPasswordHash(hash); err != nil {
			return nil, err
		}
		logger.Info("bootstrap created initial admin credentials", "dir", dir)
	}

	return &Bundle{
		Credentials: credentials,
		TrustState:  NewFileStore(filepath.Join(dir, TrustFileName)),
		EventState:  NewFileStore(filepath.Join(dir, EventLogFileName)),
	}, nil
}
