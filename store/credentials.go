package store

import (
	stderrors "errors"
	"sync"

	admingate "github.com/goliatone/go-admin-gate"
	"github.com/goliatone/go-errors"
)

type passwordFile struct {
	PasswordHash string `json:"password_hash"`
}

// Credentials is the file-backed credential store. The password hash is a
// plain JSON record; passkey records are sealed with AES-256-GCM before
// touching disk. Mutations are serialized.
//
// A failed decrypt degrades to an empty passkey set instead of failing the
// process. That mirrors the original dashboard behavior and is a documented
// risk: the failure is logged and reported through the DecryptFailure
// callback so operators can see it in the security log.
type Credentials struct {
	mu        sync.Mutex
	passwords *FileStore
	passkeys  *FileStore
	box       *SealedBox
	logger    admingate.Logger

	// DecryptFailure runs (outside the store lock) whenever the sealed
	// passkey blob cannot be opened.
	DecryptFailure func(err error)
}

var _ admingate.CredentialStore = (*Credentials)(nil)

// CredentialsOption customizes store construction.
type CredentialsOption func(*Credentials)

// WithCredentialsLogger overrides the default logger.
func WithCredentialsLogger(logger admingate.Logger) CredentialsOption {
	return func(c *Credentials) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDecryptFailureHandler registers a callback for decrypt failures.
func WithDecryptFailureHandler(fn func(error)) CredentialsOption {
	return func(c *Credentials) {
		c.DecryptFailure = fn
	}
}

// NewCredentials wires a credential store over the given files and key.
func NewCredentials(passwordPath, passkeyPath string, key []byte, opts ...CredentialsOption) (*Credentials, error) {
	box, err := NewSealedBox(key)
	if err != nil {
		return nil, err
	}

	c := &Credentials{
		passwords: NewFileStore(passwordPath),
		passkeys:  NewFileStore(passkeyPath),
		box:       box,
		logger:    nil,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c, nil
}

// GetPasswordHash returns the stored admin password hash.
func (c *Credentials) GetPasswordHash() (string, error) {
	var record passwordFile
	if err := c.passwords.Load(&record); err != nil {
		return "", err
	}

	if record.PasswordHash == "" {
		return "", errors.New("no password hash on record", errors.CategoryInternal).
			WithMetadata(map[string]any{"path": c.passwords.Path()})
	}

	return record.PasswordHash, nil
}

// SetPasswordHash atomically replaces the stored hash.
func (c *Credentials) SetPasswordHash(hash string) error {
	return c.passwords.Save(passwordFile{PasswordHash: hash})
}

// HasPasswordHash reports whether a hash exists. Used by bootstrap.
func (c *Credentials) HasPasswordHash() bool {
	var record passwordFile
	if err := c.passwords.Load(&record); err != nil {
		return false
	}
	return record.PasswordHash != ""
}

// ListPasskeys returns every stored record.
func (c *Credentials) ListPasskeys() ([]admingate.PasskeyRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLocked()
}

// GetPasskey looks a record up by credential id.
func (c *Credentials) GetPasskey(id string) (*admingate.PasskeyRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.readLocked()
	if err != nil {
		return nil, err
	}

	for i := range records {
		if records[i].ID == id {
			rec := records[i]
			return &rec, nil
		}
	}

	return nil, nil
}

// AddPasskey appends a record and reseals the blob.
func (c *Credentials) AddPasskey(rec admingate.PasskeyRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.readLocked()
	if err != nil {
		return err
	}

	return c.writeLocked(append(records, rec))
}

// DeletePasskey removes a record by id.
func (c *Credentials) DeletePasskey(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.readLocked()
	if err != nil {
		return err
	}

	kept := records[:0]
	for _, rec := range records {
		if rec.ID != id {
			kept = append(kept, rec)
		}
	}

	return c.writeLocked(kept)
}

// UpdatePasskeyCounter persists a new signature counter for id.
func (c *Credentials) UpdatePasskeyCounter(id string, counter uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.readLocked()
	if err != nil {
		return err
	}

	for i := range records {
		if records[i].ID == id {
			records[i].Counter = counter
			return c.writeLocked(records)
		}
	}

	return errors.New("passkey not found", errors.CategoryNotFound).
		WithCode(errors.CodeNotFound).
		WithMetadata(map[string]any{"credential_id": id})
}

func (c *Credentials) readLocked() ([]admingate.PasskeyRecord, error) {
	var env Envelope
	if err := c.passkeys.Load(&env); err != nil {
		return nil, err
	}

	if env.Data == "" {
		return nil, nil
	}

	var records []admingate.PasskeyRecord
	if err := c.box.Open(&env, &records); err != nil {
		if stderrors.Is(err, ErrDecryptFailed) {
			if c.logger != nil {
				c.logger.Error("passkey blob decrypt failed, degrading to empty set", "path", c.passkeys.Path())
			}
			if c.DecryptFailure != nil {
				go c.DecryptFailure(err)
			}
			return nil, nil
		}
		return nil, err
	}

	return records, nil
}

func (c *Credentials) writeLocked(records []admingate.PasskeyRecord) error {
	env, err := c.box.Seal(records)
	if err != nil {
		return err
	}
	return c.passkeys.Save(env)
}
