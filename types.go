package admingate

import (
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds gateway options
type Config interface {
	GetSigningKey() string
	GetCookieName() string
	GetSessionDuration() int
	GetRelyingPartyName() string
	GetInitialPassword() string
}

// CredentialStore owns the password hash and passkey records. Passkey
// records are persisted only as ciphertext; see the store subpackage for
// the file-backed implementation.
type CredentialStore interface {
	GetPasswordHash() (string, error)
	SetPasswordHash(hash string) error
	ListPasskeys() ([]PasskeyRecord, error)
	GetPasskey(id string) (*PasskeyRecord, error)
	AddPasskey(rec PasskeyRecord) error
	DeletePasskey(id string) error
	UpdatePasskeyCounter(id string, counter uint32) error
}

// PasskeyRecord is a stored WebAuthn credential. Counter is monotonically
// non-decreasing across successful logins.
type PasskeyRecord struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	PublicKey         string    `json:"public_key"`
	AttestationObject string    `json:"attestation_object"`
	ClientDataJSON    string    `json:"client_data_json"`
	Counter           uint32    `json:"counter"`
	CreatedAt         time.Time `json:"created_at"`
}

// PasskeyMeta is the admin-facing projection of a PasskeyRecord. Key
// material never leaves the store through listing endpoints.
type PasskeyMeta struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Counter   uint32    `json:"counter"`
	CreatedAt time.Time `json:"created_at"`
}

// Meta strips the credential material from a record.
func (r PasskeyRecord) Meta() PasskeyMeta {
	return PasskeyMeta{
		ID:        r.ID,
		Name:      r.Name,
		Counter:   r.Counter,
		CreatedAt: r.CreatedAt,
	}
}

// Snapshotter persists a point-in-time copy of a logical store. The store
// subpackage provides the file-backed implementation; tests use an
// in-memory one.
type Snapshotter interface {
	Load(v any) error
	Save(v any) error
}

// DefaultLogger returns the fallback logger used when none is injected.
func DefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] GATE "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] GATE "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] GATE "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] GATE "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
