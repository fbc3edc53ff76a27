package admingate_test

import (
	"encoding/json"
	"sync"

	admingate "github.com/goliatone/go-admin-gate"
)

// memSnapshot is an in-memory Snapshotter.
type memSnapshot struct {
	mu   sync.Mutex
	data []byte
	errs struct {
		load error
		save error
	}
	saves int
}

func (m *memSnapshot) Load(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.errs.load != nil {
		return m.errs.load
	}
	if m.data == nil {
		return nil
	}
	return json.Unmarshal(m.data, v)
}

func (m *memSnapshot) Save(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.errs.save != nil {
		return m.errs.save
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.data = data
	m.saves++
	return nil
}

// memCredentials is an in-memory CredentialStore.
type memCredentials struct {
	mu       sync.Mutex
	hash     string
	passkeys []admingate.PasskeyRecord
	hashErr  error
}

func (m *memCredentials) GetPasswordHash() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hashErr != nil {
		return "", m.hashErr
	}
	return m.hash, nil
}

func (m *memCredentials) SetPasswordHash(hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hash = hash
	return nil
}

func (m *memCredentials) ListPasskeys() ([]admingate.PasskeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]admingate.PasskeyRecord, len(m.passkeys))
	copy(out, m.passkeys)
	return out, nil
}

func (m *memCredentials) GetPasskey(id string) (*admingate.PasskeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.passkeys {
		if m.passkeys[i].ID == id {
			rec := m.passkeys[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (m *memCredentials) AddPasskey(rec admingate.PasskeyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passkeys = append(m.passkeys, rec)
	return nil
}

func (m *memCredentials) DeletePasskey(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.passkeys[:0]
	for _, rec := range m.passkeys {
		if rec.ID != id {
			out = append(out, rec)
		}
	}
	m.passkeys = out
	return nil
}

func (m *memCredentials) UpdatePasskeyCounter(id string, counter uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.passkeys {
		if m.passkeys[i].ID == id {
			m.passkeys[i].Counter = counter
			return nil
		}
	}
	return nil
}

// testConfig satisfies Config for tests.
type testConfig struct {
	signingKey      string
	cookieName      string
	sessionHours    int
	relyingParty    string
	initialPassword string
}

func (c testConfig) GetSigningKey() string       { return c.signingKey }
func (c testConfig) GetCookieName() string       { return c.cookieName }
func (c testConfig) GetSessionDuration() int     { return c.sessionHours }
func (c testConfig) GetRelyingPartyName() string { return c.relyingParty }
func (c testConfig) GetInitialPassword() string  { return c.initialPassword }

func newTestConfig() testConfig {
	return testConfig{
		signingKey:   "test-signing-key",
		cookieName:   "admin_session",
		sessionHours: 24,
		relyingParty: "Admin Dashboard",
	}
}
