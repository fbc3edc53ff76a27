package passkey_test

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"sync"
	"testing"

	admingate "github.com/goliatone/go-admin-gate"
	"github.com/goliatone/go-admin-gate/passkey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memCredentials is an in-memory CredentialStore.
type memCredentials struct {
	mu       sync.Mutex
	hash     string
	passkeys []admingate.PasskeyRecord
}

func (m *memCredentials) GetPasswordHash() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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
		}
	}
	return nil
}

type testConfig struct{}

func (testConfig) GetSigningKey() string       { return "passkey-test-key" }
func (testConfig) GetCookieName() string       { return "admin_session" }
func (testConfig) GetSessionDuration() int     { return 24 }
func (testConfig) GetRelyingPartyName() string { return "Admin Dashboard" }
func (testConfig) GetInitialPassword() string  { return "" }

type fixture struct {
	authenticator *passkey.Authenticator
	credentials   *memCredentials
	sessions      *admingate.SessionManager
	events        *admingate.EventLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	credentials := &memCredentials{}
	sessions := admingate.NewSessionManager(testConfig{})
	events := admingate.NewEventLog(nil)

	return &fixture{
		authenticator: passkey.NewAuthenticator(credentials, sessions, events, "Admin Dashboard"),
		credentials:   credentials,
		sessions:      sessions,
		events:        events,
	}
}

func (f *fixture) session(t *testing.T, authenticated bool) *admingate.Session {
	t.Helper()
	session, _, err := f.sessions.Create("10.0.0.1", "test-agent")
	require.NoError(t, err)
	if authenticated {
		require.NoError(t, f.sessions.Authenticate(session.ID))
	}
	return session
}

// authenticatorData builds the fixed-length header: 32-byte rpIdHash,
// flags, big-endian counter.
func authenticatorData(flags byte, counter uint32) string {
	data := make([]byte, 37)
	data[32] = flags
	binary.BigEndian.PutUint32(data[33:37], counter)
	return base64.RawURLEncoding.EncodeToString(data)
}

func clientData(typ, challenge string) string {
	raw, _ := json.Marshal(map[string]string{"type": typ, "challenge": challenge})
	return base64.RawURLEncoding.EncodeToString(raw)
}

func TestStartRegistrationRequiresAuthenticatedSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.authenticator.StartRegistration(f.session(t, false), "dash.example.com")
	assert.ErrorIs(t, err, admingate.ErrNotAuthenticated)

	_, err = f.authenticator.StartRegistration(nil, "dash.example.com")
	assert.ErrorIs(t, err, admingate.ErrNotAuthenticated)
}

func TestStartRegistrationOptions(t *testing.T) {
	f := newFixture(t)

	options, err := f.authenticator.StartRegistration(f.session(t, true), "dash.example.com")
	require.NoError(t, err)

	assert.NotEmpty(t, options.Challenge)
	assert.Equal(t, "Admin Dashboard", options.RP.Name)
	assert.Equal(t, "dash.example.com", options.RP.ID)
	assert.Equal(t, "required", options.AuthenticatorSelection.UserVerification)
	assert.Equal(t, "required", options.AuthenticatorSelection.ResidentKey)
	assert.Equal(t, "platform", options.AuthenticatorSelection.AuthenticatorAttachment)

	algs := []int{options.PubKeyCredParams[0].Alg, options.PubKeyCredParams[1].Alg}
	assert.Contains(t, algs, -7)
	assert.Contains(t, algs, -257)
}

func TestCompleteRegistrationPersistsCredential(t *testing.T) {
	f := newFixture(t)
	session := f.session(t, true)

	options, err := f.authenticator.StartRegistration(session, "dash.example.com")
	require.NoError(t, err)

	cred := passkey.RegistrationCredential{
		ID:                "cred-1",
		Name:              "MacBook Touch ID",
		PublicKey:         "pQECAyY",
		AttestationObject: "o2NmbXQ",
		ClientDataJSON:    clientData("webauthn.create", options.Challenge),
	}

	require.NoError(t, f.authenticator.CompleteRegistration(session, cred, "10.0.0.1", "test-agent"))

	records, err := f.credentials.ListPasskeys()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "cred-1", records[0].ID)
	assert.Equal(t, uint32(0), records[0].Counter)

	events := f.events.List()
	require.Len(t, events, 1)
	assert.Equal(t, admingate.EventPasskeyRegistered, events[0].Kind)
}

func TestCompleteRegistrationWithoutPendingChallenge(t *testing.T) {
	f := newFixture(t)
	session := f.session(t, true)

	err := f.authenticator.CompleteRegistration(session, passkey.RegistrationCredential{ID: "x"}, "10.0.0.1", "")
	assert.ErrorIs(t, err, passkey.ErrInvalidChallenge)
}

func TestCompleteRegistrationChallengeMismatch(t *testing.T) {
	f := newFixture(t)
	session := f.session(t, true)

	_, err := f.authenticator.StartRegistration(session, "dash.example.com")
	require.NoError(t, err)

	cred := passkey.RegistrationCredential{
		ID:             "cred-1",
		PublicKey:      "key",
		ClientDataJSON: clientData("webauthn.create", "a-different-challenge"),
	}

	err = f.authenticator.CompleteRegistration(session, cred, "10.0.0.1", "")
	assert.ErrorIs(t, err, passkey.ErrInvalidChallenge)
}

func TestStartLoginWithoutPasskeys(t *testing.T) {
	f := newFixture(t)

	_, err := f.authenticator.StartLogin(f.session(t, false), "dash.example.com")
	assert.ErrorIs(t, err, passkey.ErrNoPasskeysRegistered)
}

func TestStartLoginListsCredentials(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.credentials.AddPasskey(admingate.PasskeyRecord{ID: "cred-1"}))
	require.NoError(t, f.credentials.AddPasskey(admingate.PasskeyRecord{ID: "cred-2"}))

	options, err := f.authenticator.StartLogin(f.session(t, false), "dash.example.com")
	require.NoError(t, err)

	assert.NotEmpty(t, options.Challenge)
	assert.Equal(t, "dash.example.com", options.RPID)
	assert.Equal(t, "required", options.UserVerification)
	require.Len(t, options.AllowCredentials, 2)
	assert.Equal(t, "cred-1", options.AllowCredentials[0].ID)
}

func loginAssertion(t *testing.T, f *fixture, session *admingate.Session, credID string, flags byte, counter uint32) passkey.LoginAssertion {
	t.Helper()

	options, err := f.authenticator.StartLogin(session, "dash.example.com")
	require.NoError(t, err)

	return passkey.LoginAssertion{
		ID:                credID,
		AuthenticatorData: authenticatorData(flags, counter),
		ClientDataJSON:    clientData("webauthn.get", options.Challenge),
		Signature:         "sig",
	}
}

func TestCompleteLoginSuccessAdvancesCounter(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.credentials.AddPasskey(admingate.PasskeyRecord{ID: "cred-1", Counter: 5}))
	session := f.session(t, false)

	assertion := loginAssertion(t, f, session, "cred-1", 0x05, 6)

	require.NoError(t, f.authenticator.CompleteLogin(session, assertion, "10.0.0.1", "test-agent"))
	assert.True(t, session.Authenticated)

	rec, err := f.credentials.GetPasskey("cred-1")
	require.NoError(t, err)
	assert.Equal(t, uint32(6), rec.Counter)

	events := f.events.List()
	require.Len(t, events, 1)
	assert.Equal(t, admingate.EventPasskeyLoginSuccess, events[0].Kind)
}

func TestCompleteLoginReplayDetected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.credentials.AddPasskey(admingate.PasskeyRecord{ID: "cred-1", Counter: 10}))
	session := f.session(t, false)

	for _, counter := range []uint32{10, 9} {
		assertion := loginAssertion(t, f, session, "cred-1", 0x05, counter)

		err := f.authenticator.CompleteLogin(session, assertion, "10.0.0.1", "")
		assert.ErrorIs(t, err, passkey.ErrReplayDetected)
		assert.False(t, session.Authenticated)
	}

	// Stored counter never regressed.
	rec, err := f.credentials.GetPasskey("cred-1")
	require.NoError(t, err)
	assert.Equal(t, uint32(10), rec.Counter)
}

func TestCompleteLoginRequiresPresenceAndVerification(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.credentials.AddPasskey(admingate.PasskeyRecord{ID: "cred-1"}))
	session := f.session(t, false)

	// User present but not verified.
	assertion := loginAssertion(t, f, session, "cred-1", 0x01, 1)
	err := f.authenticator.CompleteLogin(session, assertion, "10.0.0.1", "")
	assert.ErrorIs(t, err, passkey.ErrUserNotVerified)

	// User verified but not present.
	assertion = loginAssertion(t, f, session, "cred-1", 0x04, 1)
	err = f.authenticator.CompleteLogin(session, assertion, "10.0.0.1", "")
	assert.ErrorIs(t, err, passkey.ErrUserNotVerified)
}

func TestCompleteLoginUnknownCredential(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.credentials.AddPasskey(admingate.PasskeyRecord{ID: "cred-1"}))
	session := f.session(t, false)

	assertion := loginAssertion(t, f, session, "who-dis", 0x05, 1)

	err := f.authenticator.CompleteLogin(session, assertion, "10.0.0.1", "")
	assert.ErrorIs(t, err, passkey.ErrCredentialNotFound)

	events := f.events.List()
	require.Len(t, events, 1)
	assert.Equal(t, admingate.EventPasskeyLoginFailure, events[0].Kind)
}

func TestCompleteLoginMalformedAuthenticatorData(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.credentials.AddPasskey(admingate.PasskeyRecord{ID: "cred-1"}))
	session := f.session(t, false)

	options, err := f.authenticator.StartLogin(session, "dash.example.com")
	require.NoError(t, err)

	assertion := passkey.LoginAssertion{
		ID:                "cred-1",
		AuthenticatorData: "dG9vc2hvcnQ",
		ClientDataJSON:    clientData("webauthn.get", options.Challenge),
	}

	err = f.authenticator.CompleteLogin(session, assertion, "10.0.0.1", "")
	assert.ErrorIs(t, err, passkey.ErrMalformedAssertion)
}

func TestCompleteLoginChallengeIsSingleUse(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.credentials.AddPasskey(admingate.PasskeyRecord{ID: "cred-1", Counter: 0}))
	session := f.session(t, false)

	assertion := loginAssertion(t, f, session, "cred-1", 0x05, 1)
	require.NoError(t, f.authenticator.CompleteLogin(session, assertion, "10.0.0.1", ""))

	// Replaying the whole assertion fails: the challenge is gone.
	err := f.authenticator.CompleteLogin(session, assertion, "10.0.0.1", "")
	assert.ErrorIs(t, err, passkey.ErrInvalidChallenge)
}

func TestListReturnsMetadataOnly(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.credentials.AddPasskey(admingate.PasskeyRecord{
		ID:        "cred-1",
		Name:      "MacBook Touch ID",
		PublicKey: "secret-material",
		Counter:   3,
	}))

	metas, err := f.authenticator.List()
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "cred-1", metas[0].ID)
	assert.Equal(t, "MacBook Touch ID", metas[0].Name)
	assert.Equal(t, uint32(3), metas[0].Counter)
}

func TestExistsAndDelete(t *testing.T) {
	f := newFixture(t)

	exists, err := f.authenticator.Exists()
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, f.credentials.AddPasskey(admingate.PasskeyRecord{ID: "cred-1"}))

	exists, err = f.authenticator.Exists()
	require.NoError(t, err)
	assert.True(t, exists)

	err = f.authenticator.Delete(f.session(t, false), "cred-1", "10.0.0.1", "")
	assert.ErrorIs(t, err, admingate.ErrNotAuthenticated)

	require.NoError(t, f.authenticator.Delete(f.session(t, true), "cred-1", "10.0.0.1", ""))

	exists, err = f.authenticator.Exists()
	require.NoError(t, err)
	assert.False(t, exists)
}
