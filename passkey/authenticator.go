// Package passkey implements WebAuthn-style credential enrollment and
// login. Registration trusts the pre-existing authenticated session rather
// than attestation cryptography, and login validates presence/verification
// flags and a strictly increasing signature counter without verifying the
// assertion signature itself. Both simplifications are deliberate; see the
// design notes before hardening either.
package passkey

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"time"

	admingate "github.com/goliatone/go-admin-gate"
)

const (
	// algES256 and algRS256 are COSE algorithm identifiers.
	algES256 = -7
	algRS256 = -257

	flagUserPresent  = 0x01
	flagUserVerified = 0x04

	// authDataMinLen covers rpIdHash (32) + flags (1) + counter (4).
	authDataMinLen = 37

	defaultTimeoutMS = 60000
)

// RelyingParty identifies the service to the authenticator.
type RelyingParty struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// UserEntity is the single admin account presented to the authenticator.
type UserEntity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// CredentialParam is an accepted COSE signing algorithm.
type CredentialParam struct {
	Type string `json:"type"`
	Alg  int    `json:"alg"`
}

// AuthenticatorSelection constrains which authenticators may enroll.
type AuthenticatorSelection struct {
	AuthenticatorAttachment string `json:"authenticatorAttachment"`
	UserVerification        string `json:"userVerification"`
	ResidentKey             string `json:"residentKey"`
}

// CreationOptions is the payload for navigator.credentials.create.
type CreationOptions struct {
	Challenge              string                 `json:"challenge"`
	RP                     RelyingParty           `json:"rp"`
	User                   UserEntity             `json:"user"`
	PubKeyCredParams       []CredentialParam      `json:"pubKeyCredParams"`
	AuthenticatorSelection AuthenticatorSelection `json:"authenticatorSelection"`
	Timeout                int                    `json:"timeout"`
	Attestation            string                 `json:"attestation"`
}

// AllowedCredential names a credential the client may assert with.
type AllowedCredential struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// RequestOptions is the payload for navigator.credentials.get.
type RequestOptions struct {
	Challenge        string              `json:"challenge"`
	RPID             string              `json:"rpId"`
	AllowCredentials []AllowedCredential `json:"allowCredentials"`
	UserVerification string              `json:"userVerification"`
	Timeout          int                 `json:"timeout"`
}

// RegistrationCredential is the client response to a creation ceremony.
type RegistrationCredential struct {
	ID                string
	Name              string
	PublicKey         string
	AttestationObject string
	ClientDataJSON    string
}

// LoginAssertion is the client response to a login ceremony.
type LoginAssertion struct {
	ID                string
	AuthenticatorData string
	ClientDataJSON    string
	Signature         string
}

// Authenticator runs passkey ceremonies against the credential store.
// Challenges are held single-use on the session.
type Authenticator struct {
	credentials admingate.CredentialStore
	sessions    *admingate.SessionManager
	events      *admingate.EventLog
	rpName      string
	now         func() time.Time
	logger      admingate.Logger
}

// AuthenticatorOption customizes authenticator construction.
type AuthenticatorOption func(*Authenticator)

// WithAuthenticatorClock injects a custom clock (useful for tests).
func WithAuthenticatorClock(clock func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) {
		if clock != nil {
			a.now = clock
		}
	}
}

// WithAuthenticatorLogger overrides the default logger.
func WithAuthenticatorLogger(logger admingate.Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAuthenticator wires a passkey authenticator. rpName is the relying
// party display name shown in authenticator prompts.
func NewAuthenticator(credentials admingate.CredentialStore, sessions *admingate.SessionManager, events *admingate.EventLog, rpName string, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		credentials: credentials,
		sessions:    sessions,
		events:      events,
		rpName:      rpName,
		now:         time.Now,
		logger:      admingate.DefaultLogger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	return a
}

// StartRegistration opens an enrollment ceremony. Only an authenticated
// session may enroll a credential; the new passkey inherits its trust from
// that session.
func (a *Authenticator) StartRegistration(session *admingate.Session, host string) (*CreationOptions, error) {
	if session == nil || !session.Authenticated {
		return nil, admingate.ErrNotAuthenticated
	}

	challenge, err := newChallenge()
	if err != nil {
		return nil, err
	}

	if err := a.sessions.SetChallenge(session.ID, admingate.ChallengeRegistration, challenge); err != nil {
		return nil, err
	}

	return &CreationOptions{
		Challenge: challenge,
		RP:        RelyingParty{Name: a.rpName, ID: host},
		User: UserEntity{
			ID:          base64.RawURLEncoding.EncodeToString([]byte("admin")),
			Name:        "admin",
			DisplayName: a.rpName,
		},
		PubKeyCredParams: []CredentialParam{
			{Type: "public-key", Alg: algES256},
			{Type: "public-key", Alg: algRS256},
		},
		AuthenticatorSelection: AuthenticatorSelection{
			AuthenticatorAttachment: "platform",
			UserVerification:        "required",
			ResidentKey:             "required",
		},
		Timeout:     defaultTimeoutMS,
		Attestation: "none",
	}, nil
}

// CompleteRegistration stores the new credential. The pending challenge is
// consumed regardless of outcome and must match the one echoed through the
// client data.
func (a *Authenticator) CompleteRegistration(session *admingate.Session, cred RegistrationCredential, ip, userAgent string) error {
	if session == nil || !session.Authenticated {
		return admingate.ErrNotAuthenticated
	}

	challenge, ok := a.sessions.ConsumeChallenge(session.ID, admingate.ChallengeRegistration)
	if !ok {
		return ErrInvalidChallenge
	}

	if err := verifyClientData(cred.ClientDataJSON, "webauthn.create", challenge); err != nil {
		return err
	}

	name := cred.Name
	if name == "" {
		name = "Passkey"
	}

	record := admingate.PasskeyRecord{
		ID:                cred.ID,
		Name:              name,
		PublicKey:         cred.PublicKey,
		AttestationObject: cred.AttestationObject,
		ClientDataJSON:    cred.ClientDataJSON,
		Counter:           0,
		CreatedAt:         a.now(),
	}

	if err := a.credentials.AddPasskey(record); err != nil {
		return err
	}

	a.events.Append(admingate.SecurityEvent{
		Kind:      admingate.EventPasskeyRegistered,
		IP:        ip,
		UserAgent: userAgent,
		Success:   true,
		Details:   map[string]any{"credential_id": cred.ID, "name": name},
	})

	return nil
}

// StartLogin opens an assertion ceremony. host becomes the relying party id.
func (a *Authenticator) StartLogin(session *admingate.Session, host string) (*RequestOptions, error) {
	records, err := a.credentials.ListPasskeys()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoPasskeysRegistered
	}

	challenge, err := newChallenge()
	if err != nil {
		return nil, err
	}

	if err := a.sessions.SetChallenge(session.ID, admingate.ChallengeLogin, challenge); err != nil {
		return nil, err
	}

	allowed := make([]AllowedCredential, 0, len(records))
	for _, rec := range records {
		allowed = append(allowed, AllowedCredential{Type: "public-key", ID: rec.ID})
	}

	return &RequestOptions{
		Challenge:        challenge,
		RPID:             host,
		AllowCredentials: allowed,
		UserVerification: "required",
		Timeout:          defaultTimeoutMS,
	}, nil
}

// CompleteLogin validates an assertion and authenticates the session. The
// assertion signature is not verified against the stored public key; the
// flags byte and the counter are the effective checks.
func (a *Authenticator) CompleteLogin(session *admingate.Session, assertion LoginAssertion, ip, userAgent string) error {
	challenge, ok := a.sessions.ConsumeChallenge(session.ID, admingate.ChallengeLogin)
	if !ok {
		return a.loginFailure(ip, userAgent, assertion.ID, ErrInvalidChallenge)
	}

	if err := verifyClientData(assertion.ClientDataJSON, "webauthn.get", challenge); err != nil {
		return a.loginFailure(ip, userAgent, assertion.ID, err)
	}

	record, err := a.credentials.GetPasskey(assertion.ID)
	if err != nil {
		return a.loginFailure(ip, userAgent, assertion.ID, err)
	}
	if record == nil {
		return a.loginFailure(ip, userAgent, assertion.ID, ErrCredentialNotFound)
	}

	authData, err := base64.RawURLEncoding.DecodeString(assertion.AuthenticatorData)
	if err != nil || len(authData) < authDataMinLen {
		return a.loginFailure(ip, userAgent, assertion.ID, ErrMalformedAssertion)
	}

	flags := authData[32]
	if flags&flagUserPresent == 0 || flags&flagUserVerified == 0 {
		return a.loginFailure(ip, userAgent, assertion.ID, ErrUserNotVerified)
	}

	counter := binary.BigEndian.Uint32(authData[33:37])
	if counter <= record.Counter {
		return a.loginFailure(ip, userAgent, assertion.ID, ErrReplayDetected)
	}

	if err := a.credentials.UpdatePasskeyCounter(record.ID, counter); err != nil {
		return err
	}

	if err := a.sessions.Authenticate(session.ID); err != nil {
		return err
	}

	a.events.Append(admingate.SecurityEvent{
		Kind:      admingate.EventPasskeyLoginSuccess,
		IP:        ip,
		UserAgent: userAgent,
		Success:   true,
		Details:   map[string]any{"credential_id": record.ID, "counter": counter},
	})

	return nil
}

// List returns the stored passkeys without key material.
func (a *Authenticator) List() ([]admingate.PasskeyMeta, error) {
	records, err := a.credentials.ListPasskeys()
	if err != nil {
		return nil, err
	}

	out := make([]admingate.PasskeyMeta, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Meta())
	}
	return out, nil
}

// Exists reports whether any passkey is enrolled.
func (a *Authenticator) Exists() (bool, error) {
	records, err := a.credentials.ListPasskeys()
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}

// Delete removes a credential. Requires an authenticated session.
func (a *Authenticator) Delete(session *admingate.Session, id, ip, userAgent string) error {
	if session == nil || !session.Authenticated {
		return admingate.ErrNotAuthenticated
	}

	if err := a.credentials.DeletePasskey(id); err != nil {
		return err
	}

	a.events.Append(admingate.SecurityEvent{
		Kind:      admingate.EventPasskeyDeleted,
		IP:        ip,
		UserAgent: userAgent,
		Success:   true,
		Details:   map[string]any{"credential_id": id},
	})

	return nil
}

func (a *Authenticator) loginFailure(ip, userAgent, credentialID string, cause error) error {
	details := map[string]any{"reason": cause.Error()}
	if credentialID != "" {
		details["credential_id"] = credentialID
	}

	a.events.Append(admingate.SecurityEvent{
		Kind:      admingate.EventPasskeyLoginFailure,
		IP:        ip,
		UserAgent: userAgent,
		Details:   details,
	})

	return cause
}

// clientData is the subset of the WebAuthn client data we validate.
type clientData struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
}

func verifyClientData(encoded, wantType, wantChallenge string) error {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		// Some clients submit the JSON unencoded.
		raw = []byte(encoded)
	}

	var data clientData
	if err := json.Unmarshal(raw, &data); err != nil {
		return ErrInvalidChallenge
	}

	if data.Type != wantType || data.Challenge != wantChallenge {
		return ErrInvalidChallenge
	}

	return nil
}

func newChallenge() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
