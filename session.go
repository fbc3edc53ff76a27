package admingate

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// ChallengeKind identifies the single-use values a session may hold during
// a ceremony. Consuming a challenge clears it.
type ChallengeKind string

const (
	ChallengeRegistration ChallengeKind = "passkey_registration"
	ChallengeLogin        ChallengeKind = "passkey_login"
	ChallengeStepUp       ChallengeKind = "step_up"
)

// MaxAnonymousSessions bounds sessions that never completed a login
// ceremony. A cookie-less request burst would otherwise grow the table for
// the full session lifetime; once the bound is hit the oldest anonymous
// session is evicted.
const MaxAnonymousSessions = 1024

// Session is the server-side record behind the session cookie. The cookie
// itself is a signed JWT whose jti points at this record; authenticated
// state and ceremony challenges never leave the process.
type Session struct {
	ID            string
	IP            string
	UserAgent     string
	Authenticated bool
	CreatedAt     time.Time
	ExpiresAt     time.Time

	challenges map[ChallengeKind]string
}

// SessionManager issues, resolves, and destroys sessions. IP and user
// agent are recorded as informational bindings only; they are not
// re-checked on subsequent requests.
type SessionManager struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	signingKey []byte
	duration   time.Duration
	issuer     string
	now        func() time.Time
}

// SessionOption customizes manager construction.
type SessionOption func(*SessionManager)

// WithSessionClock injects a custom clock (useful for tests).
func WithSessionClock(clock func() time.Time) SessionOption {
	return func(m *SessionManager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// NewSessionManager returns a manager that signs session cookies with the
// configured key. Session duration is expressed in hours.
func NewSessionManager(cfg Config, opts ...SessionOption) *SessionManager {
	duration := 24 * time.Hour
	if cfg.GetSessionDuration() > 0 {
		duration = time.Duration(cfg.GetSessionDuration()) * time.Hour
	}

	m := &SessionManager{
		sessions:   map[string]*Session{},
		signingKey: []byte(cfg.GetSigningKey()),
		duration:   duration,
		issuer:     "go-admin-gate",
		now:        time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// Duration returns the configured session lifetime.
func (m *SessionManager) Duration() time.Duration {
	return m.duration
}

// Create opens a new anonymous session and returns the signed cookie token.
func (m *SessionManager) Create(ip, userAgent string) (*Session, string, error) {
	now := m.now()
	session := &Session{
		ID:         uuid.New().String(),
		IP:         ip,
		UserAgent:  userAgent,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.duration),
		challenges: map[ChallengeKind]string{},
	}

	token, err := m.signToken(session)
	if err != nil {
		return nil, "", err
	}

	m.mu.Lock()
	m.evictLocked(now)
	m.sessions[session.ID] = session
	m.mu.Unlock()

	return session, token, nil
}

// evictLocked drops expired sessions and, when the anonymous population is
// at the bound, the oldest anonymous session. Runs on every Create so the
// table stays bounded without a background sweeper.
func (m *SessionManager) evictLocked(now time.Time) {
	anonymous := 0
	var oldest *Session

	for id, session := range m.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(m.sessions, id)
			continue
		}
		if session.Authenticated {
			continue
		}
		anonymous++
		if oldest == nil || session.CreatedAt.Before(oldest.CreatedAt) {
			oldest = session
		}
	}

	if anonymous >= MaxAnonymousSessions && oldest != nil {
		delete(m.sessions, oldest.ID)
	}
}

// FromToken resolves the session referenced by a signed cookie token.
func (m *SessionManager) FromToken(raw string) (*Session, error) {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrSessionNotFound
		}
		return m.signingKey, nil
	}, jwt.WithIssuer(m.issuer))
	if err != nil || !token.Valid {
		return nil, ErrSessionNotFound
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.ID == "" {
		return nil, ErrSessionNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[claims.ID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	if !m.now().Before(session.ExpiresAt) {
		delete(m.sessions, claims.ID)
		return nil, ErrSessionNotFound
	}

	return session, nil
}

// Authenticate marks the session as having completed a login ceremony.
func (m *SessionManager) Authenticate(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}

	session.Authenticated = true
	return nil
}

// Destroy removes the session.
func (m *SessionManager) Destroy(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// SetChallenge stores a single-use ceremony value on the session,
// replacing any previous value of the same kind.
func (m *SessionManager) SetChallenge(id string, kind ChallengeKind, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}

	session.challenges[kind] = value
	return nil
}

// ConsumeChallenge returns and clears the stored value. The second return
// is false when no value of that kind is pending.
func (m *SessionManager) ConsumeChallenge(id string, kind ChallengeKind) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return "", false
	}

	value, ok := session.challenges[kind]
	if !ok || value == "" {
		return "", false
	}

	delete(session.challenges, kind)
	return value, true
}

func (m *SessionManager) signToken(session *Session) (string, error) {
	claims := &jwt.RegisteredClaims{
		ID:        session.ID,
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
		ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign session token")
	}

	return signed, nil
}
