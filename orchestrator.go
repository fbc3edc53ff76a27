package admingate

// LoginResult is the outcome of a password login attempt.
type LoginResult struct {
	Authenticated     bool
	RequiresStepUp    bool
	VerificationToken string
}

// LoginOrchestrator composes the password gate, the device-trust registry,
// and the session manager into the top-level login state machine:
//
//	Anonymous -> Locked            reject, no password check
//	Anonymous -> PasswordInvalid   log + reject
//	Anonymous -> Valid + known IP  authenticated
//	Anonymous -> Valid + new IP    pending step-up
//
// Wrong-password attempts are logged but never lock the IP by themselves;
// locking is tied to step-up failure only.
type LoginOrchestrator struct {
	passwords *PasswordGate
	trust     *TrustRegistry
	sessions  *SessionManager
	events    *EventLog
	logger    Logger
}

// OrchestratorOption customizes orchestrator construction.
type OrchestratorOption func(*LoginOrchestrator)

// WithOrchestratorLogger overrides the default logger.
func WithOrchestratorLogger(logger Logger) OrchestratorOption {
	return func(o *LoginOrchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewLoginOrchestrator wires the login state machine.
func NewLoginOrchestrator(passwords *PasswordGate, trust *TrustRegistry, sessions *SessionManager, events *EventLog, opts ...OrchestratorOption) *LoginOrchestrator {
	o := &LoginOrchestrator{
		passwords: passwords,
		trust:     trust,
		sessions:  sessions,
		events:    events,
		logger:    defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	return o
}

// Login runs a password attempt for the given session. The lockout check
// happens before the password is ever verified.
func (o *LoginOrchestrator) Login(session *Session, password, ip, userAgent string) (*LoginResult, error) {
	if o.trust.IsIPLocked(ip) {
		o.events.Append(SecurityEvent{
			Kind:      EventLoginLocked,
			IP:        ip,
			UserAgent: userAgent,
			Locked:    true,
		})
		return nil, ErrIPLocked
	}

	ok, err := o.passwords.Verify(password)
	if err != nil {
		o.logger.Error("password verification error", "error", err)
		return nil, err
	}

	if !ok {
		o.events.Append(SecurityEvent{
			Kind:      EventLoginFailure,
			IP:        ip,
			UserAgent: userAgent,
		})
		return nil, ErrInvalidPassword
	}

	if o.trust.IsKnownIP(ip) {
		if err := o.sessions.Authenticate(session.ID); err != nil {
			return nil, err
		}
		o.events.Append(SecurityEvent{
			Kind:      EventLoginSuccess,
			IP:        ip,
			UserAgent: userAgent,
			Success:   true,
		})
		return &LoginResult{Authenticated: true}, nil
	}

	pending, err := o.trust.IssuePendingVerification(ip, userAgent)
	if err != nil {
		o.logger.Error("unable to issue step-up token", "error", err)
		return nil, err
	}

	if err := o.sessions.SetChallenge(session.ID, ChallengeStepUp, pending.Token); err != nil {
		return nil, err
	}

	o.events.Append(SecurityEvent{
		Kind:      EventStepUpStarted,
		IP:        ip,
		UserAgent: userAgent,
		Details:   map[string]any{"expires_at": pending.ExpiresAt},
	})

	return &LoginResult{
		RequiresStepUp:    true,
		VerificationToken: pending.Token,
	}, nil
}

// ChangePassword proves the current password before swapping the hash.
func (o *LoginOrchestrator) ChangePassword(current, next, ip, userAgent string) error {
	if err := o.passwords.ChangePassword(current, next); err != nil {
		return err
	}

	o.events.Append(SecurityEvent{
		Kind:      EventPasswordChanged,
		IP:        ip,
		UserAgent: userAgent,
		Success:   true,
	})
	return nil
}

// Logout destroys the session.
func (o *LoginOrchestrator) Logout(session *Session) {
	if session == nil {
		return
	}
	o.sessions.Destroy(session.ID)
}
