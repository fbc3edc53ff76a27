// Package stepup performs OAuth-based device verification. After a correct
// password from an unknown IP, the login orchestrator issues a pending
// token; the browser completes an OAuth ceremony against the configured
// provider carrying that token as state, and the verifier admits the IP
// only when the external identity matches the configured admin account.
package stepup

import (
	"context"
	"strings"

	admingate "github.com/goliatone/go-admin-gate"
)

// Verifier drives the step-up ceremony against one identity provider.
type Verifier struct {
	provider   IdentityProvider
	trust      *admingate.TrustRegistry
	sessions   *admingate.SessionManager
	events     *admingate.EventLog
	adminLogin string
	logger     admingate.Logger
}

// VerifierOption customizes verifier construction.
type VerifierOption func(*Verifier)

// WithVerifierLogger overrides the default logger.
func WithVerifierLogger(logger admingate.Logger) VerifierOption {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewVerifier wires a step-up verifier. adminLogin is the provider account
// allowed to verify devices; the comparison is case-insensitive.
func NewVerifier(provider IdentityProvider, trust *admingate.TrustRegistry, sessions *admingate.SessionManager, events *admingate.EventLog, adminLogin string, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		provider:   provider,
		trust:      trust,
		sessions:   sessions,
		events:     events,
		adminLogin: adminLogin,
		logger:     admingate.DefaultLogger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}

	return v
}

// AuthorizeURL returns the provider authorization URL for a pending token.
// The token rides in the OAuth state parameter so the callback can be
// matched back to the IP that started the ceremony.
func (v *Verifier) AuthorizeURL(token string) string {
	return v.provider.AuthCodeURL(token)
}

// HandleCallback completes the ceremony: it validates the state token
// against the pending entry for ip, exchanges the code, fetches the
// external identity, and admits the IP only on an admin match. Identity
// mismatches lock the IP; provider outages leave the pending entry intact
// so the user can retry.
func (v *Verifier) HandleCallback(ctx context.Context, code, state, ip, userAgent string, session *admingate.Session) error {
	switch v.trust.CheckPending(ip, state) {
	case admingate.ConsumeNotFound:
		return ErrNoPendingVerification
	case admingate.ConsumeExpired:
		v.rejected(ip, userAgent, "token expired")
		return ErrTokenExpired
	case admingate.ConsumeMismatch:
		v.rejected(ip, userAgent, "token mismatch")
		return ErrTokenMismatch
	}

	token, err := v.provider.Exchange(ctx, code)
	if err != nil {
		v.logger.Error("step-up token exchange failed", "error", err)
		return ErrVerificationUnavailable
	}

	identity, err := v.provider.FetchIdentity(ctx, token)
	if err != nil {
		v.logger.Error("step-up identity fetch failed", "error", err)
		return ErrVerificationUnavailable
	}

	if !strings.EqualFold(identity.Login, v.adminLogin) {
		v.trust.RejectVerification(ip)
		v.events.Append(admingate.SecurityEvent{
			Kind:      admingate.EventStepUpRejected,
			IP:        ip,
			UserAgent: userAgent,
			Locked:    true,
			Details:   map[string]any{"provider": v.provider.Name(), "login": identity.Login},
		})
		v.locked(ip, userAgent, "wrong identity")
		return ErrWrongIdentity
	}

	// The pending entry may have expired between the check and the
	// provider round trip.
	switch v.trust.ConsumePendingVerification(ip, state) {
	case admingate.ConsumeExpired:
		v.rejected(ip, userAgent, "token expired")
		return ErrTokenExpired
	case admingate.ConsumeMismatch:
		v.rejected(ip, userAgent, "token mismatch")
		return ErrTokenMismatch
	case admingate.ConsumeNotFound:
		return ErrNoPendingVerification
	}

	if session != nil {
		if err := v.sessions.Authenticate(session.ID); err != nil {
			return err
		}
		v.sessions.ConsumeChallenge(session.ID, admingate.ChallengeStepUp)
	}

	v.events.Append(admingate.SecurityEvent{
		Kind:      admingate.EventStepUpVerified,
		IP:        ip,
		UserAgent: userAgent,
		Success:   true,
		Details:   map[string]any{"provider": v.provider.Name(), "login": identity.Login},
	})

	return nil
}

// rejected records a failed ceremony. Every rejection locks the IP, so an
// ip_locked event follows for the admin timeline.
func (v *Verifier) rejected(ip, userAgent, reason string) {
	v.events.Append(admingate.SecurityEvent{
		Kind:      admingate.EventStepUpRejected,
		IP:        ip,
		UserAgent: userAgent,
		Locked:    true,
		Details:   map[string]any{"provider": v.provider.Name(), "reason": reason},
	})
	v.locked(ip, userAgent, reason)
}

func (v *Verifier) locked(ip, userAgent, reason string) {
	v.events.Append(admingate.SecurityEvent{
		Kind:      admingate.EventIPLocked,
		IP:        ip,
		UserAgent: userAgent,
		Locked:    true,
		Details:   map[string]any{"reason": reason},
	})
}
