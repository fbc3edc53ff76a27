package admingate

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

const (
	// PendingVerificationTTL bounds how long a step-up token stays valid.
	PendingVerificationTTL = 10 * time.Minute

	// StepUpLockDuration is applied when a step-up attempt fails. A failed
	// step-up follows a correct password, so it is treated as a probable
	// intrusion rather than a benign retry.
	StepUpLockDuration = 30 * time.Minute
)

// LockedIP is a temporary lock. It is in force iff now < Until; expired
// entries are removed lazily on the next check.
type LockedIP struct {
	IP     string    `json:"ip"`
	Until  time.Time `json:"until"`
	Reason string    `json:"reason"`
}

// PendingVerification is a single-use step-up token bound to an IP.
type PendingVerification struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// ConsumeResult is the outcome of redeeming a pending verification token.
type ConsumeResult int

const (
	ConsumeSuccess ConsumeResult = iota
	ConsumeExpired
	ConsumeMismatch
	ConsumeNotFound
)

func (r ConsumeResult) String() string {
	switch r {
	case ConsumeSuccess:
		return "success"
	case ConsumeExpired:
		return "expired"
	case ConsumeMismatch:
		return "mismatch"
	default:
		return "not_found"
	}
}

type trustState struct {
	KnownIPs []string                       `json:"ips"`
	Pending  map[string]PendingVerification `json:"pending_verification"`
	Locks    map[string]LockedIP            `json:"locked_ips"`
}

// TrustRegistry tracks known IPs, pending step-up verifications, and
// temporary IP locks. All mutations are serialized and persisted through
// the injected Snapshotter.
type TrustRegistry struct {
	mu      sync.Mutex
	known   map[string]struct{}
	pending map[string]PendingVerification
	locks   map[string]LockedIP
	storage Snapshotter
	logger  Logger
	now     func() time.Time
}

// TrustRegistryOption customizes registry construction.
type TrustRegistryOption func(*TrustRegistry)

// WithTrustClock injects a custom clock (useful for tests).
func WithTrustClock(clock func() time.Time) TrustRegistryOption {
	return func(r *TrustRegistry) {
		if clock != nil {
			r.now = clock
		}
	}
}

// WithTrustLogger overrides the logger used for persistence failures.
func WithTrustLogger(logger Logger) TrustRegistryOption {
	return func(r *TrustRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewTrustRegistry restores a registry from storage. A nil storage keeps
// the registry purely in memory.
func NewTrustRegistry(storage Snapshotter, opts ...TrustRegistryOption) *TrustRegistry {
	r := &TrustRegistry{
		known:   map[string]struct{}{},
		pending: map[string]PendingVerification{},
		locks:   map[string]LockedIP{},
		storage: storage,
		logger:  defLogger{},
		now:     time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	if storage != nil {
		var restored trustState
		if err := storage.Load(&restored); err != nil {
			r.logger.Warn("trust registry restore failed, starting empty", "error", err)
		} else {
			for _, ip := range restored.KnownIPs {
				r.known[ip] = struct{}{}
			}
			if restored.Pending != nil {
				r.pending = restored.Pending
			}
			if restored.Locks != nil {
				r.locks = restored.Locks
			}
		}
	}

	return r
}

// IsIPLocked reports whether an unexpired lock exists for ip. Expired
// locks self-heal on check.
func (r *TrustRegistry) IsIPLocked(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[ip]
	if !ok {
		return false
	}

	if !r.now().Before(lock.Until) {
		delete(r.locks, ip)
		r.persistLocked()
		return false
	}

	return true
}

// LockIP places a temporary lock on ip.
func (r *TrustRegistry) LockIP(ip string, d time.Duration, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.locks[ip] = LockedIP{
		IP:     ip,
		Until:  r.now().Add(d),
		Reason: reason,
	}
	r.persistLocked()
}

// UnlockIP removes any lock on ip. Admin only.
func (r *TrustRegistry) UnlockIP(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.locks, ip)
	r.persistLocked()
}

// LockedIPs returns the unexpired locks.
func (r *TrustRegistry) LockedIPs() []LockedIP {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make([]LockedIP, 0, len(r.locks))
	for ip, lock := range r.locks {
		if !now.Before(lock.Until) {
			delete(r.locks, ip)
			continue
		}
		out = append(out, lock)
	}
	return out
}

// IsKnownIP reports whether ip completed step-up verification before.
func (r *TrustRegistry) IsKnownIP(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.known[ip]
	return ok
}

// RegisterKnownIP marks ip as a trusted device address.
func (r *TrustRegistry) RegisterKnownIP(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.known[ip] = struct{}{}
	r.persistLocked()
}

// ForgetKnownIP forces re-verification for ip. Admin only.
func (r *TrustRegistry) ForgetKnownIP(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.known, ip)
	r.persistLocked()
}

// KnownIPs returns the trusted addresses.
func (r *TrustRegistry) KnownIPs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.known))
	for ip := range r.known {
		out = append(out, ip)
	}
	return out
}

// IssuePendingVerification creates a step-up token for ip. At most one
// pending entry exists per IP; reissuing overwrites the previous token.
func (r *TrustRegistry) IssuePendingVerification(ip, userAgent string) (PendingVerification, error) {
	token, err := randomToken()
	if err != nil {
		return PendingVerification{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry := PendingVerification{
		Token:     token,
		ExpiresAt: r.now().Add(PendingVerificationTTL),
		UserAgent: userAgent,
	}
	r.pending[ip] = entry
	r.persistLocked()

	return entry, nil
}

// PendingFor returns the pending entry for ip, if any, without consuming it.
func (r *TrustRegistry) PendingFor(ip string) (PendingVerification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.pending[ip]
	return entry, ok
}

// CheckPending validates a token against the pending entry for ip without
// redeeming it, so callers can verify the external identity before the
// entry is consumed. Expired entries and token mismatches are destructive:
// the entry is removed and the IP locked, same as a failed redeem.
func (r *TrustRegistry) CheckPending(ip, token string) ConsumeResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.pending[ip]
	if !ok {
		return ConsumeNotFound
	}

	if !r.now().Before(entry.ExpiresAt) {
		delete(r.pending, ip)
		r.lockLocked(ip, StepUpLockDuration, "step-up token expired")
		r.persistLocked()
		return ConsumeExpired
	}

	if entry.Token != token {
		delete(r.pending, ip)
		r.lockLocked(ip, StepUpLockDuration, "step-up token mismatch")
		r.persistLocked()
		return ConsumeMismatch
	}

	return ConsumeSuccess
}

// RejectVerification removes the pending entry and locks ip. Used when the
// external identity did not match the configured admin.
func (r *TrustRegistry) RejectVerification(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.pending, ip)
	r.lockLocked(ip, StepUpLockDuration, "step-up identity mismatch")
	r.persistLocked()
}

// ConsumePendingVerification redeems a token. On success the entry is
// removed and ip becomes known. Expired tokens and token mismatches lock
// the IP for StepUpLockDuration: the password step already succeeded, so a
// bad token here means tampering or an expired ceremony, not a typo.
func (r *TrustRegistry) ConsumePendingVerification(ip, token string) ConsumeResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.pending[ip]
	if !ok {
		return ConsumeNotFound
	}

	delete(r.pending, ip)

	if !r.now().Before(entry.ExpiresAt) {
		r.lockLocked(ip, StepUpLockDuration, "step-up token expired")
		r.persistLocked()
		return ConsumeExpired
	}

	if entry.Token != token {
		r.lockLocked(ip, StepUpLockDuration, "step-up token mismatch")
		r.persistLocked()
		return ConsumeMismatch
	}

	r.known[ip] = struct{}{}
	r.persistLocked()
	return ConsumeSuccess
}

func (r *TrustRegistry) lockLocked(ip string, d time.Duration, reason string) {
	r.locks[ip] = LockedIP{
		IP:     ip,
		Until:  r.now().Add(d),
		Reason: reason,
	}
}

func (r *TrustRegistry) persistLocked() {
	if r.storage == nil {
		return
	}

	state := trustState{
		KnownIPs: make([]string, 0, len(r.known)),
		Pending:  r.pending,
		Locks:    r.locks,
	}
	for ip := range r.known {
		state.KnownIPs = append(state.KnownIPs, ip)
	}

	if err := r.storage.Save(state); err != nil {
		r.logger.Warn("trust registry persist failed", "error", err)
	}
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
