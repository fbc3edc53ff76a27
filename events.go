package admingate

import (
	"sync"
	"time"
)

// EventKind enumerates the security-relevant event categories.
type EventKind string

const (
	EventLoginSuccess        EventKind = "auth.login.success"
	EventLoginFailure        EventKind = "auth.login.failure"
	EventLoginLocked         EventKind = "auth.login.locked"
	EventStepUpStarted       EventKind = "auth.stepup.started"
	EventStepUpVerified      EventKind = "auth.stepup.verified"
	EventStepUpRejected      EventKind = "auth.stepup.rejected"
	EventPasskeyRegistered   EventKind = "auth.passkey.registered"
	EventPasskeyLoginSuccess EventKind = "auth.passkey.login.success"
	EventPasskeyLoginFailure EventKind = "auth.passkey.login.failure"
	EventPasskeyDeleted      EventKind = "auth.passkey.deleted"
	EventIPLocked            EventKind = "trust.ip.locked"
	EventIPUnlocked          EventKind = "trust.ip.unlocked"
	EventIPForgotten         EventKind = "trust.ip.forgotten"
	EventPasswordChanged     EventKind = "auth.password.changed"
	EventStorageDecrypt      EventKind = "storage.decrypt.failure"
)

// SecurityEvent captures audit information about one auth-relevant action.
type SecurityEvent struct {
	Kind      EventKind      `json:"kind"`
	IP        string         `json:"ip"`
	Timestamp time.Time      `json:"timestamp"`
	UserAgent string         `json:"user_agent,omitempty"`
	Success   bool           `json:"success"`
	Locked    bool           `json:"locked,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// maxEvents bounds the audit trail; the oldest entry is evicted first.
const maxEvents = 100

// EventLog is a bounded append-only audit trail, newest first. Appends are
// serialized; persistence is best-effort so a write failure never blocks
// the login path.
type EventLog struct {
	mu      sync.Mutex
	events  []SecurityEvent
	storage Snapshotter
	logger  Logger
	now     func() time.Time
}

// EventLogOption customizes EventLog construction.
type EventLogOption func(*EventLog)

// WithEventLogClock injects a custom clock (useful for tests).
func WithEventLogClock(clock func() time.Time) EventLogOption {
	return func(l *EventLog) {
		if clock != nil {
			l.now = clock
		}
	}
}

// WithEventLogLogger overrides the logger used for persistence failures.
func WithEventLogLogger(logger Logger) EventLogOption {
	return func(l *EventLog) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewEventLog returns an event log restored from storage. A nil storage
// keeps the log purely in memory.
func NewEventLog(storage Snapshotter, opts ...EventLogOption) *EventLog {
	l := &EventLog{
		storage: storage,
		logger:  defLogger{},
		now:     time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	if storage != nil {
		var restored []SecurityEvent
		if err := storage.Load(&restored); err != nil {
			l.logger.Warn("event log restore failed, starting empty", "error", err)
		} else {
			l.events = restored
		}
	}

	return l
}

// Append records an event at the head of the log, evicting the oldest
// entry once the bound is reached.
func (l *EventLog) Append(event SecurityEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}

	l.events = append([]SecurityEvent{event}, l.events...)
	if len(l.events) > maxEvents {
		l.events = l.events[:maxEvents]
	}

	l.persistLocked()
}

// List returns a copy of the log, newest first.
func (l *EventLog) List() []SecurityEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]SecurityEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Len reports the number of retained events.
func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func (l *EventLog) persistLocked() {
	if l.storage == nil {
		return
	}
	if err := l.storage.Save(l.events); err != nil {
		l.logger.Warn("event log persist failed", "error", err)
	}
}
