package admingate

import "github.com/goliatone/go-errors"

const (
	TextCodeInvalidPassword  = "invalid_password"
	TextCodeIPLocked         = "ip_locked"
	TextCodeSessionNotFound  = "session_not_found"
	TextCodeNotAuthenticated = "not_authenticated"
	TextCodeStorageDecrypt   = "storage_decrypt_failed"
	TextCodeInvalidChallenge = "passkey_invalid_challenge"
	TextCodeUnknownIP        = "unknown_ip"
	TextCodePendingNotFound  = "pending_verification_not_found"
)

// ErrInvalidPassword is returned when the submitted password does not verify.
var ErrInvalidPassword = errors.New("invalid password", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidPassword).
	WithCode(errors.CodeUnauthorized)

// ErrIPLocked is returned while an unexpired lock exists for the source IP.
var ErrIPLocked = errors.New("ip address is locked", errors.CategoryAuth).
	WithTextCode(TextCodeIPLocked).
	WithCode(errors.CodeForbidden)

// ErrSessionNotFound is returned when the request carries no usable session.
var ErrSessionNotFound = errors.New("session not found", errors.CategoryAuth).
	WithTextCode(TextCodeSessionNotFound).
	WithCode(errors.CodeUnauthorized)

// ErrNotAuthenticated is returned by the authentication gate for sessions
// that exist but never completed a login ceremony.
var ErrNotAuthenticated = errors.New("authentication required", errors.CategoryAuth).
	WithTextCode(TextCodeNotAuthenticated).
	WithCode(errors.CodeUnauthorized)

// ErrDecryptFailure is surfaced by the credential store when the sealed
// passkey blob cannot be opened (wrong key or corruption).
var ErrDecryptFailure = errors.New("unable to decrypt credential store", errors.CategoryInternal).
	WithTextCode(TextCodeStorageDecrypt).
	WithCode(errors.CodeInternal)

// ErrInvalidChallenge is returned when a ceremony response arrives without a
// matching pending challenge in the session.
var ErrInvalidChallenge = errors.New("no pending challenge for this session", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidChallenge).
	WithCode(errors.CodeBadRequest)

// ErrPendingNotFound is returned when a step-up callback references an IP
// with no pending verification entry.
var ErrPendingNotFound = errors.New("no pending verification for ip", errors.CategoryBadInput).
	WithTextCode(TextCodePendingNotFound).
	WithCode(errors.CodeBadRequest)
