package stepup

import "github.com/goliatone/go-errors"

const (
	TextCodeTokenExpired    = "verification_token_expired"
	TextCodeTokenMismatch   = "verification_token_mismatch"
	TextCodeWrongIdentity   = "verification_wrong_identity"
	TextCodeNetworkFailure  = "verification_network_failure"
	TextCodeNoPendingStepUp = "verification_not_pending"
)

// ErrTokenExpired is returned when the pending verification outlived its TTL.
// The originating IP gets locked as a consequence.
var ErrTokenExpired = errors.New("verification token expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMismatch is returned when the callback state does not match the
// token issued for the IP. The IP gets locked as a consequence.
var ErrTokenMismatch = errors.New("verification token mismatch", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMismatch).
	WithCode(errors.CodeUnauthorized)

// ErrWrongIdentity is returned when the OAuth ceremony completed but the
// external account is not the configured admin.
var ErrWrongIdentity = errors.New("verified identity does not match admin account", errors.CategoryAuthz).
	WithTextCode(TextCodeWrongIdentity).
	WithCode(errors.CodeForbidden)

// ErrVerificationUnavailable wraps provider transport failures. The pending
// token survives so the user can retry the ceremony.
var ErrVerificationUnavailable = errors.New("identity provider unavailable", errors.CategoryAuth).
	WithTextCode(TextCodeNetworkFailure).
	WithCode(errors.CodeUnauthorized)

// ErrNoPendingVerification is returned when no step-up is in flight for the IP.
var ErrNoPendingVerification = errors.New("no pending verification for address", errors.CategoryAuth).
	WithTextCode(TextCodeNoPendingStepUp).
	WithCode(errors.CodeUnauthorized)
