package passkey

import "github.com/goliatone/go-errors"

const (
	TextCodeNoPasskeys         = "passkey_none_registered"
	TextCodeCredentialNotFound = "passkey_credential_not_found"
	TextCodeUserNotVerified    = "passkey_user_not_verified"
	TextCodeReplayDetected     = "passkey_replay_detected"
	TextCodeInvalidChallenge   = "passkey_invalid_challenge"
	TextCodeMalformedAssertion = "passkey_malformed_assertion"
)

// ErrNoPasskeysRegistered is returned when a login ceremony starts against
// an empty credential store.
var ErrNoPasskeysRegistered = errors.New("no passkeys registered", errors.CategoryNotFound).
	WithTextCode(TextCodeNoPasskeys).
	WithCode(errors.CodeNotFound)

// ErrCredentialNotFound is returned when the presented credential id does
// not match a stored passkey.
var ErrCredentialNotFound = errors.New("passkey credential not found", errors.CategoryAuth).
	WithTextCode(TextCodeCredentialNotFound).
	WithCode(errors.CodeUnauthorized)

// ErrUserNotVerified is returned when the assertion flags are missing the
// user-present or user-verified bit.
var ErrUserNotVerified = errors.New("user presence or verification flag missing", errors.CategoryAuth).
	WithTextCode(TextCodeUserNotVerified).
	WithCode(errors.CodeUnauthorized)

// ErrReplayDetected is returned when the assertion counter did not advance
// past the stored counter.
var ErrReplayDetected = errors.New("signature counter did not advance", errors.CategoryAuth).
	WithTextCode(TextCodeReplayDetected).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidChallenge is returned when no pending challenge exists or the
// response was built over a different one.
var ErrInvalidChallenge = errors.New("challenge missing or mismatched", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidChallenge).
	WithCode(errors.CodeUnauthorized)

// ErrMalformedAssertion is returned when the authenticator data cannot be
// decoded or is shorter than the fixed header.
var ErrMalformedAssertion = errors.New("malformed authenticator data", errors.CategoryBadInput).
	WithTextCode(TextCodeMalformedAssertion).
	WithCode(errors.CodeBadRequest)
