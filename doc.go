// Package admingate implements the authentication and device-trust gateway
// for a single-admin dashboard: password login, IP-based device trust with
// GitHub OAuth step-up for unrecognized addresses, passkey ceremonies, and
// encrypted-at-rest credential storage.
//
// Login flow:
//   - LoginOrchestrator is the entry point. It checks the lockout policy,
//     verifies the password, and either authenticates the session (known IP)
//     or issues a pending step-up token (unknown IP). The stepup subpackage
//     drives the OAuth ceremony that converts a pending token into a trusted
//     device.
//   - Passkey login is an independent entry path handled by the passkey
//     subpackage; it bypasses the device-trust checks entirely.
//
// Security events:
//   - EventLog is a bounded, append-only audit trail. Every security-relevant
//     outcome (success or failure) is appended before the HTTP response is
//     written. Persistence runs best-effort (errors are logged) so a full
//     disk never blocks authentication.
//
// Persistence:
//   - All durable state is file backed with owner-only permissions. Passkey
//     records are sealed with AES-256-GCM before touching disk; the key lives
//     in a separate file. See the store subpackage.
package admingate
