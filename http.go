package admingate

import (
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// CookieOptions controls the session cookie attributes.
type CookieOptions struct {
	Name     string
	Secure   bool
	SameSite string
}

// DefaultCookieOptions returns the attributes used unless overridden.
func DefaultCookieOptions() CookieOptions {
	return CookieOptions{
		Name:     "admin_session",
		Secure:   true,
		SameSite: "Lax",
	}
}

// SessionFromContext resolves the session referenced by the request cookie.
func SessionFromContext(ctx router.Context, sessions *SessionManager, cookieName string) (*Session, error) {
	raw := ctx.Cookies(cookieName)
	if raw == "" {
		return nil, ErrSessionNotFound
	}
	return sessions.FromToken(raw)
}

// EnsureSession resolves the request session, creating an anonymous one and
// setting the cookie when none exists. Ceremonies that start before login
// need a session to hold their challenge.
func EnsureSession(ctx router.Context, sessions *SessionManager, opts CookieOptions) (*Session, error) {
	if session, err := SessionFromContext(ctx, sessions, opts.Name); err == nil {
		return session, nil
	}

	session, token, err := sessions.Create(ctx.IP(), ctx.GetString("User-Agent", ""))
	if err != nil {
		return nil, err
	}

	SetSessionCookie(ctx, token, sessions.Duration(), opts)
	return session, nil
}

// SetSessionCookie writes the signed session token.
func SetSessionCookie(ctx router.Context, token string, duration time.Duration, opts CookieOptions) {
	ctx.Cookie(&router.Cookie{
		Name:     opts.Name,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(ctx router.Context, opts CookieOptions) {
	ctx.Cookie(&router.Cookie{
		Name:     opts.Name,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}

// RequireAuthenticated gates a route group behind an authenticated session.
// The resolved session is stored in locals under "session".
func RequireAuthenticated(sessions *SessionManager, cookieName string, errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	if errorHandler == nil {
		errorHandler = defaultAuthErrHandler
	}

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			session, err := SessionFromContext(ctx, sessions, cookieName)
			if err != nil {
				return errorHandler(ctx, err)
			}
			if !session.Authenticated {
				return errorHandler(ctx, ErrNotAuthenticated)
			}

			ctx.Set("session", session)
			return next(ctx)
		}
	}
}

func defaultAuthErrHandler(ctx router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryAuth, "authentication required").
			WithCode(errors.CodeUnauthorized)
	}

	status := router.StatusUnauthorized
	if richErr.Code != 0 {
		status = richErr.Code
	}

	return ctx.JSON(status, map[string]any{
		"success": false,
		"error":   richErr.Message,
		"code":    richErr.TextCode,
	})
}
