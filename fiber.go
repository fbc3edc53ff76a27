package admingate

import (
	"github.com/gofiber/fiber/v2"
)

const fiberSessionKey = "gate_session"

// FiberProtectedRoute guards a fiber route behind an authenticated session.
// The resolved session is stored in locals for handlers downstream. Use this
// when mounting the gateway on a raw fiber app instead of the router adapter.
func FiberProtectedRoute(sessions *SessionManager, cookieName string, errorHandler func(*fiber.Ctx, error) error) fiber.Handler {
	if errorHandler == nil {
		errorHandler = func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   err.Error(),
			})
		}
	}

	return func(c *fiber.Ctx) error {
		raw := c.Cookies(cookieName)
		if raw == "" {
			return errorHandler(c, ErrNotAuthenticated)
		}

		session, err := sessions.FromToken(raw)
		if err != nil {
			return errorHandler(c, ErrNotAuthenticated)
		}

		if !session.Authenticated {
			return errorHandler(c, ErrNotAuthenticated)
		}

		c.Locals(fiberSessionKey, session)
		return c.Next()
	}
}

// FiberSession returns the session stored by FiberProtectedRoute.
func FiberSession(c *fiber.Ctx) (*Session, error) {
	val := c.Locals(fiberSessionKey)
	if val == nil {
		return nil, ErrSessionNotFound
	}

	session, ok := val.(*Session)
	if !ok || session == nil {
		return nil, ErrSessionNotFound
	}

	return session, nil
}
