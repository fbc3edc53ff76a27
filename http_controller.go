package admingate

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// GateController exposes password login, logout, password change, and the
// security administration endpoints.
type GateController struct {
	Orchestrator *LoginOrchestrator
	Sessions     *SessionManager
	Trust        *TrustRegistry
	Events       *EventLog
	Logger       Logger
	Cookies      CookieOptions
	Debug        bool
}

// GateControllerOption customizes controller construction.
type GateControllerOption func(*GateController)

// WithGateLogger overrides the default logger.
func WithGateLogger(logger Logger) GateControllerOption {
	return func(c *GateController) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithGateDebug enables request/response dumps on the login endpoint.
func WithGateDebug(debug bool) GateControllerOption {
	return func(c *GateController) {
		c.Debug = debug
	}
}

// WithGateCookieOptions overrides the session cookie attributes.
func WithGateCookieOptions(opts CookieOptions) GateControllerOption {
	return func(c *GateController) {
		c.Cookies = opts
	}
}

// NewGateController wires the top-level HTTP controller.
func NewGateController(orchestrator *LoginOrchestrator, sessions *SessionManager, trust *TrustRegistry, events *EventLog, opts ...GateControllerOption) *GateController {
	c := &GateController{
		Orchestrator: orchestrator,
		Sessions:     sessions,
		Trust:        trust,
		Events:       events,
		Logger:       defLogger{},
		Cookies:      DefaultCookieOptions(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// RegisterRoutes registers the gateway routes.
func (c *GateController) RegisterRoutes(app RouteRegistrar) {
	app.Post("/login", c.Login)
	app.Post("/logout", c.Logout)
	app.Post("/password", c.ChangePassword)
	app.Get("/security/log", c.SecurityLog)
	app.Get("/security/known-ips", c.KnownIPs)
	app.Post("/security/unlock-ip", c.UnlockIP)
	app.Delete("/security/known-ips/:ip", c.ForgetKnownIP)
}

// LoginPayload is the password login body.
type LoginPayload struct {
	Password string `form:"password" json:"password"`
}

// Validate will validate the payload
func (p LoginPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Password, validation.Required, validation.Length(1, 200)),
	)
}

// Login runs a password attempt. An unknown IP with a correct password gets
// a step-up verification token instead of an authenticated session.
func (c *GateController) Login(ctx router.Context) error {
	session, err := EnsureSession(ctx, c.Sessions, c.Cookies)
	if err != nil {
		return c.handleError(ctx, err)
	}

	payload := new(LoginPayload)
	if err := ctx.Bind(payload); err != nil {
		c.Logger.Error("login parse payload: ", "error", err)
		return c.badRequest(ctx, "failed to parse body")
	}

	if err := payload.Validate(); err != nil {
		c.Logger.Error("login validate payload: ", "error", err)
		return c.badRequest(ctx, err.Error())
	}

	result, err := c.Orchestrator.Login(session, payload.Password, ctx.IP(), ctx.GetString("User-Agent", ""))
	if err != nil {
		return c.handleError(ctx, err)
	}

	if c.Debug {
		fmt.Println("======= GATE LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(result))
		fmt.Println("=========================")
	}

	if result.RequiresStepUp {
		return ctx.JSON(router.StatusOK, map[string]any{
			"success":            false,
			"requiresGitHubAuth": true,
			"verificationToken":  result.VerificationToken,
		})
	}

	return ctx.JSON(router.StatusOK, map[string]any{"success": true})
}

// Logout destroys the session and expires the cookie.
func (c *GateController) Logout(ctx router.Context) error {
	if session, err := SessionFromContext(ctx, c.Sessions, c.Cookies.Name); err == nil {
		c.Orchestrator.Logout(session)
	}

	ClearSessionCookie(ctx, c.Cookies)
	return ctx.JSON(router.StatusOK, map[string]any{"success": true})
}

// ChangePasswordPayload is the password change body.
type ChangePasswordPayload struct {
	CurrentPassword string `form:"current_password" json:"currentPassword"`
	NewPassword     string `form:"new_password" json:"newPassword"`
}

// Validate will validate the payload
func (p ChangePasswordPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.CurrentPassword, validation.Required),
		validation.Field(&p.NewPassword, validation.Required, validation.Length(10, 200)),
	)
}

// ChangePassword proves the current password before swapping the hash.
func (c *GateController) ChangePassword(ctx router.Context) error {
	if _, err := c.requireAuthenticated(ctx); err != nil {
		return c.handleError(ctx, err)
	}

	payload := new(ChangePasswordPayload)
	if err := ctx.Bind(payload); err != nil {
		c.Logger.Error("change password parse payload: ", "error", err)
		return c.badRequest(ctx, "failed to parse body")
	}

	if err := payload.Validate(); err != nil {
		c.Logger.Error("change password validate payload: ", "error", err)
		return c.badRequest(ctx, err.Error())
	}

	if err := c.Orchestrator.ChangePassword(payload.CurrentPassword, payload.NewPassword, ctx.IP(), ctx.GetString("User-Agent", "")); err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{"success": true})
}

// SecurityLog returns the audit trail, newest first.
func (c *GateController) SecurityLog(ctx router.Context) error {
	if _, err := c.requireAuthenticated(ctx); err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"events": c.Events.List(),
	})
}

// KnownIPs returns the trusted addresses and active locks.
func (c *GateController) KnownIPs(ctx router.Context) error {
	if _, err := c.requireAuthenticated(ctx); err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"ips":    c.Trust.KnownIPs(),
		"locked": c.Trust.LockedIPs(),
	})
}

// UnlockIPPayload names the address to unlock.
type UnlockIPPayload struct {
	IP string `form:"ip" json:"ip"`
}

// Validate will validate the payload
func (p UnlockIPPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.IP, validation.Required),
	)
}

// UnlockIP lifts a lock before it expires.
func (c *GateController) UnlockIP(ctx router.Context) error {
	if _, err := c.requireAuthenticated(ctx); err != nil {
		return c.handleError(ctx, err)
	}

	payload := new(UnlockIPPayload)
	if err := ctx.Bind(payload); err != nil {
		c.Logger.Error("unlock ip parse payload: ", "error", err)
		return c.badRequest(ctx, "failed to parse body")
	}

	if err := payload.Validate(); err != nil {
		c.Logger.Error("unlock ip validate payload: ", "error", err)
		return c.badRequest(ctx, err.Error())
	}

	c.Trust.UnlockIP(payload.IP)
	c.Events.Append(SecurityEvent{
		Kind:      EventIPUnlocked,
		IP:        payload.IP,
		UserAgent: ctx.GetString("User-Agent", ""),
		Success:   true,
	})

	return ctx.JSON(router.StatusOK, map[string]any{"success": true})
}

// ForgetKnownIP removes an address from the trusted set, forcing the next
// login from it back through step-up verification.
func (c *GateController) ForgetKnownIP(ctx router.Context) error {
	if _, err := c.requireAuthenticated(ctx); err != nil {
		return c.handleError(ctx, err)
	}

	ip := ctx.Param("ip")
	if ip == "" {
		return c.badRequest(ctx, "missing ip")
	}

	c.Trust.ForgetKnownIP(ip)
	c.Events.Append(SecurityEvent{
		Kind:      EventIPForgotten,
		IP:        ip,
		UserAgent: ctx.GetString("User-Agent", ""),
		Success:   true,
	})

	return ctx.JSON(router.StatusOK, map[string]any{"success": true})
}

func (c *GateController) requireAuthenticated(ctx router.Context) (*Session, error) {
	session, err := SessionFromContext(ctx, c.Sessions, c.Cookies.Name)
	if err != nil {
		return nil, ErrNotAuthenticated
	}
	if !session.Authenticated {
		return nil, ErrNotAuthenticated
	}
	return session, nil
}

func (c *GateController) badRequest(ctx router.Context, msg string) error {
	return ctx.JSON(router.StatusBadRequest, map[string]any{
		"success": false,
		"error":   msg,
	})
}

func (c *GateController) handleError(ctx router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "unexpected error").
			WithCode(errors.CodeInternal)
	}

	status := router.StatusInternalServerError
	if richErr.Code != 0 {
		status = richErr.Code
	}

	return ctx.JSON(status, map[string]any{
		"success": false,
		"error":   richErr.Message,
		"code":    richErr.TextCode,
	})
}
