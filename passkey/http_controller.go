package passkey

import (
	validation "github.com/go-ozzo/ozzo-validation"
	admingate "github.com/goliatone/go-admin-gate"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPController exposes the passkey ceremonies over HTTP.
type HTTPController struct {
	authenticator *Authenticator
	sessions      *admingate.SessionManager
	cookies       admingate.CookieOptions
	logger        admingate.Logger
}

// HTTPControllerOption customizes controller construction.
type HTTPControllerOption func(*HTTPController)

// WithControllerLogger overrides the default logger.
func WithControllerLogger(logger admingate.Logger) HTTPControllerOption {
	return func(c *HTTPController) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCookieOptions overrides the session cookie attributes.
func WithCookieOptions(opts admingate.CookieOptions) HTTPControllerOption {
	return func(c *HTTPController) {
		c.cookies = opts
	}
}

// NewHTTPController creates a passkey HTTP controller.
func NewHTTPController(authenticator *Authenticator, sessions *admingate.SessionManager, opts ...HTTPControllerOption) *HTTPController {
	c := &HTTPController{
		authenticator: authenticator,
		sessions:      sessions,
		cookies:       admingate.DefaultCookieOptions(),
		logger:        admingate.DefaultLogger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// RegisterRoutes registers the passkey routes on the root router group.
func (c *HTTPController) RegisterRoutes(group RouteRegistrar) {
	group.Post("/passkey/register/start", c.RegisterStart)
	group.Post("/passkey/register/complete", c.RegisterComplete)
	group.Post("/passkey/login/start", c.LoginStart)
	group.Post("/passkey/login/complete", c.LoginComplete)
	group.Get("/passkeys", c.List)
	group.Get("/passkeys/exists", c.Exists)
	group.Delete("/passkeys/:id", c.Delete)
}

// RegisterStart opens an enrollment ceremony for the current session.
func (c *HTTPController) RegisterStart(ctx router.Context) error {
	session, err := admingate.SessionFromContext(ctx, c.sessions, c.cookies.Name)
	if err != nil {
		return c.handleError(ctx, admingate.ErrNotAuthenticated)
	}

	options, err := c.authenticator.StartRegistration(session, ctx.GetString("Host", ""))
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, options)
}

// RegisterCompletePayload is the client response to a creation ceremony.
type RegisterCompletePayload struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	PublicKey         string `json:"publicKey"`
	AttestationObject string `json:"attestationObject"`
	ClientDataJSON    string `json:"clientDataJSON"`
}

// Validate will validate the payload
func (p RegisterCompletePayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.ID, validation.Required),
		validation.Field(&p.PublicKey, validation.Required),
		validation.Field(&p.ClientDataJSON, validation.Required),
	)
}

// RegisterComplete persists the new credential.
func (c *HTTPController) RegisterComplete(ctx router.Context) error {
	session, err := admingate.SessionFromContext(ctx, c.sessions, c.cookies.Name)
	if err != nil {
		return c.handleError(ctx, admingate.ErrNotAuthenticated)
	}

	payload := new(RegisterCompletePayload)
	if err := ctx.Bind(payload); err != nil {
		c.logger.Error("passkey register parse payload: ", "error", err)
		return c.badRequest(ctx, "failed to parse body")
	}

	if err := payload.Validate(); err != nil {
		c.logger.Error("passkey register validate payload: ", "error", err)
		return c.badRequest(ctx, err.Error())
	}

	cred := RegistrationCredential{
		ID:                payload.ID,
		Name:              payload.Name,
		PublicKey:         payload.PublicKey,
		AttestationObject: payload.AttestationObject,
		ClientDataJSON:    payload.ClientDataJSON,
	}

	if err := c.authenticator.CompleteRegistration(session, cred, ctx.IP(), ctx.GetString("User-Agent", "")); err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{"success": true})
}

// LoginStart opens an assertion ceremony. An anonymous session is created
// when the request carries no cookie, so the challenge has somewhere to
// live.
func (c *HTTPController) LoginStart(ctx router.Context) error {
	session, err := admingate.EnsureSession(ctx, c.sessions, c.cookies)
	if err != nil {
		return c.handleError(ctx, err)
	}

	options, err := c.authenticator.StartLogin(session, ctx.GetString("Host", ""))
	if err != nil {
		if errors.Is(err, ErrNoPasskeysRegistered) {
			return ctx.JSON(router.StatusNotFound, map[string]any{
				"success":    false,
				"noPasskeys": true,
			})
		}
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, options)
}

// LoginCompletePayload is the client response to an assertion ceremony.
type LoginCompletePayload struct {
	ID                string `json:"id"`
	AuthenticatorData string `json:"authenticatorData"`
	ClientDataJSON    string `json:"clientDataJSON"`
	Signature         string `json:"signature"`
}

// Validate will validate the payload
func (p LoginCompletePayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.ID, validation.Required),
		validation.Field(&p.AuthenticatorData, validation.Required),
		validation.Field(&p.ClientDataJSON, validation.Required),
	)
}

// LoginComplete validates the assertion and authenticates the session.
func (c *HTTPController) LoginComplete(ctx router.Context) error {
	session, err := admingate.SessionFromContext(ctx, c.sessions, c.cookies.Name)
	if err != nil {
		return c.handleError(ctx, err)
	}

	payload := new(LoginCompletePayload)
	if err := ctx.Bind(payload); err != nil {
		c.logger.Error("passkey login parse payload: ", "error", err)
		return c.badRequest(ctx, "failed to parse body")
	}

	if err := payload.Validate(); err != nil {
		c.logger.Error("passkey login validate payload: ", "error", err)
		return c.badRequest(ctx, err.Error())
	}

	assertion := LoginAssertion{
		ID:                payload.ID,
		AuthenticatorData: payload.AuthenticatorData,
		ClientDataJSON:    payload.ClientDataJSON,
		Signature:         payload.Signature,
	}

	if err := c.authenticator.CompleteLogin(session, assertion, ctx.IP(), ctx.GetString("User-Agent", "")); err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{"success": true})
}

// List returns passkey metadata. Requires an authenticated session.
func (c *HTTPController) List(ctx router.Context) error {
	session, err := admingate.SessionFromContext(ctx, c.sessions, c.cookies.Name)
	if err != nil || !session.Authenticated {
		return c.handleError(ctx, admingate.ErrNotAuthenticated)
	}

	metas, err := c.authenticator.List()
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{"passkeys": metas})
}

// Exists reports whether any passkey is enrolled. Public: the login page
// uses it to decide whether to offer the passkey button.
func (c *HTTPController) Exists(ctx router.Context) error {
	exists, err := c.authenticator.Exists()
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{"exists": exists})
}

// Delete removes a credential. Requires an authenticated session.
func (c *HTTPController) Delete(ctx router.Context) error {
	session, err := admingate.SessionFromContext(ctx, c.sessions, c.cookies.Name)
	if err != nil || !session.Authenticated {
		return c.handleError(ctx, admingate.ErrNotAuthenticated)
	}

	id := ctx.Param("id")
	if id == "" {
		return c.badRequest(ctx, "missing credential id")
	}

	if err := c.authenticator.Delete(session, id, ctx.IP(), ctx.GetString("User-Agent", "")); err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{"success": true})
}

func (c *HTTPController) badRequest(ctx router.Context, msg string) error {
	return ctx.JSON(router.StatusBadRequest, map[string]any{
		"success": false,
		"error":   msg,
	})
}

func (c *HTTPController) handleError(ctx router.Context, err error) error {
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
