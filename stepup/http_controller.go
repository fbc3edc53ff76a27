package stepup

import (
	"net/http"
	"net/url"
	"strings"

	admingate "github.com/goliatone/go-admin-gate"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPController handles the step-up OAuth routes.
type HTTPController struct {
	verifier *Verifier
	trust    *admingate.TrustRegistry
	sessions *admingate.SessionManager
	config   HTTPConfig
}

// HTTPConfig configures the HTTP controller.
type HTTPConfig struct {
	// PathPrefix for routes (default: "/auth/github")
	PathPrefix string

	// CookieName holding the session token (default: "admin_session")
	CookieName string

	// SuccessRedirect is where verified devices land (default: "/")
	SuccessRedirect string

	// ErrorRedirect is the redirect for verification errors
	ErrorRedirect string
}

// NewHTTPController creates a step-up HTTP controller.
func NewHTTPController(verifier *Verifier, trust *admingate.TrustRegistry, sessions *admingate.SessionManager, cfg HTTPConfig) *HTTPController {
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = "/auth/github"
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "admin_session"
	}
	if cfg.SuccessRedirect == "" {
		cfg.SuccessRedirect = "/"
	}
	if cfg.ErrorRedirect == "" {
		cfg.ErrorRedirect = "/login?error=verification_failed"
	}

	return &HTTPController{
		verifier: verifier,
		trust:    trust,
		sessions: sessions,
		config:   cfg,
	}
}

// RegisterRoutes registers the step-up routes on a group mounted at
// PathPrefix.
func (c *HTTPController) RegisterRoutes(group RouteRegistrar) {
	group.Get("/callback", c.Callback)
	group.Get("/", c.BeginVerification)
}

// BeginVerification redirects the browser into the provider ceremony. The
// pending token for the caller's IP rides along as OAuth state; without a
// pending entry there is nothing to verify.
func (c *HTTPController) BeginVerification(ctx router.Context) error {
	ip := ctx.IP()

	pending, ok := c.trust.PendingFor(ip)
	if !ok {
		return ctx.JSON(router.StatusUnauthorized, map[string]string{
			"error": ErrNoPendingVerification.Error(),
		})
	}

	if token := ctx.Query("token"); token != "" && token != pending.Token {
		return ctx.JSON(router.StatusUnauthorized, map[string]string{
			"error": ErrTokenMismatch.Error(),
		})
	}

	return ctx.Redirect(c.verifier.AuthorizeURL(pending.Token), http.StatusTemporaryRedirect)
}

// Callback completes the provider ceremony.
func (c *HTTPController) Callback(ctx router.Context) error {
	code := ctx.Query("code")
	state := ctx.Query("state")

	if errCode := ctx.Query("error"); errCode != "" {
		redirectURL := appendQueryParam(c.config.ErrorRedirect, "oauth_error", errCode)
		return ctx.Redirect(redirectURL, http.StatusTemporaryRedirect)
	}

	if code == "" || state == "" {
		redirectURL := appendQueryParam(c.config.ErrorRedirect, "error", "missing_params")
		return ctx.Redirect(redirectURL, http.StatusTemporaryRedirect)
	}

	session := c.sessionFromCookie(ctx)

	if err := c.verifier.HandleCallback(ctx.Context(), code, state, ctx.IP(), ctx.GetString("User-Agent", ""), session); err != nil {
		return c.handleError(ctx, err)
	}

	ctx.SetHeader("Content-Type", "text/html; charset=utf-8")
	return ctx.Status(router.StatusOK).SendString(
		`<!DOCTYPE html><html><body><h1>Device verified</h1>` +
			`<p>This device is now trusted. <a href="` + c.config.SuccessRedirect + `">Continue</a></p>` +
			`</body></html>`)
}

func (c *HTTPController) sessionFromCookie(ctx router.Context) *admingate.Session {
	raw := ctx.Cookies(c.config.CookieName)
	if raw == "" {
		return nil
	}

	session, err := c.sessions.FromToken(raw)
	if err != nil {
		return nil
	}
	return session
}

func (c *HTTPController) handleError(ctx router.Context, err error) error {
	code := "verification_failed"
	var rich *errors.Error
	if errors.As(err, &rich) && rich.TextCode != "" {
		code = rich.TextCode
	}

	redirectURL := appendQueryParam(c.config.ErrorRedirect, "error", code)
	return ctx.Redirect(redirectURL, http.StatusTemporaryRedirect)
}

func appendQueryParam(rawURL, key, value string) string {
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err == nil {
		query := parsed.Query()
		query.Set(key, value)
		parsed.RawQuery = query.Encode()
		return parsed.String()
	}

	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + url.QueryEscape(key) + "=" + url.QueryEscape(value)
}
