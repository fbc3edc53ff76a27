package admingate_test

import (
	"testing"
	"time"

	admingate "github.com/goliatone/go-admin-gate"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type gateFixture struct {
	*orchestratorFixture
	controller *admingate.GateController
}

func newGateFixture(t *testing.T, password string) *gateFixture {
	t.Helper()
	f := newOrchestratorFixture(t, password)
	return &gateFixture{
		orchestratorFixture: f,
		controller:          admingate.NewGateController(f.orchestrator, f.sessions, f.trust, f.events),
	}
}

// capturedResponse records the JSON written by a handler.
type capturedResponse struct {
	status int
	body   map[string]any
}

// loginContext builds a cookie-less POST /login request from ip.
func loginContext(ip, password string, captured *capturedResponse) *router.MockContext {
	ctx := router.NewMockContext()
	ctx.On("IP").Return(ip)
	ctx.On("GetString", "User-Agent", "").Return("test-agent").Maybe()
	ctx.On("Cookie", mock.Anything).Return().Maybe()
	ctx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		args.Get(0).(*admingate.LoginPayload).Password = password
	}).Return(nil)
	ctx.On("JSON", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		captured.status = args.Get(0).(int)
		captured.body = args.Get(1).(map[string]any)
	}).Return(nil)
	return ctx
}

func TestGateLoginUnknownIPRequiresGitHubVerification(t *testing.T) {
	f := newGateFixture(t, "correct password")

	var captured capturedResponse
	ctx := loginContext("203.0.113.7", "correct password", &captured)

	require.NoError(t, f.controller.Login(ctx))

	assert.Equal(t, router.StatusOK, captured.status)
	assert.Equal(t, false, captured.body["success"])
	assert.Equal(t, true, captured.body["requiresGitHubAuth"])

	token, ok := captured.body["verificationToken"].(string)
	require.True(t, ok)
	require.NotEmpty(t, token)

	pending, ok := f.trust.PendingFor("203.0.113.7")
	require.True(t, ok)
	assert.Equal(t, pending.Token, token)
}

func TestGateLoginKnownIPSucceedsAndSetsCookie(t *testing.T) {
	f := newGateFixture(t, "correct password")
	f.trust.RegisterKnownIP("10.0.0.1")

	var captured capturedResponse
	var cookieToken string
	ctx := router.NewMockContext()
	ctx.On("IP").Return("10.0.0.1")
	ctx.On("GetString", "User-Agent", "").Return("test-agent").Maybe()
	ctx.On("Cookie", mock.Anything).Run(func(args mock.Arguments) {
		cookie := args.Get(0).(*router.Cookie)
		assert.Equal(t, "admin_session", cookie.Name)
		assert.True(t, cookie.HTTPOnly)
		cookieToken = cookie.Value
	}).Return()
	ctx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		args.Get(0).(*admingate.LoginPayload).Password = "correct password"
	}).Return(nil)
	ctx.On("JSON", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		captured.status = args.Get(0).(int)
		captured.body = args.Get(1).(map[string]any)
	}).Return(nil)

	require.NoError(t, f.controller.Login(ctx))

	assert.Equal(t, router.StatusOK, captured.status)
	assert.Equal(t, true, captured.body["success"])

	// The cookie written during the request resolves to an authenticated
	// session.
	require.NotEmpty(t, cookieToken)
	session, err := f.sessions.FromToken(cookieToken)
	require.NoError(t, err)
	assert.True(t, session.Authenticated)
}

func TestGateLoginWrongPasswordReturns401(t *testing.T) {
	f := newGateFixture(t, "correct password")

	var captured capturedResponse
	ctx := loginContext("10.0.0.1", "wrong", &captured)

	require.NoError(t, f.controller.Login(ctx))

	assert.Equal(t, router.StatusUnauthorized, captured.status)
	assert.Equal(t, false, captured.body["success"])
	assert.Equal(t, admingate.TextCodeInvalidPassword, captured.body["code"])
}

func TestGateLoginLockedIPReturns403(t *testing.T) {
	f := newGateFixture(t, "correct password")
	f.trust.LockIP("10.0.0.1", 30*time.Minute, "step-up identity mismatch")

	var captured capturedResponse
	ctx := loginContext("10.0.0.1", "correct password", &captured)

	require.NoError(t, f.controller.Login(ctx))

	assert.Equal(t, router.StatusForbidden, captured.status)
	assert.Equal(t, false, captured.body["success"])
	assert.Equal(t, admingate.TextCodeIPLocked, captured.body["code"])
}

func TestGateLoginMalformedBodyReturns400(t *testing.T) {
	f := newGateFixture(t, "correct password")

	var captured capturedResponse
	ctx := router.NewMockContext()
	ctx.On("IP").Return("10.0.0.1")
	ctx.On("GetString", "User-Agent", "").Return("test-agent").Maybe()
	ctx.On("Cookie", mock.Anything).Return().Maybe()
	ctx.On("Bind", mock.Anything).Return(assert.AnError)
	ctx.On("JSON", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		captured.status = args.Get(0).(int)
		captured.body = args.Get(1).(map[string]any)
	}).Return(nil)

	require.NoError(t, f.controller.Login(ctx))

	assert.Equal(t, router.StatusBadRequest, captured.status)
	assert.Equal(t, false, captured.body["success"])
}

func TestGateLogoutDestroysSessionAndExpiresCookie(t *testing.T) {
	f := newGateFixture(t, "correct password")
	_, token, err := f.sessions.Create("10.0.0.1", "test-agent")
	require.NoError(t, err)

	var cleared *router.Cookie
	ctx := router.NewMockContext()
	ctx.CookiesM["admin_session"] = token
	ctx.On("Cookie", mock.Anything).Run(func(args mock.Arguments) {
		cleared = args.Get(0).(*router.Cookie)
	}).Return()
	ctx.On("JSON", router.StatusOK, mock.Anything).Return(nil)

	require.NoError(t, f.controller.Logout(ctx))

	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.True(t, cleared.Expires.Before(time.Now()))

	_, err = f.sessions.FromToken(token)
	assert.ErrorIs(t, err, admingate.ErrSessionNotFound)
}

func TestGateSecurityLogRequiresAuthentication(t *testing.T) {
	f := newGateFixture(t, "correct password")

	var captured capturedResponse
	ctx := router.NewMockContext()
	ctx.On("JSON", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		captured.status = args.Get(0).(int)
		captured.body = args.Get(1).(map[string]any)
	}).Return(nil)

	require.NoError(t, f.controller.SecurityLog(ctx))

	assert.Equal(t, router.StatusUnauthorized, captured.status)
	assert.Equal(t, admingate.TextCodeNotAuthenticated, captured.body["code"])
}

func TestGateUnlockIPEndpoint(t *testing.T) {
	f := newGateFixture(t, "correct password")
	f.trust.LockIP("192.0.2.5", 30*time.Minute, "test")

	session, token, err := f.sessions.Create("10.0.0.1", "test-agent")
	require.NoError(t, err)
	require.NoError(t, f.sessions.Authenticate(session.ID))

	var captured capturedResponse
	ctx := router.NewMockContext()
	ctx.CookiesM["admin_session"] = token
	ctx.On("GetString", "User-Agent", "").Return("test-agent").Maybe()
	ctx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		args.Get(0).(*admingate.UnlockIPPayload).IP = "192.0.2.5"
	}).Return(nil)
	ctx.On("JSON", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		captured.status = args.Get(0).(int)
		captured.body = args.Get(1).(map[string]any)
	}).Return(nil)

	require.NoError(t, f.controller.UnlockIP(ctx))

	assert.Equal(t, router.StatusOK, captured.status)
	assert.Equal(t, true, captured.body["success"])
	assert.False(t, f.trust.IsIPLocked("192.0.2.5"))

	events := f.events.List()
	require.NotEmpty(t, events)
	assert.Equal(t, admingate.EventIPUnlocked, events[0].Kind)
}

func TestRequireAuthenticatedRejectsMissingCookie(t *testing.T) {
	f := newGateFixture(t, "correct password")

	var captured capturedResponse
	ctx := router.NewMockContext()
	ctx.On("JSON", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		captured.status = args.Get(0).(int)
		captured.body = args.Get(1).(map[string]any)
	}).Return(nil)

	nextCalled := false
	handler := admingate.RequireAuthenticated(f.sessions, "admin_session", nil)(
		func(ctx router.Context) error {
			nextCalled = true
			return nil
		})

	require.NoError(t, handler(ctx))
	assert.False(t, nextCalled)
	assert.Equal(t, router.StatusUnauthorized, captured.status)
	assert.Equal(t, false, captured.body["success"])
}

func TestRequireAuthenticatedRejectsAnonymousSession(t *testing.T) {
	f := newGateFixture(t, "correct password")
	_, token, err := f.sessions.Create("10.0.0.1", "test-agent")
	require.NoError(t, err)

	var captured capturedResponse
	ctx := router.NewMockContext()
	ctx.CookiesM["admin_session"] = token
	ctx.On("JSON", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		captured.status = args.Get(0).(int)
		captured.body = args.Get(1).(map[string]any)
	}).Return(nil)

	nextCalled := false
	handler := admingate.RequireAuthenticated(f.sessions, "admin_session", nil)(
		func(ctx router.Context) error {
			nextCalled = true
			return nil
		})

	require.NoError(t, handler(ctx))
	assert.False(t, nextCalled)
	assert.Equal(t, router.StatusUnauthorized, captured.status)
	assert.Equal(t, admingate.TextCodeNotAuthenticated, captured.body["code"])
}

func TestRequireAuthenticatedPassesAuthenticatedSession(t *testing.T) {
	f := newGateFixture(t, "correct password")
	session, token, err := f.sessions.Create("10.0.0.1", "test-agent")
	require.NoError(t, err)
	require.NoError(t, f.sessions.Authenticate(session.ID))

	ctx := router.NewMockContext()
	ctx.CookiesM["admin_session"] = token
	ctx.On("Set", "session", mock.Anything).Return().Maybe()

	nextCalled := false
	handler := admingate.RequireAuthenticated(f.sessions, "admin_session", nil)(
		func(ctx router.Context) error {
			nextCalled = true
			return nil
		})

	require.NoError(t, handler(ctx))
	assert.True(t, nextCalled)
}
