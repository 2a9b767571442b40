package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/crm/internal/auth/domain"
	authhttp "github.com/aussiebroadwan/crm/internal/auth/http"
	"github.com/aussiebroadwan/crm/internal/auth/metrics"
	"github.com/aussiebroadwan/crm/internal/auth/service"
	"github.com/aussiebroadwan/crm/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/crm/pkg/authsdk"
	"github.com/aussiebroadwan/crm/pkg/httpx"
	"github.com/aussiebroadwan/crm/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const (
	testSecret     = "0123456789abcdef0123456789abcdef"
	adminEmail     = "admin@example.com"
	adminPassword  = "admin-password"
	memberEmail    = "member@example.com"
	memberPassword = "member-password"
)

var generous = httpx.RateLimitConfig{RequestsPerWindow: 10000, Window: time.Minute, Burst: 10000}

type server struct {
	router  *authhttp.Router
	metrics *metrics.Metrics
	users   *service.UserService

	tenantID string
	adminID  string
	memberID string
}

type option func(*authhttp.Router)

func newServer(t *testing.T, seed bool, opts ...option) *server {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	codec, err := jwtx.NewCodec([]byte(testSecret))
	require.NoError(t, err)

	m := metrics.New()
	creds := &service.RefreshService{Store: st}
	s := &server{
		metrics: m,
		users:   &service.UserService{Store: st, Credentials: creds, Metrics: m},
	}

	r := authhttp.NewRouter(codec, authhttp.CookieConfig{}, "", "test", st, m, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.SessionService = &service.SessionService{Store: st, Credentials: creds, Tokens: codec, Metrics: m}
	r.UserService = s.users
	r.BootstrapService = &service.BootstrapService{Store: st, Token: "boot"}
	r.Limits = authhttp.RateLimits{Login: generous, Refresh: generous, Write: generous, Read: generous, Probe: generous}
	for _, opt := range opts {
		opt(r)
	}
	r.ApplyRoutes()
	s.router = r

	if seed {
		ctx := context.Background()
		res, err := r.BootstrapService.Seed(ctx, domain.BootstrapData{
			TenantName:    "Acme",
			AdminEmail:    adminEmail,
			AdminPassword: adminPassword,
		})
		require.NoError(t, err)
		s.tenantID, s.adminID = res.TenantID, res.AdminUserID

		admin := service.Actor{UserID: res.AdminUserID, TenantID: res.TenantID, Role: domain.RoleAdmin}
		member, err := s.users.Create(ctx, admin, service.CreateUserInput{Email: memberEmail, Password: memberPassword})
		require.NoError(t, err)
		s.memberID = member.ID
	}
	return s
}

func (s *server) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// login returns the access and refresh cookies.
func (s *server) login(t *testing.T, email, password string) (*http.Cookie, *http.Cookie) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/v1/auth/login", authsdk.LoginRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	access := cookieNamed(rec, authhttp.AccessCookieName)
	refresh := cookieNamed(rec, authhttp.RefreshCookieName)
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	return access, refresh
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestLogin_SetsSessionCookies(t *testing.T) {
	s := newServer(t, true)

	rec := s.do(t, http.MethodPost, "/v1/auth/login", authsdk.LoginRequest{Email: "  Member@Example.com ", Password: memberPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[authsdk.SessionResponse](t, rec)
	require.Equal(t, s.memberID, body.User.ID)
	require.Equal(t, "member", body.User.Role)
	require.True(t, body.AccessExpiresAt.After(time.Now()))

	access := cookieNamed(rec, authhttp.AccessCookieName)
	require.NotNil(t, access)
	require.True(t, access.HttpOnly)
	require.Equal(t, "/", access.Path)
	require.Equal(t, http.SameSiteLaxMode, access.SameSite)

	refresh := cookieNamed(rec, authhttp.RefreshCookieName)
	require.NotNil(t, refresh)
	require.True(t, refresh.HttpOnly)
	require.Equal(t, authhttp.RefreshCookiePath, refresh.Path)
	require.Equal(t, http.SameSiteStrictMode, refresh.SameSite)
	require.Greater(t, refresh.MaxAge, access.MaxAge)
}

func TestLogin_RememberMeExtendsRefreshCookie(t *testing.T) {
	s := newServer(t, true)

	short := s.do(t, http.MethodPost, "/v1/auth/login", authsdk.LoginRequest{Email: memberEmail, Password: memberPassword})
	long := s.do(t, http.MethodPost, "/v1/auth/login", authsdk.LoginRequest{Email: memberEmail, Password: memberPassword, RememberMe: true})

	require.Greater(t,
		cookieNamed(long, authhttp.RefreshCookieName).MaxAge,
		cookieNamed(short, authhttp.RefreshCookieName).MaxAge,
	)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	s := newServer(t, true)

	wrongPassword := s.do(t, http.MethodPost, "/v1/auth/login", authsdk.LoginRequest{Email: memberEmail, Password: "not-the-password"})
	unknownEmail := s.do(t, http.MethodPost, "/v1/auth/login", authsdk.LoginRequest{Email: "nobody@example.com", Password: "whatever-password"})

	require.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	require.Equal(t, wrongPassword.Code, unknownEmail.Code)
	require.JSONEq(t, wrongPassword.Body.String(), unknownEmail.Body.String())
	require.Nil(t, cookieNamed(wrongPassword, authhttp.AccessCookieName))
}

func TestLogin_MalformedBody(t *testing.T) {
	s := newServer(t, true)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, authsdk.ErrorCodeInvalidRequest, decode[authsdk.ErrorResponse](t, rec).Error)
}

func TestLogin_AlreadyAuthenticatedRedirects(t *testing.T) {
	s := newServer(t, true)
	access, _ := s.login(t, memberEmail, memberPassword)

	rec := s.do(t, http.MethodPost, "/v1/auth/login", authsdk.LoginRequest{Email: memberEmail, Password: memberPassword}, access)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, authhttp.DefaultLandingPath, rec.Header().Get("Location"))
}

func TestMe(t *testing.T) {
	s := newServer(t, true)

	rec := s.do(t, http.MethodGet, "/v1/auth/me", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, authsdk.ErrorCodeUnauthenticated, decode[authsdk.ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodGet, "/v1/auth/me", nil, &http.Cookie{Name: authhttp.AccessCookieName, Value: "garbage"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, authsdk.ErrorCodeUnauthenticated, decode[authsdk.ErrorResponse](t, rec).Error)

	access, _ := s.login(t, memberEmail, memberPassword)
	rec = s.do(t, http.MethodGet, "/v1/auth/me", nil, access)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[authsdk.User](t, rec)
	require.Equal(t, s.memberID, me.ID)
	require.Equal(t, s.tenantID, me.TenantID)
	require.NotContains(t, rec.Body.String(), "password")
}

func TestRefresh_IssuesAccessCookieOnly(t *testing.T) {
	s := newServer(t, true)
	_, refresh := s.login(t, memberEmail, memberPassword)

	rec := s.do(t, http.MethodPost, "/v1/auth/session/refresh", nil, refresh)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	access := cookieNamed(rec, authhttp.AccessCookieName)
	require.NotNil(t, access)
	require.NotEmpty(t, access.Value)
	require.Nil(t, cookieNamed(rec, authhttp.RefreshCookieName), "refresh cookie is not rotated")

	rec = s.do(t, http.MethodGet, "/v1/auth/me", nil, access)
	require.Equal(t, http.StatusOK, rec.Code)

	// Same refresh credential keeps working.
	rec = s.do(t, http.MethodPost, "/v1/auth/session/refresh", nil, refresh)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRefresh_RejectedClearsCookies(t *testing.T) {
	s := newServer(t, true)

	for name, cookies := range map[string][]*http.Cookie{
		"missing": nil,
		"unknown": {{Name: authhttp.RefreshCookieName, Value: "not-a-real-secret"}},
	} {
		t.Run(name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/v1/auth/session/refresh", nil, cookies...)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.Equal(t, authsdk.ErrorCodeUnauthenticated, decode[authsdk.ErrorResponse](t, rec).Error)

			for _, name := range []string{authhttp.AccessCookieName, authhttp.RefreshCookieName} {
				c := cookieNamed(rec, name)
				require.NotNil(t, c, name)
				require.Empty(t, c.Value)
				require.Negative(t, c.MaxAge)
			}
		})
	}
}

func TestLogout_RevokesAndClears(t *testing.T) {
	s := newServer(t, true)
	_, refresh := s.login(t, memberEmail, memberPassword)

	rec := s.do(t, http.MethodPost, "/v1/auth/session/logout", nil, refresh)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Negative(t, cookieNamed(rec, authhttp.AccessCookieName).MaxAge)
	require.Negative(t, cookieNamed(rec, authhttp.RefreshCookieName).MaxAge)

	rec = s.do(t, http.MethodPost, "/v1/auth/session/refresh", nil, refresh)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Logging out without a session still succeeds.
	rec = s.do(t, http.MethodPost, "/v1/auth/session/logout", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestUsers_AdminOnlyRoutes(t *testing.T) {
	s := newServer(t, true)
	adminAccess, _ := s.login(t, adminEmail, adminPassword)
	memberAccess, _ := s.login(t, memberEmail, memberPassword)

	rec := s.do(t, http.MethodGet, "/v1/users", nil, memberAccess)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/users", nil, adminAccess)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[authsdk.ListUsersResponse](t, rec).Users, 2)

	rec = s.do(t, http.MethodPost, "/v1/users", authsdk.CreateUserRequest{Email: "new@example.com", Password: "long-enough"}, memberAccess)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/users", authsdk.CreateUserRequest{Email: "new@example.com", Password: "long-enough"}, adminAccess)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "member", decode[authsdk.User](t, rec).Role)

	rec = s.do(t, http.MethodPost, "/v1/users", authsdk.CreateUserRequest{Email: "new@example.com", Password: "long-enough"}, adminAccess)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/users", authsdk.CreateUserRequest{Email: "short@example.com", Password: "short"}, adminAccess)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	v := decode[authsdk.ValidationErrorResponse](t, rec)
	require.Equal(t, authsdk.ErrorCodeValidation, v.Code)
	require.Contains(t, v.Details, "password")
}

func TestUsers_GetScopedToSelfForMembers(t *testing.T) {
	s := newServer(t, true)
	memberAccess, _ := s.login(t, memberEmail, memberPassword)

	rec := s.do(t, http.MethodGet, "/v1/users/me", nil, memberAccess)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, s.memberID, decode[authsdk.User](t, rec).ID)

	rec = s.do(t, http.MethodGet, "/v1/users/"+s.adminID, nil, memberAccess)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUsers_UpdateMe(t *testing.T) {
	s := newServer(t, true)
	memberAccess, _ := s.login(t, memberEmail, memberPassword)

	first := "Morgan"
	rec := s.do(t, http.MethodPatch, "/v1/users/me", authsdk.UpdateProfileRequest{FirstName: &first}, memberAccess)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	u := decode[authsdk.User](t, rec)
	require.Equal(t, "Morgan", u.FirstName)
	require.Equal(t, "member", u.Role)
}

func TestUsers_PrivilegeGuard(t *testing.T) {
	s := newServer(t, true)
	adminAccess, _ := s.login(t, adminEmail, adminPassword)

	member := "member"
	rec := s.do(t, http.MethodPatch, "/v1/users/"+s.adminID, authsdk.UpdateUserRequest{Role: &member}, adminAccess)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "cannot change your own administrator role", decode[authsdk.ErrorResponse](t, rec).ErrorDescription)

	// Deactivating the member revokes their refresh credentials.
	_, memberRefresh := s.login(t, memberEmail, memberPassword)
	inactive := false
	rec = s.do(t, http.MethodPatch, "/v1/users/"+s.memberID, authsdk.UpdateUserRequest{Active: &inactive}, adminAccess)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.False(t, decode[authsdk.User](t, rec).Active)

	rec = s.do(t, http.MethodPost, "/v1/auth/session/refresh", nil, memberRefresh)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPatch, "/v1/users/01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV", authsdk.UpdateUserRequest{Active: &inactive}, adminAccess)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBootstrap(t *testing.T) {
	s := newServer(t, false)
	req := authsdk.BootstrapRequest{TenantName: "Acme", AdminEmail: adminEmail, AdminPassword: adminPassword}

	send := func(token string, body any) *httptest.ResponseRecorder {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r := httptest.NewRequest(http.MethodPost, "/v1/bootstrap", bytes.NewReader(raw))
		if token != "" {
			r.Header.Set("X-Bootstrap-Token", token)
		}
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, r)
		return rec
	}

	require.Equal(t, http.StatusUnauthorized, send("", req).Code)
	require.Equal(t, http.StatusUnauthorized, send("wrong", req).Code)
	require.Equal(t, http.StatusBadRequest, send("boot", authsdk.BootstrapRequest{}).Code)

	rec := send("boot", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[authsdk.BootstrapResponse](t, rec)
	require.NotEmpty(t, res.TenantID)
	require.NotEmpty(t, res.AdminUserID)

	rec = send("boot", req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "already been bootstrapped")

	s.login(t, adminEmail, adminPassword)
}

func TestBootstrap_DisabledWithoutToken(t *testing.T) {
	s := newServer(t, false, func(r *authhttp.Router) { r.BootstrapService.Token = "" })

	rec := s.do(t, http.MethodPost, "/v1/bootstrap", authsdk.BootstrapRequest{})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProbes(t *testing.T) {
	s := newServer(t, false)

	rec := s.do(t, http.MethodGet, "/livez", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "test", decode[authsdk.HealthResponse](t, rec).Version)

	rec = s.do(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	h := decode[authsdk.HealthResponse](t, rec)
	require.Equal(t, "ok", h.Checks.Database)
	require.Equal(t, "ok", h.Checks.Signer)
}

func TestNoVerifier_FailsClosed(t *testing.T) {
	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	r := authhttp.NewRouter(nil, authhttp.CookieConfig{}, "", "test", st, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.UserService = &service.UserService{Store: st}
	r.SessionService = &service.SessionService{Store: st}
	r.BootstrapService = &service.BootstrapService{Store: st}
	r.ApplyRoutes()

	serve := func(method, path string) int {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec.Code
	}

	require.Equal(t, http.StatusServiceUnavailable, serve(http.MethodGet, "/v1/auth/me"))
	require.Equal(t, http.StatusServiceUnavailable, serve(http.MethodGet, "/readyz"))
	require.Equal(t, http.StatusOK, serve(http.MethodGet, "/livez"))
}

func TestLogin_RateLimited(t *testing.T) {
	s := newServer(t, true, func(r *authhttp.Router) {
		r.Limits.Login = httpx.RateLimitConfig{Name: "strict", RequestsPerWindow: 2, Window: time.Minute, Burst: 2}
	})

	bad := authsdk.LoginRequest{Email: memberEmail, Password: "wrong-password"}
	require.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/v1/auth/login", bad).Code)
	require.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/v1/auth/login", bad).Code)
	require.Equal(t, http.StatusTooManyRequests, s.do(t, http.MethodPost, "/v1/auth/login", bad).Code)
	require.Contains(t, s.do(t, http.MethodGet, "/metrics", nil).Body.String(),
		`auth_rate_limited_requests_total{profile="strict"} 1`)

	// A different email from the same address has its own budget.
	other := authsdk.LoginRequest{Email: adminEmail, Password: adminPassword}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/auth/login", other).Code)
}

func TestLogin_OversizeBodyRejected(t *testing.T) {
	s := newServer(t, true)

	body := `{"email":"` + memberEmail + `","password":"` + memberPassword + `","pad":"` +
		strings.Repeat("x", authhttp.MaxJSONBody) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Equal(t, httpx.ErrorCodeRequestTooLarge, decode[authsdk.ErrorResponse](t, rec).Error)
	require.Nil(t, cookieNamed(rec, authhttp.AccessCookieName))
}

func TestLogin_ForwardedForHonouredOnlyFromTrustedProxy(t *testing.T) {
	tight := httpx.RateLimitConfig{Name: "strict", RequestsPerWindow: 1, Window: time.Minute, Burst: 1}
	attempt := func(s *server, peer, forwardedFor string) int {
		raw, err := json.Marshal(authsdk.LoginRequest{Email: memberEmail, Password: "wrong-password"})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader(raw))
		req.RemoteAddr = peer + ":40000"
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		return rec.Code
	}

	direct := newServer(t, true, func(r *authhttp.Router) { r.Limits.Login = tight })
	require.Equal(t, http.StatusUnauthorized, attempt(direct, "198.51.100.7", "203.0.113.1"))
	require.Equal(t, http.StatusTooManyRequests, attempt(direct, "198.51.100.7", "203.0.113.2"),
		"a spoofed X-Forwarded-For must not buy a fresh bucket")

	proxied := newServer(t, true, func(r *authhttp.Router) {
		r.Limits.Login = tight
		r.TrustedProxies = []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	})
	require.Equal(t, http.StatusUnauthorized, attempt(proxied, "10.0.0.5", "203.0.113.1"))
	require.Equal(t, http.StatusUnauthorized, attempt(proxied, "10.0.0.5", "203.0.113.2"))
	require.Equal(t, http.StatusTooManyRequests, attempt(proxied, "10.0.0.5", "203.0.113.1"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t, true)
	s.login(t, memberEmail, memberPassword)
	s.do(t, http.MethodGet, "/v1/users", nil)

	rec := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `auth_logins_total{outcome="success"} 1`)
	require.Contains(t, rec.Body.String(), `auth_gate_decisions_total{decision="missing_token",policy="admin"} 1`)
}

func TestStaticFiles(t *testing.T) {
	s := newServer(t, false)

	rec := s.do(t, http.MethodGet, "/static/robots.txt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "User-agent")
}
