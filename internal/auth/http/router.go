package http

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"time"

	"github.com/aussiebroadwan/crm/internal/auth/metrics"
	"github.com/aussiebroadwan/crm/internal/auth/service"
	"github.com/aussiebroadwan/crm/internal/auth/store"
	"github.com/aussiebroadwan/crm/pkg/httpx"
	"github.com/aussiebroadwan/crm/pkg/jwtx"
	"github.com/aussiebroadwan/crm/pkg/slogx"

	_ "github.com/aussiebroadwan/crm/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

//go:embed static
var staticFiles embed.FS

// DefaultLandingPath is where an already signed-in caller of the login route
// is sent.
const DefaultLandingPath = "/v1/auth/me"

// RateLimits groups the per-route limiter profiles.
type RateLimits struct {
	Login   httpx.RateLimitConfig // per IP and email
	Refresh httpx.RateLimitConfig // per IP
	Write   httpx.RateLimitConfig // per user
	Read    httpx.RateLimitConfig // per user
	Probe   httpx.RateLimitConfig // per IP
}

// DefaultRateLimits maps routes onto the httpx profiles, honouring the
// RATELIMIT_* environment overrides.
func DefaultRateLimits() RateLimits {
	p := httpx.LoadLimitProfiles(os.Getenv)
	return RateLimits{
		Login:   p.Strict,
		Refresh: p.Moderate,
		Write:   p.Moderate,
		Read:    p.Lenient,
		Probe:   p.Public,
	}
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	cookies      CookieConfig
	landingPath  string
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store
	metrics      *metrics.Metrics

	Limits           RateLimits
	TrustedProxies   []netip.Prefix // peers whose X-Forwarded-For is believed
	SessionService   *service.SessionService
	UserService      *service.UserService
	BootstrapService *service.BootstrapService
}

// NewRouter builds a router. A nil verifier is allowed: every protected route
// then answers 503 while the probes and bootstrap keep working. An empty
// landingPath means DefaultLandingPath.
func NewRouter(
	verifier jwtx.Verifier,
	cookies CookieConfig,
	landingPath string,
	buildVersion string,
	st store.Store,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Router {
	if landingPath == "" {
		landingPath = DefaultLandingPath
	}

	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		cookies:      cookies,
		landingPath:  landingPath,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		metrics:      m,
		logger:       logger,
		Limits:       DefaultRateLimits(),
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		r.metrics.Instrument,
		httpx.Gate(httpx.GateConfig{
			Verifier:     verifier,
			AccessCookie: AccessCookieName,
			AllowBearer:  true,
			Routes:       Policies(),
			LandingPath:  r.landingPath,
			OnDecision: func(p httpx.Policy, d string) {
				r.metrics.GateDecision(p.String(), d)
			},
		}),
	}

	return r
}

// Policies is the gate's route table. Anything not listed requires a
// verified identity.
func Policies() []httpx.Route {
	return []httpx.Route{
		{Pattern: "GET /livez", Policy: httpx.PolicyPublic},
		{Pattern: "GET /readyz", Policy: httpx.PolicyPublic},
		{Pattern: "GET /metrics", Policy: httpx.PolicyPublic},
		{Pattern: "/swagger/", Policy: httpx.PolicyPublic},
		{Pattern: "/static/", Policy: httpx.PolicyPublic},
		{Pattern: "POST /v1/bootstrap", Policy: httpx.PolicyPublic},
		{Pattern: "POST /v1/auth/session/refresh", Policy: httpx.PolicyPublic},
		{Pattern: "POST /v1/auth/session/logout", Policy: httpx.PolicyPublic},

		{Pattern: "POST /v1/auth/login", Policy: httpx.PolicyLoginOnly},

		{Pattern: "GET /v1/users", Policy: httpx.PolicyAdmin},
		{Pattern: "POST /v1/users", Policy: httpx.PolicyAdmin},
		{Pattern: "PATCH /v1/users/{id}", Policy: httpx.PolicyAdmin},

		{Pattern: "GET /v1/auth/me", Policy: httpx.PolicyAuthenticated},
		{Pattern: "PATCH /v1/users/me", Policy: httpx.PolicyAuthenticated},
		{Pattern: "GET /v1/users/{id}", Policy: httpx.PolicyAuthenticated},
	}
}

// MaxJSONBody bounds the bodies of the unauthenticated JSON routes.
const MaxJSONBody = 64 << 10

func (r *Router) ApplyRoutes() {
	r.middlewares = append([]httpx.Middleware{httpx.TrustProxies(r.TrustedProxies)}, r.middlewares...)

	r.registerSession()
	r.registerUsers()
	r.registerSystem()
	r.registerBootstrap()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())

	sub, _ := fs.Sub(staticFiles, "static")
	r.Mux.Handle("/static/", http.StripPrefix("/static/", http.FileServerFS(sub)))
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			CRM Authentication API
//	@version		0.1.0
//	@description	Session and authorization service for the CRM. Access and refresh credentials travel in HTTP-only cookies.
//	@description
//	@description				Access tokens are HS256 JWTs. A Bearer header is accepted when the cookie is absent.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/crm
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	CookieAuth
//	@in							cookie
//	@name						access_token
//	@description				Short-lived access token set by login and refresh.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerSession() {
	h := &SessionHandler{Sessions: r.SessionService, Cookies: r.cookies}

	// Limited by IP + email so one address cannot spray many accounts and
	// one account cannot be sprayed from many requests.
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.LimitBody(MaxJSONBody),
			httpx.RateLimitByIPAndJSONField(r.Limits.Login, "email", r.metrics.RateLimited),
		),
	)

	r.Mux.Handle("POST /v1/auth/session/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(r.Limits.Refresh, r.metrics.RateLimited),
		),
	)

	r.Mux.Handle("POST /v1/auth/session/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.RateLimitByIP(r.Limits.Refresh, r.metrics.RateLimited),
		),
	)

	r.Mux.Handle("GET /v1/auth/me",
		httpx.Chain(http.HandlerFunc(h.HandleMe),
			httpx.RequireIdentity,
			httpx.RateLimitByUser(r.Limits.Read, r.metrics.RateLimited),
		),
	)
}

func (r *Router) registerUsers() {
	h := &UsersHandler{Users: r.UserService}

	r.Mux.Handle("GET /v1/users",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			httpx.RequireAdmin,
			httpx.RateLimitByUser(r.Limits.Read, r.metrics.RateLimited),
		),
	)
	r.Mux.Handle("POST /v1/users",
		httpx.Chain(http.HandlerFunc(h.HandleCreate),
			httpx.RequireAdmin,
			httpx.RateLimitByUser(r.Limits.Write, r.metrics.RateLimited),
		),
	)
	r.Mux.Handle("GET /v1/users/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleGet),
			httpx.RequireIdentity,
			httpx.RateLimitByUser(r.Limits.Read, r.metrics.RateLimited),
		),
	)
	r.Mux.Handle("PATCH /v1/users/me",
		httpx.Chain(http.HandlerFunc(h.HandleUpdateMe),
			httpx.RequireIdentity,
			httpx.RateLimitByUser(r.Limits.Write, r.metrics.RateLimited),
		),
	)
	r.Mux.Handle("PATCH /v1/users/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleUpdate),
			httpx.RequireAdmin,
			httpx.RateLimitByUser(r.Limits.Write, r.metrics.RateLimited),
		),
	)
}

func (r *Router) registerBootstrap() {
	// One-time setup endpoint
	r.Mux.Handle("POST /v1/bootstrap",
		httpx.Chain(&BootstrapHandler{BootstrapService: r.BootstrapService},
			httpx.LimitBody(MaxJSONBody),
			httpx.RateLimitByIP(r.Limits.Login, r.metrics.RateLimited),
		),
	)
}

func (r *Router) registerSystem() {
	// Monitoring systems may poll frequently
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(r.Limits.Probe, r.metrics.RateLimited),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.verifier),
			httpx.RateLimitByIP(r.Limits.Probe, r.metrics.RateLimited),
		),
	)
	if r.metrics != nil {
		r.Mux.Handle("GET /metrics", r.metrics.Handler())
	}
}
