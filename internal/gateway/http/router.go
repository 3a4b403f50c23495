package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/chatgate/internal/gateway/domain"
	"github.com/aussiebroadwan/chatgate/internal/gateway/revoke"
	"github.com/aussiebroadwan/chatgate/internal/gateway/service"
	"github.com/aussiebroadwan/chatgate/internal/gateway/store"
	"github.com/aussiebroadwan/chatgate/pkg/httpx"
	"github.com/aussiebroadwan/chatgate/pkg/jwtx"
	"github.com/aussiebroadwan/chatgate/pkg/slogx"

	_ "github.com/aussiebroadwan/chatgate/api/gateway" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier      *jwtx.EdDSAVerifier
	revoked       *revoke.Store
	buildVersion  string
	startTime     time.Time
	logger        *slog.Logger
	secureCookies bool

	store           store.Store
	ResolverService *service.ResolverService
	VerifierService *service.VerifierService
	GrantService    *service.DeviceGrantService
	SessionService  *service.SessionService
	ProxyService    *service.ProxyService
	AccountService  *service.AccountService
}

func NewRouter(
	verifier *jwtx.EdDSAVerifier,
	revoked *revoke.Store,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
	secureCookies bool,
) *Router {
	r := &Router{
		Mux:           http.NewServeMux(),
		verifier:      verifier,
		revoked:       revoked,
		buildVersion:  buildVersion,
		startTime:     time.Now(),
		store:         st,
		logger:        logger,
		secureCookies: secureCookies,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerChat()
	r.registerDevice()
	r.registerTokens()
	r.registerSession()
	r.registerAccount()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			ChatGate Gateway API
//	@version		0.1.0
//	@description	Authorization and metering gateway in front of an LLM chat completion provider.
//	@description
//	@description	Callers authenticate with a static gateway secret, a signed access token obtained
//	@description	through the device authorization flow, or a browser session cookie. Chat traffic is
//	@description	metered against a per-subject credit balance with an append-only usage ledger.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/chatgate
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Static gateway secret or signed access token. Format: "Bearer {credential}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerChat() {
	chatHandler := &ChatHandler{ProxyService: r.ProxyService}

	// POST /chat/completions - lenient limit keyed by subject so one noisy
	// caller cannot starve the rest.
	r.Mux.Handle("POST /v1/chat/completions",
		httpx.Chain(chatHandler,
			RequireAuth(r.ResolverService),
			RequireScope(domain.ScopeChat),
			httpx.RateLimitBySubject(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerDevice() {
	deviceHandler := &DeviceHandler{GrantService: r.GrantService}

	// POST /device/code - strict limit by IP; unauthenticated and writes to
	// the database.
	r.Mux.Handle("POST /v1/device/code",
		httpx.Chain(http.HandlerFunc(deviceHandler.HandleCode),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// GET /device/verify - approver reviews a pending grant.
	r.Mux.Handle("GET /v1/device/verify",
		httpx.Chain(http.HandlerFunc(deviceHandler.HandleVerify),
			RequireAuth(r.ResolverService),
			httpx.RateLimitBySubject(httpx.ModerateLimit),
		),
	)

	// POST /device/authorize - the approval decision.
	r.Mux.Handle("POST /v1/device/authorize",
		httpx.Chain(http.HandlerFunc(deviceHandler.HandleAuthorize),
			RequireAuth(r.ResolverService),
			httpx.RateLimitBySubject(httpx.ModerateLimit),
		),
	)

	// POST /device/token - strict limit by IP; this is the polling endpoint
	// and the obvious brute-force target.
	r.Mux.Handle("POST /v1/device/token",
		httpx.Chain(http.HandlerFunc(deviceHandler.HandleToken),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerTokens() {
	revokeHandler := &RevokeHandler{VerifierService: r.VerifierService}

	r.Mux.Handle("POST /v1/tokens/revoke",
		httpx.Chain(revokeHandler,
			RequireAuth(r.ResolverService),
			httpx.RateLimitBySubject(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSession() {
	sessionHandler := &SessionHandler{
		SessionService: r.SessionService,
		SecureCookies:  r.secureCookies,
	}

	r.Mux.Handle("POST /v1/session",
		httpx.Chain(http.HandlerFunc(sessionHandler.HandleCreate),
			RequireAuth(r.ResolverService),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	r.Mux.Handle("DELETE /v1/session",
		httpx.Chain(http.HandlerFunc(sessionHandler.HandleDestroy),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerAccount() {
	accountHandler := &AccountHandler{AccountService: r.AccountService}

	r.Mux.Handle("GET /v1/balance",
		httpx.Chain(http.HandlerFunc(accountHandler.HandleBalance),
			RequireAuth(r.ResolverService),
			RequireScope(domain.ScopeUsageRead),
			httpx.RateLimitBySubject(httpx.ModerateLimit),
		),
	)

	r.Mux.Handle("GET /v1/usage",
		httpx.Chain(http.HandlerFunc(accountHandler.HandleUsage),
			RequireAuth(r.ResolverService),
			RequireScope(domain.ScopeUsageRead),
			httpx.RateLimitBySubject(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)

	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.verifier, r.revoked),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}
