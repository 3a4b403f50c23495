package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/chatgate/internal/gateway/http"
	"github.com/aussiebroadwan/chatgate/internal/gateway/revoke"
	"github.com/aussiebroadwan/chatgate/internal/gateway/service"
	"github.com/aussiebroadwan/chatgate/internal/gateway/store"
	"github.com/aussiebroadwan/chatgate/internal/gateway/store/drivers/sqlite"
	"github.com/aussiebroadwan/chatgate/internal/gateway/upstream"
	"github.com/aussiebroadwan/chatgate/pkg/jwtx"
	"github.com/aussiebroadwan/chatgate/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the gateway with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	signer   *jwtx.Signer
	verifier *jwtx.EdDSAVerifier
	revoked  *revoke.Store
	redis    *revoke.RedisTier
	provider *upstream.Client

	// Services
	verifierService     *service.VerifierService
	resolverService     *service.ResolverService
	sessionService      *service.SessionService
	grantService        *service.DeviceGrantService
	proxyService        *service.ProxyService
	accountService      *service.AccountService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "chatgate",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initKeys(); err != nil {
		return nil, err
	}

	app.initRevocation()
	app.initUpstream()
	app.initServices()
	app.initHTTP()

	return app, nil
}

// Handler returns the application's HTTP handler. Used by the end-to-end
// tests to run the gateway inside an httptest server.
func (app *Application) Handler() http.Handler {
	return app.router
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	// Start housekeeping service
	app.housekeepingService.Start()

	app.logger.Info("gateway starting", "port", app.cfg.Port, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		// Perform graceful shutdown
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down gateway...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop the housekeeping service
	app.housekeepingService.Stop()

	// Close the shared revocation tier
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
		}
	}

	// Close database connection
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("gateway stopped")
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initKeys sets up the token signing key and verifier. Without a configured
// PEM key an ephemeral key is generated, which invalidates outstanding
// tokens on restart; fine for dev, stated loudly for prod.
func (app *Application) initKeys() error {
	var (
		signer *jwtx.Signer
		err    error
	)
	if app.cfg.SigningKeyPEM != "" {
		signer, err = jwtx.NewSignerFromPEM(app.cfg.SigningKeyKID, []byte(app.cfg.SigningKeyPEM))
	} else {
		signer, err = jwtx.NewEphemeralSigner(app.cfg.SigningKeyKID)
		app.logger.Warn("no signing key configured, using ephemeral key; tokens will not survive restarts")
	}
	if err != nil {
		return fmt.Errorf("failed to initialize signing key: %w", err)
	}

	app.signer = signer
	app.verifier = jwtx.NewVerifierEdDSA(app.cfg.Issuer, 30*time.Second)
	app.verifier.AddSigner(signer)
	return nil
}

// initRevocation sets up the two-tier revocation store.
func (app *Application) initRevocation() {
	opts := []revoke.Option{}
	if app.cfg.RedisAddr != "" {
		app.redis = revoke.NewRedisTier(app.cfg.RedisAddr)
		opts = append(opts, revoke.WithSharedTier(app.redis))
		app.logger.Info("shared revocation tier enabled", "addr", app.cfg.RedisAddr)
	} else {
		app.logger.Info("revocation store running local-only")
	}
	app.revoked = revoke.NewStore(app.logger, opts...)
}

// initUpstream sets up the client for the chat completion provider.
func (app *Application) initUpstream() {
	app.provider = upstream.NewClient(
		app.cfg.UpstreamBaseURL,
		app.cfg.UpstreamAPIKey,
		upstream.WithRateLimit(app.cfg.UpstreamRPS, app.cfg.UpstreamBurst),
	)
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.verifierService = &service.VerifierService{
		Verifier: app.verifier,
		Revoked:  app.revoked,
	}

	app.sessionService = &service.SessionService{Store: app.db}

	app.resolverService = &service.ResolverService{
		Secrets:  app.cfg.StaticSecrets,
		Verifier: app.verifierService,
		Sessions: app.sessionService,
	}

	app.grantService = &service.DeviceGrantService{
		Store:           app.db,
		Signer:          app.signer,
		Issuer:          app.cfg.Issuer,
		GrantTTL:        app.cfg.GrantTTL,
		TokenTTL:        app.cfg.TokenTTL,
		PollInterval:    app.cfg.PollInterval,
		VerificationURI: app.cfg.VerificationURI,
	}

	app.proxyService = &service.ProxyService{
		Store:                app.db,
		Upstream:             app.provider,
		CreditsPerUnit:       app.cfg.CreditsPerUnit,
		MinBalance:           app.cfg.MinBalance,
		FallbackBytesPerUnit: app.cfg.FallbackBytesPerUnit,
	}

	app.accountService = &service.AccountService{Store: app.db}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.revoked,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.verifier,
		app.revoked,
		BuildVersion,
		app.db,
		app.logger,
		app.cfg.SecureCookies,
	)

	// Wire services to router
	router.ResolverService = app.resolverService
	router.VerifierService = app.verifierService
	router.GrantService = app.grantService
	router.SessionService = app.sessionService
	router.ProxyService = app.proxyService
	router.AccountService = app.accountService
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
