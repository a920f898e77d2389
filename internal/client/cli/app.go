package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dmitrijs2005/ioukeeper/internal/client/actions"
	"github.com/dmitrijs2005/ioukeeper/internal/client/config"
	"github.com/dmitrijs2005/ioukeeper/internal/client/engine"
	"github.com/dmitrijs2005/ioukeeper/internal/client/query"
	"github.com/dmitrijs2005/ioukeeper/internal/client/reconcile"
	"github.com/dmitrijs2005/ioukeeper/internal/client/resolver"
	"github.com/dmitrijs2005/ioukeeper/internal/client/services"
	"github.com/dmitrijs2005/ioukeeper/internal/client/session"
	"github.com/dmitrijs2005/ioukeeper/internal/client/storage"
	"github.com/dmitrijs2005/ioukeeper/internal/common"
	"github.com/dmitrijs2005/ioukeeper/internal/filex"
	"github.com/dmitrijs2005/ioukeeper/internal/logging"
	"github.com/dmitrijs2005/ioukeeper/internal/metrics"
	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
)

type App struct {
	config        *config.Config
	authService   services.AuthService
	ledgerService services.LedgerService
	logger        logging.Logger
	filters       *query.Set
	userName      string
	reader        *bufio.Reader
	out           io.Writer

	repos         *storage.Repositories
	registry      *prometheus.Registry
	metricsServer *http.Server
}

// NewApp wires the local cache, the session manager, the engine client and
// the services behind the REPL.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stderr, c.LogLevel)

	if _, err := filex.EnsureParentDir(c.CachePath); err != nil {
		return nil, err
	}
	repos, err := storage.InitDatabase(ctx, c.CachePath)
	if err != nil {
		logger.Error(ctx, "error initializing database", "path", c.CachePath, "error", err)
		return nil, err
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	httpClient := &http.Client{Timeout: c.RequestTimeout}

	sessions := session.NewManager(session.Options{
		IdentityURL: c.IdentityURL,
		Realm:       c.Realm,
		ClientID:    c.ClientID,
		HTTPClient:  httpClient,
		Store:       session.NewMetadataStore(repos.DB),
		Logger:      logger.With("component", "session"),
		Metrics:     collector,
	})

	engineClient, err := engine.New(engine.Options{
		BaseURL:    c.EngineURL,
		HTTPClient: httpClient,
		Tokens:     sessions,
		RateLimit:  c.RateLimit,
		PageSize:   c.PageSize,
		Logger:     logger.With("component", "engine"),
		Metrics:    collector,
	})
	if err != nil {
		_ = repos.Close()
		return nil, err
	}

	ledger := services.NewLedgerService(services.LedgerOptions{
		Sessions:   sessions,
		Fetcher:    engineClient,
		Resolver:   resolver.New(engineClient.BasePath()),
		Reconciler: reconcile.New(engineClient, c.ReconcileConcurrency, logger.With("component", "reconcile"), collector),
		Invoker:    actions.NewInvoker(engineClient, logger.With("component", "actions"), collector),
		DB:         repos.DB,
		Logger:     logger.With("component", "ledger"),
		Metrics:    collector,
	})
	auth := services.NewAuthService(sessions, ledger, repos.DB, logger.With("component", "auth"))

	return &App{
		config:        c,
		authService:   auth,
		ledgerService: ledger,
		logger:        logger,
		filters:       query.NewSet(),
		reader:        bufio.NewReader(os.Stdin),
		out:           color.Output,
		repos:         repos,
		registry:      registry,
	}, nil
}

// Run starts the metrics endpoint, if configured, and blocks in the REPL.
func (a *App) Run(ctx context.Context) {
	defer a.Close(ctx)

	if a.config != nil && a.config.MetricsAddr != "" {
		a.startMetricsServer(ctx, a.config.MetricsAddr)
	}
	a.Root(ctx)
}

// Close stops the metrics endpoint and releases the local cache.
func (a *App) Close(ctx context.Context) {
	if a.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn(ctx, "metrics server shutdown", "error", err)
		}
	}
	if a.repos != nil {
		if err := a.repos.Close(); err != nil {
			a.logger.Warn(ctx, "closing database", "error", err)
		}
	}
}

func (a *App) startMetricsServer(ctx context.Context, addr string) {
	a.metricsServer = &http.Server{
		Addr:              addr,
		Handler:           metrics.SetupMetricsRoute(a.registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info(ctx, "serving metrics", "addr", addr)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error(ctx, "metrics server stopped", "error", err)
		}
	}()
}

// isLoggedIn reports whether a session is held. An expired access token
// counts as logged in while it can be refreshed; a session the identity
// provider no longer accepts clears the prompt.
func (a *App) isLoggedIn(ctx context.Context) bool {
	_, err := a.authService.WhoAmI(ctx)
	switch {
	case err == nil:
		return true
	case errors.Is(err, common.ErrNoSession), errors.Is(err, common.ErrRefreshFailure):
		a.userName = ""
		return false
	default:
		// the identity provider is unreachable; commands report their own errors
		a.logger.Debug(ctx, "session check failed", "error", err)
		return true
	}
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}
