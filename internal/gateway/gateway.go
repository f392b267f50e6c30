// ABOUTME: Gateway wires the store, model client, tools and orchestrator together
// ABOUTME: Owns the HTTP server lifecycle including graceful shutdown

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/NEARBuilders/cyborg-gateway/internal/auth"
	"github.com/NEARBuilders/cyborg-gateway/internal/chat"
	"github.com/NEARBuilders/cyborg-gateway/internal/config"
	"github.com/NEARBuilders/cyborg-gateway/internal/directory"
	"github.com/NEARBuilders/cyborg-gateway/internal/model"
	"github.com/NEARBuilders/cyborg-gateway/internal/store"
	"github.com/NEARBuilders/cyborg-gateway/internal/tools"
)

// Gateway orchestrates the cyborg-gateway server components: persistence,
// the model backend client, the tool registry and the chat HTTP API.
type Gateway struct {
	config       *config.Config
	store        store.Store
	model        *model.Client
	directory    *directory.Service
	orchestrator *chat.Orchestrator
	httpServer   *http.Server
	logger       *slog.Logger
}

// initStore creates a store based on config and environment.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("CYBORG_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// initRankLookup picks the holder-rank backend. Without a configured rank
// URL every account resolves to rank 0 (guest tier).
func initRankLookup(cfg *config.Config, logger *slog.Logger) directory.RankLookup {
	if cfg.Directory.RankURL == "" {
		logger.Warn("directory.rank_url not configured - all accounts treated as guests")
		return directory.UnrankedLookup{}
	}
	return directory.NewHTTPRankLookup(cfg.Directory.RankURL)
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	modelClient := model.NewClient(model.Config{
		BaseURL: cfg.Model.BaseURL,
		APIKey:  cfg.Model.APIKey,
		Model:   cfg.Model.Model,
		Timeout: cfg.Model.Timeout,
	}, logger.With("component", "model"))
	if !modelClient.Configured() {
		logger.Warn("model backend not configured - chat requests will fail until model.base_url is set")
	}

	rankLookup := initRankLookup(cfg, logger)
	dirService := directory.New(s, rankLookup, cfg.Directory.CacheTTL, cfg.Directory.CacheSize, logger.With("component", "directory"))

	registry := tools.NewRegistry(logger.With("component", "tools"))
	tools.RegisterDirectoryTools(registry, dirService)

	prompts := chat.NewTierPrompts(dirService, cfg.Prompts.Guest, cfg.Prompts.Holder, cfg.Prompts.OG)

	orchestrator := chat.New(s, modelClient, registry, prompts, chat.Options{
		MaxIterations: cfg.Model.MaxIterations,
		HistoryWindow: cfg.Model.HistoryWindow,
	}, logger)

	gw := &Gateway{
		config:       cfg,
		store:        s,
		model:        modelClient,
		directory:    dirService,
		orchestrator: orchestrator,
		logger:       logger.With("component", "gateway"),
	}

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	authMiddleware := auth.Middleware(verifier)

	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/health/ready", gw.handleReady)

	// Chat and conversation endpoints - authenticated
	mux.Handle("/chat", authMiddleware(http.HandlerFunc(gw.handleChat)))
	mux.Handle("/chat/stream", authMiddleware(http.HandlerFunc(gw.handleChatStream)))
	mux.Handle("/conversations", authMiddleware(http.HandlerFunc(gw.handleListConversations)))
	mux.Handle("/conversations/", authMiddleware(http.HandlerFunc(gw.handleConversation)))

	// Directory endpoints - profile reads are public, writes and follows
	// require auth
	mux.Handle("/profiles/me", authMiddleware(http.HandlerFunc(gw.handleOwnProfile)))
	mux.HandleFunc("/profiles/", gw.handleProfileRoutes)
	mux.Handle("/follow/", authMiddleware(http.HandlerFunc(gw.handleFollow)))

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Handler exposes the HTTP handler for tests.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is
// already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown gracefully stops the server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	g.directory.Close()

	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the model backend is configured.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if !g.model.Configured() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("model backend not configured"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
