package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"drawbridge/internal/api"
	"drawbridge/internal/config"
	"drawbridge/internal/database"
	"drawbridge/internal/diagram"
	"drawbridge/internal/hub"
	"drawbridge/internal/relay"
	"drawbridge/internal/websocket"
	pkgdatabase "drawbridge/pkg/database"
)

// Application coordinates all system components. Initialization follows
// strict dependency order: Database -> Diagrams -> Registry -> Relay ->
// Hub -> API -> HTTP.
type Application struct {
	config     *config.Config
	store      *database.Manager
	diagrams   *diagram.Manager
	registry   *websocket.Registry
	relay      *relay.Relay
	sessionHub *hub.Hub
	apiServer  *api.Server
	httpServer *http.Server
}

// NewApplication creates an application instance with all components
// initialized and migrations applied.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
		MigrationsPath:  "./migrations",
	}

	store, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize diagram store: %w", err)
	}

	migrationManager := pkgdatabase.NewMigrationManager(store.GetDB(), dbConfig.MigrationsPath)
	if err := migrationManager.ApplyMigrations(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	log.Println("Database migrations applied successfully")

	diagrams := diagram.NewManager(store)

	// The room registry is an owned handle shared by the relay and the API,
	// never package state.
	registry := websocket.NewRegistry()

	sessionRelay := relay.NewRelay(registry, cfg.Relay.CursorInterval)

	sessionHub := hub.NewHub(sessionRelay)

	apiServer := api.NewServer(diagrams, store, registry)

	wsHandler := websocket.NewHandler(sessionHub, cfg.WebSocket.PingInterval, cfg.WebSocket.ReadTimeout, cfg.WebSocket.BufferSize)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		store:      store,
		diagrams:   diagrams,
		registry:   registry,
		relay:      sessionRelay,
		sessionHub: sessionHub,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start begins application execution. The hub starts first so events have
// somewhere to go before the HTTP server accepts connections.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting drawbridge on %s", app.httpServer.Addr)

	if err := app.sessionHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session hub: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		_ = app.sessionHub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("Drawbridge started successfully")
		return nil
	case <-ctx.Done():
		_ = app.sessionHub.Stop()
		return ctx.Err()
	}
}

// Stop gracefully shuts down the application in reverse dependency order:
// HTTP -> Hub -> Store. Room state is not drained; it lives in process
// memory and clients re-join on reconnect.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down drawbridge")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if err := app.sessionHub.Stop(); err != nil {
		log.Printf("Session hub shutdown error: %v", err)
	}

	if err := app.store.Close(); err != nil {
		log.Printf("Diagram store shutdown error: %v", err)
	}

	log.Printf("Drawbridge shutdown complete")
	return nil
}

// GetAddr returns the server address for external connections.
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
