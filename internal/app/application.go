package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"pollroom/internal/api"
	"pollroom/internal/archive"
	"pollroom/internal/config"
	"pollroom/internal/hub"
	"pollroom/internal/poll"
	"pollroom/internal/registry"
	"pollroom/internal/router"
	"pollroom/internal/session"
	"pollroom/internal/store"
	"pollroom/internal/websocket"
)

// Application assembles all components and owns their lifecycle.
// Initialization order: Archive → Store → Registry → Hub → Coordinator →
// Manager → Notifier → Router → API → HTTP.
type Application struct {
	config     *config.Config
	pollArch   *archive.Archive
	eventHub   *hub.Hub
	httpServer *http.Server
}

// NewApplication wires the system together from a validated configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var pollArch *archive.Archive
	var archiver poll.Archiver
	var historySource api.HistorySource
	if cfg.Archive.Path != "" {
		a, err := archive.Open(cfg.Archive.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open poll archive: %w", err)
		}
		pollArch = a
		archiver = a
		historySource = a
	}

	entityStore := store.NewStore()
	bindings := registry.NewRegistry(entityStore)
	eventHub := hub.NewHub()

	coordinator := poll.NewCoordinator(entityStore, bindings, archiver, eventHub.Submit)
	lifecycle := session.NewManager(entityStore, bindings, coordinator)

	liveConns := websocket.NewRegistry()
	eventRouter := router.NewRouter(lifecycle, coordinator, liveConns)

	apiServer := api.NewServer(historySource, liveConns)
	wsHandler := websocket.NewHandler(liveConns, eventRouter, eventHub,
		cfg.WebSocket.PingInterval, cfg.WebSocket.ReadTimeout)

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
		pollArch:   pollArch,
		eventHub:   eventHub,
		httpServer: httpServer,
	}, nil
}

// Start begins serving. The hub starts first so connections arriving
// immediately can submit events.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting pollroom on %s", app.httpServer.Addr)

	if err := app.eventHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event hub: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		_ = app.eventHub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("pollroom started")
		return nil
	case <-ctx.Done():
		_ = app.eventHub.Stop()
		return ctx.Err()
	}
}

// Stop shuts down in reverse dependency order: HTTP → Hub → Archive.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down pollroom")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := app.eventHub.Stop(); err != nil {
		log.Printf("Event hub shutdown error: %v", err)
	}
	if app.pollArch != nil {
		if err := app.pollArch.Close(); err != nil {
			log.Printf("Archive shutdown error: %v", err)
		}
	}

	log.Printf("pollroom shutdown complete")
	return nil
}

// GetAddr returns the server address for external connections.
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
