package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"mazequiz/internal/api"
	"mazequiz/internal/chapter"
	"mazequiz/internal/config"
	"mazequiz/internal/database"
	"mazequiz/internal/hub"
	"mazequiz/internal/ranking"
	"mazequiz/internal/render"
	"mazequiz/internal/reward"
	"mazequiz/internal/websocket"
	dbconfig "mazequiz/pkg/database"
)

// Application wires all components. Initialization order follows the
// dependency chain: Store, Reward, Engine, Registry, Ranking, Hub,
// API, HTTP.
type Application struct {
	config     *config.Config
	store      *database.Store
	engine     *chapter.Engine
	registry   *websocket.Registry
	ranking    *ranking.Broadcaster
	eventHub   *hub.Hub
	apiServer  *api.Server
	httpServer *http.Server
}

// NewApplication builds the component graph from a validated config.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbCfg := &dbconfig.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}

	store, err := database.NewStore(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	rewards := reward.NewDelegate(store, nil)
	renderer := render.NewSVGRenderer()
	engine := chapter.NewEngine(store)

	registry := websocket.NewRegistry(store, engine, rewards, renderer)
	broadcaster := ranking.NewBroadcaster(store, registry, cfg.Quiz.RankingSize)
	registry.BindRanking(broadcaster)

	eventHub := hub.NewHub(registry)
	apiServer := api.NewServer(store, engine, registry, cfg.Quiz.RankingSize)
	wsHandler := websocket.NewHandler(registry, store, eventHub, broadcaster, websocket.HandlerConfig{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		BufferSize:   cfg.WebSocket.BufferSize,
		EventsPerSec: cfg.Quiz.EventsPerSec,
		EventBurst:   cfg.Quiz.EventBurst,
	})

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
		engine:     engine,
		registry:   registry,
		ranking:    broadcaster,
		eventHub:   eventHub,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start brings the hub up, warms the leaderboard and begins serving.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting mazequiz application on %s", app.httpServer.Addr)

	if err := app.eventHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event hub: %w", err)
	}

	// Warm the leaderboard so the first connection gets a snapshot.
	app.ranking.Refresh(ctx)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		app.eventHub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("mazequiz application started successfully")
		return nil
	case <-ctx.Done():
		app.eventHub.Stop()
		return ctx.Err()
	}
}

// Stop shuts the application down in reverse dependency order:
// HTTP, hub, store.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down mazequiz application")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if err := app.eventHub.Stop(); err != nil {
		log.Printf("Event hub shutdown error: %v", err)
	}

	if err := app.store.Close(); err != nil {
		log.Printf("Store shutdown error: %v", err)
	}

	log.Printf("mazequiz application shutdown complete")
	return nil
}

// GetAddr returns the server address for external connections.
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
