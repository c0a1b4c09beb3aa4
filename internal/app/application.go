package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"goalseek/internal/api"
	"goalseek/internal/auth"
	"goalseek/internal/calc"
	"goalseek/internal/config"
	"goalseek/internal/database"
	"goalseek/internal/goal"
	"goalseek/internal/intervention"
	"goalseek/internal/router"
	"goalseek/internal/websocket"
	pkgdatabase "goalseek/pkg/database"
)

// Application coordinates all system components.
// Clean dependency injection pattern with proper initialization order.
type Application struct {
	config        *config.Config
	dbManager     *database.Manager
	goalManager   *goal.Manager
	registry      *websocket.Registry
	broker        *intervention.Broker
	messageRouter *router.Router
	wsHandler     *websocket.Handler
	apiServer     *api.Server
	httpServer    *http.Server
}

// NewApplication creates a new application instance with all components
// initialized. Initialization follows strict dependency order:
// Database → Goals → Registry → Calculator → Broker → Router → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.GoalSeek.AuthSecret == "" {
		return nil, fmt.Errorf("auth secret is required (set GOALSEEK_AUTH_SECRET)")
	}

	// STEP 1: Database manager (foundation layer)
	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	migrationManager := pkgdatabase.NewMigrationManager(dbManager.GetDB())
	if err := migrationManager.ApplyMigrations(); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	log.Println("Database migrations applied successfully")

	// STEP 2: Goal manager with database dependency
	goalManager := goal.NewManager(dbManager)
	if err := goalManager.LoadActiveGoals(context.Background()); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to load active goals: %w", err)
	}

	// STEP 3: Connection registry with the global connection budget
	registry := websocket.NewRegistry(cfg.GoalSeek.MaxConnections)

	// STEP 4: Token verifier
	verifier, err := auth.NewHMACVerifier(cfg.GoalSeek.AuthSecret)
	if err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	// STEP 5: Calculator with the per-call deadline
	calcService := calc.NewService()
	invoker := calc.NewInvoker(calcService, cfg.GoalSeek.CalculationTimeout)

	// STEP 6: Intervention broker, recording its trail through the database
	broker := intervention.NewBroker(cfg.GoalSeek.InterventionTTL, dbManager)

	// STEP 7: Message router
	messageRouter := router.NewRouter(invoker, broker)

	// STEP 8: API server with all business dependencies
	apiServer := api.NewServer(broker, goalManager, dbManager, verifier, registry)

	// STEP 9: WebSocket handler
	wsHandler := websocket.NewHandler(registry, verifier, messageRouter, broker, websocket.HandlerConfig{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		BufferSize:   cfg.WebSocket.BufferSize,
	})

	// STEP 10: HTTP server serving both the API and the WebSocket endpoint
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
		config:        cfg,
		dbManager:     dbManager,
		goalManager:   goalManager,
		registry:      registry,
		broker:        broker,
		messageRouter: messageRouter,
		wsHandler:     wsHandler,
		apiServer:     apiServer,
		httpServer:    httpServer,
	}, nil
}

// Start begins application execution
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting goal-seek server on %s", app.httpServer.Addr)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("Goal-seek server started successfully")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop gracefully shuts down the application.
// Reverse dependency order: HTTP → WebSocket connections → Database.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down goal-seek server")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	app.wsHandler.Cleanup()

	if err := app.dbManager.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}

	log.Printf("Goal-seek server shutdown complete")
	return nil
}

// GetAddr returns the server address for external connections
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
