// Package main is the entry point for the Maestro orchestration server.
// One binary hosts the REST API, the WebSocket gateway and the event bus.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/maestro/maestro/internal/common/config"
	"github.com/maestro/maestro/internal/common/kmutex"
	"github.com/maestro/maestro/internal/common/logger"
	"github.com/maestro/maestro/internal/digest"
	"github.com/maestro/maestro/internal/events/bus"
	gateway "github.com/maestro/maestro/internal/gateway/websocket"
	"github.com/maestro/maestro/internal/mail"
	"github.com/maestro/maestro/internal/orderings"
	"github.com/maestro/maestro/internal/project"
	"github.com/maestro/maestro/internal/queue"
	"github.com/maestro/maestro/internal/session"
	"github.com/maestro/maestro/internal/spawn"
	"github.com/maestro/maestro/internal/store"
	"github.com/maestro/maestro/internal/store/sqlite"
	"github.com/maestro/maestro/internal/task"
	"github.com/maestro/maestro/internal/tasklist"
	"github.com/maestro/maestro/internal/team"
	"github.com/maestro/maestro/internal/template"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()
	logger.SetDefault(log)

	log.Info("Starting Maestro...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Event bus: in-process by default, NATS when configured.
	var eventBus bus.EventBus
	if cfg.NATS.URL != "" {
		log.Info("Connecting to NATS...", zap.String("url", cfg.NATS.URL))
		natsBus, err := bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		eventBus = natsBus
		defer natsBus.Close()
	} else {
		log.Info("Using in-memory event bus")
		eventBus = bus.NewMemoryEventBus(log)
	}

	// Storage backend.
	var st store.Store
	switch cfg.Storage.Backend {
	case "sqlite":
		sqliteStore, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			log.Fatal("Failed to open SQLite store", zap.Error(err), zap.String("path", cfg.Storage.Path))
		}
		st = sqliteStore
		log.Info("SQLite store initialized", zap.String("path", cfg.Storage.Path))
	default:
		st = store.NewMemoryStore()
		log.Info("In-memory store initialized")
	}
	defer func() {
		_ = st.Close()
	}()

	locks := kmutex.New()

	// Services.
	projectSvc := project.NewService(st, eventBus, log)
	taskSvc := task.NewService(st, eventBus, locks, log)
	sessionSvc := session.NewService(st, eventBus, locks, log)
	mailSvc := mail.NewService(st, eventBus, log)
	queueSvc := queue.NewService(st, taskSvc, locks, log)
	memberSvc := team.NewMemberService(st, eventBus, log)
	teamSvc := team.NewService(st, memberSvc, eventBus, log)
	taskListSvc := tasklist.NewService(st, eventBus, log)
	templateSvc := template.NewService(st, log)
	orderingsSvc := orderings.NewService(st, log)
	locator := digest.NewLocator(cfg.Digest.ClaudeProjectsDir, cfg.Digest.CodexSessionsDir, log)
	digestSvc := digest.NewService(st, locator, log)
	spawnSvc := spawn.NewService(st, sessionSvc, eventBus, locks, cfg.Spawn.Root, cfg.Spawn.ServerURL, log)

	// WebSocket gateway.
	hub := gateway.NewHub(log)
	go hub.Run(ctx)
	bridge := gateway.NewBridge(hub, eventBus, log)
	if err := bridge.Start(); err != nil {
		log.Fatal("Failed to start websocket bridge", zap.Error(err))
	}
	defer bridge.Stop()

	// HTTP router.
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	project.RegisterRoutes(router, projectSvc, st.Orderings(), log)
	task.RegisterRoutes(router, taskSvc, log)
	session.RegisterRoutes(router, sessionSvc, log)
	mail.RegisterRoutes(router, mailSvc, log)
	queue.RegisterRoutes(router, queueSvc, log)
	team.RegisterRoutes(router, teamSvc, memberSvc, log)
	tasklist.RegisterRoutes(router, taskListSvc, log)
	template.RegisterRoutes(router, templateSvc, log)
	orderings.RegisterRoutes(router, orderingsSvc, log)
	digest.RegisterRoutes(router, digestSvc, log)
	spawn.RegisterRoutes(router, spawnSvc, log)
	gateway.NewHandler(hub, log).RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "maestro",
		})
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("Maestro listening",
			zap.String("addr", server.Addr),
			zap.String("websocket", "/ws"))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Maestro...")

	// Stop accepting connections, let in-flight requests (including mail
	// long-polls, which resolve on context cancellation) drain, and close
	// websocket clients with a normal close code via the hub context.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("Maestro stopped")
}

// corsMiddleware allows browser clients on any origin to reach the API and
// the WebSocket upgrade endpoint.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version, Sec-WebSocket-Protocol")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
