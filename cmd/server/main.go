package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"miniups-gateway/internal/cache"
	"miniups-gateway/internal/config"
	"miniups-gateway/internal/handler"
	"miniups-gateway/internal/logging"
	"miniups-gateway/internal/middleware"
	"miniups-gateway/internal/notification"
	"miniups-gateway/internal/repository"
	"miniups-gateway/internal/service"
	"miniups-gateway/internal/upstream"
	"miniups-gateway/internal/websocket"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Server.IsProduction())
	log := logging.Component("main")

	client, err := kivik.New("couch", cfg.Database.URL())
	if err != nil {
		log.WithError(err).Fatal("failed to connect to CouchDB")
	}

	exists, err := client.DBExists(context.Background(), cfg.Database.Name)
	if err != nil {
		log.WithError(err).Fatal("failed to check database existence")
	}

	if !exists {
		if err := client.CreateDB(context.Background(), cfg.Database.Name); err != nil {
			log.WithError(err).Fatal("failed to create database")
		}
		log.WithField("database", cfg.Database.Name).Info("created database")
	}

	stateRepo := repository.NewNotificationStateRepository(client, cfg.Database.Name)
	resolutionRepo := repository.NewResolutionRepository(client, cfg.Database.Name)
	draftRepo := repository.NewDraftRepository(cfg.Drafts.BasePath, cfg.Drafts.CacheSizeMax)

	queryCache, err := cache.New(cfg.Cache.QuerySize)
	if err != nil {
		log.WithError(err).Fatal("failed to create query cache")
	}

	upstreamClient := upstream.NewClient(upstream.OptionsFromConfig(cfg.Upstream))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsManager := websocket.NewManager(
		cfg.WebSocket.MaxConnPerUser,
		cfg.WebSocket.WriteWait,
		cfg.WebSocket.PongWait,
		cfg.WebSocket.PingPeriod,
	)
	wsManager.SetMaxMessageSize(cfg.WebSocket.MaxMessageSize)
	go wsManager.Run(ctx)

	workspaceService := service.NewWorkspaceService(ctx, upstreamClient, queryCache, stateRepo, wsManager, service.WorkspaceOptions{
		FeedURL:             cfg.Upstream.WebSocketURL,
		FeedInitialInterval: cfg.Upstream.RetryInitialInterval,
		FeedMaxInterval:     cfg.Upstream.RetryMaxInterval,
		Sync: notification.SyncOptions{
			PageSize: cfg.Notifications.SyncPageSize,
			MaxPages: cfg.Notifications.SyncMaxPages,
		},
		SweepInterval: cfg.Notifications.SweepInterval,
	})
	shipmentService := service.NewShipmentService(upstreamClient, queryCache, workspaceService, wsManager)
	conflictService := service.NewConflictService(workspaceService, resolutionRepo, wsManager)
	notificationService := service.NewNotificationService(upstreamClient, workspaceService)
	draftService := service.NewDraftService(draftRepo)

	wsManager.SetPresenceFunc(workspaceService.HandlePresence)
	wsManager.SetMessageHandler(handler.NewWebSocketMessageHandler(wsManager, workspaceService, notificationService))

	shipmentHandler := handler.NewShipmentHandler(shipmentService)
	conflictHandler := handler.NewConflictHandler(conflictService)
	notificationHandler := handler.NewNotificationHandler(notificationService)
	draftHandler := handler.NewDraftHandler(draftService)
	healthHandler := handler.NewHealthHandler(upstreamClient, version)
	wsHandler := handler.NewWebSocketHandler(wsManager, workspaceService, cfg.JWT.Secret,
		cfg.WebSocket.ReadBufferSize, cfg.WebSocket.WriteBufferSize)

	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	api := r.PathPrefix("/api/v1").Subrouter()
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(cfg.JWT.Secret))

	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
		go limiter.RunCleanup(ctx, 5*time.Minute, 10*time.Minute)
		protected.Use(limiter.Middleware())
	}

	protected.HandleFunc("/shipments", shipmentHandler.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/shipments", shipmentHandler.Create).Methods("POST", "OPTIONS")
	protected.HandleFunc("/shipments/{tn}", shipmentHandler.Get).Methods("GET", "OPTIONS")
	protected.HandleFunc("/shipments/{tn}/history", shipmentHandler.History).Methods("GET", "OPTIONS")
	protected.HandleFunc("/shipments/{tn}/cancel", shipmentHandler.Cancel).Methods("POST", "OPTIONS")
	protected.HandleFunc("/shipments/{tn}/status", shipmentHandler.UpdateStatus).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/shipments/{tn}/address", shipmentHandler.UpdateAddress).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/shipments/{tn}/preferences", shipmentHandler.UpdatePreferences).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/shipments/{tn}/comments", shipmentHandler.AddComment).Methods("POST", "OPTIONS")

	protected.HandleFunc("/conflicts", conflictHandler.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/conflicts/history", conflictHandler.History).Methods("GET", "OPTIONS")
	protected.HandleFunc("/conflicts/next", conflictHandler.Next).Methods("POST", "OPTIONS")
	protected.HandleFunc("/conflicts/{id}", conflictHandler.Get).Methods("GET", "OPTIONS")
	protected.HandleFunc("/conflicts/{id}", conflictHandler.Cancel).Methods("DELETE", "OPTIONS")
	protected.HandleFunc("/conflicts/{id}/activate", conflictHandler.Activate).Methods("POST", "OPTIONS")
	protected.HandleFunc("/conflicts/{id}/resolve", conflictHandler.Resolve).Methods("POST", "OPTIONS")

	protected.HandleFunc("/notifications", notificationHandler.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notifications/unread-count", notificationHandler.UnreadCount).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notifications/status", notificationHandler.Status).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notifications/stats", notificationHandler.Stats).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notifications/sync", notificationHandler.Sync).Methods("POST", "OPTIONS")
	protected.HandleFunc("/notifications/filters", notificationHandler.SetFilters).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/notifications/preferences", notificationHandler.Preferences).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notifications/preferences", notificationHandler.UpdatePreferences).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/notifications/read", notificationHandler.MarkManyRead).Methods("POST", "OPTIONS")
	protected.HandleFunc("/notifications/read-all", notificationHandler.MarkAllRead).Methods("POST", "OPTIONS")
	protected.HandleFunc("/notifications/{id}", notificationHandler.Get).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notifications/{id}", notificationHandler.Delete).Methods("DELETE", "OPTIONS")
	protected.HandleFunc("/notifications/{id}/read", notificationHandler.MarkRead).Methods("POST", "OPTIONS")
	protected.HandleFunc("/notifications/{id}/archive", notificationHandler.Archive).Methods("POST", "OPTIONS")

	protected.HandleFunc("/drafts", draftHandler.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/drafts/{name}", draftHandler.Get).Methods("GET", "OPTIONS")
	protected.HandleFunc("/drafts/{name}", draftHandler.Save).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/drafts/{name}", draftHandler.Delete).Methods("DELETE", "OPTIONS")

	r.HandleFunc("/ws", wsHandler.HandleConnection)
	r.HandleFunc("/health", healthHandler.Health).Methods("GET")

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"addr":     addr,
			"env":      cfg.Server.Env,
			"upstream": cfg.Upstream.BaseURL,
		}).Info("starting Mini-UPS console gateway")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	cancel()

	log.Info("server stopped gracefully")
}
