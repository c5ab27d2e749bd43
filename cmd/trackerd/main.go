package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/goevery/tracker/internal/auth"
	"github.com/goevery/tracker/internal/handler"
	"github.com/goevery/tracker/internal/notification"
	"github.com/goevery/tracker/internal/project"
	"github.com/goevery/tracker/internal/realtime"
	"github.com/goevery/tracker/internal/server"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

type App struct {
	logger            *zap.Logger
	settings          Settings
	notificationStore notification.Store
	projectStore      project.Store
	websocketServer   *server.WebSocketServer
	restServer        *server.RESTServer
}

func NewApp(logger *zap.Logger, settings Settings) (*App, error) {
	originChecker := server.NewOriginChecker(settings.AllowedOrigins)
	websocketUpgrader := &websocket.Upgrader{
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		CheckOrigin:       originChecker.Check,
		EnableCompression: true,
	}

	authenticator := auth.NewAuthenticator(settings.JWTSecret, settings.APIKeys)

	registry := realtime.NewInMemoryRegistry(logger)
	broadcaster := realtime.NewBroadcaster(logger, registry)

	var notificationStore notification.Store
	var projectStore project.Store

	if settings.MongoDBURI != "" {
		mongoClient, err := mongo.Connect(options.Client().ApplyURI(settings.MongoDBURI))
		if err != nil {
			return nil, fmt.Errorf("connect to mongodb: %w", err)
		}

		notificationStore = notification.NewMongoStore(mongoClient, settings.MongoDBDatabase)
		projectStore = project.NewMongoStore(mongoClient, settings.MongoDBDatabase)
	} else {
		logger.Warn("MONGODB_URI not set, using in-memory stores")

		notificationStore = notification.NewMemoryStore()
		projectStore = project.NewMemoryStore()
	}

	notificationService := notification.NewService(logger, notificationStore, broadcaster)
	projectService := project.NewService(logger, projectStore, broadcaster)
	importer := project.NewImporter(logger, projectService)

	topicValidator := handler.NewTopicValidator()

	heartbeatHandler := handler.NewHeartbeatHandler()
	authHandler := handler.NewAuthHandler(authenticator)
	subscribeHandler := handler.NewSubscribeHandler(topicValidator, registry)
	unsubscribeHandler := handler.NewUnsubscribeHandler(topicValidator, registry)
	publishHandler := handler.NewPublishHandler(topicValidator, broadcaster)

	router := server.NewRouter(
		logger,
		heartbeatHandler,
		authHandler,
		subscribeHandler,
		unsubscribeHandler,
		publishHandler,
	)

	websocketServer := server.NewWebSocketServer(
		logger,
		websocketUpgrader,
		registry,
		router,
	)
	restServer := server.NewRESTServer(
		logger,
		authenticator,
		notificationService,
		projectService,
		importer,
		publishHandler,
	)

	return &App{
		logger,
		settings,
		notificationStore,
		projectStore,
		websocketServer,
		restServer,
	}, nil
}

func (a *App) setup(ctx context.Context) error {
	err := a.notificationStore.Setup(ctx)
	if err != nil {
		return fmt.Errorf("setup notification store: %w", err)
	}

	err = a.projectStore.Setup(ctx)
	if err != nil {
		return fmt.Errorf("setup project store: %w", err)
	}

	a.startHttpServer(ctx)

	return nil
}

func (a *App) startHttpServer(ctx context.Context) {
	notifyCtx, notifyCtxCancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer notifyCtxCancel()

	address := fmt.Sprintf("0.0.0.0:%d", a.settings.Port)

	router := mux.NewRouter().
		PathPrefix(a.settings.BasePath).
		Subrouter()

	a.websocketServer.Register(router)
	a.restServer.Register(router)

	httpServer := &http.Server{
		Addr:    address,
		Handler: router,
	}

	a.logger.Info("starting http server",
		zap.String("address", address))

	go func() {
		err := httpServer.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("failed to start http server",
				zap.Error(err))
		}
	}()

	<-notifyCtx.Done()

	a.logger.Info("stopping http server")

	shutdownCtx, shutdownCtxCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCtxCancel()

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Fatal("http server shutdown failed",
			zap.Error(err))
	}

	a.logger.Info("http server stopped")
}

func main() {
	ctx := context.Background()

	var settings Settings
	_, err := env.UnmarshalFromEnviron(&settings)
	if err != nil {
		bootstrapLogger, _ := zap.NewDevelopment()
		bootstrapLogger.Fatal("failed to parse settings from environment", zap.Error(err))
	}

	logger, err := buildZapLogger(settings.LogEncoding)
	if err != nil {
		bootstrapLogger, _ := zap.NewDevelopment()
		bootstrapLogger.Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	app, err := NewApp(logger, settings)
	if err != nil {
		logger.Fatal("failed to build app", zap.Error(err))
	}

	err = app.setup(ctx)
	if err != nil {
		logger.Fatal("failed to setup", zap.Error(err))
	}
}
