package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appsvc "pdfchat/internal/app"
	"pdfchat/internal/bootstrap"
	"pdfchat/internal/platform/database"
	rabbitmqClient "pdfchat/internal/platform/rabbitmq"
	redisClient "pdfchat/internal/platform/redis"
	"pdfchat/internal/transport/http/handler"
	"pdfchat/internal/transport/http/middleware"
)

type Services struct {
	Auth     *appsvc.AuthService
	Chat     *appsvc.ChatService
	Document *appsvc.DocumentService
}

type RouterConfig struct {
	JWTSecret string
	Logger    *zap.Logger
	Health    *handler.HealthHandler
}

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)

	healthHandler := handler.NewHealthHandler(
		handler.HealthInfo{App: app.Config.App.Name, Env: app.Config.App.Env, StartedAt: app.StartedAt},
		dependencyChecks(app)...,
	)
	return newRouter(RouterConfig{
		JWTSecret: app.Config.Auth.JWTSecret,
		Logger:    app.Logger,
		Health:    healthHandler,
	}, Services{
		Auth:     app.AuthService,
		Chat:     app.ChatService,
		Document: app.DocumentService,
	})
}

func newRouter(cfg RouterConfig, services Services) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()
	router.Use(middleware.RequestID(), middleware.AccessLog(log), gin.Recovery())

	if cfg.Health != nil {
		router.GET("/healthz", cfg.Health.Check)
	}

	authHandler := handler.NewAuthHandler(services.Auth)
	chatHandler := handler.NewChatHandler(services.Chat)
	documentHandler := handler.NewDocumentHandler(services.Document)
	requireAuth := middleware.AuthJWT(cfg.JWTSecret)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", requireAuth, authHandler.Me)

	v1.POST("/chat", requireAuth, chatHandler.Turn)

	chatsGroup := v1.Group("/chats")
	chatsGroup.Use(requireAuth)
	chatsGroup.POST("", documentHandler.Upload)
	chatsGroup.GET("", chatHandler.ListChats)
	chatsGroup.GET("/:id/messages", chatHandler.History)
	chatsGroup.GET("/:id/document", documentHandler.Download)
	chatsGroup.POST("/:id/reindex", documentHandler.Reindex)

	return router
}

// dependencyChecks reports disabled optional services without probing them.
func dependencyChecks(app *bootstrap.App) []handler.DependencyCheck {
	checks := []handler.DependencyCheck{
		{Name: "database", Check: func(ctx context.Context) error { return database.Ping(ctx, app.DB) }},
		{Name: "redis"},
		{Name: "rabbitmq"},
	}
	if app.Redis != nil {
		checks[1].Check = func(ctx context.Context) error { return redisClient.Ping(ctx, app.Redis) }
	}
	if app.MQConn != nil {
		checks[2].Check = func(ctx context.Context) error { return rabbitmqClient.Ping(ctx, app.MQConn) }
	}
	if app.VectorDB != nil {
		checks = append(checks, handler.DependencyCheck{
			Name:  "vector_database",
			Check: func(ctx context.Context) error { return database.Ping(ctx, app.VectorDB) },
		})
	}
	return checks
}
