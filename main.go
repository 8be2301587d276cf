package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/sudokim/skku-chat/internal/auth"
	"github.com/sudokim/skku-chat/internal/blob"
	"github.com/sudokim/skku-chat/internal/config"
	"github.com/sudokim/skku-chat/internal/db"
	"github.com/sudokim/skku-chat/internal/events"
	"github.com/sudokim/skku-chat/internal/handlers"
	"github.com/sudokim/skku-chat/internal/middleware"
	"github.com/sudokim/skku-chat/internal/observability"
	"github.com/sudokim/skku-chat/internal/rabbitmq"
	"github.com/sudokim/skku-chat/internal/repositories"
	"github.com/sudokim/skku-chat/internal/telemetry"
	"github.com/sudokim/skku-chat/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownTracing, err := telemetry.SetupTracing(context.Background(), cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}

	blobStore, err := blob.Open(cfg.BlobDir)
	if err != nil {
		log.Fatalf("failed to open blob store: %v", err)
	}
	defer blobStore.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	emitter := telemetry.NewAuditEmitter(publisher, "audit.chat", "skku-chat", cfg.Environment)

	userRepo := repositories.NewUserRepo(database)
	roomRepo := repositories.NewRoomRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	authService := auth.NewService(userRepo, auth.NewRedisTokenStore(redisClient), cfg.JWTSecret, cfg.AllowedEmailDomains)

	hub := events.NewHub()

	authHandler := handlers.NewAuthHandler(authService, emitter)
	roomHandler := handlers.NewRoomHandler(roomRepo, hub)
	messageHandler := handlers.NewMessageHandler(roomRepo, messageRepo, hub)
	blobHandler := handlers.NewBlobHandler(blobStore)
	roomWS := ws.NewRoomWebSocketHandler(hub, roomRepo, messageRepo, blobStore, authService)

	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("skku-chat"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(authService)

	router.POST("/auth/signup", authHandler.SignUp)
	router.POST("/auth/signin", authHandler.SignIn)
	router.POST("/auth/signout", authHandler.SignOut)
	router.GET("/auth/me", authMiddleware, authHandler.Me)
	router.POST("/auth/password-reset", authHandler.RequestPasswordReset)
	router.POST("/auth/password-reset/complete", authHandler.ResetPassword)
	router.POST("/auth/email-link", authHandler.RequestEmailLink)
	router.POST("/auth/email-link/complete", authHandler.CompleteEmailLink)
	router.PATCH("/auth/display-name", authMiddleware, authHandler.UpdateDisplayName)
	router.DELETE("/auth/account", authMiddleware, authHandler.DeleteAccount)

	router.GET("/rooms", authMiddleware, roomHandler.ListRooms)
	router.POST("/rooms", authMiddleware, roomHandler.CreateRoom)
	router.GET("/rooms/:room_id", authMiddleware, roomHandler.GetRoom)
	router.POST("/rooms/:room_id/join", authMiddleware, roomHandler.JoinRoom)
	router.POST("/rooms/:room_id/leave", authMiddleware, roomHandler.LeaveRoom)
	router.GET("/rooms/:room_id/messages", authMiddleware, messageHandler.GetMessages)
	router.POST("/rooms/:room_id/messages", authMiddleware, messageHandler.PostMessage)
	router.DELETE("/rooms/:room_id/messages/:seq", authMiddleware, messageHandler.DeleteMessage)

	router.POST("/blobs/*path", authMiddleware, blobHandler.Upload)
	router.GET("/blobs/*path", blobHandler.Serve)
	router.DELETE("/blobs/*path", authMiddleware, blobHandler.Delete)

	router.GET("/ws", roomWS.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, emitter, cfg.Debug)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
