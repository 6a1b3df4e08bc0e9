package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-relay/internal/auth"
	"chat-relay/internal/db"
	"chat-relay/internal/handlers"
	"chat-relay/internal/middleware"
	"chat-relay/internal/observability"
	"chat-relay/internal/rabbitmq"
	"chat-relay/internal/repositories"
	"chat-relay/internal/telemetry"
	"chat-relay/internal/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}

	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	ctx := context.Background()
	shutdownTracing, err := observability.InitTracing(ctx)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	} else {
		defer shutdownTracing(ctx)
	}

	publisher := rabbitmq.NewPublisher(os.Getenv("AMQP_URL"), getEnv("AMQP_EXCHANGE", "chat_events"))
	defer publisher.Close()

	if wsPublisher, err := observability.NewAMQPPublisher(os.Getenv("AMQP_URL"), getEnv("WS_EVENTS_EXCHANGE", "ws_events")); err != nil {
		log.Printf("ws event publishing disabled: %v", err)
	} else {
		observability.SetPublisher(wsPublisher)
		defer wsPublisher.Close()
	}

	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", "chat-relay", getEnv("ENVIRONMENT", "dev"))

	authCfg := auth.ConfigFromEnv()

	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	hub := ws.NewHub()
	relay := ws.NewRelayHandler(hub, authCfg)
	chatHandler := handlers.NewChatHandler(chatRepo, messageRepo, hub, audit)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("chat-relay"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(authCfg)

	router.POST("/chats/toggle", authMiddleware, chatHandler.ToggleChat)
	router.GET("/chats", authMiddleware, chatHandler.ListChats)
	router.GET("/chats/:chat_id", authMiddleware, chatHandler.GetChat)
	router.POST("/chats/:chat_id/messages", authMiddleware, chatHandler.PostChatMessage)
	router.POST("/chats/group", authMiddleware, chatHandler.CreateGroupChat)
	router.PUT("/chats/group/rename", authMiddleware, chatHandler.RenameGroupChat)
	router.POST("/chats/group/members", authMiddleware, chatHandler.AddGroupMember)
	router.DELETE("/chats/group/members", authMiddleware, chatHandler.RemoveGroupMember)

	router.GET("/ws", relay.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, hub, audit, getEnv("DEBUG_ROUTES", "") == "true")

	port := getEnv("PORT", "8083")
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
