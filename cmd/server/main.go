package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"helpdesk-backend/internal/config"
	"helpdesk-backend/internal/database"
	"helpdesk-backend/internal/handler"
	"helpdesk-backend/internal/middleware"
	"helpdesk-backend/internal/repository"
	"helpdesk-backend/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	cfg := config.Load()

	// Database
	db, err := database.NewPool(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(context.Background(), db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations applied successfully")

	// Repositories
	userRepo := repository.NewUserRepository(db)
	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db, cfg.UnreadCountDeleted)
	notifRepo := repository.NewNotificationRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)

	// Message bus: in-memory for a single process, Redis when multiple
	// processes share the broadcast space.
	var bus service.Bus
	if cfg.RedisURL != "" {
		redisBus, err := service.NewRedisBus(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis bus: %v", err)
		}
		bus = redisBus
		log.Println("Using Redis message bus")
	} else {
		bus = service.NewMemoryBus()
	}
	defer bus.Close()

	hub := service.NewHub(bus)

	// Outbound side channels
	var mailer service.Mailer = service.NoopMailer{}
	if cfg.MailRelayURL != "" {
		mailer = service.NewHTTPMailer(cfg.MailRelayURL, cfg.MailFrom)
	}
	alerter, err := service.NewDiscordAlerter(cfg.DiscordBotToken, cfg.DiscordChannelID)
	if err != nil {
		log.Printf("Discord alerts disabled: %v", err)
	}
	defer alerter.Close()

	// Services
	tokenSvc := service.NewTokenService(cfg.JWTSecret)
	notifSvc := service.NewNotificationService(notifRepo, service.NewStoreAdminResolver(userRepo), hub, mailer)
	escalateSvc := service.NewEscalationService(notifSvc, alerter)
	chatSvc := service.NewChatService(msgRepo, convRepo, userRepo, hub, notifSvc)
	unreadSvc := service.NewUnreadService(msgRepo, convRepo, hub)

	var provisioner service.Provisioner = service.LocalProvisioner{}
	if cfg.ProvisionerURL != "" {
		provisioner = service.NewHTTPProvisioner(cfg.ProvisionerURL)
	}
	provisionSvc := service.NewProvisioningService(subRepo, userRepo, provisioner, notifSvc, escalateSvc)

	// Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
		BodyLimit:    1 * 1024 * 1024, // 1MB
	})

	app.Use(recover.New())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS())

	// Health
	healthH := handler.NewHealthHandler(db)
	app.Get("/health", healthH.Health)
	app.Get("/ready", healthH.Ready)

	// API v1
	v1 := app.Group("/api/v1")

	// Widget (public, rate limited)
	widgetH := handler.NewWidgetHandler(tokenSvc)
	v1.Post("/widget/session", middleware.RateLimit(10, time.Minute), widgetH.Session)

	// Server-to-server (payment collaborator), registered BEFORE the
	// protected catch-all group
	server := v1.Group("/server", middleware.ServerKey(cfg.ServerKey))
	provisionH := handler.NewProvisionHandler(provisionSvc, notifSvc, userRepo)
	server.Post("/provision", provisionH.Provision)
	server.Post("/events", provisionH.Event)

	// JWT-protected routes (catch-all, must be LAST)
	protected := v1.Group("", middleware.Auth(cfg.JWTSecret))

	convH := handler.NewConversationHandler(convRepo, chatSvc)
	protected.Get("/conversations", convH.List)
	protected.Post("/conversations", convH.Create)
	protected.Get("/conversations/:id/messages", convH.History)
	protected.Delete("/conversations/:id", convH.Delete)
	protected.Delete("/users/:id/conversations", middleware.RequireAdmin(), convH.DeleteAllForUser)

	notifH := handler.NewNotificationHandler(notifRepo)
	protected.Get("/notifications", notifH.List)
	protected.Post("/notifications/read-all", notifH.MarkAllRead)
	protected.Post("/notifications/:id/read", notifH.MarkRead)
	protected.Delete("/notifications", notifH.Clear)
	protected.Delete("/notifications/:id", notifH.Delete)

	// WebSocket
	wsH := handler.NewWSHandler(hub, tokenSvc, chatSvc, unreadSvc)
	app.Get("/ws", wsH.Upgrade)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Printf("Helpdesk backend running on :%s (%s)", cfg.Port, cfg.Env)

	<-quit
	log.Println("Shutting down...")
	_ = app.ShutdownWithTimeout(5 * time.Second)
	log.Println("Server stopped")
}
