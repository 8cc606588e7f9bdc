package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kasigigs/kasigigs-backend/internal/config"
	"github.com/kasigigs/kasigigs-backend/internal/db"
	"github.com/kasigigs/kasigigs-backend/internal/gateway"
	httpHandlers "github.com/kasigigs/kasigigs-backend/internal/http/handlers"
	httpRouter "github.com/kasigigs/kasigigs-backend/internal/http/router"
	"github.com/kasigigs/kasigigs-backend/internal/logger"
	"github.com/kasigigs/kasigigs-backend/internal/repository"
	"github.com/kasigigs/kasigigs-backend/internal/service"
	"github.com/kasigigs/kasigigs-backend/internal/storage"
	"github.com/kasigigs/kasigigs-backend/internal/ws"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: failed to load configuration: %v", err)
	}

	if cfg.Env == "development" {
		logger.Init("debug")
		logger.SetTextFormatter()
	} else {
		logger.Init("info")
	}

	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: failed to connect to the database: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: migrations failed: %v", err)
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	fileStorage, err := storage.NewFileStorage(cfg.MediaStoragePath, cfg.MaxUploadSizeMB)
	if err != nil {
		log.Fatalf("main: failed to prepare file storage: %v", err)
	}

	gatewayClient := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayWebhookSecret)

	// Repositories.
	userRepo := repository.NewUserRepository(dbConn)
	postingRepo := repository.NewPostingRepository(dbConn)
	skillTestRepo := repository.NewSkillTestRepository(dbConn)
	applicationRepo := repository.NewApplicationRepository(dbConn)
	milestoneRepo := repository.NewMilestoneRepository(dbConn)
	escrowRepo := repository.NewEscrowRepository(dbConn)
	disputeRepo := repository.NewDisputeRepository(dbConn, escrowRepo)
	reviewRepo := repository.NewReviewRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)
	attachmentRepo := repository.NewAttachmentRepository(dbConn)
	reportRepo := repository.NewReportRepository(dbConn)
	verificationRepo := repository.NewVerificationRepository(dbConn)

	// Websocket hub for notification pushes.
	hub := ws.NewHub()
	go hub.Run()

	// Services.
	notificationService := service.NewNotificationService(notificationRepo, hub)
	authService := service.NewAuthService(userRepo, tokenManager)
	verificationService := service.NewVerificationService(verificationRepo, userRepo)
	postingService := service.NewPostingService(postingRepo, skillTestRepo)
	skillTestService := service.NewSkillTestService(skillTestRepo, postingRepo, cfg.AttemptCooldown, cfg.AttemptTimeLimit, cfg.AttemptQuestionCount)
	applicationService := service.NewApplicationService(applicationRepo, postingRepo, skillTestRepo, notificationService)
	escrowService := service.NewEscrowService(escrowRepo, gatewayClient, milestoneRepo, postingRepo, applicationRepo, notificationService, gatewayClient.Signer(), cfg.Currency, cfg.PlatformFeeBps, cfg.GatewayPayoutAccount)
	milestoneService := service.NewMilestoneService(milestoneRepo, postingRepo, applicationRepo, escrowRepo, escrowService, notificationService)
	disputeService := service.NewDisputeService(disputeRepo, escrowRepo, escrowRepo, milestoneRepo, gatewayClient, notificationService, cfg.DisputeResponseWindow, cfg.PlatformFeeBps, cfg.Currency, cfg.GatewayPayoutAccount)
	reviewService := service.NewReviewService(reviewRepo, postingRepo, applicationRepo, notificationService)
	reportService := service.NewReportService(reportRepo)

	// Deadline maintenance.
	sweeper := service.NewSweeper(skillTestRepo, disputeRepo, escrowRepo, cfg.SweepInterval, cfg.PendingIntentTTL)
	sweeper.Start(ctx)

	// Handlers.
	authHandler := httpHandlers.NewAuthHandler(authService)
	profileHandler := httpHandlers.NewProfileHandler(authService, verificationService, reviewService)
	postingHandler := httpHandlers.NewPostingHandler(postingService)
	skillTestHandler := httpHandlers.NewSkillTestHandler(skillTestService)
	applicationHandler := httpHandlers.NewApplicationHandler(applicationService)
	milestoneHandler := httpHandlers.NewMilestoneHandler(milestoneService)
	escrowHandler := httpHandlers.NewEscrowHandler(escrowService)
	disputeHandler := httpHandlers.NewDisputeHandler(disputeService)
	reviewHandler := httpHandlers.NewReviewHandler(reviewService)
	notificationHandler := httpHandlers.NewNotificationHandler(notificationService)
	attachmentHandler := httpHandlers.NewAttachmentHandler(attachmentRepo, fileStorage)
	reportHandler := httpHandlers.NewReportHandler(reportService)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager)

	engine := httpRouter.SetupRouter(
		cfg,
		authHandler,
		profileHandler,
		postingHandler,
		skillTestHandler,
		applicationHandler,
		milestoneHandler,
		escrowHandler,
		disputeHandler,
		reviewHandler,
		notificationHandler,
		attachmentHandler,
		reportHandler,
		healthHandler,
		wsHandler,
		tokenManager,
	)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: http server shutdown error: %v", err)
		}
	}()

	log.Printf("main: listening on :%s", cfg.HTTPPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: http server error: %v", err)
	}
}

func safeClose(conn *sqlx.DB) {
	if err := conn.Close(); err != nil {
		log.Printf("main: failed to close the database connection: %v", err)
	}
}
