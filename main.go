package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"consultly/config"
	"consultly/cron"
	"consultly/database"
	consultationRepo "consultly/database/repository/consultation"
	providerRepo "consultly/database/repository/provider"
	userRepoPkg "consultly/database/repository/user"
	walletRepo "consultly/database/repository/wallet"
	"consultly/handlers"
	"consultly/routes"
	consultationSvc "consultly/services/consultation"
	"consultly/services/events"
	"consultly/services/reconciliation"
	walletSvc "consultly/services/wallet"
	"consultly/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stripe/stripe-go/v76"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()

	database.InitDB()
	utils.InitCache()
	utils.InitEventsClient()
	stripe.Key = config.AppConfig.StripeKey

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	// repositories.
	consultRepo := consultationRepo.NewMongoConsultationRepo()
	wallets := walletRepo.NewMongoWalletRepo()
	users := userRepoPkg.NewMongoUserRepo()
	providers := providerRepo.NewMongoProviderRepo()

	// services.
	publisher := events.NewRedisPublisher(utils.GetEventsClient(), logger)
	ledger := walletSvc.NewDefaultLedger(wallets, publisher, logger)
	policy := consultationSvc.PolicyFromConfig()

	lifecycle := consultationSvc.NewDefaultConsultationService(
		consultRepo, providers, users, ledger, publisher, policy, logger,
	)
	// Watchers are in-memory; pick protection back up for calls that were
	// live across the restart.
	if err := lifecycle.ResumeWatchers(); err != nil {
		logger.Sugar().Warnf("main: failed to resume balance watchers: %v", err)
	}

	sweeper := reconciliation.NewSweeper(
		consultRepo, wallets, lifecycle, ledger, publisher, policy, logger,
	)

	// handlers.
	consultationHandler := handlers.NewConsultationHandler(lifecycle, logger)
	walletHandler := handlers.NewWalletHandler(ledger, logger)
	providerHandler := handlers.NewProviderHandler(providers)
	adminHandler := handlers.NewAdminHandler(ledger, sweeper)

	routes.RegisterRoutes(router, consultationHandler, walletHandler, providerHandler, adminHandler)

	utils.StartHealthMonitor(
		[]*redis.Client{utils.GetCacheClient(), utils.GetEventsClient()},
		database.MongoClient,
	)
	cron.InitSweepWorker(sweeper)

	port := config.AppConfig.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Sugar().Fatalf("main: server forced to shutdown: %v", err)
	}

	logger.Sugar().Info("main: server stopped gracefully")
}
