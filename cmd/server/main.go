package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"servicemarket/internal/config"
	"servicemarket/internal/db"
	"servicemarket/internal/metrics"
	"servicemarket/internal/middleware"
	"servicemarket/internal/router"
	"servicemarket/internal/services"
	"servicemarket/internal/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.NewLogger("info", "text").WithError(err).Fatal("Invalid configuration")
	}
	log := utils.NewLogger(cfg.LogLevel, cfg.LogFormat)

	// Initialize store
	store, err := db.NewStore(cfg.StoreDriver, cfg.DatabaseURL, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize store")
	}

	auth, err := services.NewWalletAuth(cfg.AuthSecret, cfg.AuthTokenTTL, cfg.AuthChallengeTTL, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize wallet auth")
	}
	oracle := services.NewSubgraphOracle(cfg.OracleURL, cfg.OracleTimeout, cfg.OracleRPS, log)

	// Initialize Gin
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log), metrics.Middleware())

	router.RegisterRoutes(r, router.Deps{
		Store:   store,
		Auth:    auth,
		Ledger:  services.NewVoteLedger(store, log),
		Granter: services.NewPermissionGranter(store, oracle, log),
		Log:     log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("Service market server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
	log.Info("Server exited")
}
