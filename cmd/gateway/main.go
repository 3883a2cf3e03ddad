package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"servicemarket/internal/config"
	"servicemarket/internal/db"
	"servicemarket/internal/middleware"
	"servicemarket/internal/services"
	"servicemarket/internal/utils"

	"github.com/gin-gonic/gin"
)

// gateway 位于付费服务前面，只放行持有该服务访问权限的钱包
func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.NewLogger("info", "text").WithError(err).Fatal("Invalid configuration")
	}
	log := utils.NewLogger(cfg.LogLevel, cfg.LogFormat)

	upstream, err := url.Parse(cfg.UpstreamURL)
	if err != nil || upstream.Host == "" {
		log.WithField("upstream_url", cfg.UpstreamURL).Fatal("UPSTREAM_URL must be an absolute URL")
	}

	store, err := db.NewStore(cfg.StoreDriver, cfg.DatabaseURL, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize store")
	}
	auth, err := services.NewWalletAuth(cfg.AuthSecret, cfg.AuthTokenTTL, cfg.AuthChallengeTTL, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize wallet auth")
	}

	gate, err := middleware.NewPermissionGate(store, auth, middleware.GateConfig{
		ServiceURL: cfg.GatedServiceURL,
		OpenPaths:  cfg.OpenPaths(),
		CacheSize:  cfg.GateCacheSize,
		CacheTTL:   cfg.GateCacheTTL,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to build permission gate")
	}

	// 启动时绑定受保护的服务，未注册则直接退出
	setupCtx, cancelSetup := context.WithTimeout(context.Background(), 30*time.Second)
	err = gate.Setup(setupCtx)
	cancelSetup()
	if err != nil {
		log.WithError(err).Fatal("Permission gate setup failed")
	}

	gin.SetMode(gin.ReleaseMode)
	r := newGatewayEngine(gate, auth, upstream, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("Gateway for %s starting on :%s", cfg.GatedServiceURL, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Gateway stopped")
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
	log.Info("Gateway exited")
}
