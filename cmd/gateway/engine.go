package main

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"servicemarket/internal/handlers"
	"servicemarket/internal/metrics"
	"servicemarket/internal/middleware"
	"servicemarket/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// WalletHeader carries the gate-verified caller address to the upstream.
const WalletHeader = "X-Wallet-Address"

// newGatewayEngine 组装网关：认证接口本地处理，其余请求过闸后转发到 upstream
func newGatewayEngine(gate *middleware.PermissionGate, auth *services.WalletAuth, upstream *url.URL, log logrus.FieldLogger) *gin.Engine {
	proxy := httputil.NewSingleHostReverseProxy(upstream)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.WithError(err).WithField("path", r.URL.Path).Warn("upstream request failed")
		w.WriteHeader(http.StatusBadGateway)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log), metrics.Middleware(), gate.Handler())

	authHandler := handlers.NewAuthHandler(auth)
	r.GET("/healthz", handlers.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.POST("/auth/challenge", authHandler.Challenge)
	r.POST("/auth/solve", authHandler.Solve)
	r.NoRoute(func(c *gin.Context) {
		// 客户端自带的地址头不可信
		c.Request.Header.Del(WalletHeader)
		if address, ok := middleware.WalletAddress(c); ok {
			c.Request.Header.Set(WalletHeader, address)
		}
		proxy.ServeHTTP(c.Writer, c.Request)
	})
	return r
}
