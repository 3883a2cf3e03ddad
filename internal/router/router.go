package router

import (
	"servicemarket/internal/db"
	"servicemarket/internal/handlers"
	"servicemarket/internal/metrics"
	"servicemarket/internal/middleware"
	"servicemarket/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Deps 路由所需的依赖
type Deps struct {
	Store   db.Store
	Auth    *services.WalletAuth
	Ledger  *services.VoteLedger
	Granter *services.PermissionGranter
	Log     logrus.FieldLogger
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Handlers
	authHandler := handlers.NewAuthHandler(d.Auth)
	serviceHandler := handlers.NewServiceHandler(d.Store, d.Granter, d.Log)
	commentHandler := handlers.NewCommentHandler(d.Store)
	voteHandler := handlers.NewVoteHandler(d.Store, d.Ledger)
	userHandler := handlers.NewUserHandler(d.Store)

	r.GET("/healthz", handlers.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// 钱包签名登录
	auth := r.Group("/auth")
	{
		auth.POST("/challenge", authHandler.Challenge) // 获取待签名挑战
		auth.POST("/solve", authHandler.Solve)         // 提交签名换取 token
	}

	// 公共路由 (Public Routes)
	r.GET("/services", serviceHandler.List)                        // 服务列表
	r.GET("/services/:id", serviceHandler.Get)                     // 服务详情
	r.GET("/services/:id/permissions", serviceHandler.Permissions) // 服务的授权列表
	r.GET("/services/:id/comments", commentHandler.List)           // 评论列表
	r.GET("/users", userHandler.List)                              // 用户列表
	r.GET("/users/:address", userHandler.Get)                      // 用户资料
	r.GET("/users/:address/permissions", userHandler.Permissions)  // 用户已购服务

	// 受保护路由 (Protected Routes)
	authorized := r.Group("/")
	authorized.Use(middleware.AuthRequired(d.Auth))
	{
		authorized.PUT("/services", serviceHandler.Upload)                                 // 发布/更新服务
		authorized.PUT("/services/:id/vote", voteHandler.VoteService)                      // 服务投票
		authorized.POST("/services/:id/comments", commentHandler.Create)                   // 发表评论
		authorized.PUT("/services/:id/comments/:comment_id/vote", voteHandler.VoteComment) // 评论投票
		authorized.POST("/services/:id/payments", serviceHandler.Grant)                    // 支付后兑换访问权限
		authorized.PUT("/users", userHandler.Put)                                          // 更新个人资料
	}
}
