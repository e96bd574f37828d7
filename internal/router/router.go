package router

import (
	"time"

	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/handler"
	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/logger"
	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/logic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Setup 注册全部路由
func Setup(svc *logic.Services) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(requestLogger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "qacc-round-accounting",
		})
	})

	// API版本组
	v1 := r.Group("/api/v1")
	{
		donationHandler := handler.NewDonationHandler(svc.Donations)
		donations := v1.Group("/donations")
		{
			donations.POST("", donationHandler.CreateDonation)
			donations.PATCH("/:id/status", donationHandler.UpdateDonationStatus)
		}

		projectHandler := handler.NewProjectHandler(svc.Records, svc.Caps, svc.Matching)
		projects := v1.Group("/projects")
		{
			projects.GET("/:id/users/:userId/totals", projectHandler.GetUserTotals)
			projects.GET("/:id/users/:userId/cap", projectHandler.GetUserDonationCap)
			projects.GET("/:id/expected-matching", projectHandler.GetExpectedMatching)
		}

		roundHandler := handler.NewRoundHandler(svc.Rounds, svc.Matching)
		v1.GET("/rounds", roundHandler.GetRounds)
		v1.GET("/rounds/active", roundHandler.GetActiveRound)
		v1.GET("/qf-rounds/:id/stats", roundHandler.GetQfRoundStats)
		v1.GET("/seasons", roundHandler.GetSeasons)
		v1.GET("/seasons/active", roundHandler.GetActiveSeason)
	}

	return r
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// requestLogger 访问日志，5xx 记为错误
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		l := logger.With(
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		)
		if status >= 500 {
			l.Error("request failed: %s", c.Errors.String())
			return
		}
		l.Debug("request served")
	}
}
