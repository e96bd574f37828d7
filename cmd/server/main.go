package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/config"
	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/database"
	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/logger"
	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/logic"
	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/price"
	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/router"
	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/task"
	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", os.Getenv("QACC_CONFIG"), "path to config file")
	flag.Parse()

	// 加载配置
	cfg := config.Load(*configPath)

	if err := logger.Init(cfg.Log); err != nil {
		logger.Fatal("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 初始化数据库
	db, err := database.Init(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	oracle := price.NewClient(cfg.Price)
	svc := logic.NewServices(db, oracle, logic.MatchingConfig{
		TokenSymbol:   cfg.Matching.TokenSymbol,
		PriceLeadTime: cfg.Matching.PriceLeadTime,
	}, cfg.Matching.StrictCaps)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化路由
	r := router.Setup(svc)

	// 启动定时任务
	tasks, err := task.NewManager(
		task.NewTokenPriceFillJob(svc.Matching, cfg.Task.PriceFillInterval),
		task.NewMatchingRefreshJob(svc.Matching, cfg.Task.MatchingRefreshInterval),
	)
	if err != nil {
		logger.Fatal("Failed to create task manager: %v", err)
	}
	tasks.Start()
	defer tasks.Stop()

	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: r}
	go func() {
		logger.Info("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown: %v", err)
	}
}
