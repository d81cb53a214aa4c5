package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/langchou/trackgazer/internal/alert"
	"github.com/langchou/trackgazer/internal/api/handlers"
	"github.com/langchou/trackgazer/internal/api/tracking"
	"github.com/langchou/trackgazer/internal/config"
	"github.com/langchou/trackgazer/internal/repository"
	"github.com/langchou/trackgazer/internal/service"
	"github.com/langchou/trackgazer/internal/session"
	"github.com/langchou/trackgazer/internal/state"
	"github.com/langchou/trackgazer/pkg/ws"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting Trackgazer", zap.String("port", cfg.ServerPort))

	// 创建 context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 连接数据库
	db, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect database", zap.Error(err))
	}
	defer db.Close()

	// 执行数据库迁移
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Database migrated successfully")

	// 创建 Repository
	store := repository.NewSettingsRepository(db)

	// 会话存储 + 自动携带 Cookie 的跟踪客户端
	sessionStore := session.NewStore(store)
	transport := tracking.NewSessionTransport(http.DefaultTransport, sessionStore, cfg.TrackingBaseURL, logger)
	trackingClient := tracking.NewClient(cfg.TrackingBaseURL, transport, cfg.RequestTimeout)

	// 创建车辆服务
	vehicleService := service.NewVehicleService(cfg, logger, trackingClient, sessionStore, store)

	// 跟踪器状态机
	tracker := state.NewTracker(func(from, to string) {
		logger.Info("Tracker state changed", zap.String("from", from), zap.String("to", to))
	})

	// 提醒播放器
	player := alert.NewPlayer(logger, &alert.LogNotifier{Logger: logger})

	// 轮询引擎
	poller := service.NewPoller(logger, vehicleService, tracker, player)

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	wsHub.SetInitDataProvider(func() *ws.InitData {
		vehicles, err := vehicleService.Vehicles(ctx)
		if err != nil {
			logger.Error("Failed to load vehicles for init data", zap.Error(err))
		}
		return &ws.InitData{
			State:    tracker.Snapshot(),
			Vehicles: vehicles,
		}
	})
	go wsHub.Run()

	// 订阅状态更新并广播到 WebSocket
	go func() {
		stateCh := poller.Subscribe()
		for snapshot := range stateCh {
			wsHub.BroadcastStateUpdate(snapshot)
		}
	}()

	// 启动轮询
	if err := poller.Start(ctx); err != nil {
		logger.Fatal("Failed to start poller", zap.Error(err))
	}

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(logger, vehicleService, poller, tracker, wsHub)

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// 注册路由
	handler.RegisterRoutes(router)

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 停止轮询
	poller.Stop()

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}

// corsMiddleware CORS 中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
