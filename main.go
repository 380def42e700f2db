package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NotanProEnhanced/madewithwords-segmentation/config"
	"github.com/NotanProEnhanced/madewithwords-segmentation/grabcut"
	"github.com/NotanProEnhanced/madewithwords-segmentation/handler"
	"github.com/NotanProEnhanced/madewithwords-segmentation/middleware"
	"github.com/NotanProEnhanced/madewithwords-segmentation/rembg"
	"github.com/NotanProEnhanced/madewithwords-segmentation/service"
	"github.com/NotanProEnhanced/madewithwords-segmentation/utils"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	BuildID   = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

func main() {
	_ = godotenv.Load()

	// 加载配置
	cfg := config.New()
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := utils.InitLogger(cfg.Server.Mode, cfg.Log.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer utils.Sync()

	utils.Logger.Info("starting segmentation server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("git_branch", GitBranch),
		zap.String("segmenter", cfg.Segmenter.Backend),
		zap.String("store", cfg.Store.Backend),
		zap.Duration("ttl", cfg.Store.TTL))

	metrics := service.NewMetrics(prometheus.DefaultRegisterer)

	store, closeStore := newStore(cfg, metrics)
	defer closeStore()

	segmentation := service.NewSegmentationService(&cfg.Service, newSegmenter(cfg), store, metrics)
	segmentHandler := handler.NewSegmentHandler(cfg, segmentation, Version)

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	// 创建路由
	r := gin.New()
	r.MaxMultipartMemory = cfg.Upload.MaxSize
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())
	r.Use(middleware.Metrics(prometheus.DefaultRegisterer))

	segmentHandler.Register(r)

	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"build_id":   BuildID,
			"git_commit": GitCommit,
			"git_branch": GitBranch,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		utils.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	utils.Logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		utils.Logger.Error("server forced to shutdown", zap.Error(err))
	}
}

// newStore Redis 不可用时退回内存存储
func newStore(cfg *config.Config, metrics *service.Metrics) (service.MaskStore, func()) {
	memory := func() (service.MaskStore, func()) {
		return service.NewMemoryStore(cfg.Store.TTL, service.WithEvictionHook(metrics.ObserveEvictions)), func() {}
	}

	if cfg.Store.Backend != "redis" {
		return memory()
	}

	redisStore := service.NewRedisStore(&cfg.Store.Redis, cfg.Store.TTL)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := redisStore.Ping(ctx); err != nil {
		utils.Logger.Warn("redis connection failed, using in-memory mask store", zap.Error(err))
		_ = redisStore.Close()
		return memory()
	}

	utils.Logger.Info("redis connected successfully", zap.String("addr", cfg.Store.Redis.Addr))
	return redisStore, func() { _ = redisStore.Close() }
}

func newSegmenter(cfg *config.Config) service.Segmenter {
	if cfg.Segmenter.Backend == "rembg" {
		utils.Logger.Info("using rembg segmenter", zap.String("url", cfg.Rembg.URL), zap.String("model", cfg.Rembg.Model))
		return rembg.New(&cfg.Rembg)
	}
	return grabcut.New(&cfg.GrabCut)
}
