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

	"github.com/TIANLI0/D2Nodes/config"
	"github.com/TIANLI0/D2Nodes/handler"
	"github.com/TIANLI0/D2Nodes/node"
	"github.com/TIANLI0/D2Nodes/service"
	"github.com/TIANLI0/D2Nodes/utils"
	"github.com/gin-gonic/gin"
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
	// 加载配置
	cfg := config.New()

	// 初始化日志
	if err := utils.InitLogger(cfg.Server.Mode, cfg.Server.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer utils.Sync()

	utils.Logger.Info("starting D2Nodes server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("git_branch", GitBranch))

	// 确保上传和输出目录存在
	for _, dir := range []string{cfg.Upload.UploadDir, cfg.Output.Dir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			utils.Logger.Fatal("failed to create directory", zap.String("dir", dir), zap.Error(err))
		}
	}

	// 初始化Redis
	var cache handler.ResultCache
	if cfg.Redis.Enabled {
		redisService := service.NewRedisService(&cfg.Redis)
		if err := redisService.Ping(context.Background()); err != nil {
			utils.Logger.Warn("redis connection failed, cache disabled", zap.Error(err))
			_ = redisService.Close()
		} else {
			utils.Logger.Info("redis connected successfully")
			cache = redisService
			defer redisService.Close()
		}
	}

	// 初始化节点
	nodes := node.NewD2Nodes(
		service.NewAlphaCompositor(nil),
		service.NewAlphaExtractor(),
		service.NewExporter(cfg.Output.Dir, nil, nil),
	)
	registry, err := node.NewRegistry(nodes.Descriptors(cfg.Output, cfg.Export)...)
	if err != nil {
		utils.Logger.Fatal("failed to build node registry", zap.Error(err))
	}
	for _, d := range registry.List() {
		utils.Logger.Info("node registered", zap.String("name", d.Name), zap.String("category", d.Category))
	}

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	r := handler.NewRouter(cfg, registry, cache, handler.BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		BuildID:   BuildID,
		GitCommit: GitCommit,
		GitBranch: GitBranch,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		utils.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	utils.Logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		utils.Logger.Error("server shutdown failed", zap.Error(err))
	}
}
