package handler

import (
	"net/http"

	"github.com/TIANLI0/D2Nodes/config"
	"github.com/TIANLI0/D2Nodes/middleware"
	"github.com/TIANLI0/D2Nodes/node"
	"github.com/gin-gonic/gin"
)

// BuildInfo 版本信息
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	BuildID   string `json:"build_id"`
	GitCommit string `json:"git_commit"`
	GitBranch string `json:"git_branch"`
}

// NewRouter 注册中间件和全部路由，cache 可以为 nil
func NewRouter(cfg *config.Config, registry *node.Registry, cache ResultCache, info BuildInfo) *gin.Engine {
	nodeHandler := NewNodeHandler(registry, cache, cfg.Server.MaxBodySize)
	uploadHandler := NewUploadHandler(cfg, registry)

	r := gin.New()
	r.MaxMultipartMemory = cfg.Upload.MaxSize
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())

	// 健康检查和版本信息
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": info.Version,
			"nodes":   len(registry.List()),
			"cache":   cache != nil,
		})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, info)
	})

	// 导出文件
	r.Static("/output", cfg.Output.Dir)

	api := r.Group("/api/v1")
	{
		api.GET("/nodes", nodeHandler.List)
		api.GET("/nodes/:name", nodeHandler.Get)
		api.POST("/nodes/:name", nodeHandler.Invoke)
		api.POST("/upload", uploadHandler.Upload)
	}

	return r
}
