package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	cfgpkg "github.com/hamptokr/dragon-dmc/internal/config"
	"github.com/hamptokr/dragon-dmc/internal/health"
)

// Server 运维 HTTP 服务封装
type Server struct {
	srv *http.Server
}

// Routes 可选的路由回调
type Routes struct {
	MetricsPath    string
	MetricsHandler http.Handler
	// Ready 为 nil 时始终就绪
	Ready func() bool
	// Status 返回可 JSON 序列化的会话状态，挂在 /v1/session
	Status func() any
	// Health 详细健康报告，挂在 /health
	Health *health.Aggregator
}

// New 创建并配置 Gin + HTTP Server，注册健康检查、就绪、指标与会话状态路由
func New(cfg cfgpkg.HTTPConfig, rt Routes) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", func(c *gin.Context) {
		if rt.Ready == nil || rt.Ready() {
			c.String(http.StatusOK, "ready")
			return
		}
		c.String(http.StatusServiceUnavailable, "not-ready")
	})
	if rt.MetricsHandler != nil {
		path := rt.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(rt.MetricsHandler))
	}
	if rt.Health != nil {
		r.GET("/health", func(c *gin.Context) {
			rep := rt.Health.Check(c.Request.Context())
			code := http.StatusOK
			if rep.Status == health.StatusUnhealthy {
				code = http.StatusServiceUnavailable
			}
			c.JSON(code, rep)
		})
	}
	r.GET("/v1/session", func(c *gin.Context) {
		if rt.Status == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no session"})
			return
		}
		c.JSON(http.StatusOK, rt.Status())
	})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return &Server{srv: srv}
}

// Handler 暴露路由，便于测试
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start 启动 HTTP 服务（阻塞），正常关闭时返回 nil
func (s *Server) Start() error {
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
