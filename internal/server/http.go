package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lk2023060901/file-vault-backend/internal/auth"
	"github.com/lk2023060901/file-vault-backend/internal/auth/middleware"
	authservice "github.com/lk2023060901/file-vault-backend/internal/auth/service"
	"github.com/lk2023060901/file-vault-backend/internal/conf"
	fileservice "github.com/lk2023060901/file-vault-backend/internal/file/service"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
	userservice "github.com/lk2023060901/file-vault-backend/internal/user/service"
)

// HealthChecker 依赖健康检查（data.Data 实现）
type HealthChecker interface {
	HealthCheck(ctx context.Context) map[string]error
}

// Services 注册到 /api/v1 的业务服务
type Services struct {
	Auth *authservice.AuthService
	User *userservice.UserService
	File *fileservice.FileService
}

// Limiters 限流中间件，为 nil 时不限流
type Limiters struct {
	Login    gin.HandlerFunc
	Register gin.HandlerFunc
	API      gin.HandlerFunc
}

type HTTPServer struct {
	server *http.Server
	logger *logger.Logger
}

func NewHTTPServer(
	config *conf.ServerConfig,
	log *logger.Logger,
	health HealthChecker,
	jm *auth.JWTManager,
	services Services,
	limiters Limiters,
) *HTTPServer {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	router := newRouter(log, health, jm, services, limiters)

	return &HTTPServer{
		server: &http.Server{
			Addr:         config.Addr(),
			Handler:      router,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
		},
		logger: log,
	}
}

func newRouter(log *logger.Logger, health HealthChecker, jm *auth.JWTManager, services Services, limiters Limiters) *gin.Engine {
	router := gin.New()
	// 对象 key 含 "/"，路由参数按转义后的原始路径匹配
	router.UseRawPath = true
	router.UnescapePathValues = true

	router.Use(logger.GinRecovery(log))
	router.Use(logger.GinLogger(log, logger.MiddlewareOptions{SkipPaths: []string{"/health"}}))
	router.Use(middleware.CORS())

	router.GET("/health", healthHandler(health))

	api := router.Group("/api/v1")
	services.Auth.RegisterRoutes(api, orPass(limiters.Login), orPass(limiters.Register))

	protected := api.Group("")
	protected.Use(middleware.JWTAuth(jm, log))
	protected.Use(orPass(limiters.API))
	services.User.RegisterRoutes(protected)
	services.File.RegisterRoutes(protected)

	return router
}

func orPass(h gin.HandlerFunc) gin.HandlerFunc {
	if h != nil {
		return h
	}
	return func(c *gin.Context) { c.Next() }
}

func healthHandler(health HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		components := gin.H{}
		for name, err := range health.HealthCheck(ctx) {
			if err != nil {
				status = http.StatusServiceUnavailable
				components[name] = err.Error()
				continue
			}
			components[name] = "ok"
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{
			"status":     state,
			"components": components,
			"time":       time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}
