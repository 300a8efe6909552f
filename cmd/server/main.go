package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/lk2023060901/file-vault-backend/internal/auth"
	authbiz "github.com/lk2023060901/file-vault-backend/internal/auth/biz"
	authdata "github.com/lk2023060901/file-vault-backend/internal/auth/data"
	"github.com/lk2023060901/file-vault-backend/internal/auth/middleware"
	authservice "github.com/lk2023060901/file-vault-backend/internal/auth/service"
	"github.com/lk2023060901/file-vault-backend/internal/conf"
	"github.com/lk2023060901/file-vault-backend/internal/data"
	filebiz "github.com/lk2023060901/file-vault-backend/internal/file/biz"
	filedata "github.com/lk2023060901/file-vault-backend/internal/file/data"
	filequeue "github.com/lk2023060901/file-vault-backend/internal/file/queue"
	fileservice "github.com/lk2023060901/file-vault-backend/internal/file/service"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/validator"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/workerpool"
	"github.com/lk2023060901/file-vault-backend/internal/server"
	userbiz "github.com/lk2023060901/file-vault-backend/internal/user/biz"
	userdata "github.com/lk2023060901/file-vault-backend/internal/user/data"
	userservice "github.com/lk2023060901/file-vault-backend/internal/user/service"
)

var (
	configFile = flag.String("config", "config.yaml", "config file path")
)

func main() {
	flag.Parse()

	// Load configuration
	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(&config.Log)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()
	logger.InitGlobal(log)

	log.Info("config loaded successfully", zap.String("storage_driver", config.Storage.Driver))

	if err := validator.RegisterBindings(); err != nil {
		log.Fatal("failed to register validators", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize data layer
	d, cleanup, err := data.NewData(ctx, config, log)
	if err != nil {
		log.Fatal("failed to initialize data layer", zap.Error(err))
	}
	defer cleanup()

	pool, err := workerpool.New(&config.WorkerPool, log.Logger)
	if err != nil {
		log.Fatal("failed to create worker pool", zap.Error(err))
	}
	defer pool.Shutdown()

	// Repositories
	fileRepo := filedata.NewFileRepo(d.Mongo, log)
	if config.Mongo.EnsureIndexes {
		if err := fileRepo.EnsureIndexes(ctx); err != nil {
			log.Fatal("failed to ensure file indexes", zap.Error(err))
		}
	}
	listCache := filedata.NewListCache(d.Redis, config.Files.ListCacheTTL, log)
	authUserRepo := authdata.NewAuthUserRepo(d.DB)
	userRepo := userdata.NewUserRepo(d.DB)

	// Use cases
	jwtManager := auth.NewJWTManager(config.Auth.JWTSecret, config.Auth.JWTIssuer, config.Auth.TokenTTL)
	restoreWorker := filequeue.NewRestoreWorker(d.Redis, nil, &config.Restore, log)
	fileUseCase := filebiz.NewFileUseCase(fileRepo, d.Store, listCache, restoreWorker, pool, config.Files.Options(), log)
	restoreWorker.SetFinalizer(fileUseCase)
	authUseCase := authbiz.NewAuthUseCase(authUserRepo, jwtManager, log)
	userUseCase := userbiz.NewUserUseCase(userRepo)

	if err := restoreWorker.Start(ctx); err != nil {
		log.Fatal("failed to start restore worker", zap.Error(err))
	}
	defer restoreWorker.Stop()

	// Services
	services := server.Services{
		Auth: authservice.NewAuthService(authUseCase, log),
		User: userservice.NewUserService(userUseCase, log),
		File: fileservice.NewFileService(fileUseCase, log),
	}

	var limiters server.Limiters
	if config.RateLimit.Enabled {
		limiters = server.Limiters{
			Login:    middleware.RateLimiter(d.Redis, config.RateLimit.Login, log),
			Register: middleware.RateLimiter(d.Redis, config.RateLimit.Register, log),
			API:      middleware.RateLimiter(d.Redis, config.RateLimit.API, log),
		}
	}

	httpServer := server.NewHTTPServer(&config.Server, log, d, jwtManager, services, limiters)

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	log.Info("server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}
