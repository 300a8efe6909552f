package data

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lk2023060901/file-vault-backend/internal/conf"
	filebiz "github.com/lk2023060901/file-vault-backend/internal/file/biz"
	filedata "github.com/lk2023060901/file-vault-backend/internal/file/data"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/database"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/minio"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/mongo"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/redis"
	userdata "github.com/lk2023060901/file-vault-backend/internal/user/data"
)

// ObjectStore 带健康检查的对象存储
type ObjectStore interface {
	filebiz.ObjectStore
	Ping(ctx context.Context) error
}

// Data 基础设施连接集合
type Data struct {
	DB    *database.DB
	Redis *redis.Client
	Mongo *mongo.Client
	Store ObjectStore

	logger *logger.Logger
}

// NewData 初始化 PostgreSQL / Redis / MongoDB / 对象存储
func NewData(ctx context.Context, config *conf.Config, log *logger.Logger) (*Data, func(), error) {
	d := &Data{logger: log}
	var closers []func()

	cleanup := func() {
		log.Info("cleaning up data resources")
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Data, func(), error) {
		cleanup()
		return nil, nil, err
	}

	// PostgreSQL
	db, err := database.New(&config.Database, log)
	if err != nil {
		return fail(fmt.Errorf("failed to init database: %w", err))
	}
	closers = append(closers, func() { _ = db.Close() })
	if err := db.AutoMigrate(&userdata.UserPO{}); err != nil {
		return fail(err)
	}
	d.DB = db

	// Redis
	redisClient, err := redis.New(&config.Redis, log)
	if err != nil {
		return fail(fmt.Errorf("failed to init redis: %w", err))
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	d.Redis = redisClient

	// MongoDB
	mongoClient, err := mongo.New(ctx, &config.Mongo, log)
	if err != nil {
		return fail(fmt.Errorf("failed to init mongo: %w", err))
	}
	closers = append(closers, func() { _ = mongoClient.Close(context.Background()) })
	d.Mongo = mongoClient

	// 对象存储
	store, closeStore, err := newObjectStore(ctx, &config.Storage, log)
	if err != nil {
		return fail(fmt.Errorf("failed to init object storage: %w", err))
	}
	if closeStore != nil {
		closers = append(closers, closeStore)
	}
	d.Store = store

	log.Info("data layer initialized", zap.String("storage_driver", config.Storage.Driver))
	return d, cleanup, nil
}

func newObjectStore(ctx context.Context, cfg *conf.StorageConfig, log *logger.Logger) (ObjectStore, func(), error) {
	switch cfg.Driver {
	case conf.StorageDriverS3:
		store, err := filedata.NewS3Store(ctx, filedata.S3Options{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			PathStyle: cfg.S3.PathStyle,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil

	default:
		client, err := minio.NewClient(&cfg.MinIO, log.Logger)
		if err != nil {
			return nil, nil, err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return filedata.NewMinioStore(client), func() { _ = client.Close() }, nil
	}
}

// HealthCheck 逐个检查依赖，返回 组件 => 错误（nil 表示正常）
func (d *Data) HealthCheck(ctx context.Context) map[string]error {
	return map[string]error{
		"postgres": d.DB.HealthCheck(ctx),
		"redis":    d.Redis.Ping(ctx),
		"mongo":    d.Mongo.Ping(ctx),
		"storage":  d.Store.Ping(ctx),
	}
}
