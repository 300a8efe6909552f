package conf

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lk2023060901/file-vault-backend/internal/auth/middleware"
	filebiz "github.com/lk2023060901/file-vault-backend/internal/file/biz"
	"github.com/lk2023060901/file-vault-backend/internal/file/queue"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/database"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/minio"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/mongo"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/redis"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/workerpool"
)

// EnvPrefix 环境变量前缀，例如 FILEVAULT_AUTH_JWT_SECRET
const EnvPrefix = "FILEVAULT"

// 对象存储驱动
const (
	StorageDriverMinIO = "minio"
	StorageDriverS3    = "s3"
)

type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Database   database.Config   `mapstructure:"database"`
	Redis      redis.Config      `mapstructure:"redis"`
	Mongo      mongo.Config      `mapstructure:"mongo"`
	Storage    StorageConfig     `mapstructure:"storage"`
	Log        logger.Config     `mapstructure:"log"`
	Auth       AuthConfig        `mapstructure:"auth"`
	Files      FilesConfig       `mapstructure:"files"`
	Restore    queue.Config      `mapstructure:"restore"`
	WorkerPool workerpool.Config `mapstructure:"worker_pool"`
	RateLimit  RateLimitConfig   `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr 监听地址
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig 对象存储，driver 决定使用 MinIO SDK 还是 AWS SDK
type StorageConfig struct {
	Driver string       `mapstructure:"driver"`
	MinIO  minio.Config `mapstructure:"minio"`
	S3     S3Config     `mapstructure:"s3"`
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"` // 为空时使用 AWS 默认端点
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	PathStyle bool   `mapstructure:"path_style"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTIssuer string        `mapstructure:"jwt_issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// FilesConfig 文件模块参数
type FilesConfig struct {
	MaxUploadSize    int64         `mapstructure:"max_upload_size"`
	PresignExpiry    time.Duration `mapstructure:"presign_expiry"`
	MetadataTTL      time.Duration `mapstructure:"metadata_ttl"`
	ListCacheTTL     time.Duration `mapstructure:"list_cache_ttl"`
	MaxPerPage       int           `mapstructure:"max_per_page"`
	DefaultPerPage   int           `mapstructure:"default_per_page"`
	ReconcileWorkers int           `mapstructure:"reconcile_workers"`
	PersistOrphans   bool          `mapstructure:"persist_orphans"`
	RestoreDays      int           `mapstructure:"restore_days"`
	BackfillRounds   int           `mapstructure:"backfill_rounds"`
}

// Options 转换为 biz.Options
func (c *FilesConfig) Options() *filebiz.Options {
	return &filebiz.Options{
		MaxUploadSize:    c.MaxUploadSize,
		PresignExpiry:    c.PresignExpiry,
		MetadataTTL:      c.MetadataTTL,
		MaxPerPage:       c.MaxPerPage,
		DefaultPerPage:   c.DefaultPerPage,
		ReconcileWorkers: c.ReconcileWorkers,
		PersistOrphans:   c.PersistOrphans,
		RestoreDays:      c.RestoreDays,
		BackfillRounds:   c.BackfillRounds,
	}
}

type RateLimitConfig struct {
	Enabled  bool                         `mapstructure:"enabled"`
	Login    middleware.RateLimiterConfig `mapstructure:"login"`
	Register middleware.RateLimiterConfig `mapstructure:"register"`
	API      middleware.RateLimiterConfig `mapstructure:"api"`
}

// Default 默认配置
func Default() *Config {
	files := filebiz.DefaultOptions()
	minioCfg := minio.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Mode:            "release",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: *database.DefaultConfig(),
		Redis:    *redis.DefaultConfig(),
		Mongo:    *mongo.DefaultConfig(),
		Storage: StorageConfig{
			Driver: StorageDriverMinIO,
			MinIO:  *minioCfg,
			S3:     S3Config{Bucket: minioCfg.Bucket, Region: "us-east-1"},
		},
		Log: *logger.DefaultConfig(),
		Auth: AuthConfig{
			JWTIssuer: "file-vault-backend",
			TokenTTL:  24 * time.Hour,
		},
		Files: FilesConfig{
			MaxUploadSize:    files.MaxUploadSize,
			PresignExpiry:    files.PresignExpiry,
			MetadataTTL:      files.MetadataTTL,
			ListCacheTTL:     5 * time.Minute,
			MaxPerPage:       files.MaxPerPage,
			DefaultPerPage:   files.DefaultPerPage,
			ReconcileWorkers: files.ReconcileWorkers,
			PersistOrphans:   files.PersistOrphans,
			RestoreDays:      files.RestoreDays,
			BackfillRounds:   files.BackfillRounds,
		},
		Restore:    *queue.DefaultConfig(),
		WorkerPool: workerpool.Config{Workers: 64},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Login:    middleware.DefaultLoginLimit,
			Register: middleware.DefaultRegisterLimit,
			API:      middleware.DefaultAPILimit,
		},
	}
}

// LoadConfig 读取配置文件，环境变量（FILEVAULT_ 前缀）优先。path 为空时只用默认值和环境变量
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	config := Default()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// setDefaults 注册所有 key，AutomaticEnv 只对已知 key 生效
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.dbname", d.Database.DBName)
	v.SetDefault("database.sslmode", d.Database.SSLMode)
	v.SetDefault("database.loglevel", d.Database.LogLevel)
	v.SetDefault("database.automigrate", d.Database.AutoMigrate)

	v.SetDefault("redis.mode", string(d.Redis.Mode))
	v.SetDefault("redis.master_addr", d.Redis.MasterAddr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.key_prefix", d.Redis.KeyPrefix)

	v.SetDefault("mongo.uri", d.Mongo.URI)
	v.SetDefault("mongo.database", d.Mongo.Database)
	v.SetDefault("mongo.files_collection", d.Mongo.FilesCollection)
	v.SetDefault("mongo.ensure_indexes", d.Mongo.EnsureIndexes)

	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.minio.endpoint", d.Storage.MinIO.Endpoint)
	v.SetDefault("storage.minio.access_key_id", d.Storage.MinIO.AccessKeyID)
	v.SetDefault("storage.minio.secret_access_key", d.Storage.MinIO.SecretAccessKey)
	v.SetDefault("storage.minio.use_ssl", d.Storage.MinIO.UseSSL)
	v.SetDefault("storage.minio.bucket", d.Storage.MinIO.Bucket)
	v.SetDefault("storage.minio.create_bucket", d.Storage.MinIO.CreateBucket)
	v.SetDefault("storage.s3.bucket", d.Storage.S3.Bucket)
	v.SetDefault("storage.s3.region", d.Storage.S3.Region)
	v.SetDefault("storage.s3.endpoint", d.Storage.S3.Endpoint)
	v.SetDefault("storage.s3.access_key", d.Storage.S3.AccessKey)
	v.SetDefault("storage.s3.secret_key", d.Storage.S3.SecretKey)
	v.SetDefault("storage.s3.path_style", d.Storage.S3.PathStyle)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output", d.Log.Output)

	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.jwt_issuer", d.Auth.JWTIssuer)
	v.SetDefault("auth.token_ttl", d.Auth.TokenTTL)

	v.SetDefault("files.max_upload_size", d.Files.MaxUploadSize)
	v.SetDefault("files.presign_expiry", d.Files.PresignExpiry)
	v.SetDefault("files.metadata_ttl", d.Files.MetadataTTL)
	v.SetDefault("files.list_cache_ttl", d.Files.ListCacheTTL)
	v.SetDefault("files.max_per_page", d.Files.MaxPerPage)
	v.SetDefault("files.default_per_page", d.Files.DefaultPerPage)
	v.SetDefault("files.reconcile_workers", d.Files.ReconcileWorkers)
	v.SetDefault("files.persist_orphans", d.Files.PersistOrphans)
	v.SetDefault("files.restore_days", d.Files.RestoreDays)
	v.SetDefault("files.backfill_rounds", d.Files.BackfillRounds)

	v.SetDefault("restore.workers", d.Restore.Workers)
	v.SetDefault("restore.recheck_after", d.Restore.RecheckAfter)
	v.SetDefault("restore.max_attempts", d.Restore.MaxAttempts)

	v.SetDefault("worker_pool.workers", d.WorkerPool.Workers)
	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}

	switch c.Storage.Driver {
	case StorageDriverMinIO:
		if c.Storage.MinIO.Bucket == "" {
			return errors.New("storage.minio.bucket is required")
		}
	case StorageDriverS3:
		if c.Storage.S3.Bucket == "" {
			return errors.New("storage.s3.bucket is required")
		}
		if c.Storage.S3.Region == "" {
			return errors.New("storage.s3.region is required")
		}
	default:
		return fmt.Errorf("unknown storage driver %q, must be minio or s3", c.Storage.Driver)
	}

	if c.Files.DefaultPerPage > c.Files.MaxPerPage && c.Files.MaxPerPage > 0 {
		return errors.New("files.default_per_page cannot exceed files.max_per_page")
	}

	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.Redis.Validate(); err != nil {
		return err
	}
	if err := c.Mongo.Validate(); err != nil {
		return err
	}
	return c.Log.Validate()
}
