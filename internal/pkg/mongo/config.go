package mongo

import (
	"errors"
	"strings"
	"time"
)

// Config defines the MongoDB configuration
type Config struct {
	URI             string        `mapstructure:"uri"`
	Database        string        `mapstructure:"database"`
	FilesCollection string        `mapstructure:"files_collection"`
	AppName         string        `mapstructure:"app_name"`
	MaxPoolSize     uint64        `mapstructure:"max_pool_size"`
	MinPoolSize     uint64        `mapstructure:"min_pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	Timeout         time.Duration `mapstructure:"timeout"` // 单次操作超时
	EnsureIndexes   bool          `mapstructure:"ensure_indexes"`
}

// DefaultConfig returns the default MongoDB configuration
func DefaultConfig() *Config {
	return &Config{
		URI:             "mongodb://localhost:27017",
		Database:        "file_vault",
		FilesCollection: "files",
		AppName:         "file-vault-backend",
		MaxPoolSize:     100,
		MinPoolSize:     0,
		ConnectTimeout:  10 * time.Second,
		Timeout:         5 * time.Second,
		EnsureIndexes:   true,
	}
}

// Validate validates the MongoDB configuration
func (c *Config) Validate() error {
	if c.URI == "" {
		return errors.New("mongo uri is required")
	}
	if !strings.HasPrefix(c.URI, "mongodb://") && !strings.HasPrefix(c.URI, "mongodb+srv://") {
		return errors.New("mongo uri must start with mongodb:// or mongodb+srv://")
	}
	if c.Database == "" {
		return errors.New("mongo database is required")
	}
	if c.FilesCollection == "" {
		return errors.New("mongo files collection is required")
	}
	if c.MinPoolSize > c.MaxPoolSize && c.MaxPoolSize > 0 {
		return errors.New("min pool size cannot exceed max pool size")
	}
	if c.Timeout < 0 || c.ConnectTimeout < 0 {
		return errors.New("timeouts must be >= 0")
	}
	return nil
}
