package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  port: 9090
storage:
  driver: s3
  s3:
    bucket: vault-prod
    region: eu-west-1
files:
  max_per_page: 200
  default_per_page: 20
  presign_expiry: 30m
restore:
  recheck_after: 5m
rate_limit:
  login:
    max_requests: 10
    window_seconds: 60
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("FILEVAULT_AUTH_JWT_SECRET", "from-env")
	t.Setenv("FILEVAULT_MONGO_DATABASE", "vault_test")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "vault_test", cfg.Mongo.Database)
	assert.Equal(t, StorageDriverS3, cfg.Storage.Driver)
	assert.Equal(t, "vault-prod", cfg.Storage.S3.Bucket)
	assert.Equal(t, 30*time.Minute, cfg.Files.PresignExpiry)
	assert.Equal(t, 5*time.Minute, cfg.Restore.RecheckAfter)
	assert.Equal(t, 10, cfg.RateLimit.Login.MaxRequests)

	// untouched sections keep their defaults
	assert.Equal(t, 96, cfg.Restore.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Files.ListCacheTTL)
	assert.Equal(t, "files", cfg.Mongo.FilesCollection)

	opts := cfg.Files.Options()
	assert.Equal(t, 200, opts.MaxPerPage)
	assert.Equal(t, 20, opts.DefaultPerPage)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "server:\n  port: 8080\n"))
	assert.ErrorContains(t, err, "jwt_secret")

	t.Setenv("FILEVAULT_AUTH_JWT_SECRET", "secret")
	_, err = LoadConfig(writeConfig(t, "storage:\n  driver: gcs\n"))
	assert.ErrorContains(t, err, "unknown storage driver")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Auth.JWTSecret = "secret"
	require.NoError(t, cfg.Validate())

	cfg.Files.DefaultPerPage = cfg.Files.MaxPerPage + 1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Auth.JWTSecret = "secret"
	cfg.Storage.Driver = StorageDriverS3
	cfg.Storage.S3.Region = ""
	assert.Error(t, cfg.Validate())
}
