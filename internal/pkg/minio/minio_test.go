package minio

import (
	"fmt"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Endpoint = "localhost:9000"
		cfg.AccessKeyID = "minioadmin"
		cfg.SecretAccessKey = "minioadmin"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing endpoint", func(c *Config) { c.Endpoint = "" }, true},
		{"missing secret", func(c *Config) { c.SecretAccessKey = "" }, true},
		{"bad bucket", func(c *Config) { c.Bucket = "Bad_Bucket" }, true},
		{"bad lookup", func(c *Config) { c.BucketLookup = "virtual" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewClient_RejectsInvalidConfig(t *testing.T) {
	_, err := NewClient(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewClient(&Config{Bucket: "file-vault"}, nil)
	assert.Error(t, err)
}

func TestErrorClassification(t *testing.T) {
	wrap := func(code string) error {
		return WrapError("StatObject", minio.ErrorResponse{Code: code}, "file-vault", "a/b.txt")
	}

	assert.True(t, IsNotFound(wrap("NoSuchKey")))
	assert.True(t, IsNotFound(wrap("NotFound")))
	assert.True(t, IsNotFound(fmt.Errorf("head: %w", ErrObjectNotFound)))
	assert.False(t, IsNotFound(wrap("AccessDenied")))
	assert.False(t, IsNotFound(nil))

	assert.True(t, IsRestoreInProgress(wrap("RestoreAlreadyInProgress")))
	assert.False(t, IsRestoreInProgress(wrap("NoSuchKey")))

	assert.True(t, IsAccessDenied(wrap("AccessDenied")))
	assert.True(t, IsBucketAlreadyExists(wrap("BucketAlreadyOwnedByYou")))
}

func TestErrorMessage(t *testing.T) {
	err := WrapError("CopyObject", ErrInvalidObjectName, "file-vault", "a.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket=file-vault")
	assert.Contains(t, err.Error(), "object=a.txt")
	assert.ErrorIs(t, err, ErrInvalidObjectName)
	assert.Nil(t, WrapError("x", nil, "", ""))
}

func TestValidateNames(t *testing.T) {
	assert.NoError(t, ValidateBucketName("file-vault"))
	assert.Error(t, ValidateBucketName("ab"))
	assert.Error(t, ValidateBucketName("xn--vault"))
	assert.Error(t, ValidateBucketName("file--vault"))

	assert.NoError(t, ValidateObjectName("alice-example/report.pdf"))
	assert.Error(t, ValidateObjectName(""))
	assert.Error(t, ValidateObjectName("a\x00b"))
	assert.Error(t, ValidateObjectName(strings.Repeat("a", 1025)))
}
