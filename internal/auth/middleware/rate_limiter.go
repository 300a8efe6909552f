package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/lk2023060901/file-vault-backend/internal/pkg/errors"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/redis"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/response"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/validator"
)

// 限流策略
const (
	StrategyIP       = "ip"
	StrategyUser     = "user"
	StrategyEndpoint = "endpoint"
)

// RateLimiterConfig 限流配置
type RateLimiterConfig struct {
	// 时间窗口内允许的最大请求数
	MaxRequests int `mapstructure:"max_requests"`
	// 时间窗口（秒）
	WindowSeconds int `mapstructure:"window_seconds"`
	// 限流策略：user, endpoint, ip（默认）
	Strategy string `mapstructure:"strategy"`
}

// 默认限流配置
var (
	DefaultLoginLimit    = RateLimiterConfig{MaxRequests: 5, WindowSeconds: 300, Strategy: StrategyIP}
	DefaultRegisterLimit = RateLimiterConfig{MaxRequests: 3, WindowSeconds: 3600, Strategy: StrategyIP}
	DefaultAPILimit      = RateLimiterConfig{MaxRequests: 100, WindowSeconds: 60, Strategy: StrategyUser}
)

func (cfg RateLimiterConfig) normalize() RateLimiterConfig {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 100
	}
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = 60
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyIP
	}
	return cfg
}

// RateLimiter 基于 Redis 的滑动窗口限流中间件
// redis 故障时放行
func RateLimiter(redisClient *redis.Client, cfg RateLimiterConfig, log *logger.Logger) gin.HandlerFunc {
	cfg = cfg.normalize()

	return func(c *gin.Context) {
		key := redisClient.Key(rateLimitKeyParts(c, cfg.Strategy)...)

		allowed, remaining, resetTime, err := checkRateLimit(c.Request.Context(), redisClient, key, cfg)
		if err != nil {
			log.WithContext(c.Request.Context()).Error("rate limiter error", zap.Error(err), zap.String("key", key))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.MaxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetTime, 10))

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(cfg.WindowSeconds))
			response.ErrorWithCode(c, apperrors.ErrTooManyRequests,
				fmt.Sprintf("please try again in %d seconds", cfg.WindowSeconds))
			return
		}

		c.Next()
	}
}

// rateLimitKeyParts 限流 key 组成部分（不含全局前缀）
func rateLimitKeyParts(c *gin.Context, strategy string) []string {
	ip := validator.GetIPOrDefault(c.ClientIP(), "unknown")

	switch strategy {
	case StrategyUser:
		// 未认证请求回退到 IP
		if userID := c.GetString(ContextUserID); userID != "" {
			return []string{"rate_limit", "user", userID}
		}
		return []string{"rate_limit", "ip", ip}
	case StrategyEndpoint:
		return []string{"rate_limit", "endpoint", c.FullPath(), ip}
	default:
		return []string{"rate_limit", "ip", ip}
	}
}

// 原子滑动窗口：窗口内成员数 < limit 时记录本次请求
const slidingWindowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window * 1000)

local current = redis.call('ZCARD', key)
if current < limit then
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, window * 1000)
	return {1, limit - current - 1, math.floor((now + window * 1000) / 1000)}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')[2]
return {0, 0, math.floor((tonumber(oldest) + window * 1000) / 1000)}
`

// checkRateLimit 返回是否放行、剩余次数、窗口重置时间（unix 秒）
func checkRateLimit(ctx context.Context, redisClient *redis.Client, key string, cfg RateLimiterConfig) (bool, int, int64, error) {
	now := time.Now().UnixMilli()

	result, err := redisClient.Eval(ctx, slidingWindowScript, []string{key},
		now, cfg.WindowSeconds, cfg.MaxRequests, uuid.NewString())
	if err != nil {
		return false, 0, 0, err
	}
	return parseRateLimitResult(result)
}

func parseRateLimitResult(result interface{}) (bool, int, int64, error) {
	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return false, 0, 0, fmt.Errorf("invalid rate limit result: %v", result)
	}

	allowed, _ := values[0].(int64)
	remaining, _ := values[1].(int64)
	reset, _ := values[2].(int64)
	return allowed == 1, int(remaining), reset, nil
}
