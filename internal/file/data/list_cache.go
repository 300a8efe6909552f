package data

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/file-vault-backend/internal/file/biz"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/redis"
)

// DefaultListCacheTTL 列表缓存默认过期时间
const DefaultListCacheTTL = 5 * time.Minute

// ListCache Redis 实现的列表缓存，key: <prefix>:files:list:<owner>:<page>:<perPage>
type ListCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewListCache 创建列表缓存，ttl <= 0 时使用默认值
func NewListCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *ListCache {
	if ttl <= 0 {
		ttl = DefaultListCacheTTL
	}
	return &ListCache{client: client, ttl: ttl, logger: log}
}

// Get 读取缓存页，未命中返回 ok=false
func (c *ListCache) Get(ctx context.Context, owner string, page, perPage int) (*biz.PagePayload, bool, error) {
	raw, err := c.client.Get(ctx, c.pageKey(owner, page, perPage))
	if err != nil {
		if redis.IsNil(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var payload biz.PagePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		// 损坏的缓存按未命中处理
		c.logger.Warn("discarding corrupt list cache entry",
			zap.String("owner", owner),
			zap.Error(err),
		)
		return nil, false, nil
	}
	return &payload, true, nil
}

// Set 写入缓存页
func (c *ListCache) Set(ctx context.Context, owner string, page, perPage int, payload *biz.PagePayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.pageKey(owner, page, perPage), data, c.ttl)
}

// Invalidate 清除该用户的全部缓存页
func (c *ListCache) Invalidate(ctx context.Context, owner string) error {
	_, err := c.client.DelByPattern(ctx, c.ownerPattern(owner))
	return err
}

func (c *ListCache) pageKey(owner string, page, perPage int) string {
	return c.client.Key(listKeyParts(owner, page, perPage)...)
}

func (c *ListCache) ownerPattern(owner string) string {
	return c.client.Key("files", "list", owner, "*")
}

func listKeyParts(owner string, page, perPage int) []string {
	return []string{"files", "list", owner, strconv.Itoa(page), strconv.Itoa(perPage)}
}
