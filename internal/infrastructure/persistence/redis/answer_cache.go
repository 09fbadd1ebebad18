// Package redis 提供 Redis 缓存与限流实现
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

var cacheTracer = otel.Tracer("redis.cache")

// AnswerCache 答案缓存。流水线自身不缓存，缓存语义整个落在这一层：
// 同租户同计划的同一问题在 TTL 内直接复用答案。
type AnswerCache struct {
	client *Client
	group  singleflight.Group
}

// NewAnswerCache 创建答案缓存
func NewAnswerCache(client *Client) *AnswerCache {
	return &AnswerCache{client: client}
}

// AnswerKey 构建答案缓存键：问题文本归一化后哈希，避免键过长
func AnswerKey(tenantID, planID, questionText string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(questionText), " "))
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("answer:%s:%s:%s", tenantID, planID, hex.EncodeToString(sum[:16]))
}

// GetOrLoadSafe Read-Through，singleflight 合并同键并发请求防止缓存击穿。
// loader 的第二个返回值决定结果是否写回缓存（降级答案只返回、不落缓存）。
// Redis 读失败不拦截请求，退化为直接执行 loader。
// 返回值 hit 表示结果来自缓存而非本次 loader。
func (c *AnswerCache) GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func() (interface{}, bool, error)) (val []byte, hit bool, err error) {
	ctx, span := cacheTracer.Start(ctx, "cache.GetOrLoadSafe",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.Int64("cache.ttl_ms", ttl.Milliseconds()),
		))
	defer span.End()

	val, err = c.client.rdb.Get(ctx, key).Bytes()
	if err == nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return val, true, nil
	}
	if err != redis.Nil {
		span.RecordError(err)
	}

	span.SetAttributes(attribute.Bool("cache.hit", false))

	result, err, shared := c.group.Do(key, func() (interface{}, error) {
		// 再次检查缓存（可能已被其他请求填充）
		val, err := c.client.rdb.Get(ctx, key).Bytes()
		if err == nil {
			return val, nil
		}

		data, cacheIt, err := loader()
		if err != nil {
			return nil, err
		}

		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal data: %w", err)
		}

		if cacheIt {
			if err := c.client.rdb.Set(ctx, key, bytes, ttl).Err(); err != nil {
				// 缓存写入失败不影响返回结果
			}
		}

		return bytes, nil
	})

	span.SetAttributes(attribute.Bool("cache.shared", shared))

	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}

	return result.([]byte), false, nil
}

// InvalidateTenant 文档重新索引后使租户的全部缓存答案失效
func (c *AnswerCache) InvalidateTenant(ctx context.Context, tenantID string) error {
	ctx, span := cacheTracer.Start(ctx, "cache.InvalidateTenant",
		trace.WithAttributes(attribute.String("tenant_id", tenantID)))
	defer span.End()

	pattern := fmt.Sprintf("answer:%s:*", tenantID)
	iter := c.client.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		span.RecordError(err)
		return err
	}

	if len(keys) > 0 {
		span.SetAttributes(attribute.Int("cache.invalidated_count", len(keys)))
		return c.client.rdb.Del(ctx, keys...).Err()
	}
	return nil
}
