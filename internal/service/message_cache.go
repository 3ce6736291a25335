package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"group-chat/internal/domain"
)

type redisCacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// MessageCache es un cache-aside de mensajes individuales en Redis (message:<id>).
// Los errores de Redis nunca fallan la lectura: se loguean y se va al store.
type MessageCache struct {
	client redisCacheClient
	ttl    time.Duration
	logger *zap.Logger
	group  singleflight.Group
}

func NewMessageCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *MessageCache {
	if client == nil {
		return nil
	}
	return newMessageCache(client, ttl, logger)
}

func newMessageCache(client redisCacheClient, ttl time.Duration, logger *zap.Logger) *MessageCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageCache{client: client, ttl: ttl, logger: logger}
}

func messageCacheKey(id int64) string {
	return "message:" + strconv.FormatInt(id, 10)
}

// Get devuelve el mensaje cacheado o lo carga con load; los misses concurrentes
// del mismo id comparten una sola carga.
func (c *MessageCache) Get(ctx context.Context, id int64, load func(ctx context.Context) (domain.Message, error)) (domain.Message, error) {
	if c == nil {
		return load(ctx)
	}
	key := messageCacheKey(id)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var payload domain.MessagePayload
		if jerr := json.Unmarshal(raw, &payload); jerr == nil {
			return payload.ToMessage(), nil
		}
		c.logger.Warn("discarding corrupt cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("message cache read failed", zap.String("key", key), zap.Error(err))
	}

	val, err, _ := c.group.Do(key, func() (any, error) {
		msg, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.Put(ctx, msg)
		return msg, nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	return val.(domain.Message), nil
}

func (c *MessageCache) Put(ctx context.Context, msg domain.Message) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(msg.Payload())
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, messageCacheKey(msg.ID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("message cache write failed", zap.Int64("message_id", msg.ID), zap.Error(err))
	}
}

func (c *MessageCache) Invalidate(ctx context.Context, id int64) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, messageCacheKey(id)).Err(); err != nil {
		c.logger.Warn("message cache invalidate failed", zap.Int64("message_id", id), zap.Error(err))
	}
}
