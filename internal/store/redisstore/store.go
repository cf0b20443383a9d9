package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/studiumhub/coursechat/internal/chatbot"
)

const configTTL = 60 * time.Second

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (s *Store) Close() error { return s.rdb.Close() }

func configKey(id uint64) string {
	return fmt.Sprintf("chatbot:config:%d", id)
}

// CachedConfigSource is a read-through cache in front of the repo's
// configuration reads; the orchestrator loads one configuration per turn, so
// this takes the DB off the hot path. A redis outage degrades to plain DB
// reads.
type CachedConfigSource struct {
	store  *Store
	inner  chatbot.ConfigSource
	logger *slog.Logger
}

func NewCachedConfigSource(store *Store, inner chatbot.ConfigSource, logger *slog.Logger) *CachedConfigSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedConfigSource{store: store, inner: inner, logger: logger}
}

func (c *CachedConfigSource) GetConfiguration(ctx context.Context, id uint64) (*chatbot.Configuration, error) {
	key := configKey(id)

	raw, err := c.store.rdb.Get(ctx, key).Result()
	if err == nil {
		var cfg chatbot.Configuration
		if err := json.Unmarshal([]byte(raw), &cfg); err == nil {
			return &cfg, nil
		}
		// Corrupt entry; fall through to the DB and rewrite it.
	} else if err != redis.Nil {
		c.logger.Warn("config cache read failed", "key", key, "err", err)
	}

	cfg, err := c.inner.GetConfiguration(ctx, id)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(cfg); err == nil {
		if err := c.store.rdb.Set(ctx, key, b, configTTL).Err(); err != nil {
			c.logger.Warn("config cache write failed", "key", key, "err", err)
		}
	}
	return cfg, nil
}

// Invalidate drops the cached entry after an administrative update.
func (c *CachedConfigSource) Invalidate(ctx context.Context, id uint64) {
	if err := c.store.rdb.Del(ctx, configKey(id)).Err(); err != nil {
		c.logger.Warn("config cache invalidate failed", "id", id, "err", err)
	}
}
