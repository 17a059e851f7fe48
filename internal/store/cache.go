package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/soyeahso/shopchat/internal/domain"
	"github.com/soyeahso/shopchat/internal/logging"
)

const (
	historyKeyPrefix    = "shopchat:history:"
	generationKeyPrefix = "shopchat:history-gen:"
	defaultCacheTTL     = 10 * time.Minute
)

// NewRedisClient connects to the Redis instance at url (redis://...).
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// CachedStore is a SQLStore whose history reads go through Redis. The
// database stays the source of truth: appends invalidate the cached copy
// and any Redis failure falls through to the database.
type CachedStore struct {
	*SQLStore
	rdb *redis.Client
	ttl time.Duration
	log *logging.Logger
}

// NewCachedStore wraps base with a read-through history cache.
func NewCachedStore(base *SQLStore, rdb *redis.Client, ttl time.Duration, log *logging.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedStore{SQLStore: base, rdb: rdb, ttl: ttl, log: log.Sub("cache")}
}

func historyKey(conversationID string) string {
	return historyKeyPrefix + conversationID
}

// generationKey counts appends to a conversation. A history snapshot is
// only cached if the count did not move while it was read from the
// database.
func generationKey(conversationID string) string {
	return generationKeyPrefix + conversationID
}

// AppendMessage writes to the database, bumps the conversation generation
// and drops the cached history in one transaction.
func (c *CachedStore) AppendMessage(ctx context.Context, conversationID, role, content string) (domain.Message, error) {
	msg, err := c.SQLStore.AppendMessage(ctx, conversationID, role, content)
	if err != nil {
		return msg, err
	}
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(conversationID))
		pipe.Expire(ctx, generationKey(conversationID), c.ttl)
		pipe.Del(ctx, historyKey(conversationID))
		return nil
	})
	if err != nil {
		c.log.Warn().Err(err).Str("conversation", conversationID).Msg("cache invalidation failed")
	}
	return msg, nil
}

// LoadHistory serves from Redis when possible, otherwise loads from the
// database and populates the cache unless an append raced the load.
func (c *CachedStore) LoadHistory(ctx context.Context, conversationID string) ([]domain.Message, error) {
	key := historyKey(conversationID)

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var msgs []domain.Message
		if err := json.Unmarshal(data, &msgs); err == nil {
			c.log.Trace().Str("conversation", conversationID).Int("messages", len(msgs)).Msg("history cache hit")
			return msgs, nil
		}
		c.log.Warn().Str("conversation", conversationID).Msg("discarding undecodable cached history")
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn().Err(err).Str("conversation", conversationID).Msg("cache read failed")
	}

	gen, genErr := c.generation(ctx, conversationID)

	msgs, err := c.SQLStore.LoadHistory(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		c.log.Warn().Err(genErr).Str("conversation", conversationID).Msg("cache generation read failed")
		return msgs, nil
	}

	data, err = json.Marshal(msgs)
	if err != nil {
		return msgs, nil
	}
	if err := c.fill(ctx, conversationID, gen, data); err != nil {
		c.log.Warn().Err(err).Str("conversation", conversationID).Msg("cache write failed")
	}
	return msgs, nil
}

// generation returns the append counter, "" when none is recorded.
func (c *CachedStore) generation(ctx context.Context, conversationID string) (string, error) {
	gen, err := c.rdb.Get(ctx, generationKey(conversationID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return gen, err
}

// fill stores data as the cached history if the generation still equals
// seen. WATCH aborts the write when an append lands between the check and
// EXEC; an append after EXEC deletes the entry itself.
func (c *CachedStore) fill(ctx context.Context, conversationID, seen string, data []byte) error {
	genKey := generationKey(conversationID)
	err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != seen {
			c.log.Debug().Str("conversation", conversationID).Msg("history changed during load, not caching")
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, historyKey(conversationID), data, c.ttl)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		c.log.Debug().Str("conversation", conversationID).Msg("history changed during load, not caching")
		return nil
	}
	return err
}
