package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/helpdesk-labs/ticket-tracker/internal/domain"
)

// Cache is a best-effort read cache for tickets and users. Misses and backend
// failures are indistinguishable to callers; the store stays authoritative.
type Cache interface {
	GetTicket(ctx context.Context, id string) (*domain.Ticket, bool)
	SetTicket(ctx context.Context, ticket *domain.Ticket)
	InvalidateTicket(ctx context.Context, id string)
	GetUser(ctx context.Context, id string) (*domain.User, bool)
	SetUser(ctx context.Context, user *domain.User)
}

// Noop never stores anything.
type Noop struct{}

func (Noop) GetTicket(context.Context, string) (*domain.Ticket, bool) { return nil, false }
func (Noop) SetTicket(context.Context, *domain.Ticket)                {}
func (Noop) InvalidateTicket(context.Context, string)                 {}
func (Noop) GetUser(context.Context, string) (*domain.User, bool)     { return nil, false }
func (Noop) SetUser(context.Context, *domain.User)                    {}

// RedisCache stores JSON snapshots under prefixed keys.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache builds a cache over an existing client.
func NewRedisCache(client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func ticketKey(id string) string { return "ticket:" + id }
func userKey(id string) string   { return "user:" + id }

func (c *RedisCache) GetTicket(ctx context.Context, id string) (*domain.Ticket, bool) {
	var ticket domain.Ticket
	if !c.get(ctx, ticketKey(id), &ticket) {
		return nil, false
	}
	return &ticket, true
}

func (c *RedisCache) SetTicket(ctx context.Context, ticket *domain.Ticket) {
	c.set(ctx, ticketKey(ticket.ID), ticket)
}

func (c *RedisCache) InvalidateTicket(ctx context.Context, id string) {
	if err := c.client.Del(ctx, ticketKey(id)).Err(); err != nil {
		c.logger.Warn("cache invalidate failed", zap.String("key", ticketKey(id)), zap.Error(err))
	}
}

// GetUser returns a cached account. Password hashes are never cached.
func (c *RedisCache) GetUser(ctx context.Context, id string) (*domain.User, bool) {
	var user domain.User
	if !c.get(ctx, userKey(id), &user) {
		return nil, false
	}
	return &user, true
}

func (c *RedisCache) SetUser(ctx context.Context, user *domain.User) {
	cached := *user
	cached.PasswordHash = ""
	c.set(ctx, userKey(user.ID), &cached)
}

func (c *RedisCache) get(ctx context.Context, key string, dest any) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.logger.Warn("cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *RedisCache) set(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Debug("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
