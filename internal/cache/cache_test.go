package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/helpdesk-labs/ticket-tracker/internal/domain"
)

// mapRedis serves the handful of commands the cache issues from a map.
type mapRedis struct {
	redis.Cmdable
	data map[string]string
	ttls map[string]time.Duration
}

func newMapRedis() *mapRedis {
	return &mapRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *mapRedis) Get(_ context.Context, key string) *redis.StringCmd {
	val, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (m *mapRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	m.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (m *mapRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := m.data[key]; ok {
			delete(m.data, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisCacheTicketRoundTrip(t *testing.T) {
	backend := newMapRedis()
	c := NewRedisCache(backend, time.Minute, nil)
	ctx := context.Background()

	closedAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ticket := &domain.Ticket{ID: "t1", OwnerID: "u1", Subject: "Printer", State: domain.TicketStateClosed, Priority: domain.TicketPriorityHigh, ClosedAt: &closedAt}
	c.SetTicket(ctx, ticket)

	got, ok := c.GetTicket(ctx, "t1")
	if !ok {
		t.Fatal("GetTicket() miss after SetTicket")
	}
	if got.State != ticket.State || got.ClosedAt == nil || !got.ClosedAt.Equal(closedAt) {
		t.Fatalf("got %+v", got)
	}
	if backend.ttls["ticket:t1"] != time.Minute {
		t.Fatalf("ttl = %v", backend.ttls["ticket:t1"])
	}

	c.InvalidateTicket(ctx, "t1")
	if _, ok := c.GetTicket(ctx, "t1"); ok {
		t.Fatal("GetTicket() hit after invalidate")
	}
}

func TestRedisCacheStripsPasswordHash(t *testing.T) {
	c := NewRedisCache(newMapRedis(), time.Minute, nil)
	ctx := context.Background()

	c.SetUser(ctx, &domain.User{ID: "u1", Name: "Alice", PasswordHash: "secret", Role: domain.RoleClient})
	got, ok := c.GetUser(ctx, "u1")
	if !ok {
		t.Fatal("GetUser() miss")
	}
	if got.PasswordHash != "" {
		t.Fatal("password hash cached")
	}
	if got.Role != domain.RoleClient {
		t.Fatalf("role = %s", got.Role)
	}
}

func TestRedisCacheCorruptEntryIsMiss(t *testing.T) {
	backend := newMapRedis()
	backend.data["ticket:t1"] = "{not json"
	c := NewRedisCache(backend, time.Minute, nil)
	if _, ok := c.GetTicket(context.Background(), "t1"); ok {
		t.Fatal("corrupt entry returned as hit")
	}
}

func TestRedisCacheUnreachableServerDegrades(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	c := NewRedisCache(client, time.Minute, nil)
	ctx := context.Background()

	c.SetTicket(ctx, &domain.Ticket{ID: "t1"})
	c.InvalidateTicket(ctx, "t1")
	if _, ok := c.GetTicket(ctx, "t1"); ok {
		t.Fatal("unreachable cache reported a hit")
	}
}

func TestNoopNeverHits(t *testing.T) {
	var c Cache = Noop{}
	ctx := context.Background()
	c.SetTicket(ctx, &domain.Ticket{ID: "t1"})
	if _, ok := c.GetTicket(ctx, "t1"); ok {
		t.Fatal("noop cache hit")
	}
}
