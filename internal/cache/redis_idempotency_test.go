package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newMiniStore returns a store backed by an in-process Redis server.
func newMiniStore(t *testing.T, ttl time.Duration) (*RedisIdempotencyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return NewRedisIdempotencyStore(c, "test", "report.generate", ttl), mr
}

// unreachable returns a client pointed at a closed port with tight timeouts.
func unreachable(t *testing.T) *redis.Client {
	t.Helper()
	c := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		ReadTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewClient(t *testing.T) {
	if _, err := NewClient("  "); err == nil {
		t.Fatalf("expected error for empty url")
	}
	if _, err := NewClient("not a url"); err == nil {
		t.Fatalf("expected parse error")
	}
	c, err := NewClient("redis://localhost:6379/2")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer c.Close()
	if c.Options().DB != 2 {
		t.Fatalf("db index not parsed: %d", c.Options().DB)
	}
}

func TestRedisIdempotencyStore_KeyLayoutAndDefaults(t *testing.T) {
	s := NewRedisIdempotencyStore(nil, "", "report.generate", 0)
	if got := s.key("u1", "abc"); got != "reflect:idem:report.generate:u1:abc" {
		t.Fatalf("unexpected key %q", got)
	}
	if s.ttl != 24*time.Hour {
		t.Fatalf("default ttl = %v", s.ttl)
	}
}

func TestRedisIdempotencyStore_NilClientIsNoop(t *testing.T) {
	var s *RedisIdempotencyStore
	if _, found, err := s.Find(context.Background(), "u1", "k"); found || err != nil {
		t.Fatalf("nil store Find: found=%v err=%v", found, err)
	}
	if err := s.Record(context.Background(), "u1", "k", "r"); err != nil {
		t.Fatalf("nil store Record: %v", err)
	}
}

func TestRedisIdempotencyStore_UnreachableSurfacesErrors(t *testing.T) {
	s := NewRedisIdempotencyStore(unreachable(t), "test", "report.generate", time.Minute)
	ctx := context.Background()

	if _, found, err := s.Find(ctx, "u1", "k"); err == nil || found {
		t.Fatalf("expected connection error, got found=%v err=%v", found, err)
	}
	if err := s.Record(ctx, "u1", "k", "r"); err == nil {
		t.Fatalf("expected connection error from Record")
	}
	if err := s.Ping(ctx); err == nil {
		t.Fatalf("expected ping error")
	}
	// blank keys never touch the network
	if _, found, err := s.Find(ctx, "u1", " "); found || err != nil {
		t.Fatalf("blank key: found=%v err=%v", found, err)
	}
}

func TestRedisIdempotencyStore_RecordThenFind(t *testing.T) {
	s, mr := newMiniStore(t, time.Hour)
	ctx := context.Background()

	if _, found, err := s.Find(ctx, "u1", "k1"); found || err != nil {
		t.Fatalf("fresh key: found=%v err=%v", found, err)
	}
	if err := s.Record(ctx, "u1", "k1", "r-1"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	id, found, err := s.Find(ctx, "u1", "k1")
	if err != nil || !found || id != "r-1" {
		t.Fatalf("Find = (%q, %v, %v)", id, found, err)
	}
	// keys are scoped per user
	if _, found, _ := s.Find(ctx, "u2", "k1"); found {
		t.Fatalf("key leaked across users")
	}
	if got := mr.TTL("test:idem:report.generate:u1:k1"); got != time.Hour {
		t.Fatalf("ttl = %v", got)
	}
}

func TestRedisIdempotencyStore_FirstWriterWins(t *testing.T) {
	s, _ := newMiniStore(t, time.Hour)
	ctx := context.Background()

	if err := s.Record(ctx, "u1", "k1", "r-1"); err != nil {
		t.Fatalf("first Record: %v", err)
	}
	if err := s.Record(ctx, "u1", "k1", "r-2"); err != nil {
		t.Fatalf("second Record must not fail: %v", err)
	}
	if id, _, _ := s.Find(ctx, "u1", "k1"); id != "r-1" {
		t.Fatalf("second writer replaced the value: %q", id)
	}
}

func TestRedisIdempotencyStore_ExpiredKeyIsAbsent(t *testing.T) {
	s, mr := newMiniStore(t, 24*time.Hour)
	ctx := context.Background()

	if err := s.Record(ctx, "u1", "k1", "r-1"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	mr.FastForward(24*time.Hour - time.Second)
	if _, found, _ := s.Find(ctx, "u1", "k1"); !found {
		t.Fatalf("key expired early")
	}
	mr.FastForward(time.Second)
	if _, found, err := s.Find(ctx, "u1", "k1"); found || err != nil {
		t.Fatalf("expired key: found=%v err=%v", found, err)
	}
	// an expired key can be claimed again
	if err := s.Record(ctx, "u1", "k1", "r-2"); err != nil {
		t.Fatalf("Record after expiry: %v", err)
	}
	if id, _, _ := s.Find(ctx, "u1", "k1"); id != "r-2" {
		t.Fatalf("want r-2 after expiry, got %q", id)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
