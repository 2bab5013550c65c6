package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheSetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(100, time.Minute)
	defer c.Close()

	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	v, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(v) != "v" {
		t.Fatalf("Get = %q, want v", v)
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Get(ctx, "k"); err == nil {
		t.Fatal("expected error after delete")
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(100, time.Minute)
	defer c.Close()

	if err := c.Set(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if _, err := c.Get(ctx, "k"); err == nil {
		t.Fatal("expected key to have expired")
	}
	ok, err := c.Exists(ctx, "k")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Fatal("expected Exists = false after expiry")
	}
}

func TestMemoryCacheClearPrefix(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(100, time.Minute)
	defer c.Close()

	c.Set(ctx, "task:1", []byte("a"), 0)
	c.Set(ctx, "task:2", []byte("b"), 0)
	c.Set(ctx, "query:x", []byte("c"), 0)

	if err := c.Clear(ctx, "task:"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	if _, err := c.Get(ctx, "task:1"); err == nil {
		t.Fatal("expected task:1 cleared")
	}
	if _, err := c.Get(ctx, "query:x"); err != nil {
		t.Fatal("expected query:x to survive prefix clear")
	}
}

func TestMemoryCacheStats(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(100, time.Minute)
	defer c.Close()

	c.Set(ctx, "k", []byte("v"), 0)
	c.Get(ctx, "k")
	c.Get(ctx, "missing")

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("Stats = %+v, want Hits=1 Misses=1", stats)
	}
	if stats.Backend != "memory" {
		t.Fatalf("Backend = %q, want memory", stats.Backend)
	}
}
