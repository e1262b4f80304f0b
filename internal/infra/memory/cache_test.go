package memory

import (
	"context"
	"testing"
	"time"
)

func TestCacheSetGetDelete(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(time.Minute)

	if _, ok, _ := cache.Get(ctx, "fee:play"); ok {
		t.Fatalf("expected miss on empty cache")
	}
	value := []byte(`1000`)
	if err := cache.Set(ctx, "fee:play", value, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	value[0] = '9'

	got, ok, err := cache.Get(ctx, "fee:play")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(got) != "1000" {
		t.Fatalf("cache must keep its own copy, got %s", got)
	}

	_ = cache.Set(ctx, "counter", []byte(`3`), 0)
	if err := cache.Delete(ctx, "fee:play", "counter", "missing"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache, got %d items", cache.Len())
	}
}

func TestCacheExpires(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(time.Minute)
	_ = cache.Set(ctx, "balance:quiz", []byte(`0`), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	if _, ok, _ := cache.Get(ctx, "balance:quiz"); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestTTLJitterBounds(t *testing.T) {
	cache := NewCache(time.Minute)
	for i := 0; i < 100; i++ {
		got := cache.ttlWithJitter(time.Second)
		if got < time.Second || got > 1100*time.Millisecond {
			t.Fatalf("jitter out of bounds: %v", got)
		}
	}
}
