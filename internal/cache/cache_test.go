package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestMemorySettingsCacheExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := NewMemorySettingsCache()
	c.now = func() time.Time { return now }

	values := map[string]json.RawMessage{"deliveryFee": json.RawMessage(`150`)}
	if err := c.Set(ctx, values, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := c.Get(ctx)
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if string(got["deliveryFee"]) != "150" {
		t.Fatalf("unexpected cached value %s", got["deliveryFee"])
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := c.Get(ctx); ok {
		t.Fatalf("expected expired entry to miss")
	}
}

func TestMemorySettingsCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewMemorySettingsCache()
	if err := c.Set(ctx, map[string]json.RawMessage{"theme": json.RawMessage(`"dark"`)}, time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := c.Get(ctx); ok {
		t.Fatalf("expected miss after invalidate")
	}
}

func TestNoopSettingsCacheAlwaysMisses(t *testing.T) {
	var c SettingsCache = NoopSettingsCache{}
	if err := c.Set(context.Background(), map[string]json.RawMessage{"a": json.RawMessage(`1`)}, time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, _ := c.Get(context.Background()); ok {
		t.Fatalf("noop cache must miss")
	}
}
