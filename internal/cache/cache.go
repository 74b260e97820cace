package cache

import (
	"context"
	"encoding/json"
	"time"
)

// SettingsCache holds the raw settings key/value map between reads.
type SettingsCache interface {
	Get(ctx context.Context) (map[string]json.RawMessage, bool, error)
	Set(ctx context.Context, values map[string]json.RawMessage, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopSettingsCache struct{}

func (NoopSettingsCache) Get(_ context.Context) (map[string]json.RawMessage, bool, error) {
	return nil, false, nil
}

func (NoopSettingsCache) Set(_ context.Context, _ map[string]json.RawMessage, _ time.Duration) error {
	return nil
}

func (NoopSettingsCache) Invalidate(_ context.Context) error {
	return nil
}
