package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"noprime/redirector/internal/domain"
)

type redisSettingsStore struct {
	redisClient *redis.Client
	key         string
}

func NewRedisSettingsStore(redisClient *redis.Client) SettingsStore {
	return &redisSettingsStore{
		redisClient: redisClient,
		key:         "noprime:settings:enabled",
	}
}

func (s *redisSettingsStore) Enabled(ctx context.Context) (bool, error) {
	val, err := s.redisClient.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return DefaultEnabled, nil // Never toggled
		}
		return DefaultEnabled, fmt.Errorf("failed to get enabled flag: %w", err)
	}

	enabled, err := strconv.ParseBool(val)
	if err != nil {
		return DefaultEnabled, fmt.Errorf("failed to parse enabled flag %q: %w", val, err)
	}

	return enabled, nil
}

func (s *redisSettingsStore) SetEnabled(ctx context.Context, enabled bool) error {
	err := s.redisClient.Set(ctx, s.key, strconv.FormatBool(enabled), 0).Err() // No expiration
	if err != nil {
		return fmt.Errorf("failed to set enabled flag: %w", err)
	}
	return nil
}

type redisTabStore struct {
	redisClient *redis.Client
	keyPrefix   string
	ttl         time.Duration
}

// NewRedisTabStore keeps tab states under keys that expire after ttl, so a
// session that ends without closing its tabs leaves nothing behind.
func NewRedisTabStore(redisClient *redis.Client, ttl time.Duration) TabStore {
	return &redisTabStore{
		redisClient: redisClient,
		keyPrefix:   "noprime:session:tab_",
		ttl:         ttl,
	}
}

func (s *redisTabStore) key(tabID int) string {
	return s.keyPrefix + strconv.Itoa(tabID)
}

func (s *redisTabStore) Get(ctx context.Context, tabID int) (*domain.TabState, error) {
	val, err := s.redisClient.Get(ctx, s.key(tabID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get state for tab %d: %w", tabID, err)
	}

	var st domain.TabState
	if err := json.Unmarshal(val, &st); err != nil {
		return nil, fmt.Errorf("failed to decode state for tab %d: %w", tabID, err)
	}

	return &st, nil
}

func (s *redisTabStore) Set(ctx context.Context, st *domain.TabState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode state for tab %d: %w", st.TabID, err)
	}

	if err := s.redisClient.Set(ctx, s.key(st.TabID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set state for tab %d: %w", st.TabID, err)
	}
	return nil
}

func (s *redisTabStore) Delete(ctx context.Context, tabID int) error {
	if err := s.redisClient.Del(ctx, s.key(tabID)).Err(); err != nil {
		return fmt.Errorf("failed to delete state for tab %d: %w", tabID, err)
	}
	return nil
}
