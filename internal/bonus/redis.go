package bonus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"provider-integrity-go/internal/models"

	"github.com/redis/go-redis/v9"
)

func ConnectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("unable to reach redis at %s: %w", addr, err)
	}

	return rdb, nil
}

// RedisTier keeps templates in Redis so they survive restarts and are shared
// between processors.
type RedisTier struct {
	Client *redis.Client
}

func NewRedisTier(c *redis.Client) *RedisTier {
	return &RedisTier{Client: c}
}

func (r *RedisTier) Get(ctx context.Context, key string) (*models.BonusTemplate, error) {
	raw, err := r.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return decodeTemplate(raw)
}

func (r *RedisTier) Set(ctx context.Context, key string, template *models.BonusTemplate, ttl time.Duration) error {
	b, err := json.Marshal(template)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, key, b, ttl).Err()
}

func decodeTemplate(raw []byte) (*models.BonusTemplate, error) {
	var t models.BonusTemplate
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("corrupt cached template: %w", err)
	}
	return &t, nil
}
