package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

// AvailabilityCache はツアーの受入可能人数のキャッシュを管理する
type AvailabilityCache struct {
	client *redis.Client
}

// NewAvailabilityCache は新しいAvailabilityCacheインスタンスを作成する
func NewAvailabilityCache(client *redis.Client) *AvailabilityCache {
	return &AvailabilityCache{client: client}
}

// GetAvailableSpots はツアーの受入可能人数をキャッシュから取得する
func (c *AvailabilityCache) GetAvailableSpots(ctx context.Context, tourID string) (int, error) {
	key := c.availableSpotsKey(tourID)
	val, err := c.client.Get(ctx, key).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCacheMiss
		}
		return 0, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	return val, nil
}

// SetAvailableSpots はツアーの受入可能人数をキャッシュに保存する
func (c *AvailabilityCache) SetAvailableSpots(ctx context.Context, tourID string, spots int, ttl time.Duration) error {
	key := c.availableSpotsKey(tourID)
	err := c.client.Set(ctx, key, spots, ttl).Err()
	if err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate はツアーのキャッシュを無効化する
// 座席数が動く全ての操作の後に呼ばれる
func (c *AvailabilityCache) Invalidate(ctx context.Context, tourID string) error {
	key := c.availableSpotsKey(tourID)
	err := c.client.Del(ctx, key).Err()
	if err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

func (c *AvailabilityCache) availableSpotsKey(tourID string) string {
	return fmt.Sprintf("tours:available_spots:%s", tourID)
}
