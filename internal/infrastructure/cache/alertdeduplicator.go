package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// alertKeyPrefix is the prefix for all alert deduplication keys
	alertKeyPrefix = "ntconsole:alert:"
	// DefaultAlertCooldownMinutes is the default cooldown period in minutes
	DefaultAlertCooldownMinutes = 30
)

// AlertType represents different alert types for deduplication
type AlertType string

const (
	AlertTypeLineItemOverdue AlertType = "line_item_overdue"
)

// AlertDeduplicator lets several console instances agree on which one
// raises an alert for a given entity within a cooldown period.
type AlertDeduplicator struct {
	client *redis.Client
}

func NewAlertDeduplicator(client *redis.Client) *AlertDeduplicator {
	return &AlertDeduplicator{client: client}
}

// Format: ntconsole:alert:{type}:{entity_id}
func (d *AlertDeduplicator) buildKey(alertType AlertType, entityID string) string {
	return fmt.Sprintf("%s%s:%s", alertKeyPrefix, alertType, entityID)
}

// TryAcquireAlertLock atomically checks and acquires an alert lock using SetNX.
// Returns true if the lock was acquired (alert should be sent), false if already in cooldown.
func (d *AlertDeduplicator) TryAcquireAlertLock(ctx context.Context, alertType AlertType, entityID string, ttl time.Duration) (bool, error) {
	acquired, err := d.client.SetNX(ctx, d.buildKey(alertType, entityID), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire alert lock: %w", err)
	}
	return acquired, nil
}

// ClearAlert ends the cooldown, e.g. once the item has been paid.
func (d *AlertDeduplicator) ClearAlert(ctx context.Context, alertType AlertType, entityID string) error {
	if err := d.client.Del(ctx, d.buildKey(alertType, entityID)).Err(); err != nil {
		return fmt.Errorf("failed to clear alert: %w", err)
	}
	return nil
}

// GetRemainingCooldown returns the remaining cooldown time for an alert
// Returns 0 if not in cooldown
func (d *AlertDeduplicator) GetRemainingCooldown(ctx context.Context, alertType AlertType, entityID string) (time.Duration, error) {
	ttl, err := d.client.TTL(ctx, d.buildKey(alertType, entityID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get cooldown: %w", err)
	}

	// TTL returns -2 if key doesn't exist, -1 if no TTL set
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
