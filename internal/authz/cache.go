package authz

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const effectiveKeyPrefix = "authz:effective:"

// EffectiveCache caches resolved effective permissions per user in Redis.
// Writes that can change a user's effective set invalidate eagerly; the TTL
// only bounds staleness after missed invalidations.
type EffectiveCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewEffectiveCache constructs the cache.
func NewEffectiveCache(client *redis.Client, ttl time.Duration) *EffectiveCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &EffectiveCache{client: client, ttl: ttl}
}

type cachedPermission struct {
	Permission Permission `json:"permission"`
	Direct     bool       `json:"direct"`
	ViaRoles   []string   `json:"via_roles"`
}

// Get returns the cached effective set for a user, if present.
func (c *EffectiveCache) Get(ctx context.Context, userID string) ([]EffectivePermission, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, effectiveKeyPrefix+userID).Bytes()
	if err != nil {
		return nil, false
	}
	var cached []cachedPermission
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, false
	}
	effective := make([]EffectivePermission, len(cached))
	for i, entry := range cached {
		effective[i] = EffectivePermission{
			Permission: entry.Permission,
			Direct:     entry.Direct,
			ViaRoles:   entry.ViaRoles,
		}
	}
	return effective, true
}

// Set stores the effective set for a user.
func (c *EffectiveCache) Set(ctx context.Context, userID string, effective []EffectivePermission) error {
	if c == nil || c.client == nil {
		return nil
	}
	cached := make([]cachedPermission, len(effective))
	for i, ep := range effective {
		cached[i] = cachedPermission{
			Permission: ep.Permission,
			Direct:     ep.Direct,
			ViaRoles:   ep.ViaRoles,
		}
	}
	raw, err := json.Marshal(cached)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, effectiveKeyPrefix+userID, raw, c.ttl).Err()
}

// Invalidate drops the cached sets for the given users.
func (c *EffectiveCache) Invalidate(ctx context.Context, userIDs ...string) error {
	if c == nil || c.client == nil || len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = effectiveKeyPrefix + id
	}
	return c.client.Del(ctx, keys...).Err()
}

// InvalidateAll drops every cached effective set. Used after mutations whose
// blast radius spans all users, such as deleting a permission.
func (c *EffectiveCache) InvalidateAll(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, effectiveKeyPrefix+"*", 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
