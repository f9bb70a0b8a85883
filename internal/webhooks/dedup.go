package webhooks

import (
	"context"
	"time"

	"channel-gateway/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper backs Deduper with a shared redis instance so redeliveries are
// suppressed across process replicas.
type RedisDeduper struct {
	RDB *redis.Client
}

func (d RedisDeduper) Once(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return utils.DedupOnce(ctx, d.RDB, key, ttl)
}
