package loader

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisFunc builds a fallback Func that reads through rdb, adapted from the
// teacher's cache/redis.go L2 layer. L2 treats every Redis error (including
// redis.Nil) as a soft miss; a fallback loader cannot do that — spec.md's
// `fallback_error` kind exists precisely so a failing loader is reported,
// not silently swallowed — so unlike L2, a connection error here is
// returned to the caller rather than masked as a miss. redis.Nil (key
// genuinely absent) is reported as a plain "not found" error, unwrapped;
// like any other loader error it reaches the caller as a fallback error
// (StatusError), not as a miss.
func RedisFunc(rdb *redis.Client) Func[string, []byte] {
	return func(ctx context.Context, key string, args ...any) ([]byte, error) {
		val, err := rdb.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				return nil, fmt.Errorf("redis: key %q not found", key)
			}
			return nil, fmt.Errorf("redis: %w", err)
		}
		return val, nil
	}
}
