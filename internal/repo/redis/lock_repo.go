package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only when the stored token matches, so a
// holder whose lease already expired cannot release someone else's lease.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type LockRepo struct {
	client *goredis.Client
}

func NewLockRepo(client *goredis.Client) *LockRepo {
	return &LockRepo{client: client}
}

// TryAcquire attempts a single SET NX PX on the lease key.
func (r *LockRepo) TryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	if key == "" || token == "" || ttl <= 0 {
		return false, fmt.Errorf("invalid lock acquire payload")
	}

	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock key: %w", err)
	}

	return ok, nil
}

func (r *LockRepo) Release(ctx context.Context, key, token string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if key == "" || token == "" {
		return fmt.Errorf("invalid lock release payload")
	}

	if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil && err != goredis.Nil {
		return fmt.Errorf("release lock key: %w", err)
	}

	return nil
}
