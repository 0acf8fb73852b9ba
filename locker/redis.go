package locker

import (
	"context"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"dandi-api/logger"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by another holder is left alone.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every API instance pointed at the same redis.
type Redis struct {
	log    *logger.Logger
	rdb    *goredis.Client
	ttl    time.Duration
	prefix string
	retry  time.Duration
}

func NewRedis(log *logger.Logger, rdb *goredis.Client, ttl time.Duration) *Redis {
	return &Redis{
		log:    log.With("service", "RedisLocker"),
		rdb:    rdb,
		ttl:    ttl,
		prefix: "dandi:lock:",
		retry:  50 * time.Millisecond,
	}
}

// OpenRedis connects to the redis at rawURL and verifies the connection.
func OpenRedis(ctx context.Context, log *logger.Logger, rawURL string, ttl time.Duration) (*Redis, error) {
	opts, err := goredis.ParseURL(rawURL)
	if err != nil {
		return nil, Error.New("invalid REDIS_URL: %v", err)
	}
	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, Error.New("ping failed: %v", err)
	}
	return NewRedis(log, rdb, ttl), nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

// Lock polls until the key is free or ctx is done. The lock expires after
// the configured TTL if the holder never releases it.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	name := r.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()
	for {
		ok, err := r.rdb.SetNX(ctx, name, token, r.ttl).Result()
		if err != nil {
			return nil, Error.Wrap(err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, Error.Wrap(ctx.Err())
		case <-ticker.C:
		}
	}

	return func() {
		// release must outlive a cancelled request context
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, r.rdb, []string{name}, token).Err(); err != nil {
			r.log.Warn("failed to release lock", "key", name, "error", err)
		}
	}, nil
}
