package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lease taken over by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lease only while it still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

const minTTL = 30 * time.Millisecond

// Redis is a Locker shared by every replica that talks to the same Redis.
// A held lease is renewed every ttl/3 until released, so it only expires
// when the holder dies.
type Redis struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration

	// OnLost is called when a renewal finds the lease gone or owned by
	// someone else. Optional.
	OnLost func(key string)
}

func NewRedis(rdb *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "video:lock:"
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if ttl < minTTL {
		ttl = minTTL
	}
	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *Redis) TryLock(ctx context.Context, key string) (func(), bool, error) {
	k := r.prefix + key
	token := uuid.NewString()

	ok, err := r.rdb.SetNX(ctx, k, token, r.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	renewed := make(chan struct{})
	go r.renew(k, token, stop, renewed)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-renewed
			// the request context may already be done
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(rctx, r.rdb, []string{k}, token).Err()
		})
	}, true, nil
}

func (r *Redis) renew(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.ttl/3)
		n, err := renewScript.Run(ctx, r.rdb, []string{key}, token, r.ttl.Milliseconds()).Int64()
		cancel()
		if err != nil {
			// transient; the next tick retries while the lease is still valid
			continue
		}
		if n == 0 {
			if r.OnLost != nil {
				r.OnLost(key)
			}
			return
		}
	}
}
