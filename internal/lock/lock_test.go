package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestMemoryTryLock(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	release, ok, err := m.TryLock(ctx, "clip1.mp4")
	if err != nil || !ok {
		t.Fatalf("expected first lock to succeed, ok=%v err=%v", ok, err)
	}

	if _, ok, _ := m.TryLock(ctx, "clip1.mp4"); ok {
		t.Error("expected second lock on same key to fail")
	}

	otherRelease, ok, _ := m.TryLock(ctx, "clip2.mp4")
	if !ok {
		t.Error("expected lock on a different key to succeed")
	}
	otherRelease()

	release()
	release() // second call is a no-op

	if m.Len() != 0 {
		t.Errorf("expected no held keys, got %d", m.Len())
	}
	if _, ok, _ := m.TryLock(ctx, "clip1.mp4"); !ok {
		t.Error("expected lock to be available after release")
	}
}

func TestMemoryConcurrent(t *testing.T) {
	m := NewMemory()
	var winners atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok, _ := m.TryLock(context.Background(), "same.mp4"); ok {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if winners.Load() != 1 {
		t.Errorf("expected exactly one winner, got %d", winners.Load())
	}
}

func TestRedisUnreachable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	l := NewRedis(rdb, "", 0)
	if l.ttl != 30*time.Minute || l.prefix != "video:lock:" {
		t.Errorf("unexpected defaults prefix=%s ttl=%s", l.prefix, l.ttl)
	}

	_, ok, err := l.TryLock(context.Background(), "clip1.mp4")
	if err == nil || ok {
		t.Errorf("expected connection error, ok=%v err=%v", ok, err)
	}
}

// redisClient needs a real server; set TEST_REDIS_ADDR to run these tests.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	return rdb
}

func testPrefix() string {
	return "test:lock:" + uuid.NewString() + ":"
}

func TestRedisTryLock(t *testing.T) {
	rdb := redisClient(t)
	ctx := context.Background()
	l := NewRedis(rdb, testPrefix(), time.Minute)

	release, ok, err := l.TryLock(ctx, "clip1.mp4")
	if err != nil || !ok {
		t.Fatalf("expected first lock to succeed, ok=%v err=%v", ok, err)
	}

	// a second replica shares the prefix
	other := NewRedis(rdb, l.prefix, time.Minute)
	if _, ok, err := other.TryLock(ctx, "clip1.mp4"); ok || err != nil {
		t.Errorf("expected conflict, ok=%v err=%v", ok, err)
	}
	otherRelease, ok, _ := other.TryLock(ctx, "clip2.mp4")
	if !ok {
		t.Fatal("expected lock on a different key to succeed")
	}
	otherRelease()

	release()
	release()

	if n, _ := rdb.Exists(ctx, l.prefix+"clip1.mp4").Result(); n != 0 {
		t.Error("expected key to be deleted on release")
	}
	again, ok, _ := other.TryLock(ctx, "clip1.mp4")
	if !ok {
		t.Fatal("expected lock to be available after release")
	}
	again()
}

func TestRedisReleaseLeavesOtherHolderAlone(t *testing.T) {
	rdb := redisClient(t)
	ctx := context.Background()
	l := NewRedis(rdb, testPrefix(), time.Minute)
	key := l.prefix + "clip1.mp4"
	defer rdb.Del(ctx, key)

	release, ok, err := l.TryLock(ctx, "clip1.mp4")
	if err != nil || !ok {
		t.Fatalf("lock: ok=%v err=%v", ok, err)
	}

	// the lease was taken over after an expiry
	if err := rdb.Set(ctx, key, "someone-else", time.Minute).Err(); err != nil {
		t.Fatal(err)
	}
	release()

	got, err := rdb.Get(ctx, key).Result()
	if err != nil || got != "someone-else" {
		t.Errorf("expected foreign token to survive release, got %q err=%v", got, err)
	}
}

func TestRedisLeaseIsRenewedWhileHeld(t *testing.T) {
	rdb := redisClient(t)
	ctx := context.Background()
	ttl := 300 * time.Millisecond
	l := NewRedis(rdb, testPrefix(), ttl)

	release, ok, err := l.TryLock(ctx, "slow.mp4")
	if err != nil || !ok {
		t.Fatalf("lock: ok=%v err=%v", ok, err)
	}
	defer release()

	time.Sleep(4 * ttl)

	if _, ok, _ := l.TryLock(ctx, "slow.mp4"); ok {
		t.Fatal("expected lease to outlive its ttl while held")
	}
	if pttl, _ := rdb.PTTL(ctx, l.prefix+"slow.mp4").Result(); pttl <= 0 {
		t.Errorf("expected a positive ttl, got %v", pttl)
	}
}

func TestRedisLostLeaseIsReported(t *testing.T) {
	rdb := redisClient(t)
	ctx := context.Background()
	l := NewRedis(rdb, testPrefix(), 150*time.Millisecond)
	key := l.prefix + "clip1.mp4"
	defer rdb.Del(ctx, key)

	lost := make(chan string, 1)
	l.OnLost = func(k string) { lost <- k }

	release, ok, _ := l.TryLock(ctx, "clip1.mp4")
	if !ok {
		t.Fatal("expected lock")
	}
	defer release()

	if err := rdb.Set(ctx, key, "someone-else", time.Minute).Err(); err != nil {
		t.Fatal(err)
	}

	select {
	case k := <-lost:
		if k != key {
			t.Errorf("expected %s, got %s", key, k)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected lost lease to be reported")
	}
}
