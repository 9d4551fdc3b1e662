// Package queue holds pending push payloads in a Redis list. Producers LPUSH
// the base64 message.data, consumers BRPOP from the other end.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisQueue struct {
	rdb       *redis.Client
	queueName string
}

func NewRedisQueue(rdb *redis.Client, queueName string) *RedisQueue {
	return &RedisQueue{rdb: rdb, queueName: queueName}
}

func (q *RedisQueue) Name() string { return q.queueName }

// Pop blocks for up to wait. It returns "" and no error when nothing arrived.
func (q *RedisQueue) Pop(ctx context.Context, wait time.Duration) (string, error) {
	res, err := q.rdb.BRPop(ctx, wait, q.queueName).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if len(res) < 2 {
		return "", nil
	}
	return res[1], nil
}

// Push appends a payload at the head, so it is popped after what is already
// waiting.
func (q *RedisQueue) Push(ctx context.Context, payload string) error {
	return q.rdb.LPush(ctx, q.queueName, payload).Err()
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.queueName).Result()
}
