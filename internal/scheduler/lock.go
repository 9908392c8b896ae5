package scheduler

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// TickLock elects one instance per minute when several processes share a store
type TickLock interface {
	Acquire(ctx context.Context, minute time.Time) (bool, error)
}

// NoLock always grants the tick
type NoLock struct{}

func (NoLock) Acquire(context.Context, time.Time) (bool, error) { return true, nil }

// RedisTickLock claims memento:tick:<UTC minute> with SETNX
type RedisTickLock struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	owner  string
}

func NewRedisTickLock(rdb *redis.Client) *RedisTickLock {
	owner, _ := os.Hostname()
	return &RedisTickLock{
		rdb:    rdb,
		prefix: "memento:tick:",
		ttl:    2 * time.Minute,
		owner:  owner,
	}
}

func (l *RedisTickLock) Acquire(ctx context.Context, minute time.Time) (bool, error) {
	key := l.prefix + minute.UTC().Format("200601021504")
	return l.rdb.SetNX(ctx, key, l.owner, l.ttl).Result()
}
