package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// RedisQueue is the cross-process backend of spec.md §4.C: a bounded
// list hosted by Redis, visible to every worker process that shares
// its connection parameters. BLPop gives a native blocking pop with a
// timeout; Put is enforced against capacity with a short poll loop,
// since Redis lists have no blocking bounded-push primitive.
//
// The BLPop-with-timeout, redis.Nil-means-empty loop is the same
// shape used by the retrieved mailvetter worker runner, adapted here
// to the Queue contract instead of a fire-and-forget worker loop.
type RedisQueue[T any] struct {
	client   *redis.Client
	key      string
	capacity int // 0 means unbounded
	pollEvery time.Duration
}

// RedisConfig holds the backend-specific parameters from spec.md §6
// ("Redis variant keys: host/port/db/username/password/key/timeout").
type RedisConfig struct {
	Host     string
	Port     int
	DB       int
	Username string
	Password string
	Key      string
	Timeout  time.Duration
}

// NewRedisQueue opens a client against cfg and binds it to a single
// list key acting as the FIFO. capacity is enforced client-side by
// Put; 0 means unbounded.
func NewRedisQueue[T any](cfg RedisConfig, capacity int) *RedisQueue[T] {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		DB:           cfg.DB,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
	return &RedisQueue[T]{
		client:    client,
		key:       cfg.Key,
		capacity:  capacity,
		pollEvery: 50 * time.Millisecond,
	}
}

func (q *RedisQueue[T]) IsThreadSafe() bool  { return true }
func (q *RedisQueue[T]) IsProcessSafe() bool { return true }

// Put RPushes item, polling against capacity until room is available
// or timeout elapses. timeout <= 0 polls until ctx is done.
func (q *RedisQueue[T]) Put(ctx context.Context, item T, timeout time.Duration) error {
	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("queue: marshal item: %w", err)
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(q.pollEvery)
	defer ticker.Stop()

	for {
		if q.capacity > 0 {
			n, err := q.client.LLen(waitCtx, q.key).Result()
			if err != nil {
				return fmt.Errorf("queue: check length: %w", err)
			}
			if n >= int64(q.capacity) {
				select {
				case <-ticker.C:
					continue
				case <-waitCtx.Done():
					if timeout > 0 && errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
						return ErrFull
					}
					return waitCtx.Err()
				}
			}
		}
		if err := q.client.RPush(waitCtx, q.key, body).Err(); err != nil {
			return fmt.Errorf("queue: rpush: %w", err)
		}
		return nil
	}
}

// Get pops the head item via BLPop. timeout <= 0 blocks indefinitely
// (bounded only by ctx); a BLPop timeout surfaces as ok=false, err=nil.
func (q *RedisQueue[T]) Get(ctx context.Context, timeout time.Duration) (T, bool, error) {
	var zero T

	result, err := q.client.BLPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, false, nil
		}
		if ctx.Err() != nil {
			return zero, false, ctx.Err()
		}
		return zero, false, fmt.Errorf("queue: blpop: %w", err)
	}

	// BLPop returns [key, value].
	var item T
	if err := json.Unmarshal([]byte(result[1]), &item); err != nil {
		return zero, false, fmt.Errorf("queue: unmarshal item: %w", err)
	}
	return item, true, nil
}

// Close releases the underlying Redis client connection.
func (q *RedisQueue[T]) Close() error {
	return q.client.Close()
}
