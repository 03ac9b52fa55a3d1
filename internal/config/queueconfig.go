package config

import (
	"fmt"
	"time"

	"github.com/ashgrove/autoreply/internal/queue"
)

// QueueType selects a queue's backing implementation (spec.md §4.C).
type QueueType string

const (
	QueueMemory QueueType = "memory"
	QueueRedis  QueueType = "redis"
)

// QueueConfig configures one of the incoming/outgoing message queues.
type QueueConfig struct {
	Type     QueueType         `yaml:"type"`
	Capacity int               `yaml:"capacity"`
	Redis    queue.RedisConfig `yaml:"redis"`
}

func applyQueueDefaults(q *QueueConfig) {
	if q.Type == "" {
		q.Type = QueueMemory
	}
	if q.Capacity == 0 {
		q.Capacity = 100
	}
	if q.Type == QueueRedis && q.Redis.Timeout == 0 {
		q.Redis.Timeout = 5 * time.Second
	}
}

func validateQueueConfig(q QueueConfig) error {
	switch q.Type {
	case QueueMemory:
		return nil
	case QueueRedis:
		if q.Redis.Host == "" {
			return fmt.Errorf("redis.host is required")
		}
		if q.Redis.Key == "" {
			return fmt.Errorf("redis.key is required")
		}
		return nil
	default:
		return fmt.Errorf("unknown queue type %q (valid: memory, redis)", q.Type)
	}
}
