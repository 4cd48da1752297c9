package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nouslabs/nous/internal/domain"
)

// envelope wraps a task with delivery bookkeeping. The attempt counter rides
// with the payload so retries survive process restarts.
type envelope struct {
	Task       domain.Task `json:"task"`
	Attempt    int         `json:"attempt"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
}

// Queue implements domain.TaskQueue on a Redis sorted set scored by fire
// time. Members are JSON envelopes; the worker claims due members atomically
// with a Lua script, so a task is delivered to at most one worker per claim.
type Queue struct {
	rdb *redis.Client
	key string
}

var _ domain.TaskQueue = (*Queue)(nil)

// NewQueue creates a Queue storing tasks under the given sorted-set key.
func NewQueue(c *Client, key string) *Queue {
	return &Queue{rdb: c.Underlying(), key: key}
}

// EnqueueAt schedules the task to fire no earlier than at.
func (q *Queue) EnqueueAt(ctx context.Context, task domain.Task, at time.Time) error {
	return q.enqueue(ctx, envelope{
		Task:       task,
		EnqueuedAt: time.Now().UTC(),
	}, at)
}

func (q *Queue) enqueue(ctx context.Context, env envelope, at time.Time) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("redis: marshal task %s: %w", env.Task.ID, err)
	}

	err = q.rdb.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(at.Unix()),
		Member: payload,
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: enqueue task %s: %w", env.Task.ID, err)
	}
	return nil
}

// deadLetterKey is the list holding tasks that exhausted their retries.
func (q *Queue) deadLetterKey() string {
	return q.key + ":dead"
}

func (q *Queue) deadLetter(ctx context.Context, env envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("redis: marshal dead task %s: %w", env.Task.ID, err)
	}
	if err := q.rdb.RPush(ctx, q.deadLetterKey(), payload).Err(); err != nil {
		return fmt.Errorf("redis: dead-letter task %s: %w", env.Task.ID, err)
	}
	return nil
}
