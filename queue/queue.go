// Package queue implements the Task Queue of SPEC_FULL.md §4.5: a Redis
// list FIFO, restructured from the teacher's agent/persistence
// RedisTaskStore (which indexes tasks in sorted sets for querying) into a
// strict producer/consumer queue — RPUSH to enqueue, BLPOP to dequeue —
// since the gateway only ever needs ordered hand-off to a reasoning
// worker, not the teacher's richer status/agent/session index set.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Task is one unit of reasoning-engine work. TraceID is carried as a
// plain JSON field rather than through OpenTelemetry propagation headers,
// since distributed tracing initialization sits outside this system
// (SPEC_FULL.md §1 Non-goals) — a worker that wants to correlate logs
// just reads the field back out.
type Task struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"session_id"`
	TraceID    string         `json:"trace_id,omitempty"`
	Goal       string         `json:"goal"`
	ProfileID  string         `json:"profile_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// Queue is a Redis-list-backed FIFO task queue.
type Queue struct {
	rdb    *redis.Client
	key    string
	logger *zap.Logger
}

// New builds a Queue using Redis key keyPrefix+"tasks".
func New(rdb *redis.Client, keyPrefix string, logger *zap.Logger) *Queue {
	if keyPrefix == "" {
		keyPrefix = "gateway:"
	}
	return &Queue{rdb: rdb, key: keyPrefix + "tasks", logger: logger}
}

// Enqueue assigns an ID, trace ID and enqueue timestamp if absent, then
// RPUSHes the task onto the tail of the list.
func (q *Queue) Enqueue(ctx context.Context, task *Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.TraceID == "" {
		task.TraceID = uuid.New().String()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now()
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("queue: marshal task: %w", err)
	}

	if err := q.rdb.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("queue: rpush: %w", err)
	}
	q.logger.Debug("task enqueued", zap.String("task_id", task.ID), zap.String("session_id", task.SessionID))
	return nil
}

// Dequeue blocks until a task is available or timeout elapses, returning
// the task popped from the head of the list (FIFO with Enqueue's RPUSH).
// timeout <= 0 blocks indefinitely.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Task, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if err == redis.Nil {
		return nil, nil // timed out, no task available
	}
	if err != nil {
		return nil, fmt.Errorf("queue: blpop: %w", err)
	}

	// BLPOP returns [key, value]; index 1 is the popped element.
	var task Task
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return nil, fmt.Errorf("queue: unmarshal task: %w", err)
	}
	return &task, nil
}

// Len reports the current queue depth.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}
