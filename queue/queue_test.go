package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, "test:", zap.NewNop())
}

func TestQueue_FIFOOrder(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, &Task{SessionID: "s1", Goal: "first"}))
	require.NoError(t, q.Enqueue(ctx, &Task{SessionID: "s1", Goal: "second"}))

	t1, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, t1)
	assert.Equal(t, "first", t1.Goal)
	assert.NotEmpty(t, t1.ID)

	t2, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, t2)
	assert.Equal(t, "second", t2.Goal)
}

func TestQueue_DequeueTimesOutWhenEmpty(t *testing.T) {
	q := newTestQueue(t)
	task, err := q.Dequeue(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestQueue_Len(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, &Task{SessionID: "s1"}))
	require.NoError(t, q.Enqueue(ctx, &Task{SessionID: "s1"}))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
