package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBus(t *testing.T) (*Bus, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, 200*time.Millisecond, zap.NewNop()), rdb
}

func TestBus_PublishSubscribeRoundTrip(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx := context.Background()

	sub := bus.Subscribe(ctx, "sess-1")
	defer sub.Close()
	require.NoError(t, sub.Receive(ctx)) // wait for subscribe confirmation

	require.NoError(t, bus.Publish(ctx, "sess-1", Event{Type: EventAgentThoughtStream, Payload: "hello"}))

	select {
	case msg := <-sub.Channel():
		require.Contains(t, msg.Payload, "hello")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestBus_AwaitWorkerAckTimesOutWithoutAck(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx := context.Background()

	sub := bus.Subscribe(ctx, "sess-2")
	defer sub.Close()
	require.NoError(t, sub.Receive(ctx))

	err := bus.AwaitWorkerAck(ctx, sub)
	require.ErrorIs(t, err, ErrAckTimeout)
}

func TestBus_AwaitWorkerAckSucceedsOnAck(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx := context.Background()

	sub := bus.Subscribe(ctx, "sess-3")
	defer sub.Close()
	require.NoError(t, sub.Receive(ctx))

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = bus.SendWorkerAck(ctx, "sess-3")
	}()

	require.NoError(t, bus.AwaitWorkerAck(ctx, sub))
}
