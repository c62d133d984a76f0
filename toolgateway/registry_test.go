package toolgateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"
)

func echoTool(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	return args, nil
}

func TestRegistry_RegisterGetExecute(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	if err := r.Register("echo", echoTool, Metadata{Descriptor: Descriptor{Summary: "echoes input"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !r.Has("echo") {
		t.Fatalf("expected echo to be registered")
	}

	out, err := r.Execute(context.Background(), "echo", json.RawMessage(`{"x":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"x":1}` {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestRegistry_DuplicateRegisterFails(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	_ = r.Register("echo", echoTool, Metadata{})
	if err := r.Register("echo", echoTool, Metadata{}); err == nil {
		t.Fatalf("expected error on duplicate registration")
	}
}

func TestRegistry_TimeoutFiresOnSlowTool(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	slow := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		select {
		case <-time.After(time.Second):
			return args, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	_ = r.Register("slow", slow, Metadata{Timeout: 20 * time.Millisecond})

	_, err := r.Execute(context.Background(), "slow", nil)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestRegistry_RateLimitRejectsBurst(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	_ = r.Register("limited", echoTool, Metadata{RateLimit: &RateLimit{RatePerSecond: 0.001, Burst: 1}})

	if _, err := r.Execute(context.Background(), "limited", nil); err != nil {
		t.Fatalf("expected first call to succeed: %v", err)
	}
	if _, err := r.Execute(context.Background(), "limited", nil); err == nil {
		t.Fatalf("expected second call to be rate limited")
	}
}

func TestRegistry_PanicRecovered(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	panicky := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		panic("boom")
	}
	_ = r.Register("panicky", panicky, Metadata{})

	_, err := r.Execute(context.Background(), "panicky", nil)
	if err == nil {
		t.Fatalf("expected panic to be converted to an error")
	}
}
