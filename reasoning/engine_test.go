package reasoning

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BaSui01/llmgateway/adapter"
	"github.com/BaSui01/llmgateway/eventbus"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRouter struct {
	responses []string
	i         int
}

func (f *fakeRouter) Route(ctx context.Context, alias string, req *adapter.ChatRequest) (*adapter.ChatResponse, error) {
	if f.i >= len(f.responses) {
		return &adapter.ChatResponse{Choices: []adapter.ChatChoice{{Message: adapter.Message{Content: f.responses[len(f.responses)-1]}}}}, nil
	}
	resp := f.responses[f.i]
	f.i++
	return &adapter.ChatResponse{Choices: []adapter.ChatChoice{{Message: adapter.Message{Content: resp}}}}, nil
}

type fakeToolCaller struct{}

func (fakeToolCaller) Call(ctx context.Context, sessionID, toolName string, arguments json.RawMessage) (json.RawMessage, int, error) {
	return json.RawMessage(`{"result":"ok"}`), 200, nil
}

type fakePromptBuilder struct{}

func (fakePromptBuilder) Build(patternID, clientInstruction string, clientManifests []string, serverInstruction string, serverManifests []string, scratchpad []ScratchpadEntry) (string, error) {
	return "system prompt", nil
}

func newTestBus(t *testing.T) *eventbus.Bus {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return eventbus.New(rdb, time.Second, zap.NewNop())
}

func TestEngine_FinalAnswerReachesDone(t *testing.T) {
	bus := newTestBus(t)
	router := &fakeRouter{responses: []string{`<THOUGHT>thinking</THOUGHT><FINAL_ANSWER>42</FINAL_ANSWER>`}}
	engine := NewEngine(DefaultConfig(), router, fakeToolCaller{}, fakePromptBuilder{}, bus, zap.NewNop())
	defer engine.Close()

	ctx := context.Background()
	sub := bus.Subscribe(ctx, "s1")
	defer sub.Close()
	require.NoError(t, sub.Receive(ctx))

	require.NoError(t, engine.Submit(ctx, Job{SessionID: "s1", ProfileAlias: "default"}))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-sub.Channel():
			var evt eventbus.Event
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &evt))
			if evt.Type == eventbus.EventFinalAnswerStreamEnd {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for final answer event")
		}
	}
}

func TestEngine_ActionThenFinalAnswer(t *testing.T) {
	bus := newTestBus(t)
	router := &fakeRouter{responses: []string{
		`<THOUGHT>need a tool</THOUGHT><ACTION>{"tool_name":"lookup","arguments":{}}</ACTION>`,
		`<THOUGHT>done</THOUGHT><FINAL_ANSWER>result</FINAL_ANSWER>`,
	}}
	engine := NewEngine(DefaultConfig(), router, fakeToolCaller{}, fakePromptBuilder{}, bus, zap.NewNop())
	defer engine.Close()

	ctx := context.Background()
	sub := bus.Subscribe(ctx, "s2")
	defer sub.Close()
	require.NoError(t, sub.Receive(ctx))

	require.NoError(t, engine.Submit(ctx, Job{SessionID: "s2", ProfileAlias: "default"}))

	sawObservation := false
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-sub.Channel():
			var evt eventbus.Event
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &evt))
			if evt.Type == eventbus.EventAgentObservation {
				sawObservation = true
			}
			if evt.Type == eventbus.EventFinalAnswerStreamEnd {
				require.True(t, sawObservation, "expected an observation before the final answer")
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for final answer event")
		}
	}
}

func TestEngine_UnparsedOutputEmitsError(t *testing.T) {
	bus := newTestBus(t)
	router := &fakeRouter{responses: []string{"no tags here at all"}}
	engine := NewEngine(DefaultConfig(), router, fakeToolCaller{}, fakePromptBuilder{}, bus, zap.NewNop())
	defer engine.Close()

	ctx := context.Background()
	sub := bus.Subscribe(ctx, "s3")
	defer sub.Close()
	require.NoError(t, sub.Receive(ctx))

	require.NoError(t, engine.Submit(ctx, Job{SessionID: "s3", ProfileAlias: "default"}))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-sub.Channel():
			var evt eventbus.Event
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &evt))
			if evt.Type == eventbus.EventError {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for error event")
		}
	}
}
