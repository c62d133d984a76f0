// Package reasoning implements the Reasoning Engine of SPEC_FULL.md §4.6:
// a worker pool that drains the Task Queue and runs one AgentStepProcessor
// state machine per task, parsing <THOUGHT>/<ACTION>/<FINAL_ANSWER> tags
// out of the LLM's raw output and driving tool calls through the Tool
// Gateway.
package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/llmgateway/adapter"
	"github.com/BaSui01/llmgateway/eventbus"
	"github.com/BaSui01/llmgateway/gatewayerr"
	"go.uber.org/zap"
)

// State names one point in the per-session state machine
// PLANNING -> ACTING -> OBSERVING -> (repeat) -> SYNTHESIZING -> DONE,
// with an error transition into FAILED from any state.
type State string

const (
	StatePlanning     State = "PLANNING"
	StateActing       State = "ACTING"
	StateObserving    State = "OBSERVING"
	StateSynthesizing State = "SYNTHESIZING"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

// ScratchpadEntry is one recorded {thought, action, observation} triple.
// Observation is empty for a reflective pause (SPEC_FULL.md §4.6.f).
type ScratchpadEntry struct {
	Thought     string
	Action      *ActionCall
	Observation json.RawMessage
}

// Router is the narrow capability the engine needs from the Router
// component: run one chat completion through the same fallback/rotation
// path as direct client requests (SPEC_FULL.md §4.6.b).
type Router interface {
	Route(ctx context.Context, alias string, req *adapter.ChatRequest) (*adapter.ChatResponse, error)
}

// ToolCaller is the narrow capability the engine needs from the Tool
// Gateway.
type ToolCaller interface {
	Call(ctx context.Context, sessionID, toolName string, arguments json.RawMessage) (observation json.RawMessage, httpStatus int, err error)
}

// PromptBuilder is the narrow capability the engine needs from the
// Prompt Constructor (§4.7).
type PromptBuilder interface {
	Build(patternID, clientInstruction string, clientManifests []string, serverInstruction string, serverManifests []string, scratchpad []ScratchpadEntry) (string, error)
}

// Job describes one reasoning run.
type Job struct {
	SessionID         string
	ProfileAlias      string
	ContextWindow     int
	PatternID         string
	ClientInstruction string
	ClientManifests   []string
	ServerInstruction string
	ServerManifests   []string
}

// Engine runs AgentStepProcessor for jobs pulled off the Task Queue.
type Engine struct {
	pool        *WorkerPool
	router      Router
	tools       ToolCaller
	prompts     PromptBuilder
	bus         *eventbus.Bus
	budget      *TokenBudget
	logger      *zap.Logger
	maxSteps    int
	stepTimeout time.Duration
}

// Config tunes an Engine.
type Config struct {
	MaxSteps    int
	StepTimeout time.Duration
	Pool        WorkerPoolConfig
}

// DefaultConfig mirrors SPEC_FULL.md §9's resolved default: MAX_STEPS=12.
func DefaultConfig() Config {
	return Config{
		MaxSteps:    12,
		StepTimeout: 60 * time.Second,
		Pool:        DefaultWorkerPoolConfig(),
	}
}

// NewEngine builds an Engine.
func NewEngine(cfg Config, router Router, tools ToolCaller, prompts PromptBuilder, bus *eventbus.Bus, logger *zap.Logger) *Engine {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 12
	}
	return &Engine{
		pool:        NewWorkerPool(cfg.Pool),
		router:      router,
		tools:       tools,
		prompts:     prompts,
		bus:         bus,
		budget:      NewTokenBudget(logger),
		logger:      logger,
		maxSteps:    cfg.MaxSteps,
		stepTimeout: cfg.StepTimeout,
	}
}

// Submit hands job to the worker pool, running AgentStepProcessor
// asynchronously. It never blocks on completion — progress is observed
// through the event bus (SPEC_FULL.md §4.5: the queue does not track
// completion, the event bus is the completion signal).
func (e *Engine) Submit(ctx context.Context, job Job) error {
	return e.pool.Submit(ctx, func(ctx context.Context) error {
		e.runStepProcessor(ctx, job)
		return nil
	})
}

// Close drains the worker pool.
func (e *Engine) Close() { e.pool.Close() }

// Stats reports the underlying worker pool's counters.
func (e *Engine) Stats() WorkerPoolStats { return e.pool.Stats() }

// runStepProcessor is AgentStepProcessor: SPEC_FULL.md §4.6's numbered
// loop. Every exit path publishes a terminal event on the session
// channel, since the event bus (not the queue) is the completion signal.
func (e *Engine) runStepProcessor(ctx context.Context, job Job) {
	if err := e.bus.SendWorkerAck(ctx, job.SessionID); err != nil {
		e.logger.Warn("reasoning: failed to publish worker_ack", zap.Error(err))
	}

	var scratchpad []ScratchpadEntry
	state := StatePlanning

	transition := func(next State) {
		state = next
		e.logger.Debug("reasoning: state transition", zap.String("session_id", job.SessionID), zap.String("state", string(state)))
	}

	for step := 0; step < e.maxSteps; step++ {
		stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
		turn, err := e.runOneStep(stepCtx, job, scratchpad)
		cancel()

		if err != nil {
			transition(StateFailed)
			e.publishError(ctx, job.SessionID, err)
			e.logger.Warn("reasoning: step failed", zap.String("session_id", job.SessionID), zap.Error(err))
			return
		}

		if turn.Thought != "" {
			e.streamThought(ctx, job.SessionID, turn.Thought)
		}

		switch turn.Kind {
		case OutcomeFinal:
			transition(StateSynthesizing)
			e.streamFinal(ctx, job.SessionID, turn.Final)
			transition(StateDone)
			return

		case OutcomeAction:
			transition(StateActing)
			_ = e.bus.Publish(ctx, job.SessionID, eventbus.Event{Type: eventbus.EventAgentToolCallStart, Payload: turn.Action})
			observation, httpStatus, callErr := e.tools.Call(ctx, job.SessionID, turn.Action.ToolName, turn.Action.Arguments)

			if callErr != nil || httpStatus >= 400 {
				// Tool failure becomes context for the next turn, not a
				// terminated session (SPEC_FULL.md §4.6 tool invocation note).
				detail := string(observation)
				if callErr != nil {
					detail = callErr.Error()
				}
				errObs, _ := json.Marshal(map[string]any{"error": httpStatus, "detail": detail})
				observation = errObs
			}

			transition(StateObserving)
			_ = e.bus.Publish(ctx, job.SessionID, eventbus.Event{Type: eventbus.EventAgentObservation, Payload: json.RawMessage(observation)})

			scratchpad = append(scratchpad, ScratchpadEntry{Thought: turn.Thought, Action: turn.Action, Observation: observation})
			_ = e.bus.Publish(ctx, job.SessionID, eventbus.Event{Type: eventbus.EventAgentToolCallEnd, Payload: turn.Action})
			transition(StatePlanning)
			continue

		case OutcomePause:
			scratchpad = append(scratchpad, ScratchpadEntry{Thought: turn.Thought})
			transition(StatePlanning)
			continue

		default: // OutcomeUnparsed
			transition(StateFailed)
			e.publishError(ctx, job.SessionID, gatewayerr.New(gatewayerr.KindParseFailure, "could not parse a thought/action/final_answer from the model's output"))
			return
		}
	}

	transition(StateFailed)
	e.publishError(ctx, job.SessionID, gatewayerr.New(gatewayerr.KindStepLimitExceeded, fmt.Sprintf("exhausted %d steps without a final answer", e.maxSteps)))
}

// runOneStep assembles the prompt, checks the soft token budget, calls
// the Router, and parses the resulting turn.
func (e *Engine) runOneStep(ctx context.Context, job Job, scratchpad []ScratchpadEntry) (Turn, error) {
	prompt, err := e.prompts.Build(job.PatternID, job.ClientInstruction, job.ClientManifests, job.ServerInstruction, job.ServerManifests, scratchpad)
	if err != nil {
		return Turn{}, fmt.Errorf("reasoning: build prompt: %w", err)
	}

	e.budget.CheckPrompt(job.SessionID, prompt, job.ContextWindow)

	req := &adapter.ChatRequest{
		Messages: []adapter.Message{{Role: "system", Content: prompt}},
	}

	resp, err := e.router.Route(ctx, job.ProfileAlias, req)
	if err != nil {
		return Turn{}, gatewayerr.New(gatewayerr.KindLLMUnavailable, "router exhausted all fallback profiles").WithCause(err)
	}
	if len(resp.Choices) == 0 {
		return Turn{}, gatewayerr.New(gatewayerr.KindLLMUnavailable, "router returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	return ParseTurn(raw)
}

// streamThought publishes one AgentThoughtStream event per rune of
// thought, followed by a single AgentThoughtEnd carrying the full text,
// per SPEC_FULL.md §4.6.c. The adapter layer has no true upstream token
// stream (§4.2: one blocking HTTP call), so this fakes the client-visible
// character cadence the same way streamChatResponse fakes word cadence.
func (e *Engine) streamThought(ctx context.Context, sessionID, thought string) {
	for _, r := range thought {
		_ = e.bus.Publish(ctx, sessionID, eventbus.Event{Type: eventbus.EventAgentThoughtStream, Payload: string(r)})
	}
	_ = e.bus.Publish(ctx, sessionID, eventbus.Event{Type: eventbus.EventAgentThoughtEnd, Payload: thought})
}

// streamFinal publishes one FinalAnswerStream event per word of final,
// followed by a single FinalAnswerStreamEnd carrying the full text, per
// SPEC_FULL.md §4.6.d.
func (e *Engine) streamFinal(ctx context.Context, sessionID, final string) {
	for _, word := range strings.Fields(final) {
		_ = e.bus.Publish(ctx, sessionID, eventbus.Event{Type: eventbus.EventFinalAnswerStream, Payload: word + " "})
	}
	_ = e.bus.Publish(ctx, sessionID, eventbus.Event{Type: eventbus.EventFinalAnswerStreamEnd, Payload: final})
}

func (e *Engine) publishError(ctx context.Context, sessionID string, err error) {
	_ = e.bus.Publish(ctx, sessionID, eventbus.Event{Type: eventbus.EventError, Payload: err.Error()})
}
