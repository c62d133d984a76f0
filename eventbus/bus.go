// Package eventbus implements the Redis-backed event bus and SSE bridge of
// SPEC_FULL.md §4.4: reasoning-engine progress is published on a
// per-session Redis pub/sub channel and relayed to one connected SSE
// client, with a worker_ack handshake bounding how long the subscribing
// side waits for the worker to acknowledge the session.
//
// The EventBus interface shape is grounded on the teacher's agent/event.go
// EventBus interface (Publish/Subscribe/Unsubscribe); no teacher file
// backs it with a concrete transport, so the Redis pub/sub implementation
// below is new code following the pack's constructor/logger conventions.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType names the kind of message carried on a session channel. This
// is the closed 9-kind set of SPEC_FULL.md §3: a worker sends worker_ack,
// then emits one AgentThoughtStream event per thought
// character followed by AgentThoughtEnd, one AgentToolCallStart/
// AgentObservation/AgentToolCallEnd triple per tool invocation, and
// either one FinalAnswerStream event per answer chunk followed by
// FinalAnswerStreamEnd, or a terminal error.
type EventType string

const (
	EventWorkerAck            EventType = "worker_ack"
	EventAgentThoughtStream   EventType = "AgentThoughtStream"
	EventAgentThoughtEnd      EventType = "AgentThoughtEnd"
	EventAgentToolCallStart   EventType = "AgentToolCallStart"
	EventAgentToolCallEnd     EventType = "AgentToolCallEnd"
	EventAgentObservation     EventType = "AgentObservation"
	EventFinalAnswerStream    EventType = "FinalAnswerStream"
	EventFinalAnswerStreamEnd EventType = "FinalAnswerStreamEnd"
	EventError                EventType = "error"
)

// Event is one message published on a session channel.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrAckTimeout is returned by AwaitWorkerAck when no worker_ack
// arrives within the handshake window.
var ErrAckTimeout = errors.New("eventbus: worker_ack timeout")

// Bus publishes reasoning-engine events on per-session Redis pub/sub
// channels named "sse_session:{session_id}", per SPEC_FULL.md §4.4.
type Bus struct {
	rdb        *redis.Client
	logger     *zap.Logger
	ackTimeout time.Duration
}

// New builds a Bus. ackTimeout bounds AwaitWorkerAck; SPEC_FULL.md §4.4
// names 10 seconds as the default handshake window.
func New(rdb *redis.Client, ackTimeout time.Duration, logger *zap.Logger) *Bus {
	if ackTimeout <= 0 {
		ackTimeout = 10 * time.Second
	}
	return &Bus{rdb: rdb, logger: logger, ackTimeout: ackTimeout}
}

func channelName(sessionID string) string {
	return fmt.Sprintf("sse_session:%s", sessionID)
}

// Publish sends event on sessionID's channel without waiting for a
// subscriber.
func (b *Bus) Publish(ctx context.Context, sessionID string, event Event) error {
	event.SessionID = sessionID
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event: %w", err)
	}

	return b.rdb.Publish(ctx, channelName(sessionID), data).Err()
}

// Subscribe opens a subscription to sessionID's channel. The caller must
// close the returned subscription when done.
func (b *Bus) Subscribe(ctx context.Context, sessionID string) *redis.PubSub {
	return b.rdb.Subscribe(ctx, channelName(sessionID))
}

// AwaitWorkerAck blocks on sub until a worker_ack event arrives or
// ackTimeout elapses, confirming the reasoning worker has picked up the
// session before the gateway starts relaying its progress events
// (SPEC_FULL.md §4.4's handshake). Events published before sub was
// opened are not delivered to it.
func (b *Bus) AwaitWorkerAck(ctx context.Context, sub *redis.PubSub) error {
	ctx, cancel := context.WithTimeout(ctx, b.ackTimeout)
	defer cancel()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ErrAckTimeout
		case msg, ok := <-ch:
			if !ok {
				return ErrAckTimeout
			}
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				continue
			}
			if evt.Type == EventWorkerAck {
				return nil
			}
		}
	}
}

// SendWorkerAck publishes the handshake event a reasoning worker sends
// when it picks up a session, before publishing any progress event.
func (b *Bus) SendWorkerAck(ctx context.Context, sessionID string) error {
	return b.Publish(ctx, sessionID, Event{Type: EventWorkerAck})
}
