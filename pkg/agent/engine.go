package agent

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// GateDecision is the verdict an approval callback hands back to the engine.
type GateDecision struct {
	Allowed bool
	Reason  string
}

// ToolGate is invoked by the engine before it acts on a requested tool.
// The engine must not run the tool when Allowed is false; Reason is relayed
// to the agent as a failed tool result so it can adapt.
type ToolGate func(ctx context.Context, toolName string, input map[string]interface{}) GateDecision

// QueryOptions bundles everything an engine needs for one streaming turn.
type QueryOptions struct {
	Model           string
	WorkingDir      string
	ResumeSessionID string
	SystemPrompt    string
	MaxTokens       int64
	Gate            ToolGate
}

// Engine is the opaque streaming query producer the orchestrator drives.
type Engine interface {
	Provider() string
	Query(ctx context.Context, prompt string, opts QueryOptions) (Stream, error)
}

// Stream yields engine events in arrival order. Next returns io.EOF after the
// result event has been delivered; any other error is a transport failure.
type Stream interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}

// NewEngine builds an engine for a provider name.
func NewEngine(provider, apiKey string) (Engine, error) {
	switch provider {
	case "anthropic":
		return NewAnthropicEngine(apiKey), nil
	case "openai":
		return NewOpenAIEngine(apiKey), nil
	default:
		return nil, fmt.Errorf("unknown engine provider: %s", provider)
	}
}

// eventStream is the channel-backed Stream implementation adapters feed from
// a producer goroutine.
type eventStream struct {
	events chan Event
	errCh  chan error

	closeOnce sync.Once
	done      chan struct{}

	err error
}

func newEventStream() *eventStream {
	return &eventStream{
		events: make(chan Event, 16),
		errCh:  make(chan error, 1),
		done:   make(chan struct{}),
	}
}

// emit delivers an event unless the stream has been closed.
func (s *eventStream) emit(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// finish terminates the producer side. A nil err means normal exhaustion.
func (s *eventStream) finish(err error) {
	if err != nil {
		select {
		case s.errCh <- err:
		default:
		}
	}
	close(s.events)
}

// Next implements Stream.
func (s *eventStream) Next(ctx context.Context) (Event, error) {
	if s.err != nil {
		return Event{}, s.err
	}

	select {
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case ev, ok := <-s.events:
		if !ok {
			select {
			case err := <-s.errCh:
				s.err = err
			default:
				s.err = io.EOF
			}
			return Event{}, s.err
		}
		return ev, nil
	}
}

// Close implements Stream.
func (s *eventStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}
