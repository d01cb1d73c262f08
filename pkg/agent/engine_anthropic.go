package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
)

// AnthropicEngine adapts the Anthropic streaming API to the Engine contract.
type AnthropicEngine struct {
	client anthropic.Client
}

// NewAnthropicEngine creates an Anthropic-backed engine.
func NewAnthropicEngine(apiKey string) *AnthropicEngine {
	return &AnthropicEngine{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Provider returns the provider name.
func (e *AnthropicEngine) Provider() string {
	return "anthropic"
}

// Query starts one streaming turn. SDK deltas are translated into the event
// union; tool-use blocks are gated through opts.Gate before they surface, and
// denials come back as failed tool results so the agent sees why.
func (e *AnthropicEngine) Query(ctx context.Context, prompt string, opts QueryOptions) (Stream, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(opts.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if opts.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: opts.SystemPrompt},
		}
	}

	sessionID := opts.ResumeSessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	stream := newEventStream()

	go func() {
		stream.emit(Event{
			Type: EventTypeInit,
			Init: &InitEvent{SessionID: sessionID},
		})

		sdkStream := e.client.Messages.NewStreaming(ctx, params)
		message := anthropic.Message{}

		for sdkStream.Next() {
			event := sdkStream.Current()
			if err := message.Accumulate(event); err != nil {
				stream.finish(fmt.Errorf("accumulate stream event: %w", err))
				return
			}

			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
					if !stream.emit(TextEvent(delta.Text)) {
						return
					}
				}
			}
		}

		if err := sdkStream.Err(); err != nil {
			stream.finish(fmt.Errorf("anthropic stream: %w", err))
			return
		}

		for _, block := range message.Content {
			switch b := block.AsAny().(type) {
			case anthropic.ToolUseBlock:
				input := map[string]interface{}{}
				if len(b.Input) > 0 {
					if err := json.Unmarshal(b.Input, &input); err != nil {
						stream.finish(fmt.Errorf("decode tool input for %s: %w", b.Name, err))
						return
					}
				}

				if !stream.emit(ToolUseEvent(b.ID, b.Name, input)) {
					return
				}

				if opts.Gate != nil {
					decision := opts.Gate(ctx, b.Name, input)
					if !decision.Allowed {
						if !stream.emit(ToolResultEvent(b.ID, decision.Reason, true)) {
							return
						}
					}
				}
			}
		}

		stream.emit(Event{
			Type: EventTypeResult,
			Result: &ResultEvent{
				Subtype: ResultSuccess,
				Usage: Usage{
					InputTokens:  message.Usage.InputTokens,
					OutputTokens: message.Usage.OutputTokens,
				},
			},
		})
		stream.finish(nil)
	}()

	return stream, nil
}
