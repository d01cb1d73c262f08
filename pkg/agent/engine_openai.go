package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIEngine adapts the OpenAI chat completions API to the Engine contract.
// The turn completes in a single request; the reply is replayed over the
// stream as one assistant event per block so consumers see the same shape as
// the streaming engines.
type OpenAIEngine struct {
	client openai.Client
}

// NewOpenAIEngine creates an OpenAI-backed engine.
func NewOpenAIEngine(apiKey string) *OpenAIEngine {
	return &OpenAIEngine{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Provider returns the provider name.
func (e *OpenAIEngine) Provider() string {
	return "openai"
}

// Query implements Engine.
func (e *OpenAIEngine) Query(ctx context.Context, prompt string, opts QueryOptions) (Stream, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	messages := []openai.ChatCompletionMessageParamUnion{}
	if opts.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(opts.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(prompt))

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

		resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(opts.Model),
			Messages: messages,
		})
		if err != nil {
			stream.finish(fmt.Errorf("openai completion: %w", err))
			return
		}
		if len(resp.Choices) == 0 {
			stream.finish(fmt.Errorf("openai completion returned no choices"))
			return
		}

		choice := resp.Choices[0]

		if choice.Message.Content != "" {
			if !stream.emit(TextEvent(choice.Message.Content)) {
				return
			}
		}

		for _, tc := range choice.Message.ToolCalls {
			input := map[string]interface{}{}
			if tc.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
					stream.finish(fmt.Errorf("decode tool arguments for %s: %w", tc.Function.Name, err))
					return
				}
			}

			if !stream.emit(ToolUseEvent(tc.ID, tc.Function.Name, input)) {
				return
			}

			if opts.Gate != nil {
				decision := opts.Gate(ctx, tc.Function.Name, input)
				if !decision.Allowed {
					if !stream.emit(ToolResultEvent(tc.ID, decision.Reason, true)) {
						return
					}
				}
			}
		}

		stream.emit(Event{
			Type: EventTypeResult,
			Result: &ResultEvent{
				Subtype: ResultSuccess,
				Usage: Usage{
					InputTokens:  resp.Usage.PromptTokens,
					OutputTokens: resp.Usage.CompletionTokens,
				},
			},
		})
		stream.finish(nil)
	}()

	return stream, nil
}
