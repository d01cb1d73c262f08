package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vaultpilot/vaultpilot/pkg/tools"
)

// AggregateLabel names the cross-tool counter on prompts and in block reasons.
const AggregateLabel = "all tools"

// Choice is the user's answer to a limit prompt.
type Choice string

const (
	ChoiceContinue Choice = "continue"
	ChoiceStop     Choice = "stop"
)

// Prompt describes an exceeded limit for the continue/stop collaborator.
type Prompt struct {
	Label string `json:"label"` // tool name or AggregateLabel
	Count int    `json:"count"`
	Limit int    `json:"limit"`
}

// Prompter asks the user whether the turn may keep calling tools. Dismissal
// or failure must be treated as stop by the caller (fail-closed).
type Prompter interface {
	PromptLimit(ctx context.Context, p Prompt) (Choice, error)
}

// StaticPrompter answers every limit prompt with a fixed choice.
type StaticPrompter struct {
	Choice Choice
}

// PromptLimit implements Prompter.
func (p StaticPrompter) PromptLimit(ctx context.Context, _ Prompt) (Choice, error) {
	if p.Choice == "" {
		return ChoiceStop, nil
	}
	return p.Choice, nil
}

// Limits holds the per-tool and aggregate ceilings for one turn.
type Limits struct {
	PerTool   map[string]int
	Aggregate int
}

// DefaultLimits returns the stock ceilings: low per-tool limits for the
// dangerous or noisy tools, one higher ceiling across everything combined.
func DefaultLimits() Limits {
	return Limits{
		PerTool: map[string]int{
			tools.ToolBash:      10,
			tools.ToolWrite:     15,
			tools.ToolEdit:      20,
			tools.ToolMultiEdit: 20,
			tools.ToolWebFetch:  10,
			tools.ToolWebSearch: 10,
		},
		Aggregate: 80,
	}
}

// Result is the limiter's verdict for one call.
type Result struct {
	Allowed bool
	Reason  string
}

// Limiter enforces per-turn call ceilings. Create one per turn; counters are
// never shared across turns. The current call is counted before the limit is
// evaluated, so the exactly-one-over-limit call is the one that prompts.
type Limiter struct {
	mu        sync.Mutex
	counts    map[string]int
	total     int
	perTool   map[string]int
	aggregate int
	stopped   bool

	prompter Prompter
	logger   zerolog.Logger
}

// New creates a limiter for a single turn.
func New(limits Limits, prompter Prompter, logger zerolog.Logger) *Limiter {
	perTool := make(map[string]int, len(limits.PerTool))
	for name, limit := range limits.PerTool {
		perTool[name] = limit
	}
	return &Limiter{
		counts:    make(map[string]int),
		perTool:   perTool,
		aggregate: limits.Aggregate,
		prompter:  prompter,
		logger:    logger,
	}
}

// Check counts the call and decides whether it may proceed. When a ceiling is
// exceeded the user is prompted once; continuing doubles that ceiling so the
// very next call does not re-prompt, stopping blocks the rest of the turn.
func (l *Limiter) Check(ctx context.Context, toolName string) Result {
	l.mu.Lock()

	if l.stopped {
		l.mu.Unlock()
		return Result{Allowed: false, Reason: "rate limit reached: user chose to stop this turn"}
	}

	l.counts[toolName]++
	l.total++

	count := l.counts[toolName]
	limit, hasLimit := l.perTool[toolName]

	if hasLimit && count > limit {
		l.mu.Unlock()
		return l.prompt(ctx, Prompt{Label: toolName, Count: count, Limit: limit}, func(doubled int) {
			l.perTool[toolName] = doubled
		})
	}

	total := l.total
	if l.aggregate > 0 && total > l.aggregate {
		l.mu.Unlock()
		return l.prompt(ctx, Prompt{Label: AggregateLabel, Count: total, Limit: l.aggregate}, func(doubled int) {
			l.aggregate = doubled
		})
	}

	l.mu.Unlock()
	return Result{Allowed: true}
}

// prompt runs the continue/stop round trip without holding the mutex and
// applies the doubled ceiling on continue.
func (l *Limiter) prompt(ctx context.Context, p Prompt, raise func(doubled int)) Result {
	l.logger.Info().
		Str("label", p.Label).
		Int("count", p.Count).
		Int("limit", p.Limit).
		Msg("Rate limit exceeded, asking user")

	choice := ChoiceStop
	if l.prompter != nil {
		got, err := l.prompter.PromptLimit(ctx, p)
		if err != nil {
			l.logger.Warn().Err(err).Str("label", p.Label).Msg("Limit prompt failed, treating as stop")
		} else {
			choice = got
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if choice == ChoiceContinue {
		raise(p.Limit * 2)
		l.logger.Info().
			Str("label", p.Label).
			Int("new_limit", p.Limit*2).
			Msg("User continued past rate limit")
		return Result{Allowed: true}
	}

	l.stopped = true
	return Result{
		Allowed: false,
		Reason:  fmt.Sprintf("rate limit reached for %s (%d calls): user chose to stop", p.Label, p.Count),
	}
}

// Stopped reports whether the user terminated tool calling for this turn.
func (l *Limiter) Stopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}
