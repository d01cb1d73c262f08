package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vaultpilot/vaultpilot/internal/metrics"
	"github.com/vaultpilot/vaultpilot/pkg/agent"
	"github.com/vaultpilot/vaultpilot/pkg/permission"
	"github.com/vaultpilot/vaultpilot/pkg/ratelimit"
	"github.com/vaultpilot/vaultpilot/pkg/tools"
	"github.com/vaultpilot/vaultpilot/pkg/tracker"
)

// Orchestrator drives streaming agent turns: it classifies and gates every
// tool invocation, tracks tool-call and subagent lifecycle, enforces
// per-turn rate limits, retries transient failures, and supports mid-flight
// cancellation. At most one turn is in flight at a time; the caller enforces
// that a new turn does not start while the previous one is finalizing.
type Orchestrator struct {
	engine      agent.Engine
	permissions *permission.Engine
	settings    SettingsStore

	approvals     permission.ApprovalPrompter
	limitPrompter ratelimit.Prompter
	limits        ratelimit.Limits
	onUpdate      tracker.UpdateFunc

	model        string
	workingDir   string
	systemPrompt string

	maxRetries     int
	retryBaseDelay time.Duration

	logger zerolog.Logger

	mu     sync.Mutex
	active *activeTurn
}

// activeTurn holds the cancellation handle for the turn in flight.
type activeTurn struct {
	cancel    context.CancelFunc
	tracker   *tracker.Tracker
	cancelled bool
}

// ErrTurnInFlight is returned when a turn starts while another is still
// registered. A second concurrent turn would clobber the cancellation
// handle and leave the first one unstoppable.
var ErrTurnInFlight = errors.New("a turn is already in flight")

// New creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	metrics.EnsureRegistered()

	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Permissions == nil {
		return nil, fmt.Errorf("permission engine is required")
	}
	if cfg.Settings == nil {
		return nil, fmt.Errorf("settings store is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	limits := cfg.Limits
	if limits.Aggregate == 0 && len(limits.PerTool) == 0 {
		limits = ratelimit.DefaultLimits()
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	if cfg.MaxRetries == 0 {
		maxRetries = defaultMaxRetries
	}

	retryBase := cfg.RetryBaseDelay
	if retryBase <= 0 {
		retryBase = defaultRetryBaseDelay
	}

	return &Orchestrator{
		engine:         cfg.Engine,
		permissions:    cfg.Permissions,
		settings:       cfg.Settings,
		approvals:      cfg.Approvals,
		limitPrompter:  cfg.LimitPrompter,
		limits:         limits,
		onUpdate:       cfg.OnUpdate,
		model:          cfg.Model,
		workingDir:     cfg.WorkingDir,
		systemPrompt:   cfg.SystemPrompt,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBase,
		logger:         cfg.Logger,
	}, nil
}

// Cancel aborts the turn in flight: the stream context is cancelled, every
// still-live tool call and subagent is marked interrupted, and no further
// approvals are issued. Safe to call at any point, including before a turn
// starts or after it finished; those calls are no-ops.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	turn := o.active
	if turn == nil || turn.cancelled {
		o.mu.Unlock()
		return
	}
	turn.cancelled = true
	o.mu.Unlock()

	o.logger.Info().Msg("Cancelling turn in flight")
	turn.cancel()
	turn.tracker.Interrupt()
}

// IsRunning reports whether a turn is in flight.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active != nil
}

// SendMessage runs one full turn for the prompt, retrying the whole turn on
// transient failures with exponential backoff. Cancellation is a distinct
// terminal outcome, not an error, and never retries. Non-transient failures
// re-raise immediately as a ClassifiedError so the caller can present a
// specific message.
func (o *Orchestrator) SendMessage(ctx context.Context, session *Session, prompt string) (TurnResult, error) {
	if session == nil {
		return TurnResult{}, fmt.Errorf("session is required")
	}
	if strings.TrimSpace(prompt) == "" {
		return TurnResult{}, fmt.Errorf("prompt is empty")
	}

	start := time.Now()
	var lastErr error

	for attempt := 0; ; attempt++ {
		result, err := o.runTurn(ctx, session, prompt)
		if err == nil {
			if result.Cancelled {
				metrics.RecordTurn("cancelled", time.Since(start))
			} else {
				metrics.RecordTurn("completed", time.Since(start))
			}
			return result, nil
		}

		if errors.Is(err, ErrTurnInFlight) {
			metrics.RecordTurn("rejected", time.Since(start))
			return TurnResult{}, err
		}

		lastErr = err
		class := agent.Classify(err)

		if class != agent.ClassTransient || attempt >= o.maxRetries {
			metrics.RecordTurn("failed", time.Since(start))
			return TurnResult{}, &agent.ClassifiedError{Class: class, Err: lastErr}
		}

		delay := o.retryBaseDelay << attempt
		o.logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Transient turn failure, retrying")
		metrics.RecordRetry()

		select {
		case <-ctx.Done():
			metrics.RecordTurn("cancelled", time.Since(start))
			return TurnResult{Cancelled: true}, nil
		case <-time.After(delay):
		}
	}
}

// runTurn drives one attempt: Idle -> Streaming -> Completed/Failed/Cancelled.
func (o *Orchestrator) runTurn(ctx context.Context, session *Session, prompt string) (TurnResult, error) {
	turnID := uuid.NewString()
	logger := o.logger.With().Str("turn_id", turnID).Logger()

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tr := tracker.New(logger, o.onUpdate)
	limiter := ratelimit.New(o.limits, o.limitPrompter, logger)

	turn := &activeTurn{cancel: cancel, tracker: tr}
	o.mu.Lock()
	if o.active != nil {
		o.mu.Unlock()
		return TurnResult{}, ErrTurnInFlight
	}
	o.active = turn
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		if o.active == turn {
			o.active = nil
		}
		o.mu.Unlock()
	}()

	settings := o.settings.PolicySettings()
	gate := o.buildGate(turnCtx, logger, limiter, settings, session)

	stream, err := o.engine.Query(turnCtx, prompt, agent.QueryOptions{
		Model:           o.model,
		WorkingDir:      o.workingDir,
		SystemPrompt:    o.systemPrompt,
		ResumeSessionID: session.EngineSessionID(),
		Gate:            gate,
	})
	if err != nil {
		return TurnResult{}, fmt.Errorf("start engine stream: %w", err)
	}
	defer stream.Close()

	var text strings.Builder
	var result *agent.ResultEvent

	for {
		ev, err := stream.Next(turnCtx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, context.Canceled) || o.wasCancelled(turn) {
				return o.finishCancelled(tr, session, &text), nil
			}
			tr.FinalizeAll(false)
			return TurnResult{}, fmt.Errorf("engine stream: %w", err)
		}

		switch ev.Type {
		case agent.EventTypeInit:
			session.SetEngineSessionID(ev.Init.SessionID)
			logger.Debug().Str("engine_session", ev.Init.SessionID).Msg("Engine session established")

		case agent.EventTypeAssistant:
			o.dispatchAssistant(logger, tr, &text, ev.Assistant)

		case agent.EventTypeSubagent:
			switch ev.Subagent.Phase {
			case agent.SubagentPhaseStarted:
				tr.SubagentStarted(ev.Subagent.SubagentType, ev.Subagent.Description)
			case agent.SubagentPhaseProgress:
				tr.SubagentProgressUpdate(ev.Subagent.SubagentType, ev.Subagent.Message)
			}

		case agent.EventTypeResult:
			result = ev.Result

		default:
			logger.Warn().Str("event_type", string(ev.Type)).Msg("Unhandled event kind dropped")
		}

		if o.wasCancelled(turn) {
			return o.finishCancelled(tr, session, &text), nil
		}
	}

	if o.wasCancelled(turn) {
		return o.finishCancelled(tr, session, &text), nil
	}

	if result == nil {
		tr.FinalizeAll(false)
		return TurnResult{}, fmt.Errorf("engine stream ended without a result event")
	}
	if result.Subtype == agent.ResultError {
		tr.FinalizeAll(false)
		return TurnResult{}, fmt.Errorf("engine reported failure: %s", result.Error)
	}

	tr.FinalizeAll(true)
	return TurnResult{
		Text:      text.String(),
		ToolCalls: tr.Snapshot(),
		Usage:     result.Usage,
		SessionID: session.EngineSessionID(),
	}, nil
}

// dispatchAssistant folds one assistant event into the turn state. Text only
// extends the aggregate when non-empty, so a tool-only event never blanks
// out previously streamed text.
func (o *Orchestrator) dispatchAssistant(logger zerolog.Logger, tr *tracker.Tracker, text *strings.Builder, ev *agent.AssistantEvent) {
	for _, block := range ev.Blocks {
		switch block.Type {
		case agent.BlockTypeText:
			if block.Text != "" {
				text.WriteString(block.Text)
			}

		case agent.BlockTypeToolUse:
			if err := tr.Begin(block.ToolUse.ID, block.ToolUse.Name, block.ToolUse.Input); err != nil {
				logger.Warn().Err(err).Str("tool", block.ToolUse.Name).Msg("Tool use dropped")
			}

		case agent.BlockTypeToolResult:
			if len(block.ToolResult.Content) > tracker.MaxOutputBytes {
				metrics.RecordTruncation()
			}
			tr.Complete(block.ToolResult.ToolUseID, block.ToolResult.Content, block.ToolResult.IsError)
		}
	}
}

// buildGate returns the approval callback handed to the engine. Denials and
// rate-limit stops surface as failed tool results through the engine, not as
// turn failures.
func (o *Orchestrator) buildGate(turnCtx context.Context, logger zerolog.Logger, limiter *ratelimit.Limiter, settings permission.Settings, session *Session) agent.ToolGate {
	return func(ctx context.Context, name string, input map[string]interface{}) agent.GateDecision {
		if turnCtx.Err() != nil {
			return agent.GateDecision{Allowed: false, Reason: "turn was cancelled"}
		}

		if res := limiter.Check(turnCtx, name); !res.Allowed {
			metrics.RecordToolCall(name, "rate_limited")
			return agent.GateDecision{Allowed: false, Reason: res.Reason}
		}

		decision := o.permissions.Decide(name, input, settings, session.Approvals())
		switch decision.Outcome {
		case permission.OutcomeAllow:
			metrics.RecordToolCall(name, "allowed")
			return agent.GateDecision{Allowed: true}

		case permission.OutcomeDeny:
			metrics.RecordToolCall(name, "denied")
			return agent.GateDecision{Allowed: false, Reason: decision.Reason}
		}

		action := o.promptApproval(turnCtx, logger, permission.ApprovalRequest{
			Tool:        name,
			Input:       input,
			Risk:        decision.Risk,
			Description: decision.Description,
		})

		switch action {
		case permission.ApproveOnce:
			metrics.RecordToolCall(name, "approved_once")
			return agent.GateDecision{Allowed: true}

		case permission.ApproveSession:
			session.Approvals().Approve(name)
			metrics.RecordToolCall(name, "approved_session")
			return agent.GateDecision{Allowed: true}

		case permission.ApproveAlways:
			session.Approvals().Approve(name)
			if tools.IsShell(name) {
				// The shell tool is never written to durable storage;
				// the grant silently becomes session-only.
				logger.Warn().Str("tool", name).Msg("Always-allow for shell downgraded to session approval")
			} else if err := o.settings.AppendAlwaysAllowed(name); err != nil {
				logger.Warn().Err(err).Str("tool", name).Msg("Failed to persist always-allowed tool")
			}
			metrics.RecordToolCall(name, "approved_always")
			return agent.GateDecision{Allowed: true}

		default:
			metrics.RecordToolCall(name, "denied")
			return agent.GateDecision{Allowed: false, Reason: "denied by user"}
		}
	}
}

// promptApproval runs the approval round trip, failing closed on any error
// or missing collaborator.
func (o *Orchestrator) promptApproval(ctx context.Context, logger zerolog.Logger, req permission.ApprovalRequest) permission.ApprovalAction {
	if o.approvals == nil {
		logger.Warn().Str("tool", req.Tool).Msg("No approval prompter configured, denying")
		return permission.ActionDeny
	}

	action, err := o.approvals.PromptApproval(ctx, req)
	if err != nil {
		logger.Warn().Err(err).Str("tool", req.Tool).Msg("Approval prompt failed, denying")
		metrics.RecordPrompt("approval", "error")
		return permission.ActionDeny
	}

	metrics.RecordPrompt("approval", string(action))
	return action
}

func (o *Orchestrator) wasCancelled(turn *activeTurn) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return turn.cancelled
}

// finishCancelled closes out a cancelled turn: live subagents are already
// marked interrupted by Cancel, but the stream may have raced past it, so
// Interrupt runs again here (it is idempotent).
func (o *Orchestrator) finishCancelled(tr *tracker.Tracker, session *Session, text *strings.Builder) TurnResult {
	tr.Interrupt()
	return TurnResult{
		Text:      text.String(),
		ToolCalls: tr.Snapshot(),
		SessionID: session.EngineSessionID(),
		Cancelled: true,
	}
}
