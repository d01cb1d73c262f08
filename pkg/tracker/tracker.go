package tracker

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vaultpilot/vaultpilot/pkg/tools"
)

// Status is the lifecycle state of a tool call. Transitions only move
// forward: pending -> running -> success|error.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// IsTerminal reports whether a status is final.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusError
}

// ToolCall is one tool invocation within a turn. The tracker owns the live
// record; UI consumers only ever see snapshots.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Input     map[string]interface{} `json:"input,omitempty"`
	Status    Status                 `json:"status"`
	StartedAt time.Time              `json:"started_at"`
	EndedAt   *time.Time             `json:"ended_at,omitempty"`
	Output    string                 `json:"output,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Subagent  *SubagentRecord        `json:"subagent,omitempty"`
}

// UpdateFunc receives a snapshot of all calls after every mutation.
type UpdateFunc func(calls []ToolCall)

// Tracker maintains the live state of every tool call and nested subagent
// spawned during one turn. It is created fresh per turn and mutated only by
// the orchestrator; the mutex guards snapshot reads from other goroutines.
type Tracker struct {
	mu       sync.Mutex
	calls    []*ToolCall
	byID     map[string]*ToolCall
	logger   zerolog.Logger
	onUpdate UpdateFunc
}

// New creates a tracker for a single turn. onUpdate may be nil.
func New(logger zerolog.Logger, onUpdate UpdateFunc) *Tracker {
	return &Tracker{
		byID:     make(map[string]*ToolCall),
		logger:   logger,
		onUpdate: onUpdate,
	}
}

// Begin registers a requested tool use and moves it straight to running.
// A duplicate id within the turn is rejected: call ids are never reused.
func (t *Tracker) Begin(id, name string, input map[string]interface{}) error {
	t.mu.Lock()

	if _, exists := t.byID[id]; exists {
		t.mu.Unlock()
		return fmt.Errorf("tool call id already in use: %s", id)
	}

	call := &ToolCall{
		ID:        id,
		Name:      name,
		Input:     input,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}

	if tools.IsSubagent(name) {
		call.Subagent = newSubagentRecord(input)
	}

	t.calls = append(t.calls, call)
	t.byID[id] = call
	t.mu.Unlock()

	t.notify()
	return nil
}

// Complete applies a tool result to its call. Output is truncated to the cap
// with an explicit marker. Results for unknown or already-terminal calls are
// logged and dropped; the engine stream stays authoritative for its own ids.
func (t *Tracker) Complete(id, output string, isError bool) {
	t.mu.Lock()

	call, ok := t.byID[id]
	if !ok {
		t.mu.Unlock()
		t.logger.Warn().Str("call_id", id).Msg("Tool result for unknown call dropped")
		return
	}
	if call.Status.IsTerminal() {
		t.mu.Unlock()
		t.logger.Warn().Str("call_id", id).Msg("Tool result for finished call dropped")
		return
	}

	now := time.Now()
	call.EndedAt = &now

	if isError {
		call.Status = StatusError
		call.Error = Truncate(output)
		if call.Subagent != nil && !call.Subagent.Status.IsTerminal() {
			call.Subagent.setStatus(SubagentError, call.Error)
		}
	} else {
		call.Status = StatusSuccess
		call.Output = Truncate(output)
		if call.Subagent != nil && !call.Subagent.Status.IsTerminal() {
			call.Subagent.setStatus(SubagentCompleted, "Finished")
		}
	}

	t.mu.Unlock()
	t.notify()
}

// FinalizeAll forces every still-live call to a terminal state. Called when
// the turn ends so no call is left permanently running.
func (t *Tracker) FinalizeAll(turnSucceeded bool) {
	t.mu.Lock()

	status := StatusSuccess
	if !turnSucceeded {
		status = StatusError
	}

	for _, call := range t.calls {
		if call.Status.IsTerminal() {
			continue
		}
		now := time.Now()
		call.Status = status
		call.EndedAt = &now
		if !turnSucceeded && call.Error == "" {
			call.Error = "turn ended before a result arrived"
		}
		if call.Subagent != nil && !call.Subagent.Status.IsTerminal() {
			if turnSucceeded {
				call.Subagent.setStatus(SubagentCompleted, "Finished")
			} else {
				call.Subagent.setStatus(SubagentError, "Turn failed")
			}
		}
	}

	t.mu.Unlock()
	t.notify()
}

// Interrupt marks every live call and subagent as cut short by the user.
// Safe to call repeatedly; already-terminal records are untouched.
func (t *Tracker) Interrupt() {
	t.mu.Lock()

	for _, call := range t.calls {
		if call.Subagent != nil && !call.Subagent.Status.IsTerminal() {
			call.Subagent.setStatus(SubagentInterrupted, "Interrupted by user")
		}
		if call.Status.IsTerminal() {
			continue
		}
		now := time.Now()
		call.Status = StatusError
		call.EndedAt = &now
		call.Error = "interrupted by user"
	}

	t.mu.Unlock()
	t.notify()
}

// Snapshot returns copies of all calls in first-seen order.
func (t *Tracker) Snapshot() []ToolCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() []ToolCall {
	out := make([]ToolCall, 0, len(t.calls))
	for _, call := range t.calls {
		c := *call
		if call.Subagent != nil {
			sub := *call.Subagent
			c.Subagent = &sub
		}
		out = append(out, c)
	}
	return out
}

// HasRunning reports whether any call is still live.
func (t *Tracker) HasRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, call := range t.calls {
		if !call.Status.IsTerminal() {
			return true
		}
	}
	return false
}

func (t *Tracker) notify() {
	if t.onUpdate == nil {
		return
	}
	t.mu.Lock()
	snapshot := t.snapshotLocked()
	t.mu.Unlock()
	t.onUpdate(snapshot)
}

func stringField(input map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := input[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
