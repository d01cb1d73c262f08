package tracker

import "time"

// SubagentStatus is the lifecycle state of a nested agent run.
type SubagentStatus string

const (
	SubagentStarting    SubagentStatus = "starting"
	SubagentRunning     SubagentStatus = "running"
	SubagentThinking    SubagentStatus = "thinking"
	SubagentCompleted   SubagentStatus = "completed"
	SubagentInterrupted SubagentStatus = "interrupted"
	SubagentError       SubagentStatus = "error"
)

// IsTerminal reports whether the status is final. Terminal statuses never
// change again once set.
func (s SubagentStatus) IsTerminal() bool {
	return s == SubagentCompleted || s == SubagentInterrupted || s == SubagentError
}

// SubagentProgress is the live progress record shown in the UI.
type SubagentProgress struct {
	Message   string    `json:"message"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SubagentRecord is embedded in a ToolCall when the tool spawns a nested
// agent with its own lifecycle.
type SubagentRecord struct {
	Type        string           `json:"type"`
	Description string           `json:"description,omitempty"`
	Status      SubagentStatus   `json:"status"`
	Progress    SubagentProgress `json:"progress"`
}

func newSubagentRecord(input map[string]interface{}) *SubagentRecord {
	now := time.Now()
	return &SubagentRecord{
		Type:        stringField(input, "subagent_type", "type"),
		Description: stringField(input, "description", "prompt"),
		Status:      SubagentStarting,
		Progress: SubagentProgress{
			Message:   "Starting...",
			StartedAt: now,
			UpdatedAt: now,
		},
	}
}

func (r *SubagentRecord) setStatus(status SubagentStatus, message string) {
	if r.Status.IsTerminal() {
		return
	}
	r.Status = status
	if message != "" {
		r.Progress.Message = message
	}
	r.Progress.UpdatedAt = time.Now()
}

// SubagentStarted reconciles a "subagent started" engine event with the
// ToolCall that spawned it. The engine supplies no correlation id, so
// matching is best effort, in a fixed order: exact subagent type, then
// description-prefix similarity, then the oldest record still starting.
// Every step breaks ties by insertion order (the oldest candidate wins).
// Returns the matched call id, or empty when nothing is waiting.
func (t *Tracker) SubagentStarted(subagentType, description string) string {
	t.mu.Lock()

	call := t.matchSubagentLocked(subagentType, description)
	if call == nil {
		t.mu.Unlock()
		t.logger.Warn().
			Str("subagent_type", subagentType).
			Msg("Subagent started event with no pending record")
		return ""
	}

	call.Subagent.setStatus(SubagentRunning, "Running...")
	if call.Subagent.Type == "" {
		call.Subagent.Type = subagentType
	}
	id := call.ID

	t.mu.Unlock()
	t.notify()
	return id
}

// SubagentProgressUpdate applies a progress message to a live subagent,
// located with the same matching order as SubagentStarted.
func (t *Tracker) SubagentProgressUpdate(subagentType, message string) {
	t.mu.Lock()

	var target *ToolCall
	for _, call := range t.calls {
		if call.Subagent == nil || call.Subagent.Status.IsTerminal() {
			continue
		}
		if subagentType != "" && call.Subagent.Type == subagentType {
			target = call
			break
		}
		if target == nil {
			target = call
		}
	}

	if target != nil {
		status := SubagentThinking
		target.Subagent.setStatus(status, message)
	}

	t.mu.Unlock()
	t.notify()
}

// PendingSubagents returns snapshots of the subagent calls still waiting for
// a started event. Exposed so a future engine-side correlation id can replace
// the matching heuristic without changing callers.
func (t *Tracker) PendingSubagents() []ToolCall {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := []ToolCall{}
	for _, call := range t.calls {
		if call.Subagent != nil && call.Subagent.Status == SubagentStarting {
			c := *call
			sub := *call.Subagent
			c.Subagent = &sub
			out = append(out, c)
		}
	}
	return out
}

func (t *Tracker) matchSubagentLocked(subagentType, description string) *ToolCall {
	// Pass 1: exact type match, oldest first.
	for _, call := range t.calls {
		if call.Subagent != nil && call.Subagent.Status == SubagentStarting &&
			subagentType != "" && call.Subagent.Type == subagentType {
			return call
		}
	}

	// Pass 2: description-prefix similarity, oldest first.
	if description != "" {
		for _, call := range t.calls {
			if call.Subagent == nil || call.Subagent.Status != SubagentStarting {
				continue
			}
			d := call.Subagent.Description
			if d != "" && (hasPrefixFold(d, description) || hasPrefixFold(description, d)) {
				return call
			}
		}
	}

	// Pass 3: oldest record still starting.
	for _, call := range t.calls {
		if call.Subagent != nil && call.Subagent.Status == SubagentStarting {
			return call
		}
	}

	return nil
}
