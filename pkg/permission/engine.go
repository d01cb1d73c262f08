package permission

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vaultpilot/vaultpilot/pkg/tools"
)

// Outcome is the result kind of a policy decision.
type Outcome string

const (
	OutcomeAllow Outcome = "allow"
	OutcomeDeny  Outcome = "deny"
	OutcomeAsk   Outcome = "ask"
)

// Decision is the verdict for one tool invocation. Reason is set for denials
// and is suitable both for display and for informing the agent the action
// did not happen. Risk and Description are set when approval is required.
type Decision struct {
	Outcome     Outcome
	Reason      string
	Risk        tools.RiskLevel
	Description string
}

// Allow builds an allow decision.
func Allow() Decision {
	return Decision{Outcome: OutcomeAllow}
}

// Deny builds a deny decision with a human-readable reason.
func Deny(reason string) Decision {
	return Decision{Outcome: OutcomeDeny, Reason: reason}
}

// Ask builds a require-approval decision.
func Ask(risk tools.RiskLevel, description string) Decision {
	return Decision{Outcome: OutcomeAsk, Risk: risk, Description: description}
}

// Settings is the snapshot of persistent policy settings the engine
// evaluates against. It is read-only from the engine's perspective.
type Settings struct {
	AutoApproveWrites    bool
	RequireShellApproval bool
	AlwaysAllowedTools   []string
	CommandAllowlist     []string
}

// SessionApprovals is the set of tools the user approved for the lifetime of
// the current session. It is never persisted; restarting the session clears
// it. Safe for concurrent use because turn finalization may still be writing
// while the next turn reads.
type SessionApprovals struct {
	mu       sync.RWMutex
	approved map[string]bool
}

// NewSessionApprovals creates an empty session approval set.
func NewSessionApprovals() *SessionApprovals {
	return &SessionApprovals{approved: make(map[string]bool)}
}

// Approve remembers a tool for the rest of the session.
func (s *SessionApprovals) Approve(toolName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approved[toolName] = true
}

// IsApproved reports whether a tool was approved earlier in this session.
func (s *SessionApprovals) IsApproved(toolName string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.approved[toolName]
}

// Clear forgets all session approvals.
func (s *SessionApprovals) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approved = make(map[string]bool)
}

// List returns the approved tool names in sorted order.
func (s *SessionApprovals) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.approved))
	for name := range s.approved {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Engine decides whether a requested tool invocation may proceed.
type Engine struct {
	logger zerolog.Logger
}

// NewEngine creates a permission engine.
func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{logger: logger}
}

// Decide evaluates the rules in a fixed order; the first matching rule wins,
// so later, looser rules can never override earlier, stricter ones.
func (e *Engine) Decide(toolName string, input map[string]interface{}, settings Settings, session *SessionApprovals) Decision {
	// 1. Hard-deny content filters for shell commands. No setting or user
	// choice overrides these.
	if tools.IsShell(toolName) {
		command := stringField(input, "command")
		if reason, denied := matchHardDeny(command); denied {
			e.logDecision(toolName, "hard-deny", reason)
			return Deny(reason)
		}
	}

	// 2. Controlled tools need the command identifier in the allowlist.
	// Absence is a hard stop, not an approval prompt.
	if tools.IsControlled(toolName) {
		commandID := stringField(input, "command_id")
		if commandID == "" {
			commandID = stringField(input, "command")
		}
		if !containsString(settings.CommandAllowlist, commandID) {
			reason := fmt.Sprintf("command %q is not in the allowed commands list", commandID)
			e.logDecision(toolName, "allowlist-miss", reason)
			return Deny(reason)
		}
	}

	// 3. File-creating tools must target a safe vault path.
	if tools.CreatesFiles(toolName) {
		target := stringField(input, "file_path")
		if target == "" {
			target = stringField(input, "path")
		}
		if err := CheckCreatePath(target); err != nil {
			reason := fmt.Sprintf("unsafe target path: %v", err)
			e.logDecision(toolName, "path-violation", reason)
			return Deny(reason)
		}
	}

	// 4. Read-only and safe-UI tools are always allowed.
	if tools.IsReadOnly(toolName) || tools.IsSafeUI(toolName) {
		return Allow()
	}

	// 5. Durable always-allowed set. Shell is excluded by construction, and
	// controlled tools never ride this path either: the allowlist gates what
	// a command may be, not whether this invocation was sanctioned.
	if !tools.IsShell(toolName) && !tools.IsControlled(toolName) &&
		containsString(settings.AlwaysAllowedTools, toolName) {
		return Allow()
	}

	// 6. Per-category settings.
	if tools.IsWrite(toolName) && settings.AutoApproveWrites {
		return Allow()
	}
	if tools.IsShell(toolName) && !settings.RequireShellApproval {
		return Allow()
	}

	// 7. Approved earlier in this session.
	if session != nil && session.IsApproved(toolName) {
		return Allow()
	}

	// 8. Subagent-spawning tools are allowed; every call the subagent makes
	// re-enters this engine on its own merits.
	if tools.IsSubagent(toolName) {
		return Allow()
	}

	// 9. Fail-closed fallback, including unrecognized tool names.
	return Ask(tools.RiskLevelOf(toolName), describe(toolName, input))
}

// describe builds the one-line summary shown on the approval prompt.
func describe(toolName string, input map[string]interface{}) string {
	if tools.IsShell(toolName) {
		if cmd := stringField(input, "command"); cmd != "" {
			return fmt.Sprintf("Run shell command: %s", firstLine(cmd))
		}
	}
	if target := stringField(input, "file_path"); target != "" {
		return fmt.Sprintf("%s: %s", toolName, target)
	}
	if target := stringField(input, "path"); target != "" {
		return fmt.Sprintf("%s: %s", toolName, target)
	}
	return fmt.Sprintf("Run tool %s", toolName)
}

func (e *Engine) logDecision(toolName, rule, reason string) {
	e.logger.Warn().
		Str("tool", toolName).
		Str("rule", rule).
		Str("reason", reason).
		Msg("Tool invocation denied")
}

func stringField(input map[string]interface{}, key string) string {
	if input == nil {
		return ""
	}
	if v, ok := input[key].(string); ok {
		return v
	}
	return ""
}

func containsString(list []string, s string) bool {
	if s == "" {
		return false
	}
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
