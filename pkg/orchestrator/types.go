package orchestrator

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/vaultpilot/vaultpilot/pkg/agent"
	"github.com/vaultpilot/vaultpilot/pkg/permission"
	"github.com/vaultpilot/vaultpilot/pkg/ratelimit"
	"github.com/vaultpilot/vaultpilot/pkg/tracker"
)

// SettingsStore exposes the persistent policy settings. Reads return a
// snapshot; AppendAlwaysAllowed is fire-and-forget from the orchestrator's
// point of view. The store never sees the shell tool through this interface;
// the orchestrator downgrades such grants to session-only before they get
// here.
type SettingsStore interface {
	PolicySettings() permission.Settings
	AppendAlwaysAllowed(toolName string) error
}

// TurnResult is what one finished turn hands back to the caller.
type TurnResult struct {
	Text      string             `json:"text"`
	ToolCalls []tracker.ToolCall `json:"tool_calls,omitempty"`
	Usage     agent.Usage        `json:"usage"`
	SessionID string             `json:"session_id,omitempty"`
	Cancelled bool               `json:"cancelled,omitempty"`
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Engine      agent.Engine
	Permissions *permission.Engine
	Settings    SettingsStore

	// Prompt collaborators. Nil prompters fail closed: approvals deny,
	// limit prompts stop.
	Approvals     permission.ApprovalPrompter
	LimitPrompter ratelimit.Prompter

	// Limits for one turn; zero value means DefaultLimits.
	Limits ratelimit.Limits

	// OnUpdate receives a tool-call snapshot after every tracker mutation,
	// for live UI rendering. May be nil.
	OnUpdate tracker.UpdateFunc

	Model        string
	WorkingDir   string
	SystemPrompt string

	// MaxRetries is the retry budget for transient failures on top of the
	// first attempt. RetryBaseDelay doubles per attempt.
	MaxRetries     int
	RetryBaseDelay time.Duration

	Logger zerolog.Logger
}

const (
	defaultMaxRetries     = 2
	defaultRetryBaseDelay = time.Second
)
