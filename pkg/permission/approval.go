package permission

import (
	"context"
	"fmt"

	"github.com/vaultpilot/vaultpilot/pkg/tools"
)

// ApprovalAction is the user's answer to an approval prompt.
type ApprovalAction string

const (
	ApproveOnce    ApprovalAction = "approve_once"
	ApproveSession ApprovalAction = "approve_session"
	ApproveAlways  ApprovalAction = "approve_always"
	ActionDeny     ApprovalAction = "deny"
)

// ParseApprovalAction converts a wire string into an ApprovalAction.
func ParseApprovalAction(s string) (ApprovalAction, error) {
	switch ApprovalAction(s) {
	case ApproveOnce, ApproveSession, ApproveAlways, ActionDeny:
		return ApprovalAction(s), nil
	default:
		return "", fmt.Errorf("invalid approval action: %q", s)
	}
}

// ApprovalRequest is what the prompt collaborator shows the user.
type ApprovalRequest struct {
	Tool        string                 `json:"tool"`
	Input       map[string]interface{} `json:"input"`
	Risk        tools.RiskLevel        `json:"risk"`
	Description string                 `json:"description"`
}

// ApprovalPrompter asks the user to approve a tool invocation. Dismissal or
// any failure must be treated as deny by the caller (fail-closed).
type ApprovalPrompter interface {
	PromptApproval(ctx context.Context, req ApprovalRequest) (ApprovalAction, error)
}

// StaticPrompter answers every prompt with a fixed action. Used in tests and
// in headless mode, where the fail-closed default is ActionDeny.
type StaticPrompter struct {
	Action ApprovalAction
}

// PromptApproval implements ApprovalPrompter.
func (p StaticPrompter) PromptApproval(ctx context.Context, req ApprovalRequest) (ApprovalAction, error) {
	if p.Action == "" {
		return ActionDeny, nil
	}
	return p.Action, nil
}
