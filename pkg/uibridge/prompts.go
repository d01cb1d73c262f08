package uibridge

import (
	"context"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/vaultpilot/vaultpilot/pkg/permission"
	"github.com/vaultpilot/vaultpilot/pkg/ratelimit"
)

// PromptApproval asks the connected UI to approve a tool invocation. With no
// client connected, on timeout, on dismissal, or on any transport error the
// answer is deny.
func (b *Bridge) PromptApproval(ctx context.Context, req permission.ApprovalRequest) (permission.ApprovalAction, error) {
	msg, err := b.ask(ctx, promptKindApproval, req)
	if err != nil {
		b.logger.Warn().Err(err).Str("tool", req.Tool).Msg("Approval prompt unanswered, denying")
		return permission.ActionDeny, nil
	}

	action, err := permission.ParseApprovalAction(msg.Action)
	if err != nil {
		b.logger.Warn().Err(err).Str("tool", req.Tool).Msg("Unparseable approval answer, denying")
		return permission.ActionDeny, nil
	}
	return action, nil
}

// PromptLimit asks the connected UI whether the turn may continue past a
// rate limit. Anything but an explicit continue is stop.
func (b *Bridge) PromptLimit(ctx context.Context, p ratelimit.Prompt) (ratelimit.Choice, error) {
	msg, err := b.ask(ctx, promptKindLimit, p)
	if err != nil {
		b.logger.Warn().Err(err).Str("label", p.Label).Msg("Limit prompt unanswered, stopping")
		return ratelimit.ChoiceStop, nil
	}

	if ratelimit.Choice(msg.Choice) == ratelimit.ChoiceContinue {
		return ratelimit.ChoiceContinue, nil
	}
	return ratelimit.ChoiceStop, nil
}

// ask broadcasts a prompt and waits for the matching response.
func (b *Bridge) ask(ctx context.Context, kind string, data interface{}) (ResponseMessage, error) {
	if b.ClientCount() == 0 {
		return ResponseMessage{}, errNoClients
	}

	id, err := gonanoid.New()
	if err != nil {
		return ResponseMessage{}, err
	}

	ch := make(chan ResponseMessage, 1)
	b.pendingMu.Lock()
	b.pending[id] = ch
	b.pendingMu.Unlock()

	defer func() {
		b.pendingMu.Lock()
		delete(b.pending, id)
		b.pendingMu.Unlock()
	}()

	b.broadcast(PromptMessage{
		Type:      "prompt",
		ID:        id,
		Kind:      kind,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})

	timer := time.NewTimer(b.promptTimeout)
	defer timer.Stop()

	select {
	case msg := <-ch:
		return msg, nil
	case <-timer.C:
		return ResponseMessage{}, errPromptTimeout
	case <-ctx.Done():
		return ResponseMessage{}, ctx.Err()
	}
}

type bridgeError string

func (e bridgeError) Error() string { return string(e) }

const (
	errNoClients     = bridgeError("no ui client connected")
	errPromptTimeout = bridgeError("prompt timed out")
)
