package uibridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultpilot/vaultpilot/pkg/permission"
	"github.com/vaultpilot/vaultpilot/pkg/ratelimit"
	"github.com/vaultpilot/vaultpilot/pkg/tools"
	"github.com/vaultpilot/vaultpilot/pkg/tracker"
)

func startBridge(t *testing.T, promptTimeout time.Duration) *Bridge {
	t.Helper()
	b, err := New(Config{Port: 0, PromptTimeout: promptTimeout, Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, b.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		b.Shutdown(ctx)
	})
	return b
}

func dialBridge(t *testing.T, b *Bridge) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+b.Addr()+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return b.ClientCount() == 1 },
		time.Second, 5*time.Millisecond)
	return conn
}

// readPrompt reads frames until a prompt arrives.
func readPrompt(t *testing.T, conn *websocket.Conn) PromptMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var probe struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(data, &probe))
		if probe.Type != "prompt" {
			continue
		}

		var msg PromptMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	}
}

// TestBridge_PromptApproval_RoundTrip tests the approval prompt wire flow.
func TestBridge_PromptApproval_RoundTrip(t *testing.T) {
	b := startBridge(t, 2*time.Second)
	conn := dialBridge(t, b)

	go func() {
		prompt := readPrompt(t, conn)
		resp := ResponseMessage{Type: "response", ID: prompt.ID, Action: string(permission.ApproveOnce)}
		data, _ := json.Marshal(resp)
		conn.WriteMessage(websocket.TextMessage, data)
	}()

	action, err := b.PromptApproval(context.Background(), permission.ApprovalRequest{
		Tool:        tools.ToolWrite,
		Risk:        tools.RiskMedium,
		Description: "Write: notes/a.md",
	})
	require.NoError(t, err)
	assert.Equal(t, permission.ApproveOnce, action)
}

// TestBridge_PromptApproval_NoClientDenies tests the fail-closed path with
// no UI connected.
func TestBridge_PromptApproval_NoClientDenies(t *testing.T) {
	b := startBridge(t, 2*time.Second)

	action, err := b.PromptApproval(context.Background(), permission.ApprovalRequest{Tool: tools.ToolWrite})
	require.NoError(t, err)
	assert.Equal(t, permission.ActionDeny, action)
}

// TestBridge_PromptApproval_TimeoutDenies tests that silence is deny.
func TestBridge_PromptApproval_TimeoutDenies(t *testing.T) {
	b := startBridge(t, 50*time.Millisecond)
	dialBridge(t, b)

	action, err := b.PromptApproval(context.Background(), permission.ApprovalRequest{Tool: tools.ToolWrite})
	require.NoError(t, err)
	assert.Equal(t, permission.ActionDeny, action)
}

// TestBridge_PromptApproval_GarbageAnswerDenies tests that an unparseable
// action is deny.
func TestBridge_PromptApproval_GarbageAnswerDenies(t *testing.T) {
	b := startBridge(t, 2*time.Second)
	conn := dialBridge(t, b)

	go func() {
		prompt := readPrompt(t, conn)
		resp := ResponseMessage{Type: "response", ID: prompt.ID, Action: "approve_forever"}
		data, _ := json.Marshal(resp)
		conn.WriteMessage(websocket.TextMessage, data)
	}()

	action, err := b.PromptApproval(context.Background(), permission.ApprovalRequest{Tool: tools.ToolWrite})
	require.NoError(t, err)
	assert.Equal(t, permission.ActionDeny, action)
}

// TestBridge_PromptLimit_RoundTrip tests both limit answers.
func TestBridge_PromptLimit_RoundTrip(t *testing.T) {
	b := startBridge(t, 2*time.Second)
	conn := dialBridge(t, b)

	go func() {
		prompt := readPrompt(t, conn)
		resp := ResponseMessage{Type: "response", ID: prompt.ID, Choice: string(ratelimit.ChoiceContinue)}
		data, _ := json.Marshal(resp)
		conn.WriteMessage(websocket.TextMessage, data)
	}()

	choice, err := b.PromptLimit(context.Background(), ratelimit.Prompt{Label: tools.ToolBash, Count: 11, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, ratelimit.ChoiceContinue, choice)
}

// TestBridge_PromptLimit_NoClientStops tests the fail-closed limit answer.
func TestBridge_PromptLimit_NoClientStops(t *testing.T) {
	b := startBridge(t, time.Second)

	choice, err := b.PromptLimit(context.Background(), ratelimit.Prompt{Label: "all tools", Count: 81, Limit: 80})
	require.NoError(t, err)
	assert.Equal(t, ratelimit.ChoiceStop, choice)
}

// TestBridge_BroadcastToolCalls tests snapshot fan-out.
func TestBridge_BroadcastToolCalls(t *testing.T) {
	b := startBridge(t, time.Second)
	conn := dialBridge(t, b)

	b.BroadcastToolCalls([]tracker.ToolCall{
		{ID: "tc-1", Name: tools.ToolRead, Status: tracker.StatusRunning},
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg EventMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "event", msg.Type)
	assert.Equal(t, "turn.tool_calls", msg.Event)
	assert.NotZero(t, msg.Seq)
}

// TestBridge_OnMessageAndCancel tests the inbound prompt and cancel frames.
func TestBridge_OnMessageAndCancel(t *testing.T) {
	b := startBridge(t, time.Second)

	messages := make(chan string, 1)
	cancels := make(chan struct{}, 1)
	b.OnMessage(func(text string) { messages <- text })
	b.OnCancel(func() { cancels <- struct{}{} })

	conn := dialBridge(t, b)

	send := func(frame map[string]string) {
		data, _ := json.Marshal(frame)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
	}

	send(map[string]string{"type": "message", "text": "summarize my inbox"})
	select {
	case got := <-messages:
		assert.Equal(t, "summarize my inbox", got)
	case <-time.After(2 * time.Second):
		t.Fatal("message frame never reached the handler")
	}

	send(map[string]string{"type": "cancel"})
	select {
	case <-cancels:
	case <-time.After(2 * time.Second):
		t.Fatal("cancel frame never reached the handler")
	}
}

// TestBridge_ResponseForUnknownPromptDropped tests that stray responses do
// not break the read loop.
func TestBridge_ResponseForUnknownPromptDropped(t *testing.T) {
	b := startBridge(t, time.Second)
	conn := dialBridge(t, b)

	resp := ResponseMessage{Type: "response", ID: "never-issued", Action: "deny"}
	data, _ := json.Marshal(resp)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))

	// The connection stays healthy: a broadcast still arrives.
	b.BroadcastEvent("turn.completed", nil)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.NoError(t, err)
}
