package tracker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultpilot/vaultpilot/pkg/tools"
)

func newTestTracker() *Tracker {
	return New(zerolog.Nop(), nil)
}

func TestTracker_Lifecycle(t *testing.T) {
	tr := newTestTracker()

	require.NoError(t, tr.Begin("tc1", tools.ToolRead, map[string]interface{}{"file_path": "a.md"}))
	tr.Complete("tc1", "file contents", false)

	calls := tr.Snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, StatusSuccess, calls[0].Status)
	assert.Equal(t, "file contents", calls[0].Output)
	assert.NotNil(t, calls[0].EndedAt)
}

func TestTracker_DuplicateIDRejected(t *testing.T) {
	tr := newTestTracker()

	require.NoError(t, tr.Begin("tc1", tools.ToolRead, nil))
	assert.Error(t, tr.Begin("tc1", tools.ToolGrep, nil))
}

// TestTracker_StatusOnlyMovesForward verifies a terminal call ignores late
// results.
func TestTracker_StatusOnlyMovesForward(t *testing.T) {
	tr := newTestTracker()

	require.NoError(t, tr.Begin("tc1", tools.ToolRead, nil))
	tr.Complete("tc1", "ok", false)
	tr.Complete("tc1", "late failure", true)

	calls := tr.Snapshot()
	assert.Equal(t, StatusSuccess, calls[0].Status)
	assert.Empty(t, calls[0].Error)
}

func TestTracker_UnknownResultDropped(t *testing.T) {
	tr := newTestTracker()
	tr.Complete("ghost", "output", false)
	assert.Empty(t, tr.Snapshot())
}

func TestTracker_InsertionOrderPreserved(t *testing.T) {
	tr := newTestTracker()

	for i := 0; i < 5; i++ {
		require.NoError(t, tr.Begin(fmt.Sprintf("tc%d", i), tools.ToolGrep, nil))
	}

	calls := tr.Snapshot()
	for i, call := range calls {
		assert.Equal(t, fmt.Sprintf("tc%d", i), call.ID)
	}
}

// TestTracker_FinalizeLeavesNothingRunning verifies forced finalization: no
// call may stay running after the turn ends.
func TestTracker_FinalizeLeavesNothingRunning(t *testing.T) {
	tr := newTestTracker()

	require.NoError(t, tr.Begin("done", tools.ToolRead, nil))
	tr.Complete("done", "ok", false)
	require.NoError(t, tr.Begin("hanging", tools.ToolBash, nil))

	tr.FinalizeAll(true)

	for _, call := range tr.Snapshot() {
		assert.True(t, call.Status.IsTerminal(), "call %s still live", call.ID)
	}
	assert.False(t, tr.HasRunning())
}

func TestTracker_FinalizeOnFailureMarksError(t *testing.T) {
	tr := newTestTracker()

	require.NoError(t, tr.Begin("hanging", tools.ToolBash, nil))
	tr.FinalizeAll(false)

	calls := tr.Snapshot()
	assert.Equal(t, StatusError, calls[0].Status)
	assert.NotEmpty(t, calls[0].Error)
}

func TestTracker_SnapshotIsACopy(t *testing.T) {
	tr := newTestTracker()
	require.NoError(t, tr.Begin("tc1", tools.ToolTask, map[string]interface{}{"subagent_type": "researcher"}))

	snap := tr.Snapshot()
	snap[0].Status = StatusError
	snap[0].Subagent.Status = SubagentError

	fresh := tr.Snapshot()
	assert.Equal(t, StatusRunning, fresh[0].Status)
	assert.Equal(t, SubagentStarting, fresh[0].Subagent.Status)
}

func TestTruncate(t *testing.T) {
	short := "short output"
	assert.Equal(t, short, Truncate(short))

	long := strings.Repeat("x", MaxOutputBytes+500)
	got := Truncate(long)

	marker := fmt.Sprintf("\n[output truncated: showing %d of %d bytes]", MaxOutputBytes, len(long))
	assert.True(t, strings.HasSuffix(got, marker))
	assert.LessOrEqual(t, len(got), MaxOutputBytes+len(marker))
	assert.Contains(t, got, fmt.Sprintf("%d bytes", len(long)))
}

func TestTruncateTo_ExactBoundary(t *testing.T) {
	s := strings.Repeat("y", 100)
	assert.Equal(t, s, TruncateTo(s, 100))
	assert.NotEqual(t, s, TruncateTo(s, 99))
}

func TestSubagent_RecordCreatedOnBegin(t *testing.T) {
	tr := newTestTracker()

	require.NoError(t, tr.Begin("tc1", tools.ToolTask, map[string]interface{}{
		"subagent_type": "researcher",
		"description":   "Find all references to zettelkasten",
	}))

	calls := tr.Snapshot()
	require.NotNil(t, calls[0].Subagent)
	assert.Equal(t, "researcher", calls[0].Subagent.Type)
	assert.Equal(t, SubagentStarting, calls[0].Subagent.Status)
	assert.False(t, calls[0].Subagent.Status.IsTerminal())
}

func TestSubagent_MatchByType(t *testing.T) {
	tr := newTestTracker()

	require.NoError(t, tr.Begin("a", tools.ToolTask, map[string]interface{}{"subagent_type": "writer"}))
	require.NoError(t, tr.Begin("b", tools.ToolTask, map[string]interface{}{"subagent_type": "researcher"}))

	matched := tr.SubagentStarted("researcher", "")
	assert.Equal(t, "b", matched)

	calls := tr.Snapshot()
	assert.Equal(t, SubagentStarting, calls[0].Subagent.Status)
	assert.Equal(t, SubagentRunning, calls[1].Subagent.Status)
}

func TestSubagent_MatchByDescriptionPrefix(t *testing.T) {
	tr := newTestTracker()

	require.NoError(t, tr.Begin("a", tools.ToolTask, map[string]interface{}{
		"subagent_type": "writer",
		"description":   "Summarize the meeting notes",
	}))

	matched := tr.SubagentStarted("researcher", "Summarize the meeting")
	assert.Equal(t, "a", matched)
}

// TestSubagent_OldestPendingFallback verifies the deterministic tiebreak:
// with no type or description match, the oldest starting record wins.
func TestSubagent_OldestPendingFallback(t *testing.T) {
	tr := newTestTracker()

	require.NoError(t, tr.Begin("first", tools.ToolTask, map[string]interface{}{"subagent_type": "writer"}))
	require.NoError(t, tr.Begin("second", tools.ToolTask, map[string]interface{}{"subagent_type": "writer"}))

	assert.Equal(t, "first", tr.SubagentStarted("unrelated", "no such description"))
	assert.Equal(t, "second", tr.SubagentStarted("unrelated", "still nothing"))
	assert.Equal(t, "", tr.SubagentStarted("unrelated", ""))
}

func TestSubagent_SameTypeTieBreaksByInsertionOrder(t *testing.T) {
	tr := newTestTracker()

	require.NoError(t, tr.Begin("a", tools.ToolTask, map[string]interface{}{"subagent_type": "researcher"}))
	require.NoError(t, tr.Begin("b", tools.ToolTask, map[string]interface{}{"subagent_type": "researcher"}))

	assert.Equal(t, "a", tr.SubagentStarted("researcher", ""))
	assert.Equal(t, "b", tr.SubagentStarted("researcher", ""))
}

func TestSubagent_TerminalStatusNeverChanges(t *testing.T) {
	tr := newTestTracker()

	require.NoError(t, tr.Begin("a", tools.ToolTask, map[string]interface{}{"subagent_type": "researcher"}))
	tr.Complete("a", "result", false)

	calls := tr.Snapshot()
	assert.Equal(t, SubagentCompleted, calls[0].Subagent.Status)

	// No pending record remains, and the terminal record is untouched.
	assert.Equal(t, "", tr.SubagentStarted("researcher", ""))
	tr.SubagentProgressUpdate("researcher", "should be ignored")

	calls = tr.Snapshot()
	assert.Equal(t, SubagentCompleted, calls[0].Subagent.Status)
	assert.NotEqual(t, "should be ignored", calls[0].Subagent.Progress.Message)
}

func TestInterrupt_MarksLiveSubagents(t *testing.T) {
	tr := newTestTracker()

	require.NoError(t, tr.Begin("a", tools.ToolTask, map[string]interface{}{"subagent_type": "researcher"}))
	require.NoError(t, tr.Begin("b", tools.ToolRead, nil))
	tr.SubagentStarted("researcher", "")

	tr.Interrupt()

	calls := tr.Snapshot()
	assert.Equal(t, SubagentInterrupted, calls[0].Subagent.Status)
	assert.Equal(t, "Interrupted by user", calls[0].Subagent.Progress.Message)
	assert.Equal(t, StatusError, calls[1].Status)
	assert.Equal(t, "interrupted by user", calls[1].Error)

	// Idempotent: a second interrupt changes nothing and does not panic.
	tr.Interrupt()
	assert.Empty(t, tr.PendingSubagents())
}

func TestPendingSubagents(t *testing.T) {
	tr := newTestTracker()

	require.NoError(t, tr.Begin("a", tools.ToolTask, map[string]interface{}{"subagent_type": "researcher"}))
	require.NoError(t, tr.Begin("b", tools.ToolRead, nil))

	pending := tr.PendingSubagents()
	require.Len(t, pending, 1)
	assert.Equal(t, "a", pending[0].ID)

	tr.SubagentStarted("researcher", "")
	assert.Empty(t, tr.PendingSubagents())
}

func TestTracker_OnUpdateReceivesSnapshots(t *testing.T) {
	var last []ToolCall
	tr := New(zerolog.Nop(), func(calls []ToolCall) { last = calls })

	require.NoError(t, tr.Begin("tc1", tools.ToolRead, nil))
	require.Len(t, last, 1)
	assert.Equal(t, StatusRunning, last[0].Status)

	tr.Complete("tc1", "done", false)
	assert.Equal(t, StatusSuccess, last[0].Status)
}
