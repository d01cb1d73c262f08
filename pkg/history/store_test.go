package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultpilot/vaultpilot/pkg/agent"
	"github.com/vaultpilot/vaultpilot/pkg/orchestrator"
	"github.com/vaultpilot/vaultpilot/pkg/tracker"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// TestStore_AppendAndRecent tests the archive round trip.
func TestStore_AppendAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	res := orchestrator.TurnResult{
		Text:      "Renamed the note.",
		SessionID: "sess-1",
		Usage:     agent.Usage{InputTokens: 100, OutputTokens: 42},
		ToolCalls: []tracker.ToolCall{
			{ID: "tc-1", Name: "Edit", Status: tracker.StatusSuccess},
		},
	}

	id, err := store.AppendResult(ctx, "rename my note", res)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	records, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "rename my note", rec.Prompt)
	assert.Equal(t, "Renamed the note.", rec.Text)
	assert.Equal(t, int64(42), rec.OutputTokens)
	require.Len(t, rec.ToolCalls, 1)
	assert.Equal(t, tracker.StatusSuccess, rec.ToolCalls[0].Status)
}

// TestStore_Recent_Ordering tests newest-first ordering and the limit.
func TestStore_Recent_Ordering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, TurnRecord{
			SessionID: "sess-1",
			Prompt:    "p",
			Text:      string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	records, err := store.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "e", records[0].Text)
	assert.Equal(t, "d", records[1].Text)
	assert.Equal(t, "c", records[2].Text)
}

// TestStore_BySession tests chronological retrieval for one session.
func TestStore_BySession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.Append(ctx, TurnRecord{SessionID: "a", Prompt: "one", Text: "1", CreatedAt: base}))
	require.NoError(t, store.Append(ctx, TurnRecord{SessionID: "b", Prompt: "other", Text: "x", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, store.Append(ctx, TurnRecord{SessionID: "a", Prompt: "two", Text: "2", CreatedAt: base.Add(2 * time.Minute)}))

	records, err := store.BySession(ctx, "a")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "one", records[0].Prompt)
	assert.Equal(t, "two", records[1].Prompt)
}

// TestStore_PruneOlderThan tests the retention sweep.
func TestStore_PruneOlderThan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.Append(ctx, TurnRecord{SessionID: "s", Prompt: "old", Text: "old", CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, store.Append(ctx, TurnRecord{SessionID: "s", Prompt: "fresh", Text: "fresh", CreatedAt: now}))

	pruned, err := store.PruneOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	records, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "fresh", records[0].Prompt)
}
