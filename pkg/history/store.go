package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/vaultpilot/vaultpilot/pkg/orchestrator"
	"github.com/vaultpilot/vaultpilot/pkg/tracker"
)

// TurnRecord is one archived turn.
type TurnRecord struct {
	ID           string             `json:"id"`
	SessionID    string             `json:"session_id"`
	Prompt       string             `json:"prompt"`
	Text         string             `json:"text"`
	ToolCalls    []tracker.ToolCall `json:"tool_calls,omitempty"`
	InputTokens  int64              `json:"input_tokens"`
	OutputTokens int64              `json:"output_tokens"`
	Cancelled    bool               `json:"cancelled"`
	CreatedAt    time.Time          `json:"created_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	prompt        TEXT NOT NULL,
	response      TEXT NOT NULL,
	tool_calls    TEXT NOT NULL DEFAULT '[]',
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cancelled     INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_created_at ON turns(created_at);
CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id);
`

// Store archives finished turns in sqlite.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens or creates the history database.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// AppendResult archives one finished turn result.
func (s *Store) AppendResult(ctx context.Context, prompt string, res orchestrator.TurnResult) (string, error) {
	rec := TurnRecord{
		ID:           uuid.NewString(),
		SessionID:    res.SessionID,
		Prompt:       prompt,
		Text:         res.Text,
		ToolCalls:    res.ToolCalls,
		InputTokens:  res.Usage.InputTokens,
		OutputTokens: res.Usage.OutputTokens,
		Cancelled:    res.Cancelled,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.Append(ctx, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Append archives one turn record.
func (s *Store) Append(ctx context.Context, rec TurnRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	calls, err := json.Marshal(rec.ToolCalls)
	if err != nil {
		return fmt.Errorf("marshal tool calls: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO turns (id, session_id, prompt, response, tool_calls, input_tokens, output_tokens, cancelled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.Prompt, rec.Text, string(calls),
		rec.InputTokens, rec.OutputTokens, rec.Cancelled, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert turn record: %w", err)
	}
	return nil
}

// Recent returns the newest records, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]TurnRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, prompt, response, tool_calls, input_tokens, output_tokens, cancelled, created_at
		FROM turns ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query turn records: %w", err)
	}
	defer rows.Close()

	var out []TurnRecord
	for rows.Next() {
		var rec TurnRecord
		var calls string
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Prompt, &rec.Text, &calls,
			&rec.InputTokens, &rec.OutputTokens, &rec.Cancelled, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn record: %w", err)
		}
		if err := json.Unmarshal([]byte(calls), &rec.ToolCalls); err != nil {
			s.logger.Warn().Err(err).Str("turn_id", rec.ID).Msg("Corrupt tool-call payload in history row")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// BySession returns the records for one engine session in chronological order.
func (s *Store) BySession(ctx context.Context, sessionID string) ([]TurnRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, prompt, response, tool_calls, input_tokens, output_tokens, cancelled, created_at
		FROM turns WHERE session_id = ? ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query session records: %w", err)
	}
	defer rows.Close()

	var out []TurnRecord
	for rows.Next() {
		var rec TurnRecord
		var calls string
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Prompt, &rec.Text, &calls,
			&rec.InputTokens, &rec.OutputTokens, &rec.Cancelled, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn record: %w", err)
		}
		if err := json.Unmarshal([]byte(calls), &rec.ToolCalls); err != nil {
			s.logger.Warn().Err(err).Str("turn_id", rec.ID).Msg("Corrupt tool-call payload in history row")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PruneOlderThan deletes records created before the cutoff and returns the
// number removed.
func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune turn records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count pruned records: %w", err)
	}
	return int(n), nil
}
