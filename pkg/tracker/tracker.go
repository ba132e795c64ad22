package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/devagent-ai/devagent/pkg/models"
)

// Tracker records and queries token usage per client address.
type Tracker interface {
	Record(ctx context.Context, rec models.UsageRecord) error
	QueryByClient(ctx context.Context, client string, since time.Time) ([]models.UsageRecord, error)
	TotalByClient(ctx context.Context, client string, since time.Time) (int64, error)
	TotalByClientAndProvider(ctx context.Context, client string, provider models.ProviderName, since time.Time) (int64, error)
	// Summary aggregates usage by client, provider and model. An empty
	// client selects every client.
	Summary(ctx context.Context, client string) ([]models.UsageSummary, error)
	// ResolveSession returns explicitID when set, otherwise the client's
	// latest session if it was active within gapTimeout, otherwise a new one.
	ResolveSession(ctx context.Context, client, explicitID string, gapTimeout time.Duration) (string, error)
	ListSessions(ctx context.Context, client string) ([]models.Session, error)
	SessionRequests(ctx context.Context, sessionID string) ([]models.SessionRequest, error)
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db  *sql.DB
	now func() time.Time
}

var _ Tracker = (*SQLiteTracker)(nil)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS chat_usage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client TEXT NOT NULL,
		model TEXT NOT NULL,
		provider TEXT NOT NULL,
		session_id TEXT NOT NULL DEFAULT '',
		prompt_tokens INTEGER NOT NULL,
		completion_tokens INTEGER NOT NULL,
		total_tokens INTEGER NOT NULL,
		truncated INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_usage_client ON chat_usage(client, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_usage_session ON chat_usage(session_id)`,
	`CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		client TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		last_activity DATETIME NOT NULL,
		request_count INTEGER NOT NULL DEFAULT 0,
		total_tokens INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_sessions_client ON chat_sessions(client, last_activity)`,
}

// New opens (or creates) the usage database at dbPath.
func New(dbPath string) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate tracker db: %w", err)
		}
	}
	return &SQLiteTracker{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// NewSessionID returns a sortable session identifier like sess_01J....
func NewSessionID() string {
	return "sess_" + ulid.Make().String()
}

// Record stores a usage record and bumps its session's counters in the same
// transaction.
func (t *SQLiteTracker) Record(ctx context.Context, rec models.UsageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = t.now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO chat_usage (client, model, provider, session_id, prompt_tokens, completion_tokens, total_tokens, truncated, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Client, rec.Model, string(rec.Provider), rec.SessionID,
		rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens, rec.Truncated, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}

	if rec.SessionID != "" {
		_, err = tx.ExecContext(ctx,
			`UPDATE chat_sessions
			 SET last_activity = ?, request_count = request_count + 1, total_tokens = total_tokens + ?
			 WHERE id = ?`,
			rec.CreatedAt, rec.TotalTokens, rec.SessionID,
		)
		if err != nil {
			return fmt.Errorf("update session %s: %w", rec.SessionID, err)
		}
	}
	return tx.Commit()
}

func (t *SQLiteTracker) ResolveSession(ctx context.Context, client, explicitID string, gapTimeout time.Duration) (string, error) {
	now := t.now()

	if explicitID != "" {
		if err := t.insertSession(ctx, explicitID, client, now, true); err != nil {
			return "", err
		}
		return explicitID, nil
	}

	var (
		lastID       string
		lastActivity time.Time
	)
	err := t.db.QueryRowContext(ctx,
		`SELECT id, last_activity FROM chat_sessions WHERE client = ? ORDER BY last_activity DESC LIMIT 1`,
		client,
	).Scan(&lastID, &lastActivity)
	switch {
	case err == nil && now.Sub(lastActivity) <= gapTimeout:
		return lastID, nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("find session: %w", err)
	}

	id := NewSessionID()
	if err := t.insertSession(ctx, id, client, now, false); err != nil {
		return "", err
	}
	return id, nil
}

func (t *SQLiteTracker) insertSession(ctx context.Context, id, client string, at time.Time, existingOK bool) error {
	stmt := `INSERT INTO chat_sessions (id, client, started_at, last_activity) VALUES (?, ?, ?, ?)`
	if existingOK {
		stmt += ` ON CONFLICT(id) DO NOTHING`
	}
	if _, err := t.db.ExecContext(ctx, stmt, id, client, at, at); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// ListSessions returns sessions newest first, optionally for one client.
func (t *SQLiteTracker) ListSessions(ctx context.Context, client string) ([]models.Session, error) {
	query, args := withClient(
		`SELECT id, client, started_at, last_activity, request_count, total_tokens FROM chat_sessions`, client)
	query += ` ORDER BY started_at DESC, id DESC`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.ID, &s.Client, &s.StartedAt, &s.LastActivity, &s.RequestCount, &s.TotalTokens); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SessionRequests lists a session's requests in order. ContextGrowth is the
// prompt-token delta from the previous request and zero for the first.
func (t *SQLiteTracker) SessionRequests(ctx context.Context, sessionID string) ([]models.SessionRequest, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT created_at, model, prompt_tokens, completion_tokens, total_tokens
		 FROM chat_usage WHERE session_id = ? ORDER BY created_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("session requests: %w", err)
	}
	defer rows.Close()

	var reqs []models.SessionRequest
	for rows.Next() {
		r := models.SessionRequest{Seq: len(reqs) + 1}
		if err := rows.Scan(&r.CreatedAt, &r.Model, &r.PromptTokens, &r.CompletionTokens, &r.TotalTokens); err != nil {
			return nil, fmt.Errorf("scan session request: %w", err)
		}
		if n := len(reqs); n > 0 {
			r.ContextGrowth = r.PromptTokens - reqs[n-1].PromptTokens
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

// QueryByClient returns a client's records since the given time, newest first.
func (t *SQLiteTracker) QueryByClient(ctx context.Context, client string, since time.Time) ([]models.UsageRecord, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, client, model, provider, session_id, prompt_tokens, completion_tokens, total_tokens, truncated, created_at
		 FROM chat_usage WHERE client = ? AND created_at >= ? ORDER BY created_at DESC, id DESC`,
		client, since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var records []models.UsageRecord
	for rows.Next() {
		var (
			r        models.UsageRecord
			provider string
		)
		if err := rows.Scan(&r.ID, &r.Client, &r.Model, &provider, &r.SessionID, &r.PromptTokens, &r.CompletionTokens, &r.TotalTokens, &r.Truncated, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		r.Provider = models.ProviderName(provider)
		records = append(records, r)
	}
	return records, rows.Err()
}

func (t *SQLiteTracker) TotalByClient(ctx context.Context, client string, since time.Time) (int64, error) {
	return t.sumTokens(ctx, `client = ? AND created_at >= ?`, client, since.UTC())
}

func (t *SQLiteTracker) TotalByClientAndProvider(ctx context.Context, client string, provider models.ProviderName, since time.Time) (int64, error) {
	return t.sumTokens(ctx, `client = ? AND provider = ? AND created_at >= ?`, client, string(provider), since.UTC())
}

func (t *SQLiteTracker) sumTokens(ctx context.Context, where string, args ...any) (int64, error) {
	var total int64
	err := t.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_tokens), 0) FROM chat_usage WHERE `+where, args...,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total usage: %w", err)
	}
	return total, nil
}

func (t *SQLiteTracker) Summary(ctx context.Context, client string) ([]models.UsageSummary, error) {
	query, args := withClient(
		`SELECT client, provider, model, COUNT(*), SUM(prompt_tokens), SUM(completion_tokens), SUM(total_tokens), SUM(truncated)
		 FROM chat_usage`, client)
	query += ` GROUP BY client, provider, model ORDER BY client, provider, model`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.UsageSummary
	for rows.Next() {
		var (
			s        models.UsageSummary
			provider string
		)
		if err := rows.Scan(&s.Client, &provider, &s.Model, &s.RequestCount, &s.TotalPrompt, &s.TotalCompletion, &s.TotalTokens, &s.Truncated); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.Provider = models.ProviderName(provider)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// withClient appends a client filter when client is set.
func withClient(query, client string) (string, []any) {
	if client == "" {
		return query, nil
	}
	return query + ` WHERE client = ?`, []any{client}
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}
