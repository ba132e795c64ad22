// Package audit records chat requests and their outcomes in a dedicated
// SQLite database, with periodic retention cleanup.
package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/devagent-ai/devagent/pkg/models"
)

// Include flags accepted in AuditConfig.Include.
const (
	IncludePrompts   = "prompts"
	IncludeResponses = "responses"
	IncludeMetadata  = "metadata"
)

const defaultQueryLimit = 100

// Logger writes and queries audit entries in a dedicated SQLite database.
type Logger struct {
	db      *sql.DB
	cfg     models.AuditConfig
	done    chan struct{}
	wg      sync.WaitGroup
	include map[string]bool
	exclude map[string]bool
}

// New opens the audit SQLite database, creates the schema and starts the
// hourly retention loop.
func New(cfg models.AuditConfig) (*Logger, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	inc := make(map[string]bool)
	for _, v := range cfg.Include {
		inc[v] = true
	}
	exc := make(map[string]bool)
	for _, v := range cfg.ExcludeModels {
		exc[v] = true
	}

	l := &Logger{
		db:      db,
		cfg:     cfg,
		done:    make(chan struct{}),
		include: inc,
		exclude: exc,
	}

	l.wg.Add(1)
	go l.retentionLoop()

	return l, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_audit (
			request_id        TEXT PRIMARY KEY,
			client_hash       TEXT NOT NULL,
			client_prefix     TEXT NOT NULL,
			model             TEXT NOT NULL,
			provider          TEXT,
			session_id        TEXT,
			request_body      TEXT,
			response_body     TEXT,
			request_headers   TEXT,
			status_code       INTEGER NOT NULL,
			error             TEXT,
			prompt_tokens     INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens      INTEGER NOT NULL DEFAULT 0,
			latency_ms        INTEGER NOT NULL DEFAULT 0,
			created_at        DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_audit_model ON chat_audit(model)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_audit_created ON chat_audit(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_audit_prefix ON chat_audit(client_prefix)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// NewRequestID returns a fresh identifier for a chat request.
func NewRequestID() string {
	return uuid.NewString()
}

// Log inserts an audit entry, respecting include/exclude configuration.
// A nil Logger discards entries.
func (l *Logger) Log(ctx context.Context, entry models.AuditEntry) error {
	if l == nil || l.db == nil {
		return nil
	}
	if l.exclude[entry.Model] {
		return nil
	}
	if entry.RequestID == "" {
		entry.RequestID = NewRequestID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	reqBody := entry.RequestBody
	respBody := entry.ResponseBody
	var headersJSON string

	if !l.include[IncludePrompts] {
		reqBody = ""
	}
	if !l.include[IncludeResponses] {
		respBody = ""
	}
	if l.include[IncludeMetadata] && entry.RequestHeaders != nil {
		b, _ := json.Marshal(entry.RequestHeaders)
		headersJSON = string(b)
	}

	if l.cfg.MaxBodySize > 0 {
		if len(reqBody) > l.cfg.MaxBodySize {
			reqBody = reqBody[:l.cfg.MaxBodySize]
		}
		if len(respBody) > l.cfg.MaxBodySize {
			respBody = respBody[:l.cfg.MaxBodySize]
		}
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO chat_audit
		(request_id, client_hash, client_prefix, model, provider, session_id,
		 request_body, response_body, request_headers, status_code, error,
		 prompt_tokens, completion_tokens, total_tokens, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID, entry.ClientHash, entry.ClientPrefix,
		entry.Model, string(entry.Provider), entry.SessionID,
		reqBody, respBody, headersJSON, entry.StatusCode, entry.Error,
		entry.PromptTokens, entry.CompletionTokens, entry.TotalTokens,
		entry.LatencyMs, entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("audit log: %w", err)
	}
	return nil
}

// Query returns audit entries matching the given options, newest first.
func (l *Logger) Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error) {
	q := `SELECT request_id, client_hash, client_prefix, model, provider, session_id,
		request_body, response_body, request_headers, status_code, error,
		prompt_tokens, completion_tokens, total_tokens, latency_ms, created_at
		FROM chat_audit WHERE 1=1`
	var args []any

	if opts.RequestID != "" {
		q += " AND request_id = ?"
		args = append(args, opts.RequestID)
	}
	if opts.Model != "" {
		q += " AND model = ?"
		args = append(args, opts.Model)
	}
	if opts.Provider != "" {
		q += " AND provider = ?"
		args = append(args, string(opts.Provider))
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since.UTC())
	}
	if opts.ClientPrefix != "" {
		q += " AND client_prefix = ?"
		args = append(args, opts.ClientPrefix)
	}
	if opts.SessionID != "" {
		q += " AND session_id = ?"
		args = append(args, opts.SessionID)
	}
	if opts.FailedOnly {
		q += " AND status_code >= 400"
	}

	q += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var provider, sessionID, reqBody, respBody, headers, errMsg sql.NullString
		if err := rows.Scan(
			&e.RequestID, &e.ClientHash, &e.ClientPrefix, &e.Model,
			&provider, &sessionID,
			&reqBody, &respBody, &headers, &e.StatusCode, &errMsg,
			&e.PromptTokens, &e.CompletionTokens, &e.TotalTokens,
			&e.LatencyMs, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.Provider = models.ProviderName(provider.String)
		e.SessionID = sessionID.String
		e.RequestBody = reqBody.String
		e.ResponseBody = respBody.String
		e.Error = errMsg.String
		if headers.Valid && headers.String != "" {
			_ = json.Unmarshal([]byte(headers.String), &e.RequestHeaders)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns aggregate counts grouped by model and day.
func (l *Logger) Stats(ctx context.Context) ([]models.AuditStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT model, substr(created_at, 1, 10) AS day, COUNT(*),
		        SUM(CASE WHEN status_code >= 400 THEN 1 ELSE 0 END)
		 FROM chat_audit GROUP BY model, day ORDER BY day DESC, model`)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()

	var stats []models.AuditStat
	for rows.Next() {
		var s models.AuditStat
		var day sql.NullString
		if err := rows.Scan(&s.Model, &day, &s.Count, &s.Failures); err != nil {
			return nil, fmt.Errorf("scan audit stat: %w", err)
		}
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes entries older than the configured retention period.
// A retention of zero or less keeps nothing older than now.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -l.cfg.RetentionDays)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM chat_audit WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Logger) Close() error {
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

func (l *Logger) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			_, _ = l.Cleanup(context.Background())
		}
	}
}

// HashClient returns the SHA-256 hex hash of a client address and the
// 8-character hash prefix used to search for it without storing the address.
func HashClient(addr string) (hash, prefix string) {
	h := sha256.Sum256([]byte(addr))
	hash = hex.EncodeToString(h[:])
	return hash, hash[:8]
}
