package audit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devagent-ai/devagent/pkg/models"
)

func tempCfg(t *testing.T) models.AuditConfig {
	t.Helper()
	return models.AuditConfig{
		Enabled:       true,
		DBPath:        filepath.Join(t.TempDir(), "audit_test.db"),
		RetentionDays: 90,
		MaxBodySize:   1024,
		Include:       []string{IncludePrompts, IncludeResponses, IncludeMetadata},
	}
}

func mustNew(t *testing.T, cfg models.AuditConfig) *Logger {
	t.Helper()
	l, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func sampleEntry() models.AuditEntry {
	hash, prefix := HashClient("10.0.0.1")
	return models.AuditEntry{
		RequestID:        "req-001",
		ClientHash:       hash,
		ClientPrefix:     prefix,
		Model:            "llama-3.1-8b-instant",
		Provider:         models.ProviderGroq,
		SessionID:        "sess-1",
		RequestBody:      `{"messages":[{"role":"user","content":"hi"}]}`,
		ResponseBody:     `{"content":"hello"}`,
		RequestHeaders:   map[string]string{"Content-Type": "application/json"},
		StatusCode:       200,
		PromptTokens:     10,
		CompletionTokens: 20,
		TotalTokens:      30,
		LatencyMs:        150,
		CreatedAt:        time.Now(),
	}
}

func TestLogAndQuery(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	require.NoError(t, l.Log(ctx, sampleEntry()))

	entries, err := l.Query(ctx, models.AuditQueryOpts{Model: "llama-3.1-8b-instant"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "req-001", entries[0].RequestID)
	assert.Equal(t, models.ProviderGroq, entries[0].Provider)
	assert.Equal(t, "application/json", entries[0].RequestHeaders["Content-Type"])
	assert.Equal(t, 30, entries[0].TotalTokens)
}

func TestQueryFilters(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	require.NoError(t, l.Log(ctx, sampleEntry()))

	failed := sampleEntry()
	failed.RequestID = "req-002"
	failed.Model = "gemma-7b-it"
	failed.Provider = models.ProviderOpenRouter
	failed.StatusCode = 500
	failed.Error = "All LLM providers failed"
	require.NoError(t, l.Log(ctx, failed))

	byID, err := l.Query(ctx, models.AuditQueryOpts{RequestID: "req-001"})
	require.NoError(t, err)
	assert.Len(t, byID, 1)

	byProvider, err := l.Query(ctx, models.AuditQueryOpts{Provider: models.ProviderOpenRouter})
	require.NoError(t, err)
	require.Len(t, byProvider, 1)
	assert.Equal(t, "req-002", byProvider[0].RequestID)

	failures, err := l.Query(ctx, models.AuditQueryOpts{FailedOnly: true})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "All LLM providers failed", failures[0].Error)

	_, prefix := HashClient("10.0.0.1")
	byClient, err := l.Query(ctx, models.AuditQueryOpts{ClientPrefix: prefix})
	require.NoError(t, err)
	assert.Len(t, byClient, 2)

	limited, err := l.Query(ctx, models.AuditQueryOpts{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestLogAssignsRequestID(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	e := sampleEntry()
	e.RequestID = ""
	require.NoError(t, l.Log(ctx, e))

	entries, err := l.Query(ctx, models.AuditQueryOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	_, err = uuid.Parse(entries[0].RequestID)
	assert.NoError(t, err)
}

func TestExcludeModels(t *testing.T) {
	cfg := tempCfg(t)
	cfg.ExcludeModels = []string{"llama-3.1-8b-instant"}
	l := mustNew(t, cfg)
	ctx := context.Background()

	require.NoError(t, l.Log(ctx, sampleEntry()))

	entries, err := l.Query(ctx, models.AuditQueryOpts{})
	require.NoError(t, err)
	assert.Empty(t, entries, "excluded model should not be logged")
}

func TestBodyTruncation(t *testing.T) {
	cfg := tempCfg(t)
	cfg.MaxBodySize = 16
	l := mustNew(t, cfg)
	ctx := context.Background()

	entry := sampleEntry()
	entry.RequestBody = strings.Repeat("x", 100)
	require.NoError(t, l.Log(ctx, entry))

	entries, err := l.Query(ctx, models.AuditQueryOpts{RequestID: "req-001"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].RequestBody, 16)
}

func TestIncludeFiltering(t *testing.T) {
	cfg := tempCfg(t)
	cfg.Include = []string{IncludeMetadata}
	l := mustNew(t, cfg)
	ctx := context.Background()

	require.NoError(t, l.Log(ctx, sampleEntry()))

	entries, err := l.Query(ctx, models.AuditQueryOpts{RequestID: "req-001"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].RequestBody)
	assert.Empty(t, entries[0].ResponseBody)
	assert.NotEmpty(t, entries[0].RequestHeaders)
}

func TestCleanup(t *testing.T) {
	cfg := tempCfg(t)
	cfg.RetentionDays = 0
	l := mustNew(t, cfg)
	ctx := context.Background()

	entry := sampleEntry()
	entry.CreatedAt = time.Now().AddDate(0, 0, -1)
	require.NoError(t, l.Log(ctx, entry))

	deleted, err := l.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestStats(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	require.NoError(t, l.Log(ctx, sampleEntry()))
	e2 := sampleEntry()
	e2.RequestID = "req-002"
	e2.StatusCode = 500
	require.NoError(t, l.Log(ctx, e2))

	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, stats)
	assert.Equal(t, 2, stats[0].Count)
	assert.Equal(t, 1, stats[0].Failures)
	assert.Len(t, stats[0].Day, 10)
}

func TestHashClient(t *testing.T) {
	hash, prefix := HashClient("192.168.1.20")
	assert.Len(t, hash, 64)
	assert.Equal(t, hash[:8], prefix)

	other, _ := HashClient("192.168.1.21")
	assert.NotEqual(t, hash, other)
}

func TestNilLoggerSafe(t *testing.T) {
	var l *Logger
	assert.NoError(t, l.Log(context.Background(), sampleEntry()))
}

func TestNewInvalidPath(t *testing.T) {
	cfg := models.AuditConfig{
		Enabled: true,
		DBPath:  filepath.Join(os.TempDir(), "nonexistent", "deep", "path", "audit.db"),
		Include: []string{IncludePrompts},
	}
	_, err := New(cfg)
	assert.Error(t, err)
}
