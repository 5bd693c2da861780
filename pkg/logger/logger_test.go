package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestNew_FansOutToAuditFile(t *testing.T) {
	var stdout bytes.Buffer
	path := filepath.Join(t.TempDir(), "audit.log")

	log, closer, err := New(Options{Level: "info", AuditFile: path, Stdout: &stdout})
	require.NoError(t, err)

	log.Info("hello", slog.String("k", "v"))
	require.NoError(t, closer.Close())

	fileBytes, err := os.ReadFile(path)
	require.NoError(t, err)

	for _, raw := range [][]byte{stdout.Bytes(), fileBytes} {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(raw), &rec))
		assert.Equal(t, "hello", rec["msg"])
		assert.Equal(t, "v", rec["k"])
	}
}

func TestNew_LevelFiltersStdout(t *testing.T) {
	var stdout bytes.Buffer
	log, _, err := New(Options{Level: "warn", Stdout: &stdout})
	require.NoError(t, err)

	log.Info("dropped")
	assert.Zero(t, stdout.Len())
}

func TestAuditLogger_MasksEmailIdentifier(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)), "development")

	al.Log(context.Background(), AuditEvent{
		EventType:  EventLogin,
		Identifier: "alice@example.com",
		IPAddress:  "203.0.113.7",
		UserAgent:  "curl/8.5.0",
		Success:    false,
	})

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "a****@*******.com", rec["identifier"])
	assert.Equal(t, "login", rec["event_type"])
	assert.Equal(t, "curl/8.5.0", rec["user_agent"])
}

func TestAuditLogger_RedactsUserAgentInProduction(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)), "production")

	al.Log(context.Background(), AuditEvent{
		EventType: EventLogout,
		UserID:    7,
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64)",
		Success:   true,
	})

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "[REDACTED]", rec["user_agent"])
	assert.Equal(t, "7", rec["user_id"])
}

func TestSanitizedIdentifier(t *testing.T) {
	assert.Equal(t, "alice", SanitizedIdentifier("alice"))
	assert.Equal(t, "b**@*.io", SanitizedIdentifier("bob@x.io"))
}

func TestTokenPrefix(t *testing.T) {
	assert.Equal(t, "abcdef01…", TokenPrefix("abcdef0123456789"))
	assert.Equal(t, "****", TokenPrefix("abcd"))
}

func TestNilAuditLoggerIsSafe(t *testing.T) {
	var al *AuditLogger
	al.Log(context.Background(), AuditEvent{EventType: EventLogout})
}
