package audit

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

// setupTestLogger creates a test logger with an observer to capture log entries.
func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, recorded := observer.New(zapcore.DebugLevel)
	return zap.New(core), recorded
}

var testActor = models.Actor{ActorID: "user-123", RoleID: "analyst"}

func TestCheckForInjection(t *testing.T) {
	assert.Nil(t, CheckForInjection(""))
	assert.Nil(t, CheckForInjection("show me monthly revenue by region for 2023"))

	result := CheckForInjection("1' OR '1'='1")
	require.NotNil(t, result)
	assert.True(t, result.IsSQLi)
	assert.NotEmpty(t, result.Fingerprint)
}

func TestScreenNaturalLanguage_Clean(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	flagged := auditor.ScreenNaturalLanguage(testActor, uuid.New(), "which products sold best last quarter?")

	assert.False(t, flagged)
	assert.Equal(t, 0, recorded.Len())
}

func TestScreenNaturalLanguage_Suspicious(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)
	sourceID := uuid.New()

	flagged := auditor.ScreenNaturalLanguage(testActor, sourceID, "1' OR '1'='1")
	require.True(t, flagged)

	entries := recorded.All()
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "security_audit", entry.LoggerName)

	fields := entry.ContextMap()
	assert.Equal(t, "user-123", fields["actor_id"])
	assert.Equal(t, sourceID.String(), fields["source_id"])

	var event SecurityEvent
	require.NoError(t, json.Unmarshal([]byte(fields["event_json"].(string)), &event))
	assert.Equal(t, EventNLInjectionSuspected, event.EventType)
	assert.Equal(t, "analyst", event.RoleID)
	assert.Equal(t, "warning", event.Severity)
}

func TestLogSourceRegistered(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	NewSecurityAuditor(logger).LogSourceRegistered(testActor, uuid.New(), models.DialectMySQL)

	entries := recorded.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "mysql", entries[0].ContextMap()["dialect"])
}

func TestLogQueryExecution(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	queryID := uuid.New()
	NewSecurityAuditor(logger).LogQueryExecution(testActor, uuid.New(), queryID, true)

	entries := recorded.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, queryID.String(), fields["query_id"])
	assert.Equal(t, true, fields["failed"])
}
