// Package audit provides security audit logging for SIEM consumption.
// It logs security-relevant events in structured JSON format for easy parsing
// and integration with security information and event management systems.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/logging"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventNLInjectionSuspected is logged when a natural-language question looks like SQL injection.
	EventNLInjectionSuspected SecurityEventType = "nl_injection_suspected"
	// EventSourceRegistered is logged when an actor registers or replaces an external source.
	EventSourceRegistered SecurityEventType = "source_registered"
	// EventQueryExecution is logged when a stored query runs against an external source.
	EventQueryExecution SecurityEventType = "query_execution"
)

// maxLoggedInput bounds user text copied into audit events.
const maxLoggedInput = 200

// SecurityEvent represents an auditable security event with all relevant context
// for SIEM ingestion and analysis.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	ActorID   string            `json:"actor_id"`
	RoleID    string            `json:"role_id"`
	SourceID  uuid.UUID         `json:"source_id"`
	QueryID   uuid.UUID         `json:"query_id,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// InjectionDetails contains specifics of a suspicious natural-language input.
type InjectionDetails struct {
	Input       string `json:"input"`
	Fingerprint string `json:"fingerprint"`
}

// Auditor is the audit surface used by services.
type Auditor interface {
	// ScreenNaturalLanguage logs text that libinjection flags and reports whether it was flagged.
	// Flagged text is not blocked.
	ScreenNaturalLanguage(actor models.Actor, sourceID uuid.UUID, text string) bool
	LogSourceRegistered(actor models.Actor, sourceID uuid.UUID, dialect models.Dialect)
	LogQueryExecution(actor models.Actor, sourceID, queryID uuid.UUID, failed bool)
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
}

var _ Auditor = (*SecurityAuditor)(nil)

// NewSecurityAuditor creates a new security auditor logging under the
// "security_audit" namespace, for filtering in SIEM systems.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// ScreenNaturalLanguage logs a warning when text looks like SQL injection.
// It reports whether anything was detected; callers never block on it.
func (a *SecurityAuditor) ScreenNaturalLanguage(actor models.Actor, sourceID uuid.UUID, text string) bool {
	result := CheckForInjection(text)
	if result == nil {
		return false
	}

	details := InjectionDetails{
		Input:       logging.TruncateString(text, maxLoggedInput),
		Fingerprint: result.Fingerprint,
	}
	event := a.event(EventNLInjectionSuspected, actor, sourceID, uuid.Nil, details, "warning")

	a.logger.Warn("Suspicious natural-language query",
		zap.String("event_json", event),
		zap.String("actor_id", actor.ActorID),
		zap.String("source_id", sourceID.String()),
		zap.String("fingerprint", result.Fingerprint),
		zap.String("severity", "warning"),
	)
	return true
}

// LogSourceRegistered records a successful source registration.
func (a *SecurityAuditor) LogSourceRegistered(actor models.Actor, sourceID uuid.UUID, dialect models.Dialect) {
	event := a.event(EventSourceRegistered, actor, sourceID, uuid.Nil,
		map[string]string{"dialect": string(dialect)}, "info")

	a.logger.Info("External source registered",
		zap.String("event_json", event),
		zap.String("actor_id", actor.ActorID),
		zap.String("role_id", actor.RoleID),
		zap.String("source_id", sourceID.String()),
		zap.String("dialect", string(dialect)),
	)
}

// LogQueryExecution is logged at INFO and can be high volume.
func (a *SecurityAuditor) LogQueryExecution(actor models.Actor, sourceID, queryID uuid.UUID, failed bool) {
	event := a.event(EventQueryExecution, actor, sourceID, queryID,
		map[string]bool{"failed": failed}, "info")

	a.logger.Info("Query executed",
		zap.String("event_json", event),
		zap.String("actor_id", actor.ActorID),
		zap.String("source_id", sourceID.String()),
		zap.String("query_id", queryID.String()),
		zap.Bool("failed", failed),
	)
}

func (a *SecurityAuditor) event(eventType SecurityEventType, actor models.Actor, sourceID, queryID uuid.UUID, details any, severity string) string {
	// Marshaling known types cannot fail.
	eventJSON, _ := json.Marshal(SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		ActorID:   actor.ActorID,
		RoleID:    actor.RoleID,
		SourceID:  sourceID,
		QueryID:   queryID,
		Details:   details,
		Severity:  severity,
	})
	return string(eventJSON)
}
