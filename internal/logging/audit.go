// Package logging provides audit logging that outputs Mangle-queryable facts.
// Audit logs are structured events that the symbolic collaborator can parse
// into predicates for declarative querying of the governance history.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// AUDIT EVENT TYPES - Maps to Mangle predicates
// =============================================================================

// AuditEventType defines the type of audit event (maps to a Mangle predicate).
type AuditEventType string

const (
	// Intention lifecycle events -> intention_event/6
	AuditIntentionPropose  AuditEventType = "intention_propose"
	AuditIntentionApprove  AuditEventType = "intention_approve"
	AuditIntentionReject   AuditEventType = "intention_reject"
	AuditIntentionExpire   AuditEventType = "intention_expire"
	AuditIntentionCancel   AuditEventType = "intention_cancel"
	AuditIntentionExecute  AuditEventType = "intention_execute"
	AuditIntentionComplete AuditEventType = "intention_complete"
	AuditIntentionFail     AuditEventType = "intention_fail"

	// Governance policy events -> policy_event/4
	AuditYoloEnable   AuditEventType = "yolo_enable"
	AuditYoloDisable  AuditEventType = "yolo_disable"
	AuditAutoApprove  AuditEventType = "auto_approve"
	AuditBulkApprove  AuditEventType = "bulk_approve"
	AuditPolicyReload AuditEventType = "policy_reload"

	// Bus events -> bus_event/5
	AuditMessageRouted     AuditEventType = "message_routed"
	AuditMessageSuppressed AuditEventType = "message_suppressed"
	AuditMessageFiltered   AuditEventType = "message_filtered"

	// Safety events -> safety_check/4
	AuditSafetyCheck AuditEventType = "safety_check"
	AuditSafetyBlock AuditEventType = "safety_block"
)

// =============================================================================
// AUDIT EVENT STRUCTURE
// =============================================================================

// AuditEvent represents a structured audit log entry that can be parsed to
// Mangle. Format: predicate(timestamp, ...args)
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"` // Unix milliseconds
	EventType  AuditEventType         `json:"event"`
	Category   string                 `json:"cat"`
	Subject    string                 `json:"subject"` // Intention/message/edge id
	Actor      string                 `json:"actor"`   // Who initiated (operator, auto-approval, neuron id)
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms"`
	Error      string                 `json:"error,omitempty"`
	Message    string                 `json:"msg"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	MangleFact string                 `json:"mangle"` // Pre-formatted Mangle fact
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

var (
	auditFile   *os.File
	auditMu     sync.Mutex
	auditLogger *AuditLogger
)

// AuditLogger handles structured audit logging with Mangle fact generation.
type AuditLogger struct {
	actor    string
	category Category
}

// InitAudit initializes the audit logging system.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil // Already initialized
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(logsDir, fmt.Sprintf("%s_audit.log", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file

	header := fmt.Sprintf("# Audit log started at %s\n# Format: Mangle-queryable structured events\n", time.Now().Format(time.RFC3339))
	auditFile.WriteString(header)

	return nil
}

// CloseAudit closes the audit log file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns the global audit logger.
func Audit() *AuditLogger {
	if auditLogger == nil {
		auditLogger = &AuditLogger{}
	}
	return auditLogger
}

// AuditWithActor creates an audit logger scoped to an actor
// (operator name, "auto-approval", a neuron id).
func AuditWithActor(actor string) *AuditLogger {
	return &AuditLogger{actor: actor}
}

// Log writes an audit event.
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() || auditFile == nil {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.Actor == "" && a.actor != "" {
		event.Actor = a.actor
	}
	if event.Category == "" && a.category != "" {
		event.Category = string(a.category)
	}

	event.MangleFact = generateMangleFact(event)

	auditMu.Lock()
	defer auditMu.Unlock()

	data, err := json.Marshal(event)
	if err == nil {
		auditFile.WriteString(string(data) + "\n")
	}
}

// generateMangleFact creates a Mangle-compatible fact string from an event.
func generateMangleFact(e AuditEvent) string {
	switch e.EventType {
	case AuditIntentionPropose, AuditIntentionApprove, AuditIntentionReject,
		AuditIntentionExpire, AuditIntentionCancel, AuditIntentionExecute,
		AuditIntentionComplete, AuditIntentionFail:
		return fmt.Sprintf("intention_event(%d, /%s, \"%s\", \"%s\", %v, %d).",
			e.Timestamp, e.EventType, e.Subject, escapeString(e.Actor), e.Success, e.DurationMs)

	case AuditYoloEnable, AuditYoloDisable, AuditAutoApprove, AuditBulkApprove, AuditPolicyReload:
		return fmt.Sprintf("policy_event(%d, /%s, \"%s\", %v).",
			e.Timestamp, e.EventType, escapeString(e.Actor), e.Success)

	case AuditMessageRouted, AuditMessageSuppressed, AuditMessageFiltered:
		return fmt.Sprintf("bus_event(%d, /%s, \"%s\", \"%s\", %v).",
			e.Timestamp, e.EventType, e.Subject, escapeString(e.Message), e.Success)

	case AuditSafetyCheck, AuditSafetyBlock:
		return fmt.Sprintf("safety_check(%d, \"%s\", %v, \"%s\").",
			e.Timestamp, e.Subject, e.Success, escapeString(e.Error))

	default:
		return fmt.Sprintf("audit_event(%d, /%s, \"%s\", %v).",
			e.Timestamp, e.EventType, e.Subject, e.Success)
	}
}

// escapeString makes a string safe for embedding in a Mangle fact.
func escapeString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// =============================================================================
// CONVENIENCE METHODS
// =============================================================================

// IntentionEvent records an intention lifecycle transition.
func (a *AuditLogger) IntentionEvent(event AuditEventType, intentionID, actor string, success bool, errMsg string) {
	a.Log(AuditEvent{
		EventType: event,
		Category:  string(CategoryGovernance),
		Subject:   intentionID,
		Actor:     actor,
		Success:   success,
		Error:     errMsg,
	})
}

// PolicyEvent records a governance policy change (YOLO toggle, bulk approval).
func (a *AuditLogger) PolicyEvent(event AuditEventType, actor, msg string) {
	a.Log(AuditEvent{
		EventType: event,
		Category:  string(CategoryGovernance),
		Actor:     actor,
		Success:   true,
		Message:   msg,
	})
}

// BusEvent records a routing decision worth auditing (suppression, filtering).
func (a *AuditLogger) BusEvent(event AuditEventType, messageID, detail string) {
	a.Log(AuditEvent{
		EventType: event,
		Category:  string(CategoryBus),
		Subject:   messageID,
		Success:   event == AuditMessageRouted,
		Message:   detail,
	})
}

// SafetyCheck records a validation gate outcome.
func (a *AuditLogger) SafetyCheck(intentionID string, allowed bool, reason string) {
	event := AuditSafetyCheck
	if !allowed {
		event = AuditSafetyBlock
	}
	a.Log(AuditEvent{
		EventType: event,
		Category:  string(CategoryGovernance),
		Subject:   intentionID,
		Success:   allowed,
		Error:     reason,
	})
}
