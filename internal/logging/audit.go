// Audit logging: a JSONL trail of item mutations. Every create, delete, and
// denied delete gets one line, so the history of the catalog can be
// reconstructed even after rows are gone.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType defines the type of audit event.
type AuditEventType string

const (
	// Item mutations -> one line per state change
	AuditItemCreate       AuditEventType = "item_create"
	AuditItemDelete       AuditEventType = "item_delete"
	AuditItemDeleteDenied AuditEventType = "item_delete_denied"

	// Server lifecycle
	AuditServerStart AuditEventType = "server_start"
	AuditServerStop  AuditEventType = "server_stop"

	// Error events
	AuditError AuditEventType = "error"
)

// AuditEvent represents a structured audit log entry, written as one JSON line.
type AuditEvent struct {
	Timestamp int64          `json:"ts"`    // Unix milliseconds
	EventType AuditEventType `json:"event"` // What happened
	RequestID string         `json:"req,omitempty"`
	ItemID    int64          `json:"item,omitempty"`
	Name      string         `json:"name,omitempty"`
	AgeDays   float64        `json:"age_days,omitempty"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Message   string         `json:"msg"`
}

var (
	auditFile   *os.File
	auditMu     sync.Mutex
	auditLogger *AuditLogger
)

// AuditLogger writes structured audit events, optionally scoped to a request.
type AuditLogger struct {
	requestID string
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

	header := fmt.Sprintf("# Audit log started at %s\n", time.Now().Format(time.RFC3339))
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

// AuditWithRequest creates an audit logger scoped to a request.
func AuditWithRequest(requestID string) *AuditLogger {
	return &AuditLogger{requestID: requestID}
}

// Log writes an audit event.
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() || auditFile == nil {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.RequestID == "" && a.requestID != "" {
		event.RequestID = a.requestID
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	data, err := json.Marshal(event)
	if err == nil {
		auditFile.WriteString(string(data) + "\n")
	}
}

// ItemCreated logs a successful item creation.
func (a *AuditLogger) ItemCreated(id int64, name string) {
	a.Log(AuditEvent{
		EventType: AuditItemCreate,
		ItemID:    id,
		Name:      name,
		Success:   true,
		Message:   fmt.Sprintf("Item created: #%d %q", id, name),
	})
}

// ItemDeleted logs a successful item deletion.
func (a *AuditLogger) ItemDeleted(id int64, ageDays float64) {
	a.Log(AuditEvent{
		EventType: AuditItemDelete,
		ItemID:    id,
		AgeDays:   ageDays,
		Success:   true,
		Message:   fmt.Sprintf("Item deleted: #%d (%.2f days old)", id, ageDays),
	})
}

// ItemDeleteDenied logs a delete blocked by the age restriction.
func (a *AuditLogger) ItemDeleteDenied(id int64, ageDays float64) {
	a.Log(AuditEvent{
		EventType: AuditItemDeleteDenied,
		ItemID:    id,
		AgeDays:   ageDays,
		Success:   false,
		Message:   fmt.Sprintf("Delete denied: #%d too new (%.2f days old)", id, ageDays),
	})
}

// ServerStart logs the server coming up.
func (a *AuditLogger) ServerStart(addr string) {
	a.Log(AuditEvent{
		EventType: AuditServerStart,
		Success:   true,
		Message:   fmt.Sprintf("Server listening on %s", addr),
	})
}

// ServerStop logs the server going down.
func (a *AuditLogger) ServerStop() {
	a.Log(AuditEvent{
		EventType: AuditServerStop,
		Success:   true,
		Message:   "Server stopped",
	})
}

// OpError logs a failed store or handler operation.
func (a *AuditLogger) OpError(op string, err error) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	a.Log(AuditEvent{
		EventType: AuditError,
		Success:   false,
		Error:     errMsg,
		Message:   fmt.Sprintf("Error in %s: %s", op, errMsg),
	})
}
