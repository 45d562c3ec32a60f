package models

import "time"

// AuditEvent - запись журнала аудита
type AuditEvent struct {
	ID        int64                  `json:"id" db:"id"`
	Kind      string                 `json:"kind" db:"kind"`
	Severity  string                 `json:"severity" db:"severity"`
	UserID    *int64                 `json:"user_id,omitempty" db:"user_id"`
	Exchange  string                 `json:"exchange,omitempty" db:"exchange"`
	Message   string                 `json:"message" db:"message"`
	Meta      map[string]interface{} `json:"meta,omitempty" db:"meta"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
}

// Виды событий аудита
const (
	AuditTradeAttempt        = "trade_attempt"
	AuditSyncError           = "sync_error"
	AuditCredentialMigration = "credential_migration"
	AuditCredentialSaved     = "credential_saved"
	AuditCredentialDeleted   = "credential_deleted"
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)
