package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditAction is the closed set of audited actions.
type AuditAction string

const (
	AuditActionCreate    AuditAction = "CREATE"
	AuditActionRead      AuditAction = "READ"
	AuditActionUpdate    AuditAction = "UPDATE"
	AuditActionDelete    AuditAction = "DELETE"
	AuditActionPHIAccess AuditAction = "PHI_ACCESS"
	AuditActionLogin     AuditAction = "LOGIN"
)

// SecurityLevel classifies an audit entry for compliance reporting.
type SecurityLevel string

const (
	SecurityLevelStandard     SecurityLevel = "standard"
	SecurityLevelPHIProtected SecurityLevel = "phi-protected"
	SecurityLevelAdmin        SecurityLevel = "admin"
)

// RetentionPeriod is how long audit entries must be kept before they may be
// removed by the retention sweep.
const RetentionPeriodYears = 7

// RequestMeta carries request/response metadata alongside an audit entry.
type RequestMeta struct {
	Method        string `json:"method,omitempty"`
	Path          string `json:"path,omitempty"`
	Status        int    `json:"status,omitempty"`
	LatencyMillis int64  `json:"latency_ms,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	ClientIP      string `json:"client_ip,omitempty"`
}

func (m RequestMeta) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *RequestMeta) Scan(src interface{}) error {
	if src == nil {
		*m = RequestMeta{}
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("cannot scan %T into RequestMeta", src)
	}
}

// AuditLogEntry is one immutable access record. Once written it is never
// mutated, and never deleted before RetentionExpiresAt.
type AuditLogEntry struct {
	ID             uuid.UUID    `json:"id" db:"id"`
	ActorID        *uuid.UUID   `json:"actor_id,omitempty" db:"actor_id"`
	OrganizationID uuid.UUID    `json:"organization_id" db:"organization_id"`
	Action         AuditAction  `json:"action" db:"action"`
	ResourceType   ResourceType `json:"resource_type" db:"resource_type"`
	ResourceID     *uuid.UUID   `json:"resource_id,omitempty" db:"resource_id"`

	FieldsAccessed StringList `json:"fields_accessed" db:"fields_accessed"`
	PHIFieldCount  int        `json:"phi_field_count" db:"phi_field_count"`

	SecurityLevel SecurityLevel `json:"security_level" db:"security_level"`
	RiskScore     int           `json:"risk_score" db:"risk_score"`
	Compliant     bool          `json:"compliant" db:"compliant"`
	Success       bool          `json:"success" db:"success"`
	DenialReason  string        `json:"denial_reason,omitempty" db:"denial_reason"`

	RequestMeta RequestMeta `json:"request_meta" db:"request_meta"`

	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	RetentionExpiresAt time.Time `json:"retention_expires_at" db:"retention_expires_at"`
}
