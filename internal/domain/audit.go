package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditKind string

const (
	AuditKindSecurityRejection AuditKind = "security_rejection"
	AuditKindAmountMismatch    AuditKind = "amount_mismatch"
	AuditKindOrphanCallback    AuditKind = "orphan_callback"
	AuditKindMalformedCallback AuditKind = "malformed_callback"
	AuditKindAllocationFailure AuditKind = "allocation_failure"
)

// AuditEvent is the durable record of everything the webhook contract forces
// the ingress path to swallow. Operators query this table instead of grepping
// logs.
type AuditEvent struct {
	ID            uuid.UUID
	Kind          AuditKind
	Provider      Provider
	CorrelationID string
	SourceAddr    string
	Detail        json.RawMessage
	CreatedAt     time.Time
}
