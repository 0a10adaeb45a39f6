package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentAllocation applies money to an invoice. The source is either a
// completed transaction or a tenant credit being consumed by the
// reconciliation sweep; exactly one of TransactionID/CreditID is set. Rows
// are immutable; corrections happen through new allocations or credits.
type PaymentAllocation struct {
	ID            uuid.UUID
	TransactionID *uuid.UUID
	CreditID      *uuid.UUID
	InvoiceID     uuid.UUID
	Amount        int64
	CreatedAt     time.Time
}
