package domain

import (
	"time"

	"github.com/google/uuid"
)

type CreditSource string

const (
	CreditSourceOverpayment CreditSource = "overpayment"
	CreditSourceRefund      CreditSource = "refund"
	CreditSourceAdjustment  CreditSource = "adjustment"
)

// TenantCredit is an append-only ledger row. Amount records how much credit
// was originally granted and never changes; Balance only decreases as the
// reconciliation sweep consumes it.
type TenantCredit struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	LandlordID    uuid.UUID
	TransactionID *uuid.UUID
	Amount        int64
	Balance       int64
	Source        CreditSource
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
