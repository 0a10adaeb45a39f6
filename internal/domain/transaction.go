package domain

import (
	"time"

	"github.com/google/uuid"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// IsTerminal reports whether no further transition is permitted.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed
}

// Transaction records one push-payment attempt. CorrelationID is generated
// locally before the provider call; ProviderRef is the provider-side
// identifier (e.g. an STK CheckoutRequestID) and may only arrive with the
// callback. Once the status leaves pending the row is write-once.
// LandlordID, TenantID and InvoiceID are nil on rows reconstructed from an
// orphan callback, where the initiating context is unknown.
type Transaction struct {
	ID            uuid.UUID
	Provider      Provider
	LandlordID    *uuid.UUID
	TenantID      *uuid.UUID
	InvoiceID     *uuid.UUID
	CorrelationID string
	ProviderRef   *string
	Phone         string
	Amount        int64
	Currency      string
	Status        TransactionStatus
	ResultCode    *string
	ResultDesc    *string
	Receipt       *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}
