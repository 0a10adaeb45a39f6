package domain

import (
	"time"

	"github.com/google/uuid"
)

type InvoiceStatus string

const (
	InvoiceStatusPending       InvoiceStatus = "pending"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partially_paid"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusOverdue       InvoiceStatus = "overdue"
)

// Invoice lifecycle is owned by the CRUD layer; this core only reads it and
// derives status from the allocation sum.
type Invoice struct {
	ID         uuid.UUID
	LeaseID    uuid.UUID
	TenantID   uuid.UUID
	LandlordID uuid.UUID
	Amount     int64
	Status     InvoiceStatus
	DueDate    time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DeriveInvoiceStatus maps the allocation sum onto the invoice status.
// Statuses other than paid/partially_paid (pending, overdue) are left to the
// CRUD layer, so a zero allocation sum keeps the current status.
func DeriveInvoiceStatus(current InvoiceStatus, allocated, amount int64) InvoiceStatus {
	switch {
	case allocated >= amount && amount > 0:
		return InvoiceStatusPaid
	case allocated > 0:
		return InvoiceStatusPartiallyPaid
	default:
		return current
	}
}
