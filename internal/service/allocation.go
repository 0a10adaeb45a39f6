package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
)

type allocInvoiceRepo interface {
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Invoice, error)
	ListOpenForUpdate(ctx context.Context, tx *sql.Tx, tenantID uuid.UUID) ([]domain.Invoice, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.InvoiceStatus) error
}

type allocAllocationRepo interface {
	Create(ctx context.Context, tx *sql.Tx, a *domain.PaymentAllocation) error
	SumForInvoice(ctx context.Context, tx *sql.Tx, invoiceID uuid.UUID) (int64, error)
}

type allocCreditRepo interface {
	Create(ctx context.Context, tx *sql.Tx, c *domain.TenantCredit) error
	ListAvailableForUpdate(ctx context.Context, tx *sql.Tx, tenantID uuid.UUID) ([]domain.TenantCredit, error)
	Consume(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance int64) error
}

// AllocationEngine applies confirmed payments to invoices: waterfall first
// against the target invoice's outstanding balance, remainder to tenant
// credit. All methods run inside a caller-owned transaction that holds the
// relevant invoice row locks.
type AllocationEngine struct {
	invoices    allocInvoiceRepo
	allocations allocAllocationRepo
	credits     allocCreditRepo
}

func NewAllocationEngine(invoices allocInvoiceRepo, allocations allocAllocationRepo, credits allocCreditRepo) *AllocationEngine {
	return &AllocationEngine{invoices: invoices, allocations: allocations, credits: credits}
}

// Allocate runs the waterfall for one completed transaction. With no target
// invoice the payment is left for the reconciliation sweep. The invoice row
// lock serializes concurrent completions against the same invoice, keeping
// the allocation sum within the invoice amount.
func (e *AllocationEngine) Allocate(ctx context.Context, tx *sql.Tx, txn *domain.Transaction) error {
	if txn.InvoiceID == nil {
		return nil
	}

	inv, err := e.invoices.GetForUpdate(ctx, tx, *txn.InvoiceID)
	if err != nil {
		return fmt.Errorf("Allocate: %w", err)
	}

	allocated, err := e.allocations.SumForInvoice(ctx, tx, inv.ID)
	if err != nil {
		return fmt.Errorf("Allocate: %w", err)
	}

	outstanding := inv.Amount - allocated
	if outstanding < 0 {
		outstanding = 0
	}

	allocAmount := min(txn.Amount, outstanding)
	overpayment := txn.Amount - allocAmount
	now := time.Now().UTC()

	if allocAmount > 0 {
		if err := e.writeAllocation(ctx, tx, inv, &txn.ID, nil, allocAmount, allocated, now); err != nil {
			return fmt.Errorf("Allocate: %w", err)
		}
	}

	// The remainder becomes credit in the same transaction; a partially
	// allocated payment never commits without its remainder captured.
	if overpayment > 0 {
		credit := &domain.TenantCredit{
			ID:            uuid.New(),
			TenantID:      inv.TenantID,
			LandlordID:    inv.LandlordID,
			TransactionID: &txn.ID,
			Amount:        overpayment,
			Balance:       overpayment,
			Source:        domain.CreditSourceOverpayment,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := e.credits.Create(ctx, tx, credit); err != nil {
			return fmt.Errorf("Allocate: credit: %w", err)
		}
	}

	return nil
}

// writeAllocation inserts one allocation row and re-derives the invoice
// status from the new allocation sum. priorSum is the sum before this row.
func (e *AllocationEngine) writeAllocation(ctx context.Context, tx *sql.Tx, inv *domain.Invoice, transactionID, creditID *uuid.UUID, amount, priorSum int64, now time.Time) error {
	a := &domain.PaymentAllocation{
		ID:            uuid.New(),
		TransactionID: transactionID,
		CreditID:      creditID,
		InvoiceID:     inv.ID,
		Amount:        amount,
		CreatedAt:     now,
	}
	if err := e.allocations.Create(ctx, tx, a); err != nil {
		return fmt.Errorf("writeAllocation: %w", err)
	}

	status := domain.DeriveInvoiceStatus(inv.Status, priorSum+amount, inv.Amount)
	if status != inv.Status {
		if err := e.invoices.UpdateStatus(ctx, tx, inv.ID, status); err != nil {
			return fmt.Errorf("writeAllocation: %w", err)
		}
		inv.Status = status
	}

	return nil
}
