package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
	"github.com/nyumba-labs/nyumba-payments/internal/logging"
)

type sweepTransactionRepo interface {
	ListUnallocatedCompleted(ctx context.Context, tx *sql.Tx, tenantID uuid.UUID) ([]domain.Transaction, error)
}

// Reconciler is the idempotent sweep that matches unallocated completed
// payments and remaining credits to a tenant's open invoices. It runs after
// every allocation and on operator demand; invoking it redundantly is safe
// because it only moves money that has somewhere to go.
type Reconciler struct {
	db           *sql.DB
	engine       *AllocationEngine
	transactions sweepTransactionRepo
	invoices     allocInvoiceRepo
	allocations  allocAllocationRepo
	credits      allocCreditRepo
}

func NewReconciler(
	db *sql.DB,
	engine *AllocationEngine,
	transactions sweepTransactionRepo,
	invoices allocInvoiceRepo,
	allocations allocAllocationRepo,
	credits allocCreditRepo,
) *Reconciler {
	return &Reconciler{
		db:           db,
		engine:       engine,
		transactions: transactions,
		invoices:     invoices,
		allocations:  allocations,
		credits:      credits,
	}
}

// ReconcileTenant applies, oldest invoice first: unallocated completed
// payments, then available credit balances. A payment touched by the sweep
// is always fully consumed, the remainder becoming an overpayment credit.
func (r *Reconciler) ReconcileTenant(ctx context.Context, tenantID uuid.UUID) error {
	log := logging.FromContext(ctx)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ReconcileTenant: begin tx: %w", err)
	}
	defer tx.Rollback()

	invoices, err := r.invoices.ListOpenForUpdate(ctx, tx, tenantID)
	if err != nil {
		return fmt.Errorf("ReconcileTenant: %w", err)
	}

	payments, err := r.transactions.ListUnallocatedCompleted(ctx, tx, tenantID)
	if err != nil {
		return fmt.Errorf("ReconcileTenant: %w", err)
	}

	credits, err := r.credits.ListAvailableForUpdate(ctx, tx, tenantID)
	if err != nil {
		return fmt.Errorf("ReconcileTenant: %w", err)
	}

	remaining := make([]int64, len(payments))
	for i, p := range payments {
		remaining[i] = p.Amount
	}

	now := time.Now().UTC()
	var applied int64

	for i := range invoices {
		inv := &invoices[i]

		allocated, err := r.allocations.SumForInvoice(ctx, tx, inv.ID)
		if err != nil {
			return fmt.Errorf("ReconcileTenant: %w", err)
		}
		outstanding := inv.Amount - allocated
		if outstanding <= 0 {
			continue
		}

		for j := range payments {
			if outstanding == 0 || remaining[j] == 0 {
				continue
			}
			amount := min(remaining[j], outstanding)
			if err := r.engine.writeAllocation(ctx, tx, inv, &payments[j].ID, nil, amount, allocated, now); err != nil {
				return fmt.Errorf("ReconcileTenant: %w", err)
			}
			remaining[j] -= amount
			allocated += amount
			outstanding -= amount
			applied += amount
		}

		for j := range credits {
			if outstanding == 0 || credits[j].Balance == 0 {
				continue
			}
			amount := min(credits[j].Balance, outstanding)
			if err := r.engine.writeAllocation(ctx, tx, inv, nil, &credits[j].ID, amount, allocated, now); err != nil {
				return fmt.Errorf("ReconcileTenant: %w", err)
			}
			if err := r.credits.Consume(ctx, tx, credits[j].ID, credits[j].Balance-amount); err != nil {
				return fmt.Errorf("ReconcileTenant: %w", err)
			}
			credits[j].Balance -= amount
			allocated += amount
			outstanding -= amount
			applied += amount
		}
	}

	// A payment the sweep dipped into may not vanish: capture the leftover
	// as credit. Fully untouched payments stay unallocated for the next
	// invoice cycle.
	for j, p := range payments {
		if remaining[j] == 0 || remaining[j] == p.Amount {
			continue
		}
		credit := &domain.TenantCredit{
			ID:            uuid.New(),
			TenantID:      tenantID,
			LandlordID:    landlordOrNil(p.LandlordID),
			TransactionID: &payments[j].ID,
			Amount:        remaining[j],
			Balance:       remaining[j],
			Source:        domain.CreditSourceOverpayment,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := r.credits.Create(ctx, tx, credit); err != nil {
			return fmt.Errorf("ReconcileTenant: credit: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ReconcileTenant: commit: %w", err)
	}

	if applied > 0 {
		log.Info("reconciliation sweep applied funds", "tenant_id", tenantID, "amount", applied)
	}

	return nil
}

func landlordOrNil(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}
