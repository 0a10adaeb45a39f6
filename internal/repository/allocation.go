package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
)

type AllocationRepository struct {
	db *sql.DB
}

func NewAllocationRepository(db *sql.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

func (r *AllocationRepository) Create(ctx context.Context, tx *sql.Tx, a *domain.PaymentAllocation) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payment_allocations (id, transaction_id, credit_id, invoice_id, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.TransactionID, a.CreditID, a.InvoiceID, a.Amount, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// SumForInvoice totals existing allocations against an invoice. Callers hold
// the invoice row lock, so the sum cannot move under them.
func (r *AllocationRepository) SumForInvoice(ctx context.Context, tx *sql.Tx, invoiceID uuid.UUID) (int64, error) {
	var total int64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payment_allocations WHERE invoice_id = $1`,
		invoiceID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("SumForInvoice: %w", err)
	}
	return total, nil
}

func (r *AllocationRepository) SumForTransaction(ctx context.Context, tx *sql.Tx, transactionID uuid.UUID) (int64, error) {
	var total int64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payment_allocations WHERE transaction_id = $1`,
		transactionID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("SumForTransaction: %w", err)
	}
	return total, nil
}

func (r *AllocationRepository) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]domain.PaymentAllocation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, transaction_id, credit_id, invoice_id, amount, created_at
		FROM payment_allocations WHERE invoice_id = $1 ORDER BY created_at`,
		invoiceID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByInvoice: %w", err)
	}
	defer rows.Close()

	var allocations []domain.PaymentAllocation
	for rows.Next() {
		var a domain.PaymentAllocation
		var transactionID, creditID uuid.NullUUID
		if err := rows.Scan(&a.ID, &transactionID, &creditID, &a.InvoiceID, &a.Amount, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListByInvoice: scan: %w", err)
		}
		if transactionID.Valid {
			a.TransactionID = &transactionID.UUID
		}
		if creditID.Valid {
			a.CreditID = &creditID.UUID
		}
		allocations = append(allocations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByInvoice: rows: %w", err)
	}
	return allocations, nil
}
