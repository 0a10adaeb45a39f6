package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
)

const transactionColumns = `id, provider, landlord_id, tenant_id, invoice_id,
	correlation_id, provider_ref, phone, amount, currency, status,
	result_code, result_desc, receipt, created_at, updated_at, completed_at`

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, txn *domain.Transaction) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (
			id, provider, landlord_id, tenant_id, invoice_id,
			correlation_id, provider_ref, phone, amount, currency, status,
			result_code, result_desc, receipt, created_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		txn.ID, txn.Provider, txn.LandlordID, txn.TenantID, txn.InvoiceID,
		txn.CorrelationID, txn.ProviderRef, txn.Phone, txn.Amount, txn.Currency, txn.Status,
		txn.ResultCode, txn.ResultDesc, txn.Receipt, txn.CreatedAt, txn.UpdatedAt, txn.CompletedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateTransaction)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return t, nil
}

// FindByCorrelation matches a callback to its transaction by either the
// locally generated correlation id or the provider-side reference.
func (r *TransactionRepository) FindByCorrelation(ctx context.Context, provider domain.Provider, ref string) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE provider = $1 AND (correlation_id = $2 OR provider_ref = $2)`,
		provider, ref,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("FindByCorrelation: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("FindByCorrelation: %w", err)
	}
	return t, nil
}

// Complete transitions a pending transaction to completed. The WHERE clause
// on status makes the transition a single conditional write: of two racing
// callbacks exactly one sees rows affected.
func (r *TransactionRepository) Complete(ctx context.Context, tx *sql.Tx, id uuid.UUID, providerRef, receipt *string, resultCode, resultDesc string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE transactions
		SET status = $1, provider_ref = COALESCE($2, provider_ref), receipt = $3,
			result_code = $4, result_desc = $5, completed_at = now(), updated_at = now()
		WHERE id = $6 AND status = $7`,
		domain.TransactionStatusCompleted, providerRef, receipt,
		resultCode, resultDesc, id, domain.TransactionStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("Complete: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("Complete: rows affected: %w", err)
	}
	return rows > 0, nil
}

// Fail transitions a pending transaction to failed under the same conditional
// write discipline as Complete.
func (r *TransactionRepository) Fail(ctx context.Context, tx *sql.Tx, id uuid.UUID, providerRef *string, resultCode, resultDesc string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE transactions
		SET status = $1, provider_ref = COALESCE($2, provider_ref),
			result_code = $3, result_desc = $4, updated_at = now()
		WHERE id = $5 AND status = $6`,
		domain.TransactionStatusFailed, providerRef,
		resultCode, resultDesc, id, domain.TransactionStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("Fail: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("Fail: rows affected: %w", err)
	}
	return rows > 0, nil
}

// ListUnallocatedCompleted returns completed transactions for a tenant that
// produced neither an allocation nor an overpayment credit, locked for the
// duration of the reconciliation sweep.
func (r *TransactionRepository) ListUnallocatedCompleted(ctx context.Context, tx *sql.Tx, tenantID uuid.UUID) ([]domain.Transaction, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions t
		WHERE t.tenant_id = $1 AND t.status = $2
			AND NOT EXISTS (SELECT 1 FROM payment_allocations a WHERE a.transaction_id = t.id)
			AND NOT EXISTS (SELECT 1 FROM tenant_credits c WHERE c.transaction_id = t.id)
		ORDER BY t.created_at
		FOR UPDATE`,
		tenantID, domain.TransactionStatusCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("ListUnallocatedCompleted: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("ListUnallocatedCompleted: scan: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListUnallocatedCompleted: rows: %w", err)
	}
	return txns, nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var t domain.Transaction
	var landlordID, tenantID, invoiceID uuid.NullUUID
	var completedAt sql.NullTime

	err := s.Scan(
		&t.ID, &t.Provider, &landlordID, &tenantID, &invoiceID,
		&t.CorrelationID, &t.ProviderRef, &t.Phone, &t.Amount, &t.Currency, &t.Status,
		&t.ResultCode, &t.ResultDesc, &t.Receipt, &t.CreatedAt, &t.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if landlordID.Valid {
		t.LandlordID = &landlordID.UUID
	}
	if tenantID.Valid {
		t.TenantID = &tenantID.UUID
	}
	if invoiceID.Valid {
		t.InvoiceID = &invoiceID.UUID
	}
	if completedAt.Valid {
		ts := completedAt.Time.UTC()
		t.CompletedAt = &ts
	}

	return &t, nil
}
