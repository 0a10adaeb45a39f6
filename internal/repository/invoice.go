package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
)

const invoiceColumns = `id, lease_id, tenant_id, landlord_id, amount, status,
	due_date, created_at, updated_at`

type InvoiceRepository struct {
	db *sql.DB
}

func NewInvoiceRepository(db *sql.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id,
	)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return inv, nil
}

// GetForUpdate locks the invoice row, serializing concurrent allocations
// against the same invoice.
func (r *InvoiceRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Invoice, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id,
	)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return inv, nil
}

// ListOpenForUpdate returns a tenant's unpaid invoices oldest due date first,
// locked for the reconciliation sweep.
func (r *InvoiceRepository) ListOpenForUpdate(ctx context.Context, tx *sql.Tx, tenantID uuid.UUID) ([]domain.Invoice, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices
		WHERE tenant_id = $1 AND status != $2
		ORDER BY due_date, created_at
		FOR UPDATE`,
		tenantID, domain.InvoiceStatusPaid,
	)
	if err != nil {
		return nil, fmt.Errorf("ListOpenForUpdate: %w", err)
	}
	defer rows.Close()

	var invoices []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("ListOpenForUpdate: scan: %w", err)
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListOpenForUpdate: rows: %w", err)
	}
	return invoices, nil
}

func (r *InvoiceRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.InvoiceStatus) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE invoices SET status = $1, updated_at = now() WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrNotFound)
	}
	return nil
}

// ResolveLandlord walks invoice -> lease -> unit -> property -> owner. The
// property tables belong to the CRUD layer; this is the only query the
// payment core runs against them.
func (r *InvoiceRepository) ResolveLandlord(ctx context.Context, invoiceID uuid.UUID) (uuid.UUID, error) {
	var landlordID uuid.UUID
	err := r.db.QueryRowContext(ctx,
		`SELECT p.landlord_id
		FROM invoices i
		JOIN leases l ON l.id = i.lease_id
		JOIN units u ON u.id = l.unit_id
		JOIN properties p ON p.id = u.property_id
		WHERE i.id = $1`,
		invoiceID,
	).Scan(&landlordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("ResolveLandlord: %w", domain.ErrNotFound)
		}
		return uuid.Nil, fmt.Errorf("ResolveLandlord: %w", err)
	}
	return landlordID, nil
}

func scanInvoice(s scanner) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := s.Scan(
		&inv.ID, &inv.LeaseID, &inv.TenantID, &inv.LandlordID, &inv.Amount, &inv.Status,
		&inv.DueDate, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
