package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
)

const creditColumns = `id, tenant_id, landlord_id, transaction_id, amount,
	balance, source, created_at, updated_at`

type CreditRepository struct {
	db *sql.DB
}

func NewCreditRepository(db *sql.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

func (r *CreditRepository) Create(ctx context.Context, tx *sql.Tx, c *domain.TenantCredit) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO tenant_credits (
			id, tenant_id, landlord_id, transaction_id, amount, balance, source, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.TenantID, c.LandlordID, c.TransactionID, c.Amount, c.Balance, c.Source,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// ListAvailableForUpdate returns a tenant's credits with remaining balance,
// oldest first, locked for the sweep.
func (r *CreditRepository) ListAvailableForUpdate(ctx context.Context, tx *sql.Tx, tenantID uuid.UUID) ([]domain.TenantCredit, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+creditColumns+` FROM tenant_credits
		WHERE tenant_id = $1 AND balance > 0
		ORDER BY created_at
		FOR UPDATE`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListAvailableForUpdate: %w", err)
	}
	defer rows.Close()

	var credits []domain.TenantCredit
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, fmt.Errorf("ListAvailableForUpdate: scan: %w", err)
		}
		credits = append(credits, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListAvailableForUpdate: rows: %w", err)
	}
	return credits, nil
}

// Consume decrements a credit's balance. Amount is never touched; the check
// constraint keeps balance within [0, amount].
func (r *CreditRepository) Consume(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE tenant_credits SET balance = $1, updated_at = now()
		WHERE id = $2 AND balance >= $1`,
		newBalance, id,
	)
	if err != nil {
		return fmt.Errorf("Consume: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Consume: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Consume: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *CreditRepository) SumForTransaction(ctx context.Context, tx *sql.Tx, transactionID uuid.UUID) (int64, error) {
	var total int64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM tenant_credits WHERE transaction_id = $1`,
		transactionID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("SumForTransaction: %w", err)
	}
	return total, nil
}

func (r *CreditRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TenantCredit, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+creditColumns+` FROM tenant_credits WHERE id = $1`, id,
	)
	c, err := scanCredit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return c, nil
}

func scanCredit(s scanner) (*domain.TenantCredit, error) {
	var c domain.TenantCredit
	var transactionID uuid.NullUUID
	err := s.Scan(
		&c.ID, &c.TenantID, &c.LandlordID, &transactionID, &c.Amount,
		&c.Balance, &c.Source, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if transactionID.Valid {
		c.TransactionID = &transactionID.UUID
	}
	return &c, nil
}
