package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
)

type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, e *domain.AuditEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, kind, provider, correlation_id, source_addr, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.Kind, e.Provider, e.CorrelationID, e.SourceAddr, e.Detail, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *AuditRepository) ListRecent(ctx context.Context, limit int) ([]domain.AuditEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, provider, correlation_id, source_addr, detail, created_at
		FROM audit_events ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListRecent: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		var detail []byte
		if err := rows.Scan(&e.ID, &e.Kind, &e.Provider, &e.CorrelationID, &e.SourceAddr, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListRecent: scan: %w", err)
		}
		e.Detail = detail
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListRecent: rows: %w", err)
	}
	return events, nil
}
