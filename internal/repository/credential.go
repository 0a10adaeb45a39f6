package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
)

const credentialColumns = `id, landlord_id, provider, environment,
	consumer_key_enc, consumer_secret_enc, passkey_enc, shortcode, till_number,
	active, verified, created_at, updated_at`

type CredentialRepository struct {
	db *sql.DB
}

func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

func (r *CredentialRepository) GetActive(ctx context.Context, landlordID uuid.UUID, provider domain.Provider) (*domain.ProviderCredential, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM provider_credentials
		WHERE landlord_id = $1 AND provider = $2 AND active`,
		landlordID, provider,
	)
	c, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetActive: %w", domain.ErrProviderNotConfigured)
		}
		return nil, fmt.Errorf("GetActive: %w", err)
	}
	return c, nil
}

// Upsert writes a credential row, replacing any previous configuration for
// the (landlord, provider) pair. Ciphertext fields are always fully
// rewritten; there is no partial secret update.
func (r *CredentialRepository) Upsert(ctx context.Context, c *domain.ProviderCredential) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO provider_credentials (
			id, landlord_id, provider, environment,
			consumer_key_enc, consumer_secret_enc, passkey_enc, shortcode, till_number,
			active, verified, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (landlord_id, provider) DO UPDATE SET
			environment = EXCLUDED.environment,
			consumer_key_enc = EXCLUDED.consumer_key_enc,
			consumer_secret_enc = EXCLUDED.consumer_secret_enc,
			passkey_enc = EXCLUDED.passkey_enc,
			shortcode = EXCLUDED.shortcode,
			till_number = EXCLUDED.till_number,
			active = EXCLUDED.active,
			verified = EXCLUDED.verified,
			updated_at = now()`,
		c.ID, c.LandlordID, c.Provider, c.Environment,
		c.ConsumerKeyEnc, c.ConsumerSecretEnc, c.PasskeyEnc, c.Shortcode, c.TillNumber,
		c.Active, c.Verified, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

func (r *CredentialRepository) Deactivate(ctx context.Context, landlordID uuid.UUID, provider domain.Provider) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE provider_credentials SET active = false, updated_at = now()
		WHERE landlord_id = $1 AND provider = $2`,
		landlordID, provider,
	)
	if err != nil {
		return fmt.Errorf("Deactivate: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Deactivate: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Deactivate: %w", domain.ErrProviderNotConfigured)
	}
	return nil
}

func scanCredential(s scanner) (*domain.ProviderCredential, error) {
	var c domain.ProviderCredential
	err := s.Scan(
		&c.ID, &c.LandlordID, &c.Provider, &c.Environment,
		&c.ConsumerKeyEnc, &c.ConsumerSecretEnc, &c.PasskeyEnc, &c.Shortcode, &c.TillNumber,
		&c.Active, &c.Verified, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
