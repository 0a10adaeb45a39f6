package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
)

type credentialStore interface {
	GetActive(ctx context.Context, landlordID uuid.UUID, provider domain.Provider) (*domain.ProviderCredential, error)
	Upsert(ctx context.Context, c *domain.ProviderCredential) error
	Deactivate(ctx context.Context, landlordID uuid.UUID, provider domain.Provider) error
}

// Vault mediates every access to provider credentials. Plaintext secrets
// exist only in the Secrets value handed to an adapter; nothing secret ever
// travels back to an API caller.
type Vault struct {
	creds  credentialStore
	cipher *Cipher
}

func New(creds credentialStore, cipher *Cipher) *Vault {
	return &Vault{creds: creds, cipher: cipher}
}

// Decrypt loads and opens the active credentials for a landlord/provider
// pair. Missing or deactivated configuration surfaces as
// domain.ErrProviderNotConfigured.
func (v *Vault) Decrypt(ctx context.Context, landlordID uuid.UUID, provider domain.Provider) (*domain.Secrets, error) {
	cred, err := v.creds.GetActive(ctx, landlordID, provider)
	if err != nil {
		return nil, fmt.Errorf("Decrypt: %w", err)
	}

	return &domain.Secrets{
		ConsumerKey:    v.cipher.Open(cred.ConsumerKeyEnc),
		ConsumerSecret: v.cipher.Open(cred.ConsumerSecretEnc),
		Passkey:        v.cipher.Open(cred.PasskeyEnc),
		Shortcode:      cred.Shortcode,
		TillNumber:     cred.TillNumber,
		Environment:    cred.Environment,
	}, nil
}

type SaveInput struct {
	Environment    domain.Environment
	ConsumerKey    string
	ConsumerSecret string
	Passkey        string
	Shortcode      string
	TillNumber     string
}

// Save re-encrypts every secret and overwrites the stored configuration.
// The returned SafeConfig carries metadata only.
func (v *Vault) Save(ctx context.Context, landlordID uuid.UUID, provider domain.Provider, in SaveInput) (*domain.SafeConfig, error) {
	keyEnc, err := v.cipher.Seal(in.ConsumerKey)
	if err != nil {
		return nil, fmt.Errorf("Save: %w", err)
	}
	secretEnc, err := v.cipher.Seal(in.ConsumerSecret)
	if err != nil {
		return nil, fmt.Errorf("Save: %w", err)
	}
	passkeyEnc, err := v.cipher.Seal(in.Passkey)
	if err != nil {
		return nil, fmt.Errorf("Save: %w", err)
	}

	now := time.Now().UTC()
	cred := &domain.ProviderCredential{
		ID:                uuid.New(),
		LandlordID:        landlordID,
		Provider:          provider,
		Environment:       in.Environment,
		ConsumerKeyEnc:    keyEnc,
		ConsumerSecretEnc: secretEnc,
		PasskeyEnc:        passkeyEnc,
		Shortcode:         in.Shortcode,
		TillNumber:        in.TillNumber,
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := v.creds.Upsert(ctx, cred); err != nil {
		return nil, fmt.Errorf("Save: %w", err)
	}

	return &domain.SafeConfig{
		Provider:    provider,
		Environment: in.Environment,
		Shortcode:   in.Shortcode,
		TillNumber:  in.TillNumber,
		Active:      true,
		Verified:    false,
	}, nil
}

func (v *Vault) Deactivate(ctx context.Context, landlordID uuid.UUID, provider domain.Provider) error {
	if err := v.creds.Deactivate(ctx, landlordID, provider); err != nil {
		return fmt.Errorf("Deactivate: %w", err)
	}
	return nil
}
