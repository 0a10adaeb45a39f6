package vault

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
)

type memStore struct {
	creds map[string]*domain.ProviderCredential
}

func newMemStore() *memStore {
	return &memStore{creds: make(map[string]*domain.ProviderCredential)}
}

func key(landlordID uuid.UUID, p domain.Provider) string {
	return landlordID.String() + "/" + string(p)
}

func (s *memStore) GetActive(_ context.Context, landlordID uuid.UUID, p domain.Provider) (*domain.ProviderCredential, error) {
	c, ok := s.creds[key(landlordID, p)]
	if !ok || !c.Active {
		return nil, domain.ErrProviderNotConfigured
	}
	return c, nil
}

func (s *memStore) Upsert(_ context.Context, c *domain.ProviderCredential) error {
	s.creds[key(c.LandlordID, c.Provider)] = c
	return nil
}

func (s *memStore) Deactivate(_ context.Context, landlordID uuid.UUID, p domain.Provider) error {
	c, ok := s.creds[key(landlordID, p)]
	if !ok {
		return domain.ErrProviderNotConfigured
	}
	c.Active = false
	return nil
}

func newTestVault(t *testing.T) (*Vault, *memStore) {
	t.Helper()
	cipher, err := NewCipher(testKey(t))
	require.NoError(t, err)
	store := newMemStore()
	return New(store, cipher), store
}

func TestVault_SaveThenDecrypt(t *testing.T) {
	v, store := newTestVault(t)
	ctx := context.Background()
	landlordID := uuid.New()

	cfg, err := v.Save(ctx, landlordID, domain.ProviderMpesa, SaveInput{
		Environment:    domain.EnvironmentSandbox,
		ConsumerKey:    "ck-plain",
		ConsumerSecret: "cs-plain",
		Passkey:        "pk-plain",
		Shortcode:      "174379",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ProviderMpesa, cfg.Provider)
	assert.True(t, cfg.Active)
	assert.False(t, cfg.Verified)

	// Nothing secret in the stored row or the returned config.
	stored := store.creds[key(landlordID, domain.ProviderMpesa)]
	assert.True(t, strings.HasPrefix(stored.ConsumerKeyEnc, "v1:"))
	assert.NotContains(t, stored.ConsumerKeyEnc, "ck-plain")
	assert.NotContains(t, stored.ConsumerSecretEnc, "cs-plain")

	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "ck-plain")
	assert.NotContains(t, string(raw), "cs-plain")
	assert.NotContains(t, string(raw), "pk-plain")

	secrets, err := v.Decrypt(ctx, landlordID, domain.ProviderMpesa)
	require.NoError(t, err)
	assert.Equal(t, "ck-plain", secrets.ConsumerKey)
	assert.Equal(t, "cs-plain", secrets.ConsumerSecret)
	assert.Equal(t, "pk-plain", secrets.Passkey)
	assert.Equal(t, "174379", secrets.Shortcode)
}

func TestVault_DecryptUnconfigured(t *testing.T) {
	v, _ := newTestVault(t)

	_, err := v.Decrypt(context.Background(), uuid.New(), domain.ProviderJenga)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderNotConfigured)
}

func TestVault_DeactivateBlocksDecrypt(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()
	landlordID := uuid.New()

	_, err := v.Save(ctx, landlordID, domain.ProviderKCB, SaveInput{
		Environment:    domain.EnvironmentProduction,
		ConsumerKey:    "k",
		ConsumerSecret: "s",
		Shortcode:      "999888",
	})
	require.NoError(t, err)

	require.NoError(t, v.Deactivate(ctx, landlordID, domain.ProviderKCB))

	_, err = v.Decrypt(ctx, landlordID, domain.ProviderKCB)
	assert.ErrorIs(t, err, domain.ErrProviderNotConfigured)
}

func TestVault_DecryptLegacyPlaintextRow(t *testing.T) {
	v, store := newTestVault(t)
	ctx := context.Background()
	landlordID := uuid.New()

	// A row imported before envelope encryption stores raw values.
	store.creds[key(landlordID, domain.ProviderMpesa)] = &domain.ProviderCredential{
		ID:                uuid.New(),
		LandlordID:        landlordID,
		Provider:          domain.ProviderMpesa,
		Environment:       domain.EnvironmentSandbox,
		ConsumerKeyEnc:    "legacy-key",
		ConsumerSecretEnc: "legacy-secret",
		PasskeyEnc:        "legacy-passkey",
		Shortcode:         "174379",
		Active:            true,
	}

	secrets, err := v.Decrypt(ctx, landlordID, domain.ProviderMpesa)
	require.NoError(t, err)
	assert.Equal(t, "legacy-key", secrets.ConsumerKey)
	assert.Equal(t, "legacy-secret", secrets.ConsumerSecret)
	assert.Equal(t, "legacy-passkey", secrets.Passkey)
}
