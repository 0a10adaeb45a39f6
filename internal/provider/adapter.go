package provider

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
)

// InitiateRequest carries everything an adapter needs for one push attempt.
// Secrets come straight from the vault and must not outlive the call.
type InitiateRequest struct {
	LandlordID    uuid.UUID
	Secrets       domain.Secrets
	Phone         string
	Amount        int64
	AccountRef    string
	CorrelationID string
}

type InitiateResult struct {
	CorrelationID   string
	ProviderRef     string
	CustomerMessage string
}

// Adapter is one push-payment provider. Initiate is synchronous up to the
// provider accepting the request; the outcome arrives later via callback.
// ParseCallback turns the provider's raw callback body into the common
// CallbackResult, so everything downstream is provider-agnostic.
type Adapter interface {
	Provider() domain.Provider
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	ParseCallback(body []byte) (*domain.CallbackResult, error)
}

type Registry struct {
	adapters map[domain.Provider]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[domain.Provider]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Provider()] = a
	}
	return &Registry{adapters: m}
}

func (r *Registry) Get(p domain.Provider) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("Registry.Get: %q: %w", p, domain.ErrInvalidProvider)
	}
	return a, nil
}
