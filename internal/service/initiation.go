package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
	"github.com/nyumba-labs/nyumba-payments/internal/logging"
	"github.com/nyumba-labs/nyumba-payments/internal/provider"
)

type secretsVault interface {
	Decrypt(ctx context.Context, landlordID uuid.UUID, p domain.Provider) (*domain.Secrets, error)
}

type adapterRegistry interface {
	Get(p domain.Provider) (provider.Adapter, error)
}

type initTransactionRepo interface {
	Create(ctx context.Context, txn *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
}

type initInvoiceRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error)
	ResolveLandlord(ctx context.Context, invoiceID uuid.UUID) (uuid.UUID, error)
}

type PushRequest struct {
	Provider   domain.Provider
	Phone      string
	Amount     int64
	InvoiceID  *uuid.UUID
	LandlordID *uuid.UUID
	TenantID   *uuid.UUID
}

type PushResult struct {
	TransactionID   uuid.UUID `json:"transaction_id"`
	CorrelationID   string    `json:"correlation_id"`
	ProviderRef     string    `json:"provider_ref,omitempty"`
	CustomerMessage string    `json:"customer_message,omitempty"`
}

// PaymentService owns the initiation path: resolve the landlord, load
// credentials, run the provider adapter and persist the pending transaction
// before reporting success, so the callback always finds a row.
type PaymentService struct {
	vault        secretsVault
	adapters     adapterRegistry
	transactions initTransactionRepo
	invoices     initInvoiceRepo
}

func NewPaymentService(vault secretsVault, adapters adapterRegistry, transactions initTransactionRepo, invoices initInvoiceRepo) *PaymentService {
	return &PaymentService{
		vault:        vault,
		adapters:     adapters,
		transactions: transactions,
		invoices:     invoices,
	}
}

// InitiatePush runs steps 1-8 of the push flow. Any failure before the
// provider accepts the request is synchronous and leaves no transaction row;
// there is nothing to reconcile and the caller may retry.
func (s *PaymentService) InitiatePush(ctx context.Context, req PushRequest) (*PushResult, error) {
	log := logging.FromContext(ctx)

	if req.Amount <= 0 {
		return nil, fmt.Errorf("InitiatePush: %w", domain.ErrInvalidAmount)
	}
	if !req.Provider.IsValid() {
		return nil, fmt.Errorf("InitiatePush: %w", domain.ErrInvalidProvider)
	}

	phone, err := provider.NormalizeMSISDN(req.Phone)
	if err != nil {
		return nil, fmt.Errorf("InitiatePush: %w", err)
	}

	landlordID, tenantID, accountRef, err := s.resolveContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("InitiatePush: %w", err)
	}

	secrets, err := s.vault.Decrypt(ctx, landlordID, req.Provider)
	if err != nil {
		return nil, fmt.Errorf("InitiatePush: %w", err)
	}

	adapter, err := s.adapters.Get(req.Provider)
	if err != nil {
		return nil, fmt.Errorf("InitiatePush: %w", err)
	}

	correlationID := uuid.NewString()

	result, err := adapter.Initiate(ctx, provider.InitiateRequest{
		LandlordID:    landlordID,
		Secrets:       *secrets,
		Phone:         phone,
		Amount:        req.Amount,
		AccountRef:    accountRef,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, fmt.Errorf("InitiatePush: %w", err)
	}

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:            uuid.New(),
		Provider:      req.Provider,
		LandlordID:    &landlordID,
		TenantID:      tenantID,
		InvoiceID:     req.InvoiceID,
		CorrelationID: correlationID,
		Phone:         phone,
		Amount:        req.Amount,
		Currency:      domain.CurrencyKES,
		Status:        domain.TransactionStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if result.ProviderRef != "" {
		txn.ProviderRef = &result.ProviderRef
	}

	if err := s.transactions.Create(ctx, txn); err != nil {
		return nil, fmt.Errorf("InitiatePush: %w", err)
	}

	log.Info("push payment initiated",
		"transaction_id", txn.ID,
		"provider", req.Provider,
		"correlation_id", correlationID,
		"provider_ref", result.ProviderRef,
		"amount", req.Amount,
	)

	return &PushResult{
		TransactionID:   txn.ID,
		CorrelationID:   correlationID,
		ProviderRef:     result.ProviderRef,
		CustomerMessage: result.CustomerMessage,
	}, nil
}

func (s *PaymentService) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	txn, err := s.transactions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: %w", err)
	}
	return txn, nil
}

// resolveContext determines who is being charged on whose behalf. The
// landlord comes either from the request or by walking the invoice's
// property chain to its owner.
func (s *PaymentService) resolveContext(ctx context.Context, req PushRequest) (uuid.UUID, *uuid.UUID, string, error) {
	if req.InvoiceID == nil {
		if req.LandlordID == nil {
			return uuid.Nil, nil, "", fmt.Errorf("resolveContext: landlord or invoice required: %w", domain.ErrInvalidRequest)
		}
		return *req.LandlordID, req.TenantID, "", nil
	}

	inv, err := s.invoices.GetByID(ctx, *req.InvoiceID)
	if err != nil {
		return uuid.Nil, nil, "", fmt.Errorf("resolveContext: %w", err)
	}

	var landlordID uuid.UUID
	if req.LandlordID != nil {
		landlordID = *req.LandlordID
	} else {
		landlordID, err = s.invoices.ResolveLandlord(ctx, inv.ID)
		if err != nil {
			return uuid.Nil, nil, "", fmt.Errorf("resolveContext: %w", err)
		}
	}

	tenantID := inv.TenantID
	accountRef := "INV-" + inv.ID.String()[:8]
	return landlordID, &tenantID, accountRef, nil
}
