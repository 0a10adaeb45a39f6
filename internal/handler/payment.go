package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
	"github.com/nyumba-labs/nyumba-payments/internal/logging"
	"github.com/nyumba-labs/nyumba-payments/internal/service"
)

type paymentService interface {
	InitiatePush(ctx context.Context, req service.PushRequest) (*service.PushResult, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
}

type PaymentHandler struct {
	payments paymentService
}

func NewPaymentHandler(payments paymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type pushPaymentRequest struct {
	Provider   string     `json:"provider"`
	Phone      string     `json:"phone"`
	Amount     int64      `json:"amount"`
	InvoiceID  *uuid.UUID `json:"invoice_id"`
	LandlordID *uuid.UUID `json:"landlord_id"`
	TenantID   *uuid.UUID `json:"tenant_id"`
}

func (r pushPaymentRequest) Validate() []FieldError {
	var errs []FieldError

	if r.Provider == "" {
		errs = append(errs, FieldError{Field: "provider", Message: "required"})
	} else if !domain.Provider(r.Provider).IsValid() {
		errs = append(errs, FieldError{Field: "provider", Message: "must be mpesa, jenga, or kcb"})
	}

	if r.Phone == "" {
		errs = append(errs, FieldError{Field: "phone", Message: "required"})
	}

	if r.Amount <= 0 {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}

	if r.InvoiceID == nil && r.LandlordID == nil {
		errs = append(errs, FieldError{Field: "invoice_id", Message: "invoice_id or landlord_id required"})
	}

	return errs
}

type transactionDTO struct {
	ID            uuid.UUID  `json:"id"`
	Provider      string     `json:"provider"`
	Status        string     `json:"status"`
	Phone         string     `json:"phone"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	CorrelationID string     `json:"correlation_id"`
	ProviderRef   *string    `json:"provider_ref,omitempty"`
	InvoiceID     *uuid.UUID `json:"invoice_id,omitempty"`
	TenantID      *uuid.UUID `json:"tenant_id,omitempty"`
	ResultCode    *string    `json:"result_code,omitempty"`
	ResultDesc    *string    `json:"result_desc,omitempty"`
	Receipt       *string    `json:"receipt,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func toTransactionDTO(t *domain.Transaction) transactionDTO {
	return transactionDTO{
		ID:            t.ID,
		Provider:      string(t.Provider),
		Status:        string(t.Status),
		Phone:         t.Phone,
		Amount:        t.Amount,
		Currency:      t.Currency,
		CorrelationID: t.CorrelationID,
		ProviderRef:   t.ProviderRef,
		InvoiceID:     t.InvoiceID,
		TenantID:      t.TenantID,
		ResultCode:    t.ResultCode,
		ResultDesc:    t.ResultDesc,
		Receipt:       t.Receipt,
		CreatedAt:     t.CreatedAt,
		CompletedAt:   t.CompletedAt,
	}
}

func (h *PaymentHandler) Push(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req pushPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	result, err := h.payments.InitiatePush(r.Context(), service.PushRequest{
		Provider:   domain.Provider(req.Provider),
		Phone:      req.Phone,
		Amount:     req.Amount,
		InvoiceID:  req.InvoiceID,
		LandlordID: req.LandlordID,
		TenantID:   req.TenantID,
	})
	if err != nil {
		log.Warn("push initiation failed", "provider", req.Provider, "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/payments/%s", result.TransactionID))
	RespondSuccess(w, http.StatusAccepted, result)
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	txn, err := h.payments.GetTransaction(r.Context(), id)
	if err != nil {
		logging.FromContext(r.Context()).Warn("transaction lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransactionDTO(txn))
}
