package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
	"github.com/nyumba-labs/nyumba-payments/internal/logging"
	"github.com/nyumba-labs/nyumba-payments/internal/vault"
)

type credentialVault interface {
	Save(ctx context.Context, landlordID uuid.UUID, provider domain.Provider, in vault.SaveInput) (*domain.SafeConfig, error)
	Deactivate(ctx context.Context, landlordID uuid.UUID, provider domain.Provider) error
}

// CredentialHandler manages landlord provider configuration. Responses carry
// SafeConfig only; secret material goes in, never out.
type CredentialHandler struct {
	vault credentialVault
}

func NewCredentialHandler(vault credentialVault) *CredentialHandler {
	return &CredentialHandler{vault: vault}
}

type saveCredentialRequest struct {
	Environment    string `json:"environment"`
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
	Passkey        string `json:"passkey"`
	Shortcode      string `json:"shortcode"`
	TillNumber     string `json:"till_number"`
}

func (r saveCredentialRequest) Validate() []FieldError {
	var errs []FieldError

	if r.Environment == "" {
		errs = append(errs, FieldError{Field: "environment", Message: "required"})
	} else if !domain.Environment(r.Environment).IsValid() {
		errs = append(errs, FieldError{Field: "environment", Message: "must be sandbox or production"})
	}

	if r.ConsumerKey == "" {
		errs = append(errs, FieldError{Field: "consumer_key", Message: "required"})
	}

	if r.ConsumerSecret == "" {
		errs = append(errs, FieldError{Field: "consumer_secret", Message: "required"})
	}

	if r.Shortcode == "" && r.TillNumber == "" {
		errs = append(errs, FieldError{Field: "shortcode", Message: "shortcode or till_number required"})
	}

	return errs
}

func (h *CredentialHandler) Save(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	landlordID, prov, ok := credentialPath(w, r)
	if !ok {
		return
	}

	var req saveCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	cfg, err := h.vault.Save(r.Context(), landlordID, prov, vault.SaveInput{
		Environment:    domain.Environment(req.Environment),
		ConsumerKey:    req.ConsumerKey,
		ConsumerSecret: req.ConsumerSecret,
		Passkey:        req.Passkey,
		Shortcode:      req.Shortcode,
		TillNumber:     req.TillNumber,
	})
	if err != nil {
		log.Warn("credential save failed", "landlord_id", landlordID, "provider", prov, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, cfg)
}

func (h *CredentialHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	landlordID, prov, ok := credentialPath(w, r)
	if !ok {
		return
	}

	if err := h.vault.Deactivate(r.Context(), landlordID, prov); err != nil {
		log.Warn("credential deactivation failed", "landlord_id", landlordID, "provider", prov, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"provider": prov,
		"active":   false,
	})
}

func credentialPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, domain.Provider, bool) {
	landlordID, err := uuid.Parse(r.PathValue("landlord_id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return uuid.Nil, "", false
	}

	prov := domain.Provider(r.PathValue("provider"))
	if !prov.IsValid() {
		RespondAppError(w, ErrInvalidProvider, nil)
		return uuid.Nil, "", false
	}

	return landlordID, prov, true
}
