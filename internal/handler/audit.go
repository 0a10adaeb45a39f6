package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
	"github.com/nyumba-labs/nyumba-payments/internal/logging"
)

const defaultAuditLimit = 100

type auditReader interface {
	ListRecent(ctx context.Context, limit int) ([]domain.AuditEvent, error)
}

type AuditHandler struct {
	audit auditReader
}

func NewAuditHandler(audit auditReader) *AuditHandler {
	return &AuditHandler{audit: audit}
}

type auditEventDTO struct {
	ID            uuid.UUID       `json:"id"`
	Kind          string          `json:"kind"`
	Provider      string          `json:"provider"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	SourceAddr    string          `json:"source_addr,omitempty"`
	Detail        json.RawMessage `json:"detail,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			RespondValidationError(w, []FieldError{{Field: "limit", Message: "must be between 1 and 1000"}})
			return
		}
		limit = n
	}

	events, err := h.audit.ListRecent(r.Context(), limit)
	if err != nil {
		logging.FromContext(r.Context()).Error("audit listing failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]auditEventDTO, 0, len(events))
	for _, e := range events {
		dtos = append(dtos, auditEventDTO{
			ID:            e.ID,
			Kind:          string(e.Kind),
			Provider:      string(e.Provider),
			CorrelationID: e.CorrelationID,
			SourceAddr:    e.SourceAddr,
			Detail:        e.Detail,
			CreatedAt:     e.CreatedAt,
		})
	}

	RespondSuccess(w, http.StatusOK, dtos)
}
