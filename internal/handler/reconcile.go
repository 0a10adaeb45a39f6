package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nyumba-labs/nyumba-payments/internal/logging"
)

type reconcileService interface {
	ReconcileTenant(ctx context.Context, tenantID uuid.UUID) error
}

type ReconcileHandler struct {
	reconciler reconcileService
}

func NewReconcileHandler(reconciler reconcileService) *ReconcileHandler {
	return &ReconcileHandler{reconciler: reconciler}
}

// Trigger runs the reconciliation sweep for one tenant on demand. The sweep
// is idempotent, so operators can invoke it freely.
func (h *ReconcileHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	tenantID, err := uuid.Parse(r.PathValue("tenant_id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	if err := h.reconciler.ReconcileTenant(r.Context(), tenantID); err != nil {
		log.Error("reconciliation sweep failed", "tenant_id", tenantID, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"tenant_id": tenantID,
		"status":    "reconciled",
	})
}
