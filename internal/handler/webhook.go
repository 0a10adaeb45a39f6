package handler

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
	"github.com/nyumba-labs/nyumba-payments/internal/logging"
	"github.com/nyumba-labs/nyumba-payments/internal/provider"
)

const maxCallbackBody = 1 << 20

type ingressService interface {
	HandleCallback(ctx context.Context, res *domain.CallbackResult, sourceAddr string) error
	WriteAudit(ctx context.Context, kind domain.AuditKind, p domain.Provider, correlationID, sourceAddr string, detail map[string]any)
}

type callbackAdapters interface {
	Get(p domain.Provider) (provider.Adapter, error)
}

// WebhookHandler terminates provider callbacks. The contract is asymmetric:
// requests from outside a provider's published CIDR ranges get 403, every
// other request gets 200 no matter what happens inside, so the provider never
// retries into a processing failure.
type WebhookHandler struct {
	adapters   callbackAdapters
	ingress    ingressService
	allowlists map[domain.Provider][]netip.Prefix
}

func NewWebhookHandler(adapters callbackAdapters, ingress ingressService, allowlists map[domain.Provider][]netip.Prefix) *WebhookHandler {
	return &WebhookHandler{adapters: adapters, ingress: ingress, allowlists: allowlists}
}

// ParseAllowlist parses a comma-separated CIDR list. Bare addresses are
// accepted as single-host prefixes.
func ParseAllowlist(csv string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "/") {
			addr, err := netip.ParseAddr(part)
			if err != nil {
				return nil, fmt.Errorf("ParseAllowlist: %q: %w", part, err)
			}
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(part)
		if err != nil {
			return nil, fmt.Errorf("ParseAllowlist: %q: %w", part, err)
		}
		prefixes = append(prefixes, p)
	}
	return prefixes, nil
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	prov := domain.Provider(r.PathValue("provider"))
	if !prov.IsValid() {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	sourceAddr := remoteAddr(r)

	if !h.sourceAllowed(prov, sourceAddr) {
		log.Warn("callback rejected: source outside allow-list",
			"provider", prov,
			"source_addr", sourceAddr,
		)
		h.ingress.WriteAudit(r.Context(), domain.AuditKindSecurityRejection, prov, "", sourceAddr, map[string]any{
			"path": r.URL.Path,
		})
		RespondAppError(w, &AppError{http.StatusForbidden, "FORBIDDEN_SOURCE", "Source address not permitted"}, nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		log.Warn("failed to read callback body", "provider", prov, "error", err)
		h.acknowledge(w)
		return
	}

	adapter, err := h.adapters.Get(prov)
	if err != nil {
		log.Error("no adapter for provider", "provider", prov, "error", err)
		h.acknowledge(w)
		return
	}

	res, err := adapter.ParseCallback(body)
	if err != nil {
		log.Warn("malformed callback payload", "provider", prov, "error", err)
		h.ingress.WriteAudit(r.Context(), domain.AuditKindMalformedCallback, prov, "", sourceAddr, map[string]any{
			"error": err.Error(),
		})
		h.acknowledge(w)
		return
	}

	if err := h.ingress.HandleCallback(r.Context(), res, sourceAddr); err != nil {
		// Still acknowledged: the failure is recorded server-side and a
		// provider retry would not change the outcome.
		log.Error("callback processing failed",
			"provider", prov,
			"correlation_id", res.CorrelationID,
			"error", err,
		)
	}

	h.acknowledge(w)
}

// acknowledge sends the 200 body STK providers expect.
func (h *WebhookHandler) acknowledge(w http.ResponseWriter) {
	RespondJSON(w, http.StatusOK, map[string]any{
		"ResultCode": 0,
		"ResultDesc": "Accepted",
	})
}

func (h *WebhookHandler) sourceAllowed(p domain.Provider, sourceAddr string) bool {
	prefixes := h.allowlists[p]
	if len(prefixes) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(sourceAddr)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
