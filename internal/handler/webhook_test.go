package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
	"github.com/nyumba-labs/nyumba-payments/internal/provider"
)

type fakeIngress struct {
	handled []*domain.CallbackResult
	audits  []domain.AuditKind
}

func (f *fakeIngress) HandleCallback(_ context.Context, res *domain.CallbackResult, _ string) error {
	f.handled = append(f.handled, res)
	return nil
}

func (f *fakeIngress) WriteAudit(_ context.Context, kind domain.AuditKind, _ domain.Provider, _, _ string, _ map[string]any) {
	f.audits = append(f.audits, kind)
}

func newTestWebhookHandler(t *testing.T) (*WebhookHandler, *fakeIngress) {
	t.Helper()

	allowed, err := ParseAllowlist("196.201.214.0/24, 10.0.0.5")
	require.NoError(t, err)

	adapters := provider.NewRegistry(
		provider.NewMpesa("http://unused", "http://unused", time.Second),
	)
	ingress := &fakeIngress{}
	h := NewWebhookHandler(adapters, ingress, map[domain.Provider][]netip.Prefix{
		domain.ProviderMpesa: allowed,
	})
	return h, ingress
}

func postCallback(h *WebhookHandler, remoteAddr, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/mpesa", strings.NewReader(body))
	req.SetPathValue("provider", "mpesa")
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.Receive(rec, req)
	return rec
}

const validStkBody = `{
	"Body": {
		"stkCallback": {
			"CheckoutRequestID": "ws_CO_1",
			"ResultCode": 0,
			"ResultDesc": "Processed",
			"CallbackMetadata": {"Item": [{"Name": "Amount", "Value": 2500}]}
		}
	}
}`

func TestWebhook_AllowedSource(t *testing.T) {
	h, ingress := newTestWebhookHandler(t)

	rec := postCallback(h, "196.201.214.55:41234", validStkBody)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ingress.handled, 1)
	assert.Equal(t, "ws_CO_1", ingress.handled[0].ProviderRef)
	assert.Empty(t, ingress.audits)
}

func TestWebhook_ForgedSourceRejected(t *testing.T) {
	h, ingress := newTestWebhookHandler(t)

	rec := postCallback(h, "203.0.113.9:41234", validStkBody)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	// The forged request never reaches callback processing.
	assert.Empty(t, ingress.handled)
	assert.Equal(t, []domain.AuditKind{domain.AuditKindSecurityRejection}, ingress.audits)
}

func TestWebhook_SingleHostAllowlistEntry(t *testing.T) {
	h, ingress := newTestWebhookHandler(t)

	rec := postCallback(h, "10.0.0.5:9000", validStkBody)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, ingress.handled, 1)
}

func TestWebhook_MalformedBodyStillAcknowledged(t *testing.T) {
	h, ingress := newTestWebhookHandler(t)

	rec := postCallback(h, "196.201.214.55:41234", `{"unexpected": true}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, ingress.handled)
	assert.Equal(t, []domain.AuditKind{domain.AuditKindMalformedCallback}, ingress.audits)
}

func TestWebhook_UnknownProvider(t *testing.T) {
	h, _ := newTestWebhookHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/airtel", strings.NewReader("{}"))
	req.SetPathValue("provider", "airtel")
	req.RemoteAddr = "196.201.214.55:41234"
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhook_ProviderWithoutAllowlist(t *testing.T) {
	h, ingress := newTestWebhookHandler(t)

	// jenga has no configured allow-list, so every source is rejected.
	req := httptest.NewRequest(http.MethodPost, "/webhooks/jenga", strings.NewReader("{}"))
	req.SetPathValue("provider", "jenga")
	req.RemoteAddr = "196.201.214.55:41234"
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, ingress.handled)
}

func TestParseAllowlist(t *testing.T) {
	prefixes, err := ParseAllowlist("196.201.214.0/24, 41.220.112.0/22,10.1.2.3")
	require.NoError(t, err)
	assert.Len(t, prefixes, 3)

	_, err = ParseAllowlist("not-a-cidr/99")
	require.Error(t, err)

	empty, err := ParseAllowlist("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
