package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
)

var testSecrets = domain.Secrets{
	ConsumerKey:    "test-key",
	ConsumerSecret: "test-secret",
	Passkey:        "test-passkey",
	Shortcode:      "174379",
	Environment:    domain.EnvironmentSandbox,
}

func TestMpesa_Initiate(t *testing.T) {
	fixedNow := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	var captured mpesaPushPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/v1/generate":
			wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("test-key:test-secret"))
			assert.Equal(t, wantAuth, r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-123"})
		case "/mpesa/stkpush/v1/processrequest":
			assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
			json.NewEncoder(w).Encode(map[string]string{
				"CheckoutRequestID": "ws_CO_123",
				"ResponseCode":      "0",
				"CustomerMessage":   "Success. Request accepted for processing",
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	m := NewMpesa(srv.URL, "https://pay.example.co.ke", 5*time.Second)
	m.now = func() time.Time { return fixedNow }

	result, err := m.Initiate(context.Background(), InitiateRequest{
		Secrets:       testSecrets,
		Phone:         "0712345678",
		Amount:        250000,
		AccountRef:    "INV-abc12345",
		CorrelationID: "corr-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "corr-1", result.CorrelationID)
	assert.Equal(t, "ws_CO_123", result.ProviderRef)
	assert.Equal(t, "Success. Request accepted for processing", result.CustomerMessage)

	assert.Equal(t, "174379", captured.BusinessShortCode)
	assert.Equal(t, "20240315103000", captured.Timestamp)
	wantPassword := base64.StdEncoding.EncodeToString([]byte("174379" + "test-passkey" + "20240315103000"))
	assert.Equal(t, wantPassword, captured.Password)
	assert.Equal(t, "2500", captured.Amount)
	assert.Equal(t, "254712345678", captured.PartyA)
	assert.Equal(t, "254712345678", captured.PhoneNumber)
	assert.Equal(t, "https://pay.example.co.ke/webhooks/mpesa", captured.CallBackURL)
	assert.Equal(t, "INV-abc12345", captured.AccountReference)
}

func TestMpesa_Initiate_TokenRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	m := NewMpesa(srv.URL, "https://pay.example.co.ke", 5*time.Second)

	_, err := m.Initiate(context.Background(), InitiateRequest{
		Secrets:       testSecrets,
		Phone:         "0712345678",
		Amount:        250000,
		CorrelationID: "corr-1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderAuth)
}

func TestMpesa_Initiate_PushRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/v1/generate" {
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tok"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"ResponseCode":        "1",
			"ResponseDescription": "Invalid shortcode",
		})
	}))
	defer srv.Close()

	m := NewMpesa(srv.URL, "https://pay.example.co.ke", 5*time.Second)

	_, err := m.Initiate(context.Background(), InitiateRequest{
		Secrets:       testSecrets,
		Phone:         "0712345678",
		Amount:        250000,
		CorrelationID: "corr-1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderRejected)
}

func TestMpesa_ParseCallback_Success(t *testing.T) {
	body := []byte(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "mr-1",
				"CheckoutRequestID": "ws_CO_123",
				"ResultCode": 0,
				"ResultDesc": "The service request is processed successfully.",
				"CallbackMetadata": {
					"Item": [
						{"Name": "Amount", "Value": 2500.00},
						{"Name": "MpesaReceiptNumber", "Value": "RKT12345XY"},
						{"Name": "PhoneNumber", "Value": 254712345678}
					]
				}
			}
		}
	}`)

	m := NewMpesa("http://unused", "http://unused", time.Second)
	res, err := m.ParseCallback(body)
	require.NoError(t, err)

	assert.Equal(t, domain.ProviderMpesa, res.Provider)
	assert.Equal(t, "ws_CO_123", res.ProviderRef)
	assert.True(t, res.Success)
	require.NotNil(t, res.Amount)
	assert.Equal(t, int64(250000), *res.Amount)
	require.NotNil(t, res.Receipt)
	assert.Equal(t, "RKT12345XY", *res.Receipt)
	require.NotNil(t, res.Phone)
	assert.Equal(t, "254712345678", *res.Phone)
}

func TestMpesa_ParseCallback_Cancelled(t *testing.T) {
	body := []byte(`{
		"Body": {
			"stkCallback": {
				"CheckoutRequestID": "ws_CO_456",
				"ResultCode": 1032,
				"ResultDesc": "Request cancelled by user"
			}
		}
	}`)

	m := NewMpesa("http://unused", "http://unused", time.Second)
	res, err := m.ParseCallback(body)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, "1032", res.ResultCode)
	assert.Nil(t, res.Amount)
}

func TestMpesa_ParseCallback_Malformed(t *testing.T) {
	m := NewMpesa("http://unused", "http://unused", time.Second)

	_, err := m.ParseCallback([]byte(`not json`))
	require.Error(t, err)

	_, err = m.ParseCallback([]byte(`{"Body": {"stkCallback": {}}}`))
	require.Error(t, err)
}
