// Command mock-provider emulates the Daraja STK push surface for local
// development: it issues tokens, accepts push requests, and fires the
// asynchronous result callback after a short delay.
package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nyumba-labs/nyumba-payments/internal/logging"
)

var seq atomic.Int64

// callbackDelay approximates the time a customer PIN entry takes.
var callbackDelay = 2 * time.Second

func main() {
	logging.Init("mock-provider", "info", os.Getenv("APP_ENV"))

	addr := os.Getenv("MOCK_ADDR")
	if addr == "" {
		addr = ":8081"
	}
	callbackURL := os.Getenv("MOCK_CALLBACK_URL")
	if callbackURL == "" {
		callbackURL = "http://localhost:8080/webhooks/mpesa"
	}
	failPayments := os.Getenv("MOCK_FAIL") == "1"

	slog.Info("mock provider started", "addr", addr, "callback_url", callbackURL)
	if err := http.ListenAndServe(addr, newMux(callbackURL, failPayments)); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newMux(callbackURL string, failPayments bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("POST /oauth/v1/generate", handleToken)
	mux.HandleFunc("POST /mpesa/stkpush/v1/processrequest", handlePush(callbackURL, failPayments))
	return mux
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") == "" {
		respond(w, http.StatusUnauthorized, map[string]string{"errorMessage": "Invalid Authentication"})
		return
	}
	if err := r.ParseForm(); err != nil || r.PostFormValue("grant_type") != "client_credentials" {
		respond(w, http.StatusBadRequest, map[string]string{"errorMessage": "Invalid grant type passed"})
		return
	}
	respond(w, http.StatusOK, map[string]string{
		"access_token": uuid.NewString(),
		"expires_in":   "3599",
	})
}

func handlePush(callbackURL string, fail bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Amount           json.Number `json:"Amount"`
			PhoneNumber      string      `json:"PhoneNumber"`
			AccountReference string      `json:"AccountReference"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respond(w, http.StatusBadRequest, map[string]string{"errorMessage": "Bad Request - Invalid Body"})
			return
		}

		checkoutID := uuid.NewString()
		merchantID := uuid.NewString()

		respond(w, http.StatusOK, map[string]string{
			"MerchantRequestID":   merchantID,
			"CheckoutRequestID":   checkoutID,
			"ResponseCode":        "0",
			"ResponseDescription": "Success. Request accepted for processing",
			"CustomerMessage":     "Success. Request accepted for processing",
		})

		go fireCallback(callbackURL, merchantID, checkoutID, req.Amount, req.PhoneNumber, fail)
	}
}

// fireCallback posts the asynchronous STK result roughly as Daraja would.
func fireCallback(callbackURL, merchantID, checkoutID string, amount json.Number, phone string, fail bool) {
	time.Sleep(callbackDelay)

	resultCode := 0
	resultDesc := "The service request is processed successfully."
	var metadata map[string]any
	if fail {
		resultCode = 1032
		resultDesc = "Request cancelled by user"
	} else {
		metadata = map[string]any{
			"Item": []map[string]any{
				{"Name": "Amount", "Value": amount},
				{"Name": "MpesaReceiptNumber", "Value": receiptNumber()},
				{"Name": "PhoneNumber", "Value": phone},
			},
		}
	}

	payload := map[string]any{
		"Body": map[string]any{
			"stkCallback": map[string]any{
				"MerchantRequestID": merchantID,
				"CheckoutRequestID": checkoutID,
				"ResultCode":        resultCode,
				"ResultDesc":        resultDesc,
				"CallbackMetadata":  metadata,
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal callback", "error", err)
		return
	}

	resp, err := http.Post(callbackURL, "application/json", bytes.NewReader(body))
	if err != nil {
		slog.Error("callback delivery failed", "url", callbackURL, "error", err)
		return
	}
	resp.Body.Close()

	slog.Info("callback delivered",
		"checkout_request_id", checkoutID,
		"result_code", resultCode,
		"status", resp.StatusCode,
	)
}

func receiptNumber() string {
	return "SIM" + time.Now().UTC().Format("0601021504") + string(rune('A'+seq.Add(1)%26))
}

func respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
