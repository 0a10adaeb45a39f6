package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
)

// KCB implements the KCB Buni STK push flow. Buni mirrors the Daraja
// request/callback shape but with its own token endpoint and field casing.
type KCB struct {
	baseURL     string
	callbackURL string
	httpClient  *http.Client
}

func NewKCB(baseURL, callbackURL string, timeout time.Duration) *KCB {
	return &KCB{
		baseURL:     baseURL,
		callbackURL: callbackURL,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

func (k *KCB) Provider() domain.Provider { return domain.ProviderKCB }

type kcbPushPayload struct {
	PhoneNumber            string `json:"phoneNumber"`
	Amount                 string `json:"amount"`
	InvoiceNumber          string `json:"invoiceNumber"`
	OrgShortCode           string `json:"orgShortCode"`
	CallbackURL            string `json:"callbackUrl"`
	TransactionDescription string `json:"transactionDescription"`
}

type kcbPushResponse struct {
	Response struct {
		MerchantRequestID   string `json:"MerchantRequestID"`
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
		CustomerMessage     string `json:"CustomerMessage"`
	} `json:"response"`
}

func (k *KCB) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	phone, err := NormalizeMSISDN(req.Phone)
	if err != nil {
		return nil, fmt.Errorf("KCB.Initiate: %w", err)
	}

	token, err := fetchToken(ctx, k.httpClient, k.baseURL+"/token",
		req.Secrets.ConsumerKey, req.Secrets.ConsumerSecret)
	if err != nil {
		return nil, fmt.Errorf("KCB.Initiate: %w", err)
	}

	payload := kcbPushPayload{
		PhoneNumber:            phone,
		Amount:                 decimal.New(req.Amount, -2).StringFixed(2),
		InvoiceNumber:          req.CorrelationID,
		OrgShortCode:           req.Secrets.Shortcode,
		CallbackURL:            k.callbackURL + "/webhooks/kcb",
		TransactionDescription: "Rent payment " + req.AccountRef,
	}

	body, err := postJSON(ctx, k.httpClient, k.baseURL+"/mm/api/request/1.0.0/stkpush", token, nil, payload)
	if err != nil {
		return nil, fmt.Errorf("KCB.Initiate: %w", err)
	}

	var resp kcbPushResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("KCB.Initiate: decode: %w", domain.ErrProviderRejected)
	}
	if resp.Response.ResponseCode != "0" {
		return nil, fmt.Errorf("KCB.Initiate: response code %s (%s): %w",
			resp.Response.ResponseCode, resp.Response.ResponseDescription, domain.ErrProviderRejected)
	}

	return &InitiateResult{
		CorrelationID:   req.CorrelationID,
		ProviderRef:     resp.Response.CheckoutRequestID,
		CustomerMessage: resp.Response.CustomerMessage,
	}, nil
}

type kcbCallbackBody struct {
	CheckoutRequestID  string          `json:"checkoutRequestID"`
	MerchantRequestID  string          `json:"merchantRequestID"`
	InvoiceNumber      string          `json:"invoiceNumber"`
	StatusCode         string          `json:"statusCode"`
	StatusMessage      string          `json:"statusMessage"`
	RequestAmount      decimal.Decimal `json:"requestAmount"`
	TransactionReceipt string          `json:"transactionReceipt"`
	MSISDN             string          `json:"msisdn"`
}

func (k *KCB) ParseCallback(body []byte) (*domain.CallbackResult, error) {
	var cb kcbCallbackBody
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("KCB.ParseCallback: %w", err)
	}
	if cb.CheckoutRequestID == "" && cb.InvoiceNumber == "" {
		return nil, fmt.Errorf("KCB.ParseCallback: missing correlation identifiers")
	}

	result := &domain.CallbackResult{
		Provider:      domain.ProviderKCB,
		CorrelationID: cb.InvoiceNumber,
		ProviderRef:   cb.CheckoutRequestID,
		Success:       cb.StatusCode == "0",
		ResultCode:    cb.StatusCode,
		ResultDesc:    cb.StatusMessage,
	}

	if result.Success {
		cents := cb.RequestAmount.Mul(decimal.NewFromInt(100)).IntPart()
		result.Amount = &cents
		if cb.TransactionReceipt != "" {
			result.Receipt = &cb.TransactionReceipt
		}
		if cb.MSISDN != "" {
			result.Phone = &cb.MSISDN
		}
	}

	return result, nil
}
