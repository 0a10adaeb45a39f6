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

// Jenga implements the Equity Jenga PGW push flow. Jenga requires an
// RSA-SHA256 signature over orderReference + currency + mobileNumber +
// amount in a Signature header.
type Jenga struct {
	baseURL     string
	callbackURL string
	signer      *Signer
	httpClient  *http.Client
}

func NewJenga(baseURL, callbackURL string, signer *Signer, timeout time.Duration) *Jenga {
	return &Jenga{
		baseURL:     baseURL,
		callbackURL: callbackURL,
		signer:      signer,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

func (j *Jenga) Provider() domain.Provider { return domain.ProviderJenga }

type jengaPushPayload struct {
	Order struct {
		OrderReference string `json:"orderReference"`
		Amount         string `json:"amount"`
		Currency       string `json:"currency"`
	} `json:"order"`
	Customer struct {
		MobileNumber string `json:"mobileNumber"`
	} `json:"customer"`
	Merchant struct {
		Till string `json:"till"`
	} `json:"merchant"`
	CallbackURL string `json:"callbackUrl"`
}

type jengaPushResponse struct {
	Status        bool   `json:"status"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	Reference     string `json:"reference"`
	TransactionID string `json:"transactionId"`
}

func (j *Jenga) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if j.signer == nil {
		return nil, fmt.Errorf("Jenga.Initiate: %w", domain.ErrInvalidSigningKey)
	}

	phone, err := NormalizeMSISDN(req.Phone)
	if err != nil {
		return nil, fmt.Errorf("Jenga.Initiate: %w", err)
	}

	token, err := fetchToken(ctx, j.httpClient, j.baseURL+"/authentication/api/v3/authenticate/merchant",
		req.Secrets.ConsumerKey, req.Secrets.ConsumerSecret)
	if err != nil {
		return nil, fmt.Errorf("Jenga.Initiate: %w", err)
	}

	amount := decimal.New(req.Amount, -2).StringFixed(2)

	signature, err := j.signer.Sign(req.CorrelationID + domain.CurrencyKES + phone + amount)
	if err != nil {
		return nil, fmt.Errorf("Jenga.Initiate: %w", err)
	}

	var payload jengaPushPayload
	payload.Order.OrderReference = req.CorrelationID
	payload.Order.Amount = amount
	payload.Order.Currency = domain.CurrencyKES
	payload.Customer.MobileNumber = phone
	payload.Merchant.Till = req.Secrets.TillNumber
	payload.CallbackURL = j.callbackURL + "/webhooks/jenga"

	headers := map[string]string{"Signature": signature}
	body, err := postJSON(ctx, j.httpClient, j.baseURL+"/v3-apis/payment-api/v3.0/stkussdpush/initiate", token, headers, payload)
	if err != nil {
		return nil, fmt.Errorf("Jenga.Initiate: %w", err)
	}

	var resp jengaPushResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("Jenga.Initiate: decode: %w", domain.ErrProviderRejected)
	}
	if !resp.Status {
		return nil, fmt.Errorf("Jenga.Initiate: %s (%s): %w", resp.Message, resp.Code, domain.ErrProviderRejected)
	}

	return &InitiateResult{
		CorrelationID: req.CorrelationID,
		ProviderRef:   resp.TransactionID,
	}, nil
}

type jengaCallbackBody struct {
	OrderReference string          `json:"orderReference"`
	TransactionID  string          `json:"transactionId"`
	Status         string          `json:"status"`
	Code           string          `json:"code"`
	Message        string          `json:"message"`
	Amount         decimal.Decimal `json:"amount"`
	MobileNumber   string          `json:"mobileNumber"`
	TelcoReference string          `json:"telcoReference"`
}

func (j *Jenga) ParseCallback(body []byte) (*domain.CallbackResult, error) {
	var cb jengaCallbackBody
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("Jenga.ParseCallback: %w", err)
	}
	if cb.OrderReference == "" {
		return nil, fmt.Errorf("Jenga.ParseCallback: missing orderReference")
	}

	result := &domain.CallbackResult{
		Provider:      domain.ProviderJenga,
		CorrelationID: cb.OrderReference,
		ProviderRef:   cb.TransactionID,
		Success:       cb.Status == "SUCCESS",
		ResultCode:    cb.Code,
		ResultDesc:    cb.Message,
	}

	if result.Success {
		cents := cb.Amount.Mul(decimal.NewFromInt(100)).IntPart()
		result.Amount = &cents
		if cb.TelcoReference != "" {
			result.Receipt = &cb.TelcoReference
		}
		if cb.MobileNumber != "" {
			result.Phone = &cb.MobileNumber
		}
	}

	return result, nil
}
