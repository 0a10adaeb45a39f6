package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
)

const mpesaTimestampLayout = "20060102150405"

// Mpesa implements the Safaricom Daraja STK push flow.
type Mpesa struct {
	baseURL     string
	callbackURL string
	httpClient  *http.Client
	now         func() time.Time
}

func NewMpesa(baseURL, callbackURL string, timeout time.Duration) *Mpesa {
	return &Mpesa{
		baseURL:     baseURL,
		callbackURL: callbackURL,
		httpClient:  &http.Client{Timeout: timeout},
		now:         time.Now,
	}
}

func (m *Mpesa) Provider() domain.Provider { return domain.ProviderMpesa }

type mpesaPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type mpesaPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

func (m *Mpesa) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	phone, err := NormalizeMSISDN(req.Phone)
	if err != nil {
		return nil, fmt.Errorf("Mpesa.Initiate: %w", err)
	}

	token, err := fetchToken(ctx, m.httpClient, m.baseURL+"/oauth/v1/generate",
		req.Secrets.ConsumerKey, req.Secrets.ConsumerSecret)
	if err != nil {
		return nil, fmt.Errorf("Mpesa.Initiate: %w", err)
	}

	ts := m.now().UTC().Format(mpesaTimestampLayout)
	password := base64.StdEncoding.EncodeToString(
		[]byte(req.Secrets.Shortcode + req.Secrets.Passkey + ts))

	payload := mpesaPushPayload{
		BusinessShortCode: req.Secrets.Shortcode,
		Password:          password,
		Timestamp:         ts,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            decimal.New(req.Amount, -2).StringFixed(0),
		PartyA:            phone,
		PartyB:            req.Secrets.Shortcode,
		PhoneNumber:       phone,
		CallBackURL:       m.callbackURL + "/webhooks/mpesa",
		AccountReference:  req.AccountRef,
		TransactionDesc:   "Rent payment",
	}

	body, err := postJSON(ctx, m.httpClient, m.baseURL+"/mpesa/stkpush/v1/processrequest", token, nil, payload)
	if err != nil {
		return nil, fmt.Errorf("Mpesa.Initiate: %w", err)
	}

	var resp mpesaPushResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("Mpesa.Initiate: decode: %w", domain.ErrProviderRejected)
	}
	if resp.ResponseCode != "0" {
		return nil, fmt.Errorf("Mpesa.Initiate: response code %s (%s): %w",
			resp.ResponseCode, resp.ResponseDescription, domain.ErrProviderRejected)
	}

	return &InitiateResult{
		CorrelationID:   req.CorrelationID,
		ProviderRef:     resp.CheckoutRequestID,
		CustomerMessage: resp.CustomerMessage,
	}, nil
}

// stkCallback is the Daraja callback envelope. CallbackMetadata only appears
// on success and carries name/value items.
type stkCallbackBody struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string          `json:"Name"`
					Value json.RawMessage `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

func (m *Mpesa) ParseCallback(body []byte) (*domain.CallbackResult, error) {
	var cb stkCallbackBody
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("Mpesa.ParseCallback: %w", err)
	}

	stk := cb.Body.StkCallback
	if stk.CheckoutRequestID == "" {
		return nil, fmt.Errorf("Mpesa.ParseCallback: missing CheckoutRequestID")
	}

	result := &domain.CallbackResult{
		Provider:    domain.ProviderMpesa,
		ProviderRef: stk.CheckoutRequestID,
		Success:     stk.ResultCode == 0,
		ResultCode:  fmt.Sprintf("%d", stk.ResultCode),
		ResultDesc:  stk.ResultDesc,
	}

	for _, item := range stk.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			var amount decimal.Decimal
			if err := json.Unmarshal(item.Value, &amount); err == nil {
				cents := amount.Mul(decimal.NewFromInt(100)).IntPart()
				result.Amount = &cents
			}
		case "MpesaReceiptNumber":
			var receipt string
			if err := json.Unmarshal(item.Value, &receipt); err == nil {
				result.Receipt = &receipt
			}
		case "PhoneNumber":
			var phone json.Number
			if err := json.Unmarshal(item.Value, &phone); err == nil {
				p := phone.String()
				result.Phone = &p
			}
		}
	}

	return result, nil
}
