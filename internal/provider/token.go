package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
)

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	AccessTokenCamel string `json:"accessToken"`
}

func (t tokenResponse) token() string {
	if t.AccessToken != "" {
		return t.AccessToken
	}
	return t.AccessTokenCamel
}

// fetchToken performs the client-credentials exchange every provider uses:
// Basic auth of key:secret, form-encoded grant type, short-lived bearer
// token in the response under access_token or accessToken.
func fetchToken(ctx context.Context, client *http.Client, tokenURL, key, secret string) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("fetchToken: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(key+":"+secret)))

	resp, err := client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("fetchToken: %v: %w", err, domain.ErrProviderTimeout)
		}
		return "", fmt.Errorf("fetchToken: %v: %w", err, domain.ErrProviderAuth)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("fetchToken: status %d: %s: %w", resp.StatusCode, string(body), domain.ErrProviderAuth)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("fetchToken: decode: %w", domain.ErrProviderAuth)
	}
	if tr.token() == "" {
		return "", fmt.Errorf("fetchToken: empty token: %w", domain.ErrProviderAuth)
	}

	return tr.token(), nil
}
