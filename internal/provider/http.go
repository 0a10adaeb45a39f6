package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
)

// postJSON submits a bearer-authenticated JSON request and returns the
// response body for provider-specific decoding. Transport timeouts map to
// ErrProviderTimeout; a non-2xx status maps to ErrProviderRejected with the
// first bytes of the body preserved for diagnostics.
func postJSON(ctx context.Context, client *http.Client, url, bearer string, headers map[string]string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("postJSON: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("postJSON: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("postJSON: %v: %w", err, domain.ErrProviderTimeout)
		}
		return nil, fmt.Errorf("postJSON: %v: %w", err, domain.ErrProviderRejected)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("postJSON: read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("postJSON: status %d: %s: %w",
			resp.StatusCode, string(respBody[:min(len(respBody), 512)]), domain.ErrProviderRejected)
	}

	return respBody, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
