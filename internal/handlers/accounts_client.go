package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"
)

// AccountsClient forwards validated fraud-check calls from the gateway to
// the accounts service, authenticated by the pre-shared API key.
type AccountsClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewAccountsClient builds the internal HTTP client: 5 s connect timeout,
// 10 s overall read timeout.
func NewAccountsClient(baseURL, apiKey string) *AccountsClient {
	return &AccountsClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
				MaxIdleConnsPerHost: 30,
			},
		},
	}
}

// ValidateInvoice posts the fraud-check request to the accounts service.
func (c *AccountsClient) ValidateInvoice(ctx context.Context, req FraudCheckRequest) (*FraudCheckResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode fraud check request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/invoices/validate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build fraud check request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("accounts service call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("accounts service returned status %d", resp.StatusCode)
	}

	var out FraudCheckResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode fraud check response: %w", err)
	}
	return &out, nil
}
