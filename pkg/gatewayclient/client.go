/**
 * @description
 * Client for the payment gateway that collects platform fees from a
 * professional's on-file payment method. The gateway may not be idempotent;
 * the fee charge state machine is what prevents duplicate submission, this
 * client just makes one bounded-timeout call per invocation.
 */
package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrPaymentDeclined is returned when the gateway refuses the collection.
var ErrPaymentDeclined = errors.New("payment declined")

// Client is a client for the payment gateway.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new payment gateway client.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Collect asks the gateway to collect the given amount (in cents) from the
// professional's payment method. Returns the gateway's collection reference.
// A timeout surfaces as an error; callers must treat it as a failed attempt,
// never a presumed success.
func (c *Client) Collect(ctx context.Context, professionalID string, amount int64, chargeID string) (string, error) {
	if professionalID == "" {
		return "", fmt.Errorf("professional ID is required")
	}
	if amount <= 0 {
		return "", fmt.Errorf("amount must be positive, got %d", amount)
	}

	payload := map[string]interface{}{
		"professional_id": professionalID,
		"amount":          amount,
		"reason":          "Weekly Platform Fee",
		"charge_id":       chargeID,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/collections", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPaymentRequired {
		return "", ErrPaymentDeclined
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("payment gateway returned status %d", resp.StatusCode)
	}

	var response struct {
		ReferenceID string `json:"reference_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to parse gateway response: %w", err)
	}
	if response.ReferenceID == "" {
		return "", fmt.Errorf("gateway response missing reference_id")
	}

	return response.ReferenceID, nil
}
