// Package identity resolves the caller behind an Authorization token by
// asking the auth service. Session issuance lives entirely in that service;
// this client only answers "who is calling".
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"payments/internal/domain"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Resolve exchanges the raw Authorization header value for the caller's user
// id.
func (c *Client) Resolve(ctx context.Context, authorization string) (int64, error) {
	if authorization == "" {
		return 0, domain.ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/me", nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build identity request: %w", err)
	}
	req.Header.Set("Authorization", authorization)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("identity service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return 0, domain.ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("identity service returned status %d", resp.StatusCode)
	}

	var user struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return 0, fmt.Errorf("failed to decode identity response: %w", err)
	}
	if user.ID == 0 {
		return 0, domain.ErrUnauthorized
	}
	return user.ID, nil
}
