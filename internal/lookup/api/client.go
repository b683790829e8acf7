// internal/lookup/api/client.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cadlive/livemap/pkg/core"
)

// Config holds API lookup client configuration.
type Config struct {
	BaseURL string
	APIKey  string
}

// Client handles account/unit lookups against the CAD web API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API lookup client.
func New(cfg Config) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthcheck checks if the CAD API is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthcheck", nil)
	if err != nil {
		return fmt.Errorf("healthcheck request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// accountResponse mirrors the CAD API lookup payload.
type accountResponse struct {
	AccountID   string              `json:"accountId"`
	DisplayName string              `json:"displayName"`
	Tier        core.PermissionTier `json:"permissionTier"`
	ActiveUnit  *core.Unit          `json:"activeUnit"`
}

// AccountByCanonicalID looks up a persistent account by its canonical
// identifier. Returns (nil, nil) when the account does not exist.
func (c *Client) AccountByCanonicalID(ctx context.Context, scheme core.IdentifierScheme, canonicalID string) (*core.ResolvedIdentity, error) {
	q := url.Values{}
	q.Set("scheme", string(scheme))
	q.Set("id", canonicalID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/accounts/lookup?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookup request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusNotFound:
		return nil, nil
	default:
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("lookup returned status %d", resp.StatusCode)
	}

	var acc accountResponse
	if err := json.NewDecoder(resp.Body).Decode(&acc); err != nil {
		return nil, fmt.Errorf("failed to decode lookup response: %w", err)
	}
	if acc.AccountID == "" {
		return nil, nil
	}

	return &core.ResolvedIdentity{
		AccountID:   acc.AccountID,
		DisplayName: acc.DisplayName,
		Tier:        acc.Tier,
		ActiveUnit:  acc.ActiveUnit,
	}, nil
}

// Close is a no-op; the client holds no persistent resources.
func (c *Client) Close() error {
	return nil
}
