package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"shopsync/internal/model"
	"shopsync/internal/transport"
)

// TokenVerifier checks a bearer token and returns the user it belongs
// to.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// AuthClient verifies tokens against the identity service.
type AuthClient struct {
	httpClient *http.Client
	authURL    string
}

// NewAuthClient creates a verifier for the given identity service URL.
func NewAuthClient(authURL string, httpClient *http.Client) (*AuthClient, error) {
	if authURL == "" {
		return nil, fmt.Errorf("auth URL is required")
	}
	if httpClient == nil {
		httpClient = transport.NewClient(10 * time.Second)
	}
	return &AuthClient{
		httpClient: httpClient,
		authURL:    strings.TrimSuffix(authURL, "/"),
	}, nil
}

// Verify calls GET /verify with the bearer token. A 5xx from the
// identity service is an upstream failure, not a rejection; any other
// non-200 means the token is not acceptable.
func (c *AuthClient) Verify(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.authURL+"/verify", nil)
	if err != nil {
		return "", fmt.Errorf("building verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("verifying token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return "", model.NewUpstreamError("auth", fmt.Errorf("identity service returned %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return "", model.NewUnauthorizedError("invalid or expired token")
	}

	var body struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding verify response: %w", err)
	}
	if body.UserID == "" {
		return "", model.NewUnauthorizedError("token resolved to no user")
	}
	return body.UserID, nil
}
