package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"maatje/internal/util"
)

// AuthClient resolves the current authenticated user at the hosted auth
// provider. Implementations return an error when no user is signed in.
type AuthClient interface {
	CurrentUserID(ctx context.Context) (string, error)
}

// HTTPAuthClient queries the auth provider's user endpoint with the
// session's access token.
type HTTPAuthClient struct {
	baseURL     string
	anonKey     string
	accessToken string
	httpClient  *http.Client
}

// NewHTTPAuthClient constructs an auth client. anonKey is the provider's
// public API key; accessToken is the signed-in session token.
func NewHTTPAuthClient(baseURL, anonKey, accessToken string) *HTTPAuthClient {
	return &HTTPAuthClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		anonKey:     anonKey,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 5 * time.Second},
	}
}

// CurrentUserID returns the signed-in user's stable identifier.
func (c *HTTPAuthClient) CurrentUserID(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if c.anonKey != "" {
		req.Header.Set("apikey", c.anonKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("auth provider: %s", resp.Status)
	}
	var user struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return "", err
	}
	if user.ID == "" {
		return "", fmt.Errorf("auth provider returned empty user id")
	}
	return user.ID, nil
}

// resolveIdentity returns the authenticated identifier, or a fresh anonymous
// one on any failure. A new anonymous id is synthesized per failed attempt.
func resolveIdentity(ctx context.Context, auth AuthClient) string {
	if auth == nil {
		return util.AnonymousID()
	}
	id, err := auth.CurrentUserID(ctx)
	if err != nil || id == "" {
		return util.AnonymousID()
	}
	return id
}
