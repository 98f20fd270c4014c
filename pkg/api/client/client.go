// Package client provides typed access to the heybe API for interactive
// tools and the browser-extension backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client calls the heybe API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:4000"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

// UserPayload mirrors the API's user projection.
type UserPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Guest bool   `json:"is_guest"`
}

// SessionPayload is the {token, user} pair returned by identity endpoints.
type SessionPayload struct {
	Token string       `json:"token"`
	User  *UserPayload `json:"user"`
}

// ItemPayload mirrors a saved product.
type ItemPayload struct {
	ID        string   `json:"id"`
	OwnerID   string   `json:"owner_id"`
	Name      string   `json:"name"`
	Price     string   `json:"price"`
	ImageURLs []string `json:"image_urls"`
	SourceURL string   `json:"source_url"`
	Site      string   `json:"site"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateGuest provisions an anonymous identity.
func (c *Client) CreateGuest(ctx context.Context) (SessionPayload, error) {
	var out SessionPayload
	err := c.do(ctx, http.MethodPost, "/guest", nil, "", &out)
	return out, err
}

// Register creates a permanent account.
func (c *Client) Register(ctx context.Context, email, password string) (SessionPayload, error) {
	var out SessionPayload
	err := c.do(ctx, http.MethodPost, "/register", credentials{Email: email, Password: password}, "", &out)
	return out, err
}

// Login authenticates a permanent account.
func (c *Client) Login(ctx context.Context, email, password string) (SessionPayload, error) {
	var out SessionPayload
	err := c.do(ctx, http.MethodPost, "/login", credentials{Email: email, Password: password}, "", &out)
	return out, err
}

// RegisterWithTransfer registers and claims the guest identified by
// guestToken.
func (c *Client) RegisterWithTransfer(ctx context.Context, guestToken, email, password string) (SessionPayload, error) {
	var out SessionPayload
	err := c.do(ctx, http.MethodPost, "/register-with-transfer", credentials{Email: email, Password: password}, guestToken, &out)
	return out, err
}

// LoginWithTransfer logs in and claims the guest identified by guestToken.
func (c *Client) LoginWithTransfer(ctx context.Context, guestToken, email, password string) (SessionPayload, error) {
	var out SessionPayload
	err := c.do(ctx, http.MethodPost, "/login-with-transfer", credentials{Email: email, Password: password}, guestToken, &out)
	return out, err
}

// SaveItem stores a product under the token's identity.
func (c *Client) SaveItem(ctx context.Context, token string, item ItemPayload) (ItemPayload, error) {
	var out ItemPayload
	err := c.do(ctx, http.MethodPost, "/items", item, token, &out)
	return out, err
}

// ListItems returns the token's saved products.
func (c *Client) ListItems(ctx context.Context, token string) ([]ItemPayload, error) {
	var out []ItemPayload
	err := c.do(ctx, http.MethodGet, "/items", nil, token, &out)
	return out, err
}

// DeleteItem removes one saved product.
func (c *Client) DeleteItem(ctx context.Context, token, itemID string) error {
	return c.do(ctx, http.MethodDelete, "/items/"+url.PathEscape(itemID), nil, token, nil)
}

type responseEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	var env responseEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return APIError{Status: resp.StatusCode}
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		return APIError{Status: resp.StatusCode, Message: env.Message}
	}
	if v != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, v); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}
