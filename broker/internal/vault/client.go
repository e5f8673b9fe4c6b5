// Package vault is the HTTP client for the credential vault's REST API.
// All payloads ride the vault's {code, message, data} envelope; passwords
// appear only in create bodies and in the dedicated password endpoint's
// response, never in list or get payloads.
package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/credkeeper/bridge"
	"github.com/hazyhaar/credkeeper/netsafe"
)

const defaultTimeout = 15 * time.Second

// Client talks to one vault server. Safe for use from a single goroutine;
// the broker owns it and serialises access.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// New validates the server URL and builds a client. The URL may point at a
// LAN host; self-hosted vaults usually do.
func New(serverURL string) (*Client, error) {
	if err := netsafe.ValidateServerURL(serverURL); err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	return &Client{
		baseURL: strings.TrimRight(serverURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}, nil
}

// SetToken installs the session token used on authenticated calls.
func (c *Client) SetToken(token string) { c.token = token }

// Token returns the current session token, empty when logged out.
func (c *Client) Token() string { return c.token }

// envelope is the vault's uniform response wrapper.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// registration is the vault's wire shape for a stored credential. IDs are
// numeric on the wire; the broker's API uses strings throughout, so they
// are formatted on the way out.
type registration struct {
	ID            uint64 `json:"id"`
	PlatformName  string `json:"platform_name"`
	EmailAddress  string `json:"email_address"`
	LoginUsername string `json:"login_username"`
	Notes         string `json:"notes"`
	HasPassword   bool   `json:"has_password"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

func (r registration) toBridge() bridge.Registration {
	return bridge.Registration{
		ID:            fmt.Sprintf("%d", r.ID),
		PlatformName:  r.PlatformName,
		EmailAddress:  r.EmailAddress,
		LoginUsername: r.LoginUsername,
		Notes:         r.Notes,
		HasPassword:   r.HasPassword,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// draftBody maps a broker draft to the vault's field names.
type draftBody struct {
	PlatformName  string `json:"platform_name"`
	EmailAddress  string `json:"email_address,omitempty"`
	LoginUsername string `json:"login_username,omitempty"`
	LoginPassword string `json:"login_password,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

func toDraftBody(d bridge.RegistrationDraft) draftBody {
	return draftBody{
		PlatformName:  d.PlatformName,
		EmailAddress:  d.EmailAddress,
		LoginUsername: d.LoginUsername,
		LoginPassword: d.Password,
		Notes:         d.Notes,
	}
}

// Login authenticates and installs the returned session token.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body := map[string]string{"username": username, "password": password}
	data, err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", body)
	if err != nil {
		return err
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("vault: decode login response: %w", err)
	}
	if out.AccessToken == "" {
		return fmt.Errorf("vault: login response missing access token")
	}
	c.token = out.AccessToken
	return nil
}

// Create stores a new registration. A duplicate for the same platform and
// identity comes back as *ConflictError carrying the existing record's ID.
func (c *Client) Create(ctx context.Context, draft bridge.RegistrationDraft) (bridge.Registration, error) {
	data, err := c.do(ctx, http.MethodPost, "/api/v1/platform-registrations/by-name", toDraftBody(draft))
	if err != nil {
		return bridge.Registration{}, err
	}
	var reg registration
	if err := json.Unmarshal(data, &reg); err != nil {
		return bridge.Registration{}, fmt.Errorf("vault: decode registration: %w", err)
	}
	return reg.toBridge(), nil
}

// List returns every registration, passwords excluded.
func (c *Client) List(ctx context.Context) ([]bridge.Registration, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v1/platform-registrations", nil)
	if err != nil {
		return nil, err
	}
	var regs []registration
	if err := json.Unmarshal(data, &regs); err != nil {
		return nil, fmt.Errorf("vault: decode registrations: %w", err)
	}
	out := make([]bridge.Registration, len(regs))
	for i, r := range regs {
		out[i] = r.toBridge()
	}
	return out, nil
}

// Get fetches one registration by ID.
func (c *Client) Get(ctx context.Context, id string) (bridge.Registration, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v1/platform-registrations/"+id, nil)
	if err != nil {
		return bridge.Registration{}, err
	}
	var reg registration
	if err := json.Unmarshal(data, &reg); err != nil {
		return bridge.Registration{}, fmt.Errorf("vault: decode registration: %w", err)
	}
	return reg.toBridge(), nil
}

// Password fetches the cleartext password of a registration.
func (c *Client) Password(ctx context.Context, id string) (string, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v1/platform-registrations/"+id+"/password", nil)
	if err != nil {
		return "", err
	}
	var out struct {
		Password string `json:"password"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("vault: decode password response: %w", err)
	}
	return out.Password, nil
}

// Update rewrites a registration's fields. A draft with only Password set
// updates just the password; the vault leaves omitted fields alone.
func (c *Client) Update(ctx context.Context, id string, draft bridge.RegistrationDraft) (bridge.Registration, error) {
	data, err := c.do(ctx, http.MethodPut, "/api/v1/platform-registrations/"+id, toDraftBody(draft))
	if err != nil {
		return bridge.Registration{}, err
	}
	var reg registration
	if err := json.Unmarshal(data, &reg); err != nil {
		return bridge.Registration{}, fmt.Errorf("vault: decode registration: %w", err)
	}
	return reg.toBridge(), nil
}

// Delete removes a registration.
func (c *Client) Delete(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/v1/platform-registrations/"+id, nil)
	return err
}

// do performs one request and unwraps the envelope. Non-2xx responses turn
// into *APIError, 409s into *ConflictError.
func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("vault: marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vault: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := netsafe.LimitedReadAll(resp.Body, netsafe.MaxResponseBody)
	if err != nil {
		return nil, fmt.Errorf("vault: read %s %s response: %w", method, path, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("vault: %s %s returned HTTP %d with unreadable body", method, path, resp.StatusCode)
	}

	if resp.StatusCode == http.StatusConflict {
		return nil, newConflictError(env)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Message: env.Message}
	}
	return env.Data, nil
}
