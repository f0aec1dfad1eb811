// Package hass is a client for the Home Assistant REST API.
package hass

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hadeploy/hadeploy/internal/logging"
)

const userAgent = "hadeploy/1.0"

// maxErrorBody bounds how much of an error response is kept in the error.
const maxErrorBody = 512

// Client talks to a Home Assistant instance using a long-lived access token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// New creates a Client for the given base URL (without the /api suffix).
func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// newRequest builds a request against /api/<endpoint> with auth headers set.
func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	url := c.baseURL + "/api/" + strings.TrimLeft(endpoint, "/")

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	return req, nil
}

// do executes req and decodes a 2xx JSON response into out when non-nil.
func (c *Client) do(req *http.Request, out any) error {
	logging.Debug("hass").Str("method", req.Method).Str("url", req.URL.Path).Msg("api request")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// APIStatus is the body of GET /api/.
type APIStatus struct {
	Message string `json:"message"`
}

// CheckAPI verifies the API answers with its well-formed status message.
func (c *Client) CheckAPI(ctx context.Context) (*APIStatus, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "", nil)
	if err != nil {
		return nil, err
	}
	var status APIStatus
	if err := c.do(req, &status); err != nil {
		return nil, err
	}
	if status.Message == "" {
		return nil, fmt.Errorf("api answered without a status message")
	}
	return &status, nil
}

// InstanceConfig is the subset of GET /api/config the workflow cares about.
type InstanceConfig struct {
	Version      string `json:"version"`
	LocationName string `json:"location_name"`
	State        string `json:"state"`
	ConfigDir    string `json:"config_dir"`
}

// GetConfig returns the instance configuration.
func (c *Client) GetConfig(ctx context.Context) (*InstanceConfig, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "config", nil)
	if err != nil {
		return nil, err
	}
	var cfg InstanceConfig
	if err := c.do(req, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigCheck is the result of POST /api/config/core/check_config.
type ConfigCheck struct {
	Result string `json:"result"`
	Errors string `json:"errors"`
}

// Valid reports whether the check passed.
func (r ConfigCheck) Valid() bool {
	return r.Result == "valid" || r.Result == "ok"
}

// CheckConfig asks the instance to validate its current configuration.
func (c *Client) CheckConfig(ctx context.Context) (*ConfigCheck, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "config/core/check_config", nil)
	if err != nil {
		return nil, err
	}
	var check ConfigCheck
	if err := c.do(req, &check); err != nil {
		return nil, err
	}
	return &check, nil
}

// CallService invokes a service such as automation.reload.
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	endpoint := fmt.Sprintf("services/%s/%s", domain, service)
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, data)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// GetErrorLog fetches the instance error log. A 404 yields an empty log,
// some installation types do not expose the endpoint.
func (c *Client) GetErrorLog(ctx context.Context) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "error_log", nil)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read error log: %w", err)
	}
	return string(body), nil
}
