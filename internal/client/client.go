// Package client is a typed HTTP client for the rainfall API. Every response
// is mapped onto the apperrors taxonomy so callers never inspect status codes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"rainfall-dashboard/internal/apperrors"
	"rainfall-dashboard/internal/rainfall"
)

// maxResponseSize bounds JSON body reads. The export stream is not bounded.
const maxResponseSize int64 = 32 << 20

// RequestIDHeader carries a per-request identifier for log correlation.
const RequestIDHeader = "X-Request-ID"

// Authorizer attaches credentials to outbound requests.
type Authorizer interface {
	Authorize(*http.Request) error
}

// Client talks to one rainfall server.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	auth       Authorizer
}

// New creates a Client. A nil httpClient uses http.DefaultClient.
func New(baseURL string, auth Authorizer, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("server url %q must be http or https", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: parsed, httpClient: httpClient, auth: auth}, nil
}

// LoginResponse is the wire format of POST /login.
type LoginResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResponse, error) {
	body := map[string]string{"username": username, "password": password}
	var result LoginResponse
	if err := c.call(ctx, http.MethodPost, "/login", body, false, &result); err != nil {
		return LoginResponse{}, fmt.Errorf("login: %w", err)
	}
	return result, nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, username, password, role string) error {
	body := map[string]string{"username": username, "password": password, "role": role}
	if err := c.call(ctx, http.MethodPost, "/register", body, false, nil); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return nil
}

// Records fetches the full measurement collection in server order.
func (c *Client) Records(ctx context.Context) ([]rainfall.Record, error) {
	var result []rainfall.Record
	if err := c.call(ctx, http.MethodGet, "/data", nil, true, &result); err != nil {
		return nil, fmt.Errorf("records: %w", err)
	}
	if result == nil {
		result = []rainfall.Record{}
	}
	return result, nil
}

// Analytics fetches the server-computed summary.
func (c *Client) Analytics(ctx context.Context) (rainfall.Summary, error) {
	var result rainfall.Summary
	if err := c.call(ctx, http.MethodGet, "/analytics", nil, true, &result); err != nil {
		return rainfall.Summary{}, fmt.Errorf("analytics: %w", err)
	}
	return result, nil
}

// CreateRecord issues POST /data.
func (c *Client) CreateRecord(ctx context.Context, input rainfall.Input) (rainfall.Record, error) {
	var result rainfall.Record
	if err := c.call(ctx, http.MethodPost, "/data", input, true, &result); err != nil {
		return rainfall.Record{}, fmt.Errorf("create record: %w", err)
	}
	return result, nil
}

// UpdateRecord issues PUT /data/{id}.
func (c *Client) UpdateRecord(ctx context.Context, id rainfall.RecordID, input rainfall.Input) (rainfall.Record, error) {
	var result rainfall.Record
	if err := c.call(ctx, http.MethodPut, "/data/"+id.String(), input, true, &result); err != nil {
		return rainfall.Record{}, fmt.Errorf("update record %s: %w", id, err)
	}
	return result, nil
}

// DeleteRecord issues DELETE /data/{id}.
func (c *Client) DeleteRecord(ctx context.Context, id rainfall.RecordID) error {
	if err := c.call(ctx, http.MethodDelete, "/data/"+id.String(), nil, true, nil); err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return nil
}

// Export opens the CSV export stream. The caller closes it.
func (c *Client) Export(ctx context.Context) (io.ReadCloser, error) {
	response, err := c.do(ctx, http.MethodGet, "/export", nil, true)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return response.Body, nil
}

func (c *Client) call(ctx context.Context, method, path string, body any, authenticated bool, target any) error {
	response, err := c.do(ctx, method, path, body, authenticated)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if target == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, maxResponseSize))
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return apperrors.Wrap(apperrors.CodeTransient, "Connection dropped while reading the response", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return apperrors.Wrap(apperrors.CodeRejected, "Server sent an unreadable response", err)
	}
	return nil
}

// do sends the request and returns the response only for 2xx statuses.
func (c *Client) do(ctx context.Context, method, path string, body any, authenticated bool) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	endpoint := c.baseURL.JoinPath(path)
	request, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	request.Header.Set(RequestIDHeader, uuid.NewString())
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		if c.auth == nil {
			return nil, apperrors.New(apperrors.CodeAuthentication, "Not signed in")
		}
		if err := c.auth.Authorize(request); err != nil {
			return nil, err
		}
	}
	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeTransient, "Could not reach the server", err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		defer response.Body.Close()
		return nil, statusError(response)
	}
	return response, nil
}

func statusError(response *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	_ = json.Unmarshal(data, &payload)
	message := strings.TrimSpace(payload.Error)
	cause := fmt.Errorf("HTTP %d", response.StatusCode)

	switch response.StatusCode {
	case http.StatusUnauthorized:
		return apperrors.Wrap(apperrors.CodeAuthentication, orDefault(message, "Session expired, please log in again"), cause)
	case http.StatusForbidden:
		return apperrors.Wrap(apperrors.CodeAuthorization, orDefault(message, "Admin access required"), cause)
	case http.StatusUnprocessableEntity:
		return apperrors.Wrap(apperrors.CodeValidation, orDefault(message, "Invalid input"), cause)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return apperrors.Wrap(apperrors.CodeTransient, orDefault(message, "Server temporarily unavailable"), cause)
	}
	return apperrors.Wrap(apperrors.CodeRejected, orDefault(message, fmt.Sprintf("Request failed (HTTP %d)", response.StatusCode)), cause)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
