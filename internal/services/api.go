// Tracker client for making HTTP requests to the remote scrobble API
package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/desertthunder/scrobblex/internal/shared"
)

const (
	headerLicenseKey    = "x-license-key"
	headerProviderToken = "x-provider-token"
)

// TrackerClient implements [Tracker] over HTTP.
type TrackerClient struct {
	baseURL    string
	licenseKey string
	userAgent  string
	httpClient *http.Client
}

var _ Tracker = (*TrackerClient)(nil)

// NewTrackerClient creates a new tracker client from configuration.
//
// A nil client defaults to one with the configured timeout.
func NewTrackerClient(cfg shared.TrackerConfig, client *http.Client) *TrackerClient {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout.Duration}
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "scrobblex"
	}

	return &TrackerClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		licenseKey: cfg.LicenseKey,
		userAgent:  userAgent,
		httpClient: client,
	}
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// do performs a request and returns the raw response.
//
// Transport failures are returned wrapping [ErrUnreachable] unless ctx itself was cancelled.
func (c *TrackerClient) do(ctx context.Context, method, path, credential string, body []byte) (*APIResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(headerLicenseKey, c.licenseKey)
	if credential != "" {
		req.Header.Set(headerProviderToken, credential)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &APIError{Message: err.Error(), Err: ErrUnreachable}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "failed to read response: " + err.Error(), Err: ErrUnreachable}
	}

	return &APIResponse{StatusCode: resp.StatusCode, Headers: resp.Header, Body: data}, nil
}

// statusError classifies a non-2xx response. Unclassified codes fall back to the body's message.
func statusError(resp *APIResponse) error {
	msg := strings.TrimSpace(string(resp.Body))

	var decoded ScrobbleResponse
	if err := json.Unmarshal(resp.Body, &decoded); err == nil && decoded.ErrorMessage != "" {
		msg = decoded.ErrorMessage
	}

	sentinel := classifyStatus(resp.StatusCode)
	if sentinel == nil {
		sentinel = classifyMessage(msg)
	}

	return &APIError{StatusCode: resp.StatusCode, Message: msg, Err: sentinel}
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

// CheckCredentialValid implements [Tracker].
func (c *TrackerClient) CheckCredentialValid(ctx context.Context, credential string, provider Provider) (bool, error) {
	if credential == "" {
		return false, nil
	}

	query := url.Values{}
	query.Set("provider", string(provider))
	query.Set("key", credential)

	resp, err := c.do(ctx, http.MethodPost, "/api/scrobble/valid-key?"+query.Encode(), "", nil)
	if err != nil {
		return false, err
	}
	if !isSuccess(resp.StatusCode) {
		return false, statusError(resp)
	}

	var valid bool
	if err := json.Unmarshal(resp.Body, &valid); err != nil {
		return false, fmt.Errorf("%w: failed to decode credential check: %v", shared.ErrAPIRequest, err)
	}

	return valid, nil
}

// RemainingQuota implements [Tracker]. An empty credential has no quota and makes no call.
func (c *TrackerClient) RemainingQuota(ctx context.Context, credential string) (int, error) {
	if credential == "" {
		return 0, nil
	}

	resp, err := c.do(ctx, http.MethodGet, "/api/scrobble/rate-limit", credential, nil)
	if err != nil {
		return 0, err
	}
	if !isSuccess(resp.StatusCode) {
		return 0, statusError(resp)
	}

	var remaining int
	if err := json.Unmarshal(resp.Body, &remaining); err != nil {
		n, convErr := strconv.Atoi(strings.TrimSpace(string(resp.Body)))
		if convErr != nil {
			return 0, fmt.Errorf("%w: failed to decode rate limit: %v", shared.ErrAPIRequest, err)
		}
		remaining = n
	}

	return remaining, nil
}

// PostEvent implements [Tracker].
func (c *TrackerClient) PostEvent(ctx context.Context, payload *ScrobblePayload) (*ScrobbleResponse, error) {
	path := endpointFor(payload.Type)
	if path == "" {
		return nil, fmt.Errorf("%w: no endpoint for event type %q", shared.ErrInvalidArgument, payload.Type)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, path, payload.Credential, body)
	if err != nil {
		return nil, err
	}

	var decoded ScrobbleResponse
	decodeErr := json.Unmarshal(resp.Body, &decoded)

	if !isSuccess(resp.StatusCode) {
		if decodeErr == nil {
			return &decoded, statusError(resp)
		}
		return nil, statusError(resp)
	}

	if decodeErr != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "undecodable response: " + decodeErr.Error(), Err: ErrServerError}
	}

	if !decoded.Successful {
		return &decoded, &APIError{StatusCode: resp.StatusCode, Message: decoded.ErrorMessage, Err: classifyMessage(decoded.ErrorMessage)}
	}

	return &decoded, nil
}
