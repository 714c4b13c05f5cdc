package vk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultAPIBase = "https://api.vk.com/method"
	requestTimeout = 15 * time.Second
)

// Client calls VK community API methods with the configured token.
type Client struct {
	baseURL     string
	accessToken string
	apiVersion  string
	http        *http.Client
}

// NewClient constructs a VK API client. baseURL is overridable for tests.
func NewClient(accessToken, apiVersion, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultAPIBase
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		apiVersion:  apiVersion,
		http:        &http.Client{Timeout: requestTimeout},
	}
}

type apiEnvelope struct {
	Response json.RawMessage `json:"response"`
	Error    *apiError       `json:"error"`
}

type apiError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

// Call invokes one VK API method with form-encoded params and returns the
// raw response payload. VK error envelopes become Go errors.
func (c *Client) Call(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	form := url.Values{}
	for key, values := range params {
		form[key] = values
	}
	form.Set("access_token", c.accessToken)
	form.Set("v", c.apiVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("call %s: unexpected status %s", method, resp.Status)
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	if envelope.Error != nil {
		return nil, fmt.Errorf("vk api error %d: %s", envelope.Error.Code, envelope.Error.Message)
	}
	return envelope.Response, nil
}

// Close releases pooled transport connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}
