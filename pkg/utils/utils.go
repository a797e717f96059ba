package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sigweihq/chainsync/pkg/constants"
)

func CreateHTTPClientWithTimeouts() *http.Client {
	return &http.Client{
		Timeout: constants.HTTPClientTimeout,
		Transport: &http.Transport{
			TLSHandshakeTimeout:   constants.TLSHandshakeTimeout,
			ResponseHeaderTimeout: constants.ResponseHeaderTimeout,
			ExpectContinueTimeout: constants.ExpectContinueTimeout,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse // Disable redirects to prevent redirect-based SSRF
		},
	}
}

var localPrefixes = []string{"localhost", "127.0.0.1", "[::1]"}

// ValidateEndpointURL validates that an RPC, indexer or wallet bridge URL is secure
// Returns error if URL doesn't use https:// or wss:// (except for localhost/127.0.0.1 for testing)
func ValidateEndpointURL(url string) error {
	if strings.HasPrefix(url, "https://") || strings.HasPrefix(url, "wss://") {
		return nil
	}

	// Allow plain http/ws to loopback for testing
	for _, scheme := range []string{"http://", "ws://"} {
		for _, host := range localPrefixes {
			if strings.HasPrefix(url, scheme+host) {
				return nil
			}
		}
	}
	return fmt.Errorf("endpoint URL must use HTTPS or WSS: %s", url)
}

// HTTPError represents an HTTP error with status code and response body
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Body       []byte
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	if len(e.Body) > 0 {
		// Try to parse as JSON error
		var errResp struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(e.Body, &errResp); err == nil {
			if errResp.Error != "" {
				return fmt.Sprintf("%s request failed with status %d: %s", e.Endpoint, e.StatusCode, errResp.Error)
			}
			if errResp.Message != "" {
				return fmt.Sprintf("%s request failed with status %d: %s", e.Endpoint, e.StatusCode, errResp.Message)
			}
		}
		return fmt.Sprintf("%s request failed with status %d: %s", e.Endpoint, e.StatusCode, string(e.Body))
	}
	return fmt.Sprintf("%s request failed with status %d", e.Endpoint, e.StatusCode)
}

// IsRetryable reports whether the server might answer differently later
func (e *HTTPError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// MakeJSONRequest is a generic helper for making HTTP requests with JSON payloads
// It handles marshaling, extra headers, and response decoding
func MakeJSONRequest[T any](
	ctx context.Context,
	client *http.Client,
	method string,
	url string,
	requestBody any,
	headers map[string]string,
	endpointName string, // e.g., "graphql" - used in error messages
) (*T, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		jsonBody, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	// Create HTTP request
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	// Execute request
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s request: %w", endpointName, err)
	}
	defer resp.Body.Close()

	limitedReader := io.LimitReader(resp.Body, int64(constants.MaxResponseBodySize))

	// Check status code
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(limitedReader)
		return nil, &HTTPError{Endpoint: endpointName, StatusCode: resp.StatusCode, Body: body}
	}

	// Decode response
	var result T
	if err := json.NewDecoder(limitedReader).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", endpointName, err)
	}

	return &result, nil
}
