package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// NewJSONRequest creates a JSON HTTP request with proper headers.
func NewJSONRequest(method, target string, body interface{}) (*http.Request, error) {
	var bodyReader io.Reader

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// NewFormRequest creates a form-encoded POST request, the encoding most
// Mastodon write endpoints accept.
func NewFormRequest(target string, form url.Values) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

// APIError is a non-2xx response from the server, with the decoded error
// message when the body carried one.
type APIError struct {
	StatusCode int
	Message    string
	RawBody    string
	Timestamp  time.Time
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// ParseAPIError creates an APIError from a response status and body.
// Mastodon-compatible servers report errors as {"error": "...", "error_description": "..."}.
func ParseAPIError(statusCode int, body string) *APIError {
	apiErr := &APIError{
		StatusCode: statusCode,
		Message:    http.StatusText(statusCode),
		RawBody:    body,
		Timestamp:  time.Now(),
	}

	var serverErr struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if err := json.Unmarshal([]byte(body), &serverErr); err == nil {
		if serverErr.Error != "" {
			apiErr.Message = serverErr.Error
		}
		if serverErr.Description != "" {
			apiErr.Message += ": " + serverErr.Description
		}
	}

	return apiErr
}

// ProcessResponse reads and closes the response body, converting non-2xx
// statuses into an *APIError.
func ProcessResponse(resp *http.Response) ([]byte, error) {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, ParseAPIError(resp.StatusCode, string(body))
	}

	return body, nil
}

// ProcessJSONResponse processes a response and unmarshals its JSON body.
func ProcessJSONResponse(resp *http.Response, target interface{}) error {
	body, err := ProcessResponse(resp)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}

	return nil
}

// IsRetryableError reports whether an error should trigger a retry.
func IsRetryableError(err error) bool {
	if apiErr, ok := err.(*APIError); ok {
		return retryableStatus(apiErr.StatusCode)
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "temporary")
}
