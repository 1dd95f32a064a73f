package metabase

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrAuth is returned when the session endpoint rejects the credentials.
	ErrAuth = errors.New("metabase: authentication failed")
	// ErrNotFound matches any APIError with HTTP status 404.
	ErrNotFound = errors.New("metabase: not found")
)

// APIError is a non-2xx response from the Metabase API.
type APIError struct {
	HTTPStatus int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.HTTPStatus)
	}
	if e.Path == "" {
		return fmt.Sprintf("API error (HTTP %d): %s", e.HTTPStatus, msg)
	}
	return fmt.Sprintf("API error (HTTP %d) %s %s: %s", e.HTTPStatus, e.Method, e.Path, msg)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.HTTPStatus == http.StatusNotFound
}

// CheckError returns an *APIError for non-2xx responses and nil otherwise.
// The body is consumed on error.
func CheckError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	apiErr := &APIError{HTTPStatus: resp.StatusCode}
	if resp.Request != nil {
		apiErr.Method = resp.Request.Method
		apiErr.Path = resp.Request.URL.Path
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr.Message = errorMessage(body)
	return apiErr
}

// errorMessage extracts a message from a Metabase error body, which is either
// plain text or an object with a "message" key.
func errorMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}
	var obj struct {
		Message string `json:"message"`
	}
	if strings.HasPrefix(trimmed, "{") && json.Unmarshal(body, &obj) == nil && obj.Message != "" {
		return obj.Message
	}
	if len(trimmed) > 200 {
		return trimmed[:200] + "..."
	}
	return strings.Trim(trimmed, `"`)
}
