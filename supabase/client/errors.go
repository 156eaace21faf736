package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNoRows is returned when a single-row query or a conditional update
// matched nothing.
var ErrNoRows = errors.New("supabase: no rows")

// APIError is a structured error response from the Supabase API.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Hint       string `json:"hint,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("supabase API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("supabase API error %d", e.StatusCode)
}

// IsTransientAuth reports whether the error is the not-yet-authorized
// class: the gateway rejected a JWT that was issued moments ago and has
// not propagated yet. PostgREST signals these with 401 and PGRST30x codes.
func (e *APIError) IsTransientAuth() bool {
	if e.StatusCode != http.StatusUnauthorized {
		return false
	}
	if strings.HasPrefix(e.Code, "PGRST30") {
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "jwt") || strings.Contains(msg, "token")
}

// IsNotFound reports whether the error is a missing-row response.
func (e *APIError) IsNotFound() bool {
	// PGRST116: "JSON object requested, multiple (or no) rows returned".
	return e.StatusCode == http.StatusNotFound || e.Code == "PGRST116"
}

func parseAPIError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(body, apiErr); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.IsNotFound() {
		return fmt.Errorf("%w: %s", ErrNoRows, apiErr.Message)
	}
	return apiErr
}

// AsAPIError extracts an *APIError from an error chain, or nil.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}
