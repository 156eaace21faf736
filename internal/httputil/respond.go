// Package httputil provides JSON request and response helpers shared by
// the HTTP handlers and middleware.
package httputil

import (
	"encoding/json"
	"io"
	"net/http"

	svcerr "github.com/nitemap/nitemap/internal/errors"
	"github.com/nitemap/nitemap/internal/logging"
)

// maxRequestBytes bounds request bodies so a client cannot stream an
// unbounded payload into the decoder.
const maxRequestBytes = 1 << 20

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// ErrorBody is the wire shape of an error response.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	TraceID string         `json:"trace_id,omitempty"`
}

// WriteError maps an error to its HTTP representation. Errors outside
// the service error hierarchy become opaque 500s.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	se := svcerr.GetServiceError(err)
	if se == nil {
		se = svcerr.Internal("internal error", err)
	}
	WriteJSON(w, se.HTTPStatus, ErrorBody{
		Code:    string(se.Code),
		Message: se.Message,
		Details: se.Details,
		TraceID: logging.GetTraceID(r.Context()),
	})
}

// ReadJSON decodes the request body into dest, rejecting unknown fields
// and oversized payloads.
func ReadJSON(r *http.Request, dest any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return svcerr.Validation("invalid request body")
	}
	return nil
}
