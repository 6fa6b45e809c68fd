// Package core is the HTTP chassis: response envelopes, request decoding,
// and the middleware stack shared by every route.
package core

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"backburner/internal/types"
)

// maxRequestBodySize caps request bodies at 1 MB.
const maxRequestBodySize = 1 << 20

// errCodeValidationInvalidJSON covers malformed request bodies. Local to the
// chassis layer; domain code never produces it.
const errCodeValidationInvalidJSON types.ErrorCode = "validation_invalid_json"

// APIResponse is the envelope for successful responses.
type APIResponse struct {
	Data any `json:"data,omitempty"`
}

// APIErrorResponse is the envelope for error responses.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the structured error information returned to clients.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// JSON writes a JSON response with the given status code and payload.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(APIErrorResponse{
			Error: ErrorDetail{
				Code:      string(types.ErrCodeInternalUnexpected),
				Message:   "failed to marshal response",
				RequestID: types.GetRequestID(r.Context()),
			},
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error writes an error response. AppErrors map to their HTTP status and
// surface their code and message; anything else becomes an opaque 500 so
// internal details never leak to clients.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	requestID := types.GetRequestID(r.Context())

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		JSON(w, r, appErr.HTTPStatus(), APIErrorResponse{
			Error: ErrorDetail{
				Code:      string(appErr.Code),
				Message:   appErr.Message,
				Details:   appErr.Details,
				RequestID: requestID,
			},
		})
		return
	}

	JSON(w, r, http.StatusInternalServerError, APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(types.ErrCodeInternalUnexpected),
			Message:   "an unexpected error occurred",
			RequestID: requestID,
		},
	})
}

// DecodeJSON reads the request body into dst. Bodies are size-capped,
// unknown fields are rejected, and the body must hold exactly one JSON
// value. Failures return a 400-mapped AppError.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return types.NewAppError(errCodeValidationInvalidJSON, "request body must not be empty", err)
		default:
			return types.NewAppError(errCodeValidationInvalidJSON, "invalid JSON in request body", err)
		}
	}
	if dec.More() {
		return types.NewAppError(errCodeValidationInvalidJSON, "request body must contain a single JSON object", nil)
	}

	return nil
}
