// Package httpapi provides the JSON envelope and request-validation
// helpers shared by the client and admin HTTP surfaces, adapted from the
// teacher's api/handlers/common.go onto gatewayerr.Error.
package httpapi

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/BaSui01/llmgateway/gatewayerr"
	"go.uber.org/zap"
)

// Response is the canonical JSON envelope for both success and error
// responses.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ErrorInfo is the wire shape of a gatewayerr.Error.
type ErrorInfo struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
	HTTPStatus int    `json:"http_status"`
}

// WriteJSON writes data as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a 200 response wrapping data.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// WriteError writes an error response derived from a *gatewayerr.Error,
// logging it at Error level if logger is non-nil.
func WriteError(w http.ResponseWriter, err *gatewayerr.Error, logger *zap.Logger) {
	status := err.HTTPStatus
	if status == 0 {
		status = gatewayerr.HTTPStatusFor(err.Kind)
	}

	if logger != nil {
		logger.Error("api error",
			zap.String("kind", string(err.Kind)),
			zap.String("message", err.Message),
			zap.Int("status", status),
			zap.Bool("retryable", err.Retryable),
			zap.Error(err.Cause),
		)
	}

	WriteJSON(w, status, Response{
		Success: false,
		Error: &ErrorInfo{
			Kind:       string(err.Kind),
			Message:    err.Message,
			Retryable:  err.Retryable,
			HTTPStatus: status,
		},
		Timestamp: time.Now(),
	})
}

// WriteErrorMessage writes a simple error response without an existing
// gatewayerr.Error value.
func WriteErrorMessage(w http.ResponseWriter, status int, kind gatewayerr.Kind, message string, logger *zap.Logger) {
	WriteError(w, gatewayerr.New(kind, message).WithHTTPStatus(status), logger)
}

// DecodeJSONBody decodes a JSON request body into dst, rejecting unknown
// fields and bodies larger than 1MB.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil {
		err := gatewayerr.New(gatewayerr.KindRequestContentInvalid, "request body is empty").WithHTTPStatus(http.StatusBadRequest)
		WriteError(w, err, logger)
		return err
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		apiErr := gatewayerr.New(gatewayerr.KindRequestContentInvalid, "invalid JSON body").
			WithCause(err).
			WithHTTPStatus(http.StatusBadRequest)
		WriteError(w, apiErr, logger)
		return apiErr
	}

	return nil
}

// ValidateContentType checks that the request declares application/json.
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		apiErr := gatewayerr.New(gatewayerr.KindRequestContentInvalid, "Content-Type must be application/json").
			WithHTTPStatus(http.StatusBadRequest)
		WriteError(w, apiErr, logger)
		return false
	}
	return true
}

// ValidateURL reports whether s is a well-formed http(s) URL.
func ValidateURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
