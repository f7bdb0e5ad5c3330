package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mrpasztoradam/goadsdev"
	"github.com/mrpasztoradam/goadsdev/internal/ads"
	"github.com/mrpasztoradam/goadsdev/internal/symbols"
)

// Error codes
const (
	ErrCodeSymbolNotFound = "SYMBOL_NOT_FOUND"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeTypeMismatch   = "TYPE_MISMATCH"
	ErrCodeWriteFailed    = "WRITE_FAILED"
	ErrCodeWatchLimit     = "WATCH_LIMIT_REACHED"
	ErrCodeInvalidState   = "INVALID_STATE"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeInternalError  = "INTERNAL_ERROR"
	ErrCodeBatchExceeded  = "BATCH_SIZE_EXCEEDED"
)

// HTTPError represents an HTTP error with status code and error response
type HTTPError struct {
	StatusCode int
	Response   ErrorResponse
}

func (e HTTPError) Error() string {
	return e.Response.Error.Message
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, code, message string, details map[string]any) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Response: ErrorResponse{
			Error: ErrorDetail{
				Code:    code,
				Message: message,
				Details: details,
			},
		},
	}
}

func NewSymbolNotFoundError(symbol string) *HTTPError {
	return NewHTTPError(
		http.StatusNotFound,
		ErrCodeSymbolNotFound,
		"Symbol not found in device",
		map[string]any{"symbol": symbol},
	)
}

func NewInvalidRequestError(message string) *HTTPError {
	return NewHTTPError(http.StatusBadRequest, ErrCodeInvalidRequest, message, nil)
}

func NewTypeMismatchError(symbol, expected, got string) *HTTPError {
	return NewHTTPError(
		http.StatusBadRequest,
		ErrCodeTypeMismatch,
		"Type mismatch when writing symbol",
		map[string]any{
			"symbol":   symbol,
			"expected": expected,
			"got":      got,
		},
	)
}

func NewInvalidStateError(state string) *HTTPError {
	return NewHTTPError(
		http.StatusBadRequest,
		ErrCodeInvalidState,
		"Unknown or invalid ADS state",
		map[string]any{"state": state},
	)
}

func NewNotFoundError(message string) *HTTPError {
	return NewHTTPError(http.StatusNotFound, ErrCodeNotFound, message, nil)
}

func NewInternalError(message string) *HTTPError {
	return NewHTTPError(http.StatusInternalServerError, ErrCodeInternalError, message, nil)
}

func NewBatchSizeExceededError(requested, max int) *HTTPError {
	return NewHTTPError(
		http.StatusBadRequest,
		ErrCodeBatchExceeded,
		"Batch size exceeds maximum allowed",
		map[string]any{
			"requested": requested,
			"maximum":   max,
		},
	)
}

// fromDeviceError maps a device or symbol error onto an HTTP error, keeping
// the ADS result code the same failure would produce on the wire.
func fromDeviceError(symbol string, err error) *HTTPError {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}

	var (
		notFound *symbols.SymbolNotFoundError
		mismatch *symbols.TypeMismatchError
	)
	switch {
	case errors.As(err, &notFound):
		return NewSymbolNotFoundError(notFound.Name)
	case errors.As(err, &mismatch):
		return NewTypeMismatchError(symbol, mismatch.Type.String(), mismatch.Value)
	}

	code := goadsdev.ResultCode(err)
	status := http.StatusInternalServerError
	switch code {
	case ads.ErrDeviceInvalidSize, ads.ErrDeviceInvalidData, ads.ErrDeviceInvalidParam:
		status = http.StatusBadRequest
	case ads.ErrDeviceInvalidIndexGroup, ads.ErrDeviceInvalidIndexOffset:
		status = http.StatusNotFound
	}
	return NewHTTPError(status, ErrCodeWriteFailed, err.Error(), map[string]any{
		"symbol":      symbol,
		"ads_error":   uint32(code),
		"ads_message": code.Error(),
	})
}

// WriteError writes an error response to the HTTP response writer
func WriteError(w http.ResponseWriter, err error) {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		httpErr = NewInternalError(err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpErr.StatusCode)
	json.NewEncoder(w).Encode(httpErr.Response)
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}
