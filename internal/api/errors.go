package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bpfgate/bpfgate/internal/engine"
	"github.com/bpfgate/bpfgate/internal/exec"
	"github.com/bpfgate/bpfgate/internal/storage"
	"github.com/bpfgate/bpfgate/internal/store"
)

// Error codes returned in API responses
const (
	ErrCodeSlotNotFound     = "SLOT_NOT_FOUND"
	ErrCodeImageUnavailable = "IMAGE_UNAVAILABLE"
	ErrCodeStorageError     = "STORAGE_ERROR"
	ErrCodePrepareFailed    = "PREPARE_FAILED"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeQueueFull        = "QUEUE_FULL"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// errUpdateQueueFull reports a dropped update trigger; the worker's queue is
// bounded and Submit never blocks.
var errUpdateQueueFull = errors.New("update queue is full")

// APIError represents a structured API error response
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// writeAPIError writes a structured error response with appropriate HTTP
// status. Every failure becomes a well-formed protocol response; nothing
// here terminates the process.
func writeAPIError(w http.ResponseWriter, err error) {
	var apiErr APIError
	statusCode := http.StatusInternalServerError

	switch {
	case errors.Is(err, storage.ErrSlotNotFound):
		apiErr = APIError{Code: ErrCodeSlotNotFound, Message: err.Error()}

	case errors.Is(err, store.ErrNotFound):
		apiErr = APIError{Code: ErrCodeImageUnavailable, Message: err.Error()}

	case errors.Is(err, storage.ErrNotActive):
		apiErr = APIError{Code: ErrCodeStorageError, Message: err.Error()}

	case errors.Is(err, engine.ErrPrepare):
		apiErr = APIError{Code: ErrCodePrepareFailed, Message: err.Error()}

	case errors.Is(err, exec.ErrQueueFull), errors.Is(err, errUpdateQueueFull):
		apiErr = APIError{Code: ErrCodeQueueFull, Message: err.Error()}
		statusCode = http.StatusServiceUnavailable

	default:
		apiErr = APIError{Code: ErrCodeInternalError, Message: err.Error()}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErr)
}

// writeValidationError writes a 400 Bad Request for malformed input.
func writeValidationError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(APIError{
		Code:    ErrCodeInvalidRequest,
		Message: message,
	})
}
