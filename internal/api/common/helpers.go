package common

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/lightshow/lightshow/internal/middleware"
	"github.com/lightshow/lightshow/internal/protocol"
	"github.com/lightshow/lightshow/internal/scheduler"
)

var validate = validator.New()

// SendJSON sends a JSON response
func SendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// SendError sends a standardized error response
func SendError(w http.ResponseWriter, r *http.Request, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := middleware.ErrorResponse{
		Error: middleware.ErrorDetail{
			Code:      code,
			Message:   message,
			Details:   details,
			RequestID: middleware.GetRequestID(r.Context()),
		},
	}

	json.NewEncoder(w).Encode(response)
}

// DecodeJSON decodes and validates the request body
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var input T
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		SendError(w, r, http.StatusBadRequest, "INVALID_BODY", "Invalid JSON body", err.Error())
		return input, false
	}
	if err := validate.Struct(input); err != nil {
		var invalid *validator.InvalidValidationError
		if !errors.As(err, &invalid) {
			SendError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Request validation failed", err.Error())
			return input, false
		}
	}
	return input, true
}

// HandleControlError maps scheduler and plugin errors to responses. It
// reports whether an error was sent.
func HandleControlError(w http.ResponseWriter, r *http.Request, err error) bool {
	if err == nil {
		return false
	}

	var appErr *protocol.Error
	switch {
	case errors.Is(err, scheduler.ErrNoAnimation):
		SendError(w, r, http.StatusConflict, "NO_ANIMATION", "No animation is active", nil)
	case errors.As(err, &appErr) && appErr.Code == protocol.CodeInvalidParams:
		SendError(w, r, http.StatusBadRequest, "INVALID_PARAMETERS", appErr.Message, errorData(appErr))
	case errors.As(err, &appErr):
		SendError(w, r, http.StatusBadGateway, "PLUGIN_ERROR", appErr.Message, errorData(appErr))
	case errors.Is(err, protocol.ErrConfig):
		SendError(w, r, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, protocol.ErrTimeout):
		SendError(w, r, http.StatusGatewayTimeout, "PLUGIN_TIMEOUT", err.Error(), nil)
	case errors.Is(err, protocol.ErrTransport), errors.Is(err, protocol.ErrClosed), errors.Is(err, protocol.ErrProtocol):
		SendError(w, r, http.StatusBadGateway, "PLUGIN_UNAVAILABLE", err.Error(), nil)
	case errors.Is(err, scheduler.ErrStopped):
		SendError(w, r, http.StatusServiceUnavailable, "STOPPED", "Controller is shutting down", nil)
	default:
		SendError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), nil)
	}
	return true
}

func errorData(e *protocol.Error) interface{} {
	if len(e.Data) == 0 {
		return nil
	}
	return e.Data
}

// SendListResponse sends a standardized list response
func SendListResponse(w http.ResponseWriter, data interface{}, total int) {
	SendJSON(w, http.StatusOK, map[string]interface{}{
		"data":  data,
		"total": total,
	})
}
