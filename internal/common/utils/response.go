// internal/common/utils/response.go
// Standardized API responses ensure consistency across all endpoints

package utils

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/imadgeboyega/kiekky-chat/internal/common/apperror"
)

// Response is the standard API response structure
type Response struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      string      `json:"code,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// Now formats the current time the way every payload carries it
func Now() string {
	return FormatTime(time.Now())
}

// FormatTime renders t as ISO-8601 in UTC
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// SuccessResponse sends a successful response
func SuccessResponse(w http.ResponseWriter, data interface{}, statusCode int) {
	RespondWithJSON(w, statusCode, Response{
		Success:   true,
		Data:      data,
		Timestamp: Now(),
	})
}

// MessageResponse sends a simple message response
func MessageResponse(w http.ResponseWriter, message string, statusCode int) {
	RespondWithJSON(w, statusCode, Response{
		Success:   true,
		Message:   message,
		Timestamp: Now(),
	})
}

// ErrorResponse sends an error response
func ErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	RespondWithJSON(w, statusCode, Response{
		Success:   false,
		Error:     message,
		Timestamp: Now(),
	})
}

// AppErrorResponse maps err through the error taxonomy. Server errors
// never leak their cause.
func AppErrorResponse(w http.ResponseWriter, err error) {
	appErr := apperror.From(err)
	message := appErr.Message
	if appErr.Kind == apperror.KindServer {
		message = "internal server error"
	}
	RespondWithJSON(w, appErr.Status(), Response{
		Success:   false,
		Error:     message,
		Code:      appErr.Code,
		Timestamp: Now(),
	})
}

// RespondWithJSON sends a JSON response with the specified status code and payload
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success":false,"error":"Error marshaling JSON"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
