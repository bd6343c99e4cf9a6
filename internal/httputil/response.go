package httputil

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	svcerrors "github.com/conthop/backend/internal/errors"
	"github.com/conthop/backend/internal/logging"
)

const maxRequestBodyBytes = 1 << 20

// ErrorBody is the JSON envelope for every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes an error without exposing its cause.
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	TraceID string                 `json:"trace_id,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteErrorResponse writes the standard error envelope.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]interface{}) {
	body := ErrorBody{Error: ErrorDetail{Code: code, Message: message, Details: details}}
	if r != nil {
		body.Error.TraceID = logging.GetTraceID(r.Context())
	}
	WriteJSON(w, status, body)
}

// WriteError writes an error envelope with a code derived from status.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteErrorResponse(w, nil, status, codeForStatus(status), message, nil)
}

// WriteServiceError maps err onto the error envelope. Errors outside the
// taxonomy become a generic 500 and their text is not written.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := svcerrors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = svcerrors.Internal("", err)
	}
	WriteErrorResponse(w, r, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)
}

// BadRequest writes a 400.
func BadRequest(w http.ResponseWriter, message string) {
	if message == "" {
		message = "bad request"
	}
	WriteError(w, http.StatusBadRequest, message)
}

// Unauthorized writes a 401.
func Unauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "unauthorized"
	}
	WriteError(w, http.StatusUnauthorized, message)
}

// Forbidden writes a 403.
func Forbidden(w http.ResponseWriter, message string) {
	if message == "" {
		message = "forbidden"
	}
	WriteError(w, http.StatusForbidden, message)
}

// NotFound writes a 404.
func NotFound(w http.ResponseWriter, message string) {
	if message == "" {
		message = "not found"
	}
	WriteError(w, http.StatusNotFound, message)
}

// InternalError writes a 500.
func InternalError(w http.ResponseWriter, message string) {
	if message == "" {
		message = "internal server error"
	}
	WriteError(w, http.StatusInternalServerError, message)
}

// DecodeJSON decodes the request body into v, writing a 400 on failure.
// Unknown fields are rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil {
		BadRequest(w, "request body required")
		return false
	}
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		BadRequest(w, "invalid request body")
		return false
	}
	return true
}

// PathInt64 parses a positive integer route variable.
func PathInt64(r *http.Request, name string) (int64, bool) {
	raw := strings.TrimSpace(mux.Vars(r)[name])
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return string(svcerrors.CodeInvalidArgument)
	case http.StatusUnauthorized:
		return string(svcerrors.CodeUnauthorized)
	case http.StatusForbidden:
		return string(svcerrors.CodeForbidden)
	case http.StatusNotFound:
		return string(svcerrors.CodeNotFound)
	case http.StatusConflict:
		return string(svcerrors.CodeConflict)
	case http.StatusTooManyRequests:
		return string(svcerrors.CodeRateLimitExceeded)
	default:
		return string(svcerrors.CodeInternal)
	}
}
