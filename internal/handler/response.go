package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON or writeError so the API has one
// error shape:
//   {"error": "not_found", "message": "ooo not found with id abc123"}
// 401s also carry "loginUrl" so the frontend knows where to restart sign-in.

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/blockful/backoffice/internal/apperror"
	"github.com/blockful/backoffice/internal/auth"
)

// maxJSONBody caps JSON request bodies. Uploads go through multipart and
// have their own limit.
const maxJSONBody = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error    string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message  string `json:"message"` // Human-readable description
	Field    string `json:"field,omitempty"`
	LoginURL string `json:"loginUrl,omitempty"`
}

// validate checks request payloads. Field names in errors come from the
// json tags so they match what the client sent.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// writeJSON sends a JSON response with the given status code.
// Headers must be set before WriteHeader; anything set after is ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// errors.Is walks the whole chain, so a service returning
// fmt.Errorf("creating ooo: %w", apperror.ValidationFailed(...)) still maps
// to 400. Anything that isn't an *apperror.AppError is a 500 with a generic
// message; raw errors can leak SQL or file paths.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	resp := ErrorResponse{Error: "internal_error", Message: appErr.Message, Field: appErr.Field}
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, apperror.ErrValidation):
		status = http.StatusBadRequest
		resp.Error = "validation_error"
	case errors.Is(err, apperror.ErrNotFound):
		status = http.StatusNotFound
		resp.Error = "not_found"
	case errors.Is(err, apperror.ErrForbidden):
		status = http.StatusForbidden
		resp.Error = "forbidden"
	case errors.Is(err, apperror.ErrConflict):
		status = http.StatusConflict
		resp.Error = "conflict"
	case errors.Is(err, apperror.ErrUnauthorized):
		status = http.StatusUnauthorized
		resp.Error = "unauthorized"
		resp.LoginURL = auth.LoginURL
	}

	writeJSON(w, status, resp)
}

// decodeJSON reads r's body into dst and validates it. Errors are
// apperror.ValidationFailed so writeError turns them into 400s.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "Invalid JSON body")
	}
	return validateStruct(dst)
}

// validateStruct runs the validate tags on v and reports the first failure.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperror.ValidationFailed("body", "Invalid request")
	}

	fe := fieldErrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return apperror.ValidationFailed(field, fmt.Sprintf("%s is required", field))
	case "email":
		return apperror.ValidationFailed(field, "Invalid email format")
	case "max":
		return apperror.ValidationFailed(field, fmt.Sprintf("%s must be %s characters or less", field, fe.Param()))
	case "len":
		return apperror.ValidationFailed(field, fmt.Sprintf("%s must be %s characters", field, fe.Param()))
	case "oneof":
		return apperror.ValidationFailed(field, fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
	default:
		return apperror.ValidationFailed(field, fmt.Sprintf("Invalid %s", field))
	}
}

// queryInt reads an integer query parameter, returning def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(name, fmt.Sprintf("%s must be an integer", name))
	}
	return n, nil
}

// queryBool reads an optional boolean query parameter.
func queryBool(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperror.ValidationFailed(name, fmt.Sprintf("%s must be true or false", name))
	}
	return &b, nil
}

// parseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperror.ValidationFailed(field, invalidDateMessage(field))
}

func invalidDateMessage(field string) string {
	switch field {
	case "startDate":
		return "Invalid start date"
	case "endDate":
		return "Invalid end date"
	case "invoiceDate":
		return "Invalid invoice date"
	default:
		return "Invalid " + field
	}
}
