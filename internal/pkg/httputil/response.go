package httputil

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator"
)

// Payload is the body of a successful response. The "success" key is set
// by the writer.
type Payload map[string]any

// ErrorResponse is the standard error envelope for all API errors.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

var validate = newValidator()

// newValidator reports fields by their JSON names so messages match the
// request body the client sent.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[httputil] JSON encode error: %v", err)
	}
}

// OK writes a 200 success envelope with the given payload merged in.
func OK(w http.ResponseWriter, p Payload) {
	JSON(w, http.StatusOK, withSuccess(p))
}

// Created writes a 201 success envelope.
func Created(w http.ResponseWriter, p Payload) {
	JSON(w, http.StatusCreated, withSuccess(p))
}

func withSuccess(p Payload) Payload {
	out := Payload{"success": true}
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Error writes a JSON error envelope.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// ErrorCode writes a JSON error envelope with a machine-readable code.
func ErrorCode(w http.ResponseWriter, status int, message, code string, details any) {
	JSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}

// BadRequest writes a 400 error.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message)
}

// NotFound writes a 404 error.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, message)
}

// ServerError writes a 500 error carrying the underlying message. Upstream
// and datastore messages are passed through to the caller as-is.
func ServerError(w http.ResponseWriter, err error) {
	log.Printf("[httputil] server error: %v", err)
	Error(w, http.StatusInternalServerError, err.Error())
}

// Decode reads JSON from the request body into dst.
// Returns false and writes a 400 response if parsing fails.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		BadRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// Validate checks struct tags on v. Returns false and writes a 400 response
// listing every violated field.
func Validate(w http.ResponseWriter, v any) bool {
	err := validate.Struct(v)
	if err == nil {
		return true
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		BadRequest(w, err.Error())
		return false
	}
	BadRequest(w, ValidationMessage(verrs))
	return false
}

// ValidationMessage renders validation errors as one human-readable line.
func ValidationMessage(errs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		field := err.Field()
		switch err.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "email":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid email address", field))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, err.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", field, err.Param()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must contain at least %s item(s)", field, err.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is not valid", field))
		}
	}
	return strings.Join(msgs, ", ")
}

// Attachment serves data as a downloadable file.
func Attachment(w http.ResponseWriter, filename, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Printf("[httputil] attachment write error: %v", err)
	}
}
