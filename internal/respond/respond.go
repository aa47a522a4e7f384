// internal/respond/respond.go

// Package respond writes JSON API responses.
package respond

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"libradesk/internal/errs"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Error writes err as {"error": message, "kind": kind} with the status for its kind.
func Error(w http.ResponseWriter, err error) {
	JSON(w, errs.HTTPStatus(err), map[string]string{
		"error": err.Error(),
		"kind":  errs.KindOf(err).String(),
	})
}

// Decode reads a JSON request body into v. Malformed bodies are validation errors.
func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.Validation("malformed request body: %v", err)
	}
	return nil
}
