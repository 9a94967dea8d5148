package domain

import (
	"encoding/json"
	"net/http"
)

// ErrorEnvelope is the JSON body returned to callers for gateway-originated
// failures: {"error": true, "msg": "..."}.
type ErrorEnvelope struct {
	Error bool   `json:"error"`
	Msg   string `json:"msg"`
}

// NewErrorEnvelope builds an envelope with the error flag set.
func NewErrorEnvelope(msg string) ErrorEnvelope {
	return ErrorEnvelope{Error: true, Msg: msg}
}

// ErrPathNotAllowed is the envelope for a subpath missing from the allow-list.
func ErrPathNotAllowed(subpath string) ErrorEnvelope {
	return NewErrorEnvelope("you are not allowed to request " + subpath)
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
