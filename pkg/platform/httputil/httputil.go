// Package httputil centralizes JSON response envelopes so every handler
// speaks the same dialect.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "github.com/Fazzolix/matningsabo/pkg/domain-errors"
)

// WriteJSON encodes v with the given status. Encoding failures are ignored;
// by then the status line is already on the wire.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the JSON error envelope. Internal
// and unavailable errors omit the message so store details never leak to
// clients.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := map[string]any{"error": string(code)}

	var de *dErrors.DomainError
	if errors.As(err, &de) && code != dErrors.CodeInternal && code != dErrors.CodeUnavailable {
		if de.Message != "" {
			body["error_description"] = de.Message
		}
		if len(de.Details) > 0 {
			body["errors"] = de.Details
		}
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), body)
}
