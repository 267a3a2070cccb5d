// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"
)

// Error codes of the JSON error body.
const (
	codeBadRequest      = "bad_request"
	codePayloadTooLarge = "payload_too_large"
	codeParseError      = "parse_error"
	codeInvalidConfig   = "invalid_config"
	codeUnknownStage    = "unknown_stage"
	codeNotWatching     = "not_watching"
	codeNotLoaded       = "not_loaded"
	codeInternal        = "internal_error"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorBody{Error: code, Detail: detail})
}
