// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/henteko/maycast-recorder-sub002/internal/domain"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeDomainError maps a domain error onto HTTP status + {error, code}.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		notFound    domain.ErrNotFound
		transition  domain.ErrInvalidTransition
		invalidOp   domain.ErrInvalidOperation
		invalidArg  domain.ErrInvalidArgument
		denied      domain.ErrAccessDenied
		unavailable domain.ErrStorageUnavailable
	)
	switch {
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Code: "not_found"})
	case errors.As(err, &transition):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "invalid_transition"})
	case errors.As(err, &invalidOp):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "invalid_operation"})
	case errors.As(err, &invalidArg):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "invalid_argument"})
	case errors.As(err, &denied):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error(), Code: "access_denied"})
	case errors.As(err, &unavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error(), Code: "storage_unavailable"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

// writeBadRequest writes a 400 with a reason.
func writeBadRequest(w http.ResponseWriter, reason string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: reason, Code: "invalid_argument"})
}
