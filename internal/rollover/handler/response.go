package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"trustrails/internal/rollover/reconciliation"
	dErrors "trustrails/pkg/domain-errors"
	"trustrails/pkg/requestcontext"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.logger.WarnContext(r.Context(), "invalid request body",
			"error", err,
			"request_id", requestcontext.RequestID(r.Context()),
		)
		h.writeError(r.Context(), w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

// writeError maps err to a status through its domain code. Internal errors
// are logged and their message withheld.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	resp := errorResponse{Error: string(code), ErrorDescription: err.Error()}
	if ce, ok := reconciliation.AsClassified(err); ok {
		resp.ErrorClass = string(ce.Class)
		resp.Retryable = ce.Retryable()
	}

	status := dErrors.ToHTTPStatus(code)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "request failed",
			"error", err,
			"code", code,
			"request_id", requestcontext.RequestID(ctx),
		)
		if code == dErrors.CodeInternal {
			resp.ErrorDescription = "internal error"
		}
	}
	writeJSON(w, status, resp)
}
