package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robertarktes/event-sphere/internal/domain"
	"github.com/robertarktes/event-sphere/internal/idempotency"
	"github.com/robertarktes/event-sphere/internal/observability"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to a status code. Messages of client errors
// are returned as is; anything else is logged and answered with a generic
// message and the request id.
func writeError(w http.ResponseWriter, r *http.Request, logger observability.Logger, err error) {
	var status int
	msg := err.Error()
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, idempotency.ErrInvalidKey):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		status, msg = http.StatusUnauthorized, "missing or invalid bearer token"
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, idempotency.ErrInFlight), errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrSerializationFailure):
		status, msg = http.StatusConflict, "conflict, try again"
	default:
		reqID := middleware.GetReqID(r.Context())
		observability.LoggerFromContext(r.Context(), logger).
			WithError(err).
			WithFields(map[string]interface{}{"method": r.Method, "path": r.URL.Path}).
			Error("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error", RequestID: reqID})
		return
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Invalidf("request body is empty")
		}
		return domain.Invalidf("invalid JSON body: %v", err)
	}
	return nil
}

// queryInt returns the integer query parameter name, or 0 when it is absent
// or not a number.
func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}
