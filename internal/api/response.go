package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/teamresolve/internal/correction"
	"github.com/sells-group/teamresolve/internal/merge"
	"github.com/sells-group/teamresolve/internal/quarantine"
	"github.com/sells-group/teamresolve/internal/review"
	"github.com/sells-group/teamresolve/internal/store"
)

// errBadRequest marks malformed request bodies and query parameters.
var errBadRequest = eris.New("api: bad request")

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.String("component", "api"), zap.Error(err))
	}
}

// statusFor maps service sentinels onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, review.ErrNotFound),
		errors.Is(err, merge.ErrNotFound),
		errors.Is(err, correction.ErrNotFound),
		errors.Is(err, quarantine.ErrNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, review.ErrInvalidState),
		errors.Is(err, merge.ErrInvalidState),
		errors.Is(err, merge.ErrChain),
		errors.Is(err, correction.ErrInvalidState),
		errors.Is(err, store.ErrGameImmutable):
		return http.StatusConflict
	case errors.Is(err, merge.ErrGuardrail),
		errors.Is(err, merge.ErrInvalidProposal),
		errors.Is(err, review.ErrInvalidDecision),
		errors.Is(err, correction.ErrInvalidProposal),
		errors.Is(err, quarantine.ErrInvalidReason):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("component", "api"),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return eris.Wrapf(errBadRequest, "decode body: %v", err)
	}
	return nil
}

// page reads the after and limit query parameters.
func page(r *http.Request) (after string, limit int, err error) {
	q := r.URL.Query()
	after = q.Get("after")
	if s := q.Get("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit < 0 {
			return "", 0, eris.Wrapf(errBadRequest, "invalid limit %q", s)
		}
	}
	return after, limit, nil
}
