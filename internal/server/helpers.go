package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"FinSight/internal/ledger"
)

type apiErr struct {
	Status  int
	Message string
}

func (e *apiErr) Error() string { return e.Message }

func badRequest(msg string) *apiErr { return &apiErr{Status: http.StatusBadRequest, Message: msg} }
func notFound(msg string) *apiErr   { return &apiErr{Status: http.StatusNotFound, Message: msg} }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": data})
}

func writeErr(w http.ResponseWriter, err *apiErr) {
	writeJSON(w, err.Status, map[string]any{"ok": false, "error": err.Message})
}

// toAPIErr maps domain errors onto HTTP statuses. Unrecognized errors are
// reported as 500 without leaking internals.
func toAPIErr(err error) *apiErr {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		return notFound(err.Error())
	case errors.Is(err, ledger.ErrInvalidDateRange):
		return badRequest(err.Error())
	case errors.Is(err, ledger.ErrAnchorAmbiguity):
		return &apiErr{Status: http.StatusConflict, Message: err.Error()}
	case errors.Is(err, ledger.ErrInvalidDeltaShape):
		return badRequest(err.Error())
	default:
		return &apiErr{Status: http.StatusInternalServerError, Message: "internal error"}
	}
}

func readJSON(r *http.Request, dst any) *apiErr {
	b, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return badRequest("could not read body")
	}
	if len(b) == 0 {
		b = []byte(`{}`)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return badRequest("invalid JSON: " + err.Error())
	}
	return nil
}

func parseTenantField(raw string) (uuid.UUID, *apiErr) {
	if raw == "" {
		return uuid.Nil, badRequest("tenant_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, badRequest("tenant_id must be a UUID")
	}
	return id, nil
}

func requireTenant(r *http.Request) (uuid.UUID, *apiErr) {
	return parseTenantField(r.URL.Query().Get("tenant_id"))
}

func requireAccount(r *http.Request) (int64, *apiErr) {
	raw := r.URL.Query().Get("account_id")
	if raw == "" {
		return 0, badRequest("account_id is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("account_id must be a positive integer")
	}
	return id, nil
}

func requireDate(r *http.Request, field string) (time.Time, *apiErr) {
	raw := r.URL.Query().Get(field)
	if raw == "" {
		return time.Time{}, badRequest(field + " is required")
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, badRequest(field + " must be an ISO date YYYY-MM-DD")
	}
	return ledger.Day(d), nil
}

func optionalDate(r *http.Request, field string) (*time.Time, *apiErr) {
	raw := r.URL.Query().Get(field)
	if raw == "" {
		return nil, nil
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, badRequest(field + " must be an ISO date YYYY-MM-DD")
	}
	day := ledger.Day(d)
	return &day, nil
}

func parseBodyDate(raw string, field string) (*time.Time, *apiErr) {
	if raw == "" {
		return nil, nil
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, badRequest(field + " must be an ISO date YYYY-MM-DD")
	}
	day := ledger.Day(d)
	return &day, nil
}
