package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/robindai518/libiec61850/internal/eventlog"
)

// errUnknownLog is reported for names the runtime has not bound.
var errUnknownLog = errors.New("unknown log")

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeStoreError maps store sentinels to status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errUnknownLog):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, eventlog.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, eventlog.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, eventlog.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON writes a JSON response with the given data.
func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func writeStatusJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// logName returns the {name} route parameter, unescaping %2F so references
// such as GenericIO/LLN0$EventLog fit in one path segment.
func logName(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	if n, err := url.PathUnescape(raw); err == nil {
		return n
	}
	return raw
}

// parseUint parses an optional unsigned query parameter.
func parseUint(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

// parseLimit parses a limit string, clamping it to [1, max] with def for empty input.
func parseLimit(s string, def, max int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, max), nil
}
