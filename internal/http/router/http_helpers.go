package router

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
)

const maxJSONBodyBytes = 1 << 20

// decodeJSON reads exactly one JSON object of at most maxJSONBodyBytes into
// dst. Unknown fields are rejected.
func decodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if decoder.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Error  string `json:"error"`
	Status string `json:"status"`
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorBody{Error: message, Status: http.StatusText(statusCode)})
}

func writeList(w http.ResponseWriter, items interface{}, total int) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"total": total,
	})
}

func bearerToken(headerValue string) (string, error) {
	scheme, token, found := strings.Cut(strings.TrimSpace(headerValue), " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// queryValue parses the query parameter key, or returns fallback when it is
// absent or malformed.
func queryValue[T any](r *http.Request, key string, fallback T, parse func(string) (T, error)) T {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	value, err := parse(raw)
	if err != nil {
		return fallback
	}
	return value
}

func parseQueryInt(r *http.Request, key string, fallback int) int {
	return queryValue(r, key, fallback, strconv.Atoi)
}

func parseQueryInt64(r *http.Request, key string, fallback int64) int64 {
	return queryValue(r, key, fallback, func(raw string) (int64, error) {
		return strconv.ParseInt(raw, 10, 64)
	})
}

func parseQueryFloat64(r *http.Request, key string, fallback float64) float64 {
	return queryValue(r, key, fallback, func(raw string) (float64, error) {
		return strconv.ParseFloat(raw, 64)
	})
}

// strictQueryValue is queryValue for parameters where a bad value is a client
// error: ok is false when the value does not parse or valid rejects it.
func strictQueryValue[T any](r *http.Request, key string, fallback T, parse func(string) (T, error), valid func(T) bool) (T, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, true
	}
	value, err := parse(raw)
	if err != nil || (valid != nil && !valid(value)) {
		return fallback, false
	}
	return value, true
}
