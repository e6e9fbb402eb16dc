package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

// ErrEmptyBody is returned by ParseJSON when the request has no body
var ErrEmptyBody = errors.New("request body is required")

// ParseJSON decodes a single JSON value from the request body into dest.
// Trailing data after the value is rejected.
func ParseJSON(r *http.Request, dest any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return ErrEmptyBody
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return errors.New("invalid JSON: unexpected data after the request body")
	}
	return nil
}

// ParseJSONOrError decodes the body and writes a 400 on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// ParsePathString returns a route variable
func ParsePathString(r *http.Request, key string) (string, error) {
	if v := mux.Vars(r)[key]; v != "" {
		return v, nil
	}
	return "", fmt.Errorf("missing path parameter: %s", key)
}

// ParsePathStringOrError returns a route variable and writes a 400 when it is absent
func ParsePathStringOrError(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v, err := ParsePathString(r, key)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return "", false
	}
	return v, true
}

// ParseQueryString returns a query parameter or def
func ParseQueryString(r *http.Request, key, def string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return def
}

// ParseQueryInt parses a non-negative integer query parameter
func ParseQueryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, raw)
	}
	return n, nil
}

// ParseQueryTime parses an RFC 3339 query parameter. A missing parameter
// returns nil.
func ParseQueryTime(r *http.Request, key string) (*time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an RFC 3339 timestamp: %w", key, err)
	}
	return &t, nil
}

// RequireNonEmpty writes a 400 naming field when value is empty
func RequireNonEmpty(w http.ResponseWriter, value, field string) bool {
	if value != "" {
		return true
	}
	WriteBadRequest(w, field+" is required")
	return false
}
