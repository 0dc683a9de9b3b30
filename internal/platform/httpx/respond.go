// Package httpx provides HTTP response utilities.
package httpx

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"
)

// ErrorBody is the JSON error envelope returned to API clients.
type ErrorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Capability string `json:"capability,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Error sends an ErrorBody with the given status code.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorBody{Error: code, Message: message})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

// WantsJSON reports whether the caller is an API client rather than a browser
// navigating pages.
func WantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return true
	}
	if isJSONMediaType(r.Header.Get("Content-Type")) {
		return true
	}
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		if isJSONMediaType(part) {
			return true
		}
	}
	return false
}

func isJSONMediaType(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(value)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}
