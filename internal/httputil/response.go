package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/banshee-data/capturefinery/internal/monitoring"
)

var logf = monitoring.Component("api")

// Error carries the HTTP status a handler failure should be reported with.
type Error struct {
	Status int
	Err    error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error. %w verbs keep the cause reachable with errors.Is.
func Errorf(status int, format string, args ...interface{}) error {
	return &Error{Status: status, Err: fmt.Errorf(format, args...)}
}

// StatusOf returns the status attached with Errorf, or 500.
func StatusOf(err error) int {
	var he *Error
	if errors.As(err, &he) {
		return he.Status
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error string `json:"error"`
}

// WriteJSON writes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logf("encoding %T response: %v", v, err)
	}
}

// WriteError writes {"error": ...} with the status from StatusOf. Server-side
// failures are logged.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		logf("WARNING: %v", err)
	}
	WriteJSON(w, status, errorBody{Error: err.Error()})
}

// HandlerFunc is a handler that reports failure by returning an error.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

func (f HandlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := f(w, r); err != nil {
		WriteError(w, err)
	}
}
