package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized matches a *StatusError carrying HTTP 401.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTransport matches a *TransportError: the backend could not be
	// reached or did not answer within the timeout.
	ErrTransport = errors.New("transport failure")
	// ErrMalformedResponse indicates a response body that could not be decoded.
	ErrMalformedResponse = errors.New("malformed response")
)

// StatusError is returned for every non-2xx response. Message holds the
// backend's "error" field when present.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// TransportError wraps a failure to complete the HTTP exchange.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// errorBody is the backend's error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func newStatusError(method, path string, status int, body []byte) *StatusError {
	msg := http.StatusText(status)
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		switch {
		case eb.Error != "":
			msg = eb.Error
		case eb.Message != "":
			msg = eb.Message
		}
	}
	return &StatusError{Method: method, Path: path, StatusCode: status, Message: msg, Body: body}
}

// Message extracts a human-readable message from err: the backend's error
// text for a *StatusError, otherwise fallback.
func Message(err error, fallback string) string {
	var se *StatusError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return fallback
}
