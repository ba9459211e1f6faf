package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Request describes one logical call through the gateway. Body is encoded
// as JSON on every send, so a request can be replayed after a refresh.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header http.Header

	// Bearer overrides the session credential for this request only.
	Bearer string
	// NoRecover disables the refresh-and-retry protocol, as required for
	// the authentication calls themselves.
	NoRecover bool

	retried bool
}

// Retried reports whether the request has already been replayed once.
func (r *Request) Retried() bool { return r.retried }

func (r *Request) replay() *Request {
	cp := *r
	cp.Header = r.Header.Clone()
	cp.retried = true
	return &cp
}

func (r *Request) recoverable() bool {
	return !r.NoRecover && !r.retried && r.Bearer == ""
}

// Response is a fully read 2xx response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
