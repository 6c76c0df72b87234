package iolink

import (
	"fmt"
	"net/http"
)

// TransportError is returned for every failed exchange with the master:
// network errors, timeouts, non-2xx HTTP status, malformed envelopes and
// non-OK diagnostic codes. Fields are filled where available.
type TransportError struct {
	Endpoint   string
	Address    string
	StatusCode int
	DiagCode   int
	Header     http.Header
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("iolink %s %s: %v", e.Endpoint, e.Address, e.Err)
	case e.StatusCode != 0 && (e.StatusCode < 200 || e.StatusCode > 299):
		return fmt.Sprintf("iolink %s %s: http status %d", e.Endpoint, e.Address, e.StatusCode)
	default:
		return fmt.Sprintf("iolink %s %s: diagnostic code %d", e.Endpoint, e.Address, e.DiagCode)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
