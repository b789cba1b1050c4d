// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedRepository is returned for repository strings without a usable namespace.
	ErrMalformedRepository = errors.New("malformed repository")

	// ErrRegistryRequest is the sentinel error wrapped by RequestError.
	ErrRegistryRequest = errors.New("registry request failed")
)

// RequestError describes a failed registry call. StatusCode is zero when the
// request never produced a response.
type RequestError struct {
	URL        string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("registry request %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("registry request %s: unexpected status %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("registry request %s: %v", e.URL, e.Err)
	}
}

// Unwrap returns ErrRegistryRequest and the underlying cause.
func (e *RequestError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRegistryRequest}
	}
	return []error{ErrRegistryRequest, e.Err}
}

// ErrCredentials is returned when no bearer token source can be built for a
// token-authenticated registry.
var ErrCredentials = errors.New("registry credentials unavailable")
