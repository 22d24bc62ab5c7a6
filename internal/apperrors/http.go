package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// FromHTTPStatus classifies a non-2xx response from a status backend as a
// transport error. serverMsg is the "error" field of the response body, if any.
func FromHTTPStatus(op string, code int, serverMsg string) error {
	err := Transport(op, serverMsg, fmt.Errorf("HTTP %d", code))
	err.(*Error).StatusCode = code
	return err
}

// IsClientError returns true when err came from a 4xx response.
// Client errors will not succeed on retry.
func IsClientError(err error) bool {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.StatusCode >= http.StatusBadRequest && appErr.StatusCode < http.StatusInternalServerError
}

// LaunchFromHTTPStatus classifies a non-2xx response to a start request as a
// launch error. serverMsg is the "error" field of the response body, if any.
func LaunchFromHTTPStatus(code int, serverMsg string) error {
	err := Launch(serverMsg, fmt.Errorf("HTTP %d", code))
	err.(*Error).StatusCode = code
	return err
}
