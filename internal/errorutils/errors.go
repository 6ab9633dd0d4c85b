// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package errorutils classifies errors surfaced by the ARM SDK pipeline
// into the small taxonomy the convergence engine works with: not found,
// transient, and permanent request failures.
package errorutils

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	azruntime "github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/retry"
)

// Error codes the control plane and the key vault data plane report for
// resources that do not exist.
var notFoundCodes = set.NewStrings(
	"NotFound",
	"ResourceNotFound",
	"ResourceGroupNotFound",
	"ParentResourceNotFound",
	"SecretNotFound",
	"KeyNotFound",
)

// StatusCode returns the HTTP status code of the response error wrapped
// in err, or zero when err carries no response.
func StatusCode(err error) int {
	var responseErr *azcore.ResponseError
	if errors.As(err, &responseErr) {
		return responseErr.StatusCode
	}
	return 0
}

// ErrorCode returns the ARM error code of the response error wrapped in
// err, or the empty string.
func ErrorCode(err error) string {
	var responseErr *azcore.ResponseError
	if errors.As(err, &responseErr) {
		return responseErr.ErrorCode
	}
	return ""
}

// IsNotFoundError reports whether err says the requested resource does
// not exist. Absence is not a failure for the convergence engine: it
// drives create-versus-update branching and idempotent deletion.
func IsNotFoundError(err error) bool {
	if StatusCode(err) == http.StatusNotFound {
		return true
	}
	return notFoundCodes.Contains(ErrorCode(err))
}

// IsConflictError reports whether err is the provider refusing a write
// that clashes with existing state.
func IsConflictError(err error) bool {
	return StatusCode(err) == http.StatusConflict
}

// IsForbiddenError reports whether the credential was rejected for the
// requested operation.
func IsForbiddenError(err error) bool {
	switch StatusCode(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

// IsTransientError reports whether err is worth retrying at some later
// time: throttling, server-side failures, network timeouts, and bounded
// waits that ran out. The engine itself never retries; it reports these
// as failed results and leaves rescheduling to the orchestrator.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	switch StatusCode(err) {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return retry.IsDurationExceeded(err) || retry.IsAttemptsExceeded(err)
}

// armError is the wire shape of an ARM error body.
type armError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ErrorMessage extracts a concise "code: message" description from the
// ARM error body wrapped in err, falling back to err.Error(). Result
// comments embed this instead of the response error's verbose rendering,
// which includes the whole HTTP exchange.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var responseErr *azcore.ResponseError
	if !errors.As(err, &responseErr) {
		return err.Error()
	}
	code := responseErr.ErrorCode
	var message string
	if resp := responseErr.RawResponse; resp != nil {
		if body, payloadErr := azruntime.Payload(resp); payloadErr == nil {
			var wire armError
			if json.Unmarshal(body, &wire) == nil {
				if wire.Error.Code != "" {
					code = wire.Error.Code
				}
				message = wire.Error.Message
			}
		}
	}
	switch {
	case code != "" && message != "":
		return code + ": " + message
	case message != "":
		return message
	case code != "":
		return code
	}
	return fmt.Sprintf("HTTP %d", responseErr.StatusCode)
}

// serviceError carries the concise description of a response error while
// keeping the original in the chain for classification.
type serviceError struct {
	message string
	cause   error
}

func (e *serviceError) Error() string {
	return e.message
}

func (e *serviceError) Unwrap() error {
	return e.cause
}

// Simplify condenses a response error to its code and message so it can
// be embedded in a result comment. Errors without a response pass
// through unchanged, and the classification predicates above still see
// the original through the error chain.
func Simplify(err error) error {
	var responseErr *azcore.ResponseError
	if err == nil || !errors.As(err, &responseErr) {
		return err
	}
	return &serviceError{message: ErrorMessage(err), cause: err}
}
