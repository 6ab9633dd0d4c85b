// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package azurerm

import (
	"context"

	azruntime "github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/juju/errors"
	"github.com/juju/retry"
)

const errProvisioningIncomplete = errors.ConstError("provisioning incomplete")

// PollUntilDone drives a long-running operation to completion, waiting
// between polls on the session clock. The wait is bounded by the
// session poll timeout and by ctx.
func PollUntilDone[T any](ctx context.Context, sess *Session, poller *azruntime.Poller[T]) (T, error) {
	var zero T
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			if poller.Done() {
				return nil
			}
			if _, err := poller.Poll(ctx); err != nil {
				return errors.Trace(err)
			}
			if !poller.Done() {
				return errProvisioningIncomplete
			}
			return nil
		},
		IsFatalError: func(err error) bool {
			return !errors.Is(err, errProvisioningIncomplete)
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Tracef("poll attempt %d: %v", attempt, err)
		},
		Attempts:    -1,
		Delay:       sess.pollInterval,
		MaxDelay:    maxPollDelay,
		MaxDuration: sess.pollTimeout,
		BackoffFunc: retry.DoubleDelay,
		Clock:       sess.clock,
		Stop:        ctx.Done(),
	})
	if err != nil {
		if retry.IsRetryStopped(err) && ctx.Err() != nil {
			return zero, errors.Trace(ctx.Err())
		}
		return zero, errors.Trace(err)
	}
	result, err := poller.Result(ctx)
	if err != nil {
		return zero, errors.Trace(err)
	}
	return result, nil
}
