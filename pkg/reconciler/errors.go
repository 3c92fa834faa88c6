// SPDX-License-Identifier: Apache-2.0

package reconciler

import "errors"

// Reconciliation errors. Every one of them is terminal for an invocation.
var (
	// ErrValidation indicates bad input, detected before any remote call
	ErrValidation = errors.New("invalid volume spec")

	// ErrLookup indicates the existing volume could not be resolved
	ErrLookup = errors.New("volume lookup failed")

	// ErrRemote indicates a create, delete or refresh call failed
	ErrRemote = errors.New("remote call failed")

	// ErrBuild indicates the volume entered the error status
	ErrBuild = errors.New("volume failed to build")

	// ErrTimeout indicates the wait ended without a known status
	ErrTimeout = errors.New("timed out waiting for volume")

	// ErrConfiguration indicates the storage client could not be instantiated
	ErrConfiguration = errors.New("configuration error")
)

// IsValidation returns true if the error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsTimeout returns true if the error is a wait timeout
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsRemote returns true if the error came from a failed lookup or remote call
func IsRemote(err error) bool {
	return errors.Is(err, ErrRemote) || errors.Is(err, ErrLookup)
}
