package cbs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gophercloud/gophercloud"
)

var (
	// ErrVolumeNotFound indicates the volume does not exist
	ErrVolumeNotFound = errors.New("volume not found")

	// ErrAmbiguousVolume indicates more than one volume matched a name
	ErrAmbiguousVolume = errors.New("more than one volume matched")

	// ErrVolumeConflict indicates the service rejected the request due to the volume state
	ErrVolumeConflict = errors.New("volume state conflict")

	// ErrUnavailable indicates the block storage service is unavailable
	ErrUnavailable = errors.New("block storage service unavailable")

	// ErrConfiguration indicates a client could not be built from the configuration
	ErrConfiguration = errors.New("invalid client configuration")
)

// APIError represents an error response from the block storage API
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("block storage api error (status %d): %s: %v", e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("block storage api error (status %d): %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewAPIError creates a new API error
func NewAPIError(statusCode int, message string, err error) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

// MapHTTPStatusToError maps HTTP status codes to specific errors
func MapHTTPStatusToError(statusCode int, message string) error {
	switch statusCode {
	case 404:
		return fmt.Errorf("%w: %s", ErrVolumeNotFound, message)
	case 409:
		return fmt.Errorf("%w: %s", ErrVolumeConflict, message)
	case 503:
		return fmt.Errorf("%w: %s", ErrUnavailable, message)
	default:
		return NewAPIError(statusCode, message, nil)
	}
}

// mapSDKError translates gophercloud errors into package errors.
// Errors without an HTTP status (transport failures) are returned unchanged.
func mapSDKError(err error) error {
	if err == nil {
		return nil
	}

	var codeErr gophercloud.StatusCodeError
	if !errors.As(err, &codeErr) {
		return err
	}

	return MapHTTPStatusToError(codeErr.GetStatusCode(), strings.TrimSpace(err.Error()))
}

// IsNotFoundError checks if an error is a "not found" error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrVolumeNotFound)
}
