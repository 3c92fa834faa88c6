// SPDX-License-Identifier: Apache-2.0

package reconciler

import (
	"fmt"

	"github.com/akam1o/cbs-volume/pkg/cbs"
)

// Result is the outcome of a reconciliation. A failed Result may still carry
// the volume state observed before the failure.
type Result struct {
	Changed bool
	Volume  *cbs.Volume
	Msg     string
	Err     error
}

// Failed reports whether the reconciliation failed
func (r *Result) Failed() bool {
	return r.Err != nil
}

// VolumeAttributes returns the flattened volume, or an empty mapping
func (r *Result) VolumeAttributes() map[string]interface{} {
	if r.Volume == nil {
		return map[string]interface{}{}
	}
	return r.Volume.Flatten()
}

// succeeded builds a successful result
func succeeded(changed bool, volume *cbs.Volume) *Result {
	return &Result{Changed: changed, Volume: volume}
}

// failed builds a failed result. msg is the human-readable text; kind is one of
// the package sentinels and cause the underlying error, if any.
func failed(changed bool, volume *cbs.Volume, kind error, msg string, cause error) *Result {
	err := fmt.Errorf("%w: %s", kind, msg)
	if cause != nil {
		err = fmt.Errorf("%w: %w", kind, cause)
	}
	return &Result{
		Changed: changed,
		Volume:  volume,
		Msg:     msg,
		Err:     err,
	}
}

// ConfigurationFailure reports that the storage client could not be
// instantiated, before any reconciliation took place
func ConfigurationFailure(err error) *Result {
	return failed(false, nil, ErrConfiguration, err.Error(), err)
}
