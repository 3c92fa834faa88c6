// SPDX-License-Identifier: Apache-2.0

package reconciler

import (
	"fmt"

	"github.com/akam1o/cbs-volume/pkg/cbs"
)

// DesiredState is the state a volume should be driven to
type DesiredState string

const (
	// StatePresent ensures the volume exists
	StatePresent DesiredState = "present"

	// StateAbsent ensures the volume does not exist
	StateAbsent DesiredState = "absent"
)

const (
	// MinVolumeSizeGB is the smallest volume the service accepts
	MinVolumeSizeGB = 100

	// DefaultWaitTimeoutSeconds bounds the wait when none is given
	DefaultWaitTimeoutSeconds = 300
)

// VolumeSpec describes the desired volume
type VolumeSpec struct {
	Name               string
	Size               int // gigabytes
	VolumeType         string
	Description        string
	Metadata           map[string]string
	SnapshotID         string
	State              DesiredState
	Wait               bool
	WaitTimeoutSeconds int
}

// Validate checks the volume spec before any remote call is made
func (s *VolumeSpec) Validate() error {
	if s.State == "" {
		return fmt.Errorf("%w: state is required", ErrValidation)
	}
	if s.State != StatePresent && s.State != StateAbsent {
		return fmt.Errorf("%w: state must be %q or %q, got %q", ErrValidation, StatePresent, StateAbsent, s.State)
	}
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if s.Size == 0 {
		return fmt.Errorf("%w: size is required", ErrValidation)
	}
	if s.Size < MinVolumeSizeGB {
		return fmt.Errorf("%w: size must be at least %d GB, got %d", ErrValidation, MinVolumeSizeGB, s.Size)
	}
	if s.VolumeType == "" {
		return fmt.Errorf("%w: volume type is required", ErrValidation)
	}
	if s.VolumeType != cbs.VolumeTypeSSD && s.VolumeType != cbs.VolumeTypeSATA {
		return fmt.Errorf("%w: volume type must be %s or %s, got %q", ErrValidation, cbs.VolumeTypeSSD, cbs.VolumeTypeSATA, s.VolumeType)
	}
	if s.WaitTimeoutSeconds < 0 {
		return fmt.Errorf("%w: wait timeout must not be negative", ErrValidation)
	}
	return nil
}

// createRequest converts the volume spec into a create call
func (s *VolumeSpec) createRequest() *cbs.CreateVolumeRequest {
	return &cbs.CreateVolumeRequest{
		Name:        s.Name,
		Size:        s.Size,
		VolumeType:  s.VolumeType,
		Description: s.Description,
		Metadata:    s.Metadata,
		SnapshotID:  s.SnapshotID,
	}
}
