// SPDX-License-Identifier: Apache-2.0

package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"

	"github.com/akam1o/cbs-volume/pkg/cbs"
)

// DefaultPollInterval is the spacing between status reads while waiting
const DefaultPollInterval = 5 * time.Second

// pollBudgetSeconds converts a wait timeout into a number of attempts
const pollBudgetSeconds = 5

var (
	// knownStatuses are the statuses the service is documented to report
	knownStatuses = sets.New[string](
		cbs.StatusAvailable,
		cbs.StatusAttaching,
		cbs.StatusCreating,
		cbs.StatusDeleting,
		cbs.StatusInUse,
		cbs.StatusError,
		cbs.StatusErrorDeleting,
	)

	// terminalStatuses end the wait loop
	terminalStatuses = sets.New[string](
		cbs.StatusAvailable,
		cbs.StatusInUse,
		cbs.StatusError,
		cbs.StatusErrorDeleting,
	)
)

// VolumeService is the subset of the block storage API the reconciler needs
type VolumeService interface {
	GetVolume(ctx context.Context, volumeID string) (*cbs.Volume, error)
	FindVolumeByName(ctx context.Context, name string) (*cbs.Volume, error)
	CreateVolume(ctx context.Context, req *cbs.CreateVolumeRequest) (*cbs.Volume, error)
	DeleteVolume(ctx context.Context, volumeID string) error
}

// Reconciler drives one volume toward a VolumeSpec
type Reconciler struct {
	service      VolumeService
	pollInterval time.Duration
}

// NewReconciler creates a reconciler bound to an authenticated service.
// A zero pollInterval selects DefaultPollInterval.
func NewReconciler(service VolumeService, pollInterval time.Duration) *Reconciler {
	if pollInterval == 0 {
		pollInterval = DefaultPollInterval
	}

	return &Reconciler{
		service:      service,
		pollInterval: pollInterval,
	}
}

// Reconcile brings the remote volume into agreement with spec
func (r *Reconciler) Reconcile(ctx context.Context, spec VolumeSpec) *Result {
	if err := spec.Validate(); err != nil {
		return &Result{Msg: err.Error(), Err: err}
	}

	klog.V(2).Infof("Reconciling volume %q to state %s", spec.Name, spec.State)

	volume, found, err := r.findVolume(ctx, spec.Name)
	if err != nil {
		klog.Warningf("Lookup of volume %q failed: %v", spec.Name, err)
		return failed(false, nil, ErrLookup, err.Error(), err)
	}

	switch spec.State {
	case StateAbsent:
		return r.ensureAbsent(ctx, volume, found)
	default:
		return r.ensurePresent(ctx, spec, volume, found)
	}
}

// findVolume resolves a UUID by id and anything else by exact name.
// A UUID that does not exist is reported as not found, never searched by name.
func (r *Reconciler) findVolume(ctx context.Context, name string) (*cbs.Volume, bool, error) {
	var (
		volume *cbs.Volume
		err    error
	)

	if _, parseErr := uuid.Parse(name); parseErr == nil {
		klog.V(4).Infof("Looking up volume by id %s", name)
		volume, err = r.service.GetVolume(ctx, name)
	} else {
		klog.V(4).Infof("Looking up volume by name %q", name)
		volume, err = r.service.FindVolumeByName(ctx, name)
	}

	if err != nil {
		if cbs.IsNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return volume, true, nil
}

func (r *Reconciler) ensurePresent(ctx context.Context, spec VolumeSpec, volume *cbs.Volume, found bool) *Result {
	changed := false

	if !found {
		created, err := r.service.CreateVolume(ctx, spec.createRequest())
		if err != nil {
			klog.Warningf("Failed to create volume %q: %v", spec.Name, err)
			return failed(false, nil, ErrRemote, err.Error(), err)
		}
		klog.Infof("Created volume %s (%s, %d GB, %s)", created.ID, spec.Name, spec.Size, spec.VolumeType)
		volume = created
		changed = true
	}

	if spec.Wait {
		attempts := spec.WaitTimeoutSeconds / pollBudgetSeconds
		polled, err := r.waitForBuild(ctx, volume.ID, attempts)
		if polled != nil {
			volume = polled
		}
		if err != nil {
			if ctx.Err() != nil {
				msg := fmt.Sprintf("Timeout waiting on %s", volume.ID)
				return failed(changed, volume, ErrTimeout, msg, nil)
			}
			klog.Warningf("Polling volume %s failed: %v", volume.ID, err)
			return failed(changed, volume, ErrRemote, err.Error(), err)
		}
	}

	refreshed, err := r.service.GetVolume(ctx, volume.ID)
	if err != nil {
		klog.Warningf("Failed to refresh volume %s: %v", volume.ID, err)
		return failed(changed, volume, ErrRemote, err.Error(), err)
	}
	volume = refreshed

	if volume.Status == cbs.StatusError {
		msg := fmt.Sprintf("%s failed to build", volume.ID)
		klog.Warning(msg)
		return failed(changed, volume, ErrBuild, msg, nil)
	}
	if spec.Wait && !knownStatuses.Has(volume.Status) {
		msg := fmt.Sprintf("Timeout waiting on %s", volume.ID)
		klog.Warning(msg)
		return failed(changed, volume, ErrTimeout, msg, nil)
	}

	klog.V(2).Infof("Volume %s is %s", volume.ID, volume.Status)
	return succeeded(changed, volume)
}

func (r *Reconciler) ensureAbsent(ctx context.Context, volume *cbs.Volume, found bool) *Result {
	if !found {
		klog.V(2).Info("Volume not found, nothing to delete")
		return succeeded(false, nil)
	}

	if err := r.service.DeleteVolume(ctx, volume.ID); err != nil {
		klog.Warningf("Failed to delete volume %s: %v", volume.ID, err)
		return failed(false, volume, ErrRemote, err.Error(), err)
	}

	klog.Infof("Deleted volume %s", volume.ID)
	return succeeded(true, volume)
}
