// SPDX-License-Identifier: Apache-2.0

package reconciler

import (
	"context"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"

	"github.com/akam1o/cbs-volume/pkg/cbs"
)

// waitForBuild reads the volume status at most attempts times, pollInterval
// apart, stopping early on a terminal status. It returns the last volume read.
// An exhausted budget is not an error; the caller judges the final status.
func (r *Reconciler) waitForBuild(ctx context.Context, volumeID string, attempts int) (*cbs.Volume, error) {
	var last *cbs.Volume

	backoff := wait.Backoff{
		Duration: r.pollInterval,
		Factor:   1,
		Steps:    attempts,
	}

	attempt := 0
	err := wait.ExponentialBackoffWithContext(ctx, backoff, func(ctx context.Context) (bool, error) {
		attempt++
		volume, err := r.service.GetVolume(ctx, volumeID)
		if err != nil {
			return false, err
		}
		last = volume
		klog.V(4).Infof("Volume %s status %q (attempt %d/%d)", volumeID, volume.Status, attempt, attempts)
		return terminalStatuses.Has(volume.Status), nil
	})

	if err != nil && wait.Interrupted(err) && ctx.Err() == nil {
		klog.V(2).Infof("Volume %s did not settle after %d attempts", volumeID, attempts)
		return last, nil
	}
	return last, err
}
