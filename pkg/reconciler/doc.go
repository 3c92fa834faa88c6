// SPDX-License-Identifier: Apache-2.0

// Package reconciler drives a single block storage volume toward a desired
// state. It resolves the volume by UUID or by exact name, creates or deletes
// it as needed, optionally waits for the volume to settle, and reports the
// outcome as one Result carrying both the volume state and any failure.
package reconciler
