package cbs

import (
	"time"

	"github.com/gophercloud/gophercloud/openstack/blockstorage/v3/volumes"
)

// Volume statuses reported by the block storage service
const (
	StatusAvailable     = "available"
	StatusAttaching     = "attaching"
	StatusCreating      = "creating"
	StatusDeleting      = "deleting"
	StatusInUse         = "in-use"
	StatusError         = "error"
	StatusErrorDeleting = "error_deleting"
)

// Volume types offered by Cloud Block Storage
const (
	VolumeTypeSSD  = "SSD"
	VolumeTypeSATA = "SATA"
)

// Volume represents a block storage volume as returned by the service
type Volume struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Description      string            `json:"description"`
	Status           string            `json:"status"`
	Size             int               `json:"size"`
	VolumeType       string            `json:"volume_type"`
	AvailabilityZone string            `json:"availability_zone"`
	SnapshotID       string            `json:"snapshot_id"`
	SourceVolumeID   string            `json:"source_volid"`
	Bootable         bool              `json:"bootable"`
	Encrypted        bool              `json:"encrypted"`
	Attachments      int               `json:"attachments"`
	Metadata         map[string]string `json:"metadata"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`

	// Extra holds scalar attributes returned by the service that are not modeled above
	Extra map[string]interface{} `json:"-"`
}

// CreateVolumeRequest represents a request to create a volume
type CreateVolumeRequest struct {
	Name        string
	Size        int
	VolumeType  string
	Description string
	Metadata    map[string]string
	SnapshotID  string
}

// modeledAttributes lists the raw response keys already mapped onto Volume fields
var modeledAttributes = map[string]bool{
	"id":                true,
	"name":              true,
	"description":       true,
	"status":            true,
	"size":              true,
	"volume_type":       true,
	"availability_zone": true,
	"snapshot_id":       true,
	"source_volid":      true,
	"bootable":          true,
	"encrypted":         true,
	"attachments":       true,
	"metadata":          true,
	"created_at":        true,
	"updated_at":        true,
}

// fromSDKVolume converts a gophercloud volume and its raw attributes
func fromSDKVolume(v *volumes.Volume, raw map[string]interface{}) *Volume {
	vol := &Volume{
		ID:               v.ID,
		Name:             v.Name,
		Description:      v.Description,
		Status:           v.Status,
		Size:             v.Size,
		VolumeType:       v.VolumeType,
		AvailabilityZone: v.AvailabilityZone,
		SnapshotID:       v.SnapshotID,
		SourceVolumeID:   v.SourceVolID,
		Bootable:         v.Bootable == "true",
		Encrypted:        v.Encrypted,
		Attachments:      len(v.Attachments),
		Metadata:         v.Metadata,
		CreatedAt:        v.CreatedAt,
		UpdatedAt:        v.UpdatedAt,
		Extra:            map[string]interface{}{},
	}
	if vol.Metadata == nil {
		vol.Metadata = map[string]string{}
	}

	for key, value := range raw {
		if modeledAttributes[key] || !isScalar(value) {
			continue
		}
		vol.Extra[key] = value
	}
	return vol
}

// isScalar reports whether a decoded JSON value is a string, number, bool or null
func isScalar(v interface{}) bool {
	switch v.(type) {
	case nil, string, bool, float64, int, int64:
		return true
	}
	return false
}

// Flatten returns the volume as a flat attribute mapping. Extra attributes
// never shadow modeled fields.
func (v *Volume) Flatten() map[string]interface{} {
	attrs := make(map[string]interface{}, len(modeledAttributes)+len(v.Extra))
	for key, value := range v.Extra {
		attrs[key] = value
	}

	metadata := make(map[string]string, len(v.Metadata))
	for key, value := range v.Metadata {
		metadata[key] = value
	}

	attrs["id"] = v.ID
	attrs["name"] = v.Name
	attrs["description"] = v.Description
	attrs["status"] = v.Status
	attrs["size"] = v.Size
	attrs["volume_type"] = v.VolumeType
	attrs["availability_zone"] = v.AvailabilityZone
	attrs["snapshot_id"] = v.SnapshotID
	attrs["source_volid"] = v.SourceVolumeID
	attrs["bootable"] = v.Bootable
	attrs["encrypted"] = v.Encrypted
	attrs["attachments"] = v.Attachments
	attrs["metadata"] = metadata
	attrs["created_at"] = formatTime(v.CreatedAt)
	attrs["updated_at"] = formatTime(v.UpdatedAt)
	return attrs
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
