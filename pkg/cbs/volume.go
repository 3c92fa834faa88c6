package cbs

import (
	"context"
	"fmt"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack/blockstorage/v3/volumes"
	"k8s.io/klog/v2"
)

// GetVolume retrieves a volume by ID
func (c *Client) GetVolume(ctx context.Context, volumeID string) (*Volume, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := volumes.Get(c.serviceClient, volumeID)
	vol, err := res.Extract()
	if err != nil {
		return nil, mapSDKError(err)
	}

	return fromSDKVolume(vol, rawAttributes(res.Result)), nil
}

// FindVolumeByName looks up the single volume whose name matches exactly
func (c *Client) FindVolumeByName(ctx context.Context, name string) (*Volume, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pages, err := volumes.List(c.serviceClient, volumes.ListOpts{Name: name}).AllPages()
	if err != nil {
		return nil, mapSDKError(err)
	}
	all, err := volumes.ExtractVolumes(pages)
	if err != nil {
		return nil, fmt.Errorf("failed to parse volume list: %w", err)
	}

	raw := rawListAttributes(pages.GetBody())

	// The name filter is not guaranteed to be exact on every deployment
	var matches []volumes.Volume
	for _, v := range all {
		if v.Name == name {
			matches = append(matches, v)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: name %q", ErrVolumeNotFound, name)
	case 1:
		klog.V(4).Infof("Volume name %q resolved to %s", name, matches[0].ID)
		return fromSDKVolume(&matches[0], raw[matches[0].ID]), nil
	default:
		return nil, fmt.Errorf("%w: %d volumes named %q", ErrAmbiguousVolume, len(matches), name)
	}
}

// CreateVolume creates a new volume
func (c *Client) CreateVolume(ctx context.Context, req *CreateVolumeRequest) (*Volume, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := volumes.CreateOpts{
		Name:        req.Name,
		Size:        req.Size,
		VolumeType:  req.VolumeType,
		Description: req.Description,
		Metadata:    req.Metadata,
		SnapshotID:  req.SnapshotID,
	}

	res := volumes.Create(c.serviceClient, opts)
	vol, err := res.Extract()
	if err != nil {
		return nil, mapSDKError(err)
	}

	klog.V(4).Infof("Create accepted for volume %s (%s)", vol.ID, vol.Status)
	return fromSDKVolume(vol, rawAttributes(res.Result)), nil
}

// DeleteVolume deletes a volume (idempotent)
func (c *Client) DeleteVolume(ctx context.Context, volumeID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := volumes.Delete(c.serviceClient, volumeID, volumes.DeleteOpts{}).ExtractErr()
	if err != nil {
		err = mapSDKError(err)
		if IsNotFoundError(err) {
			klog.V(4).Infof("Volume %s already gone", volumeID)
			return nil // Idempotent
		}
		return err
	}
	return nil
}

// rawAttributes returns the untyped "volume" object of a response. The
// embedded base result is used because the typed results already unwrap it.
func rawAttributes(res gophercloud.Result) map[string]interface{} {
	var body struct {
		Volume map[string]interface{} `json:"volume"`
	}
	if err := res.ExtractInto(&body); err != nil {
		klog.V(4).Infof("Could not decode raw volume attributes: %v", err)
		return nil
	}
	return body.Volume
}

// rawListAttributes indexes the untyped "volumes" objects of a list body by id
func rawListAttributes(body interface{}) map[string]map[string]interface{} {
	byID := map[string]map[string]interface{}{}

	doc, ok := body.(map[string]interface{})
	if !ok {
		return byID
	}
	entries, _ := doc["volumes"].([]interface{})
	for _, entry := range entries {
		attrs, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		if id, ok := attrs["id"].(string); ok {
			byID[id] = attrs
		}
	}
	return byID
}
