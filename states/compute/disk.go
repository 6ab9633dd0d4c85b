// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package compute

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v2"
	"github.com/juju/errors"

	"github.com/juju/armstate/azurerm"
	"github.com/juju/armstate/converge"
	"github.com/juju/armstate/internal/errorutils"
)

// DiskArgs holds the declared state of an empty managed disk.
type DiskArgs struct {
	// Name of the disk.
	Name string

	// ResourceGroup the disk belongs to.
	ResourceGroup string

	// Location is the Azure location the disk is created in.
	Location string

	// SizeGB is the provisioned size of the disk.
	SizeGB int32

	// SKU names the storage account type backing the disk, as named by
	// ARM ("Standard_LRS", "Premium_LRS", ...). Empty leaves the
	// provider default in place.
	SKU string

	// Tags assigned to the disk.
	Tags map[string]string
}

func (args DiskArgs) validate() error {
	if args.Name == "" {
		return errors.NotValidf("empty disk name")
	}
	if args.ResourceGroup == "" {
		return errors.NotValidf("empty resource group")
	}
	if args.Location == "" {
		return errors.NotValidf("empty location")
	}
	if args.SizeGB <= 0 {
		return errors.NotValidf("disk size %dGB", args.SizeGB)
	}
	return nil
}

func (args DiskArgs) desired() *converge.Attrs {
	attrs := converge.NewAttrs().
		Set("name", args.Name).
		Set("location", args.Location).
		Set("disk_size_gb", args.SizeGB)
	if args.SKU != "" {
		attrs.Set("sku", args.SKU)
	}
	if len(args.Tags) > 0 {
		attrs.Set("tags", azurerm.TagAttrs(args.Tags))
	}
	return attrs
}

// DiskPresent ensures the managed disk exists with the declared state.
// Disks are provisioned empty; attaching them is the virtual machine's
// concern.
func DiskPresent(ctx context.Context, sess *azurerm.Session, args DiskArgs, dryRun bool) *converge.Result {
	if err := args.validate(); err != nil {
		return converge.Failure(args.Name, err)
	}
	client, err := newDiskClient(sess)
	if err != nil {
		return converge.Failure(args.Name, err)
	}
	controller := converge.NewController("Disk", client)
	id := converge.Identity{ResourceGroup: args.ResourceGroup, Name: args.Name}
	return controller.Present(ctx, id, args.desired(), dryRun)
}

// DiskAbsent ensures the named managed disk does not exist in the
// resource group.
func DiskAbsent(ctx context.Context, sess *azurerm.Session, resourceGroup, name string, dryRun bool) *converge.Result {
	if resourceGroup == "" {
		return converge.Failure(name, errors.NotValidf("empty resource group"))
	}
	client, err := newDiskClient(sess)
	if err != nil {
		return converge.Failure(name, err)
	}
	controller := converge.NewController("Disk", client)
	id := converge.Identity{ResourceGroup: resourceGroup, Name: name}
	return controller.Absent(ctx, id, dryRun)
}

// diskClient adapts the ARM disks API to converge.Client. Disk writes
// are long-running operations bounded by the session's poll timeout.
type diskClient struct {
	sess  *azurerm.Session
	disks *armcompute.DisksClient
}

func newDiskClient(sess *azurerm.Session) (*diskClient, error) {
	disks, err := sess.Disks()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &diskClient{sess: sess, disks: disks}, nil
}

func (c *diskClient) Get(ctx context.Context, id converge.Identity) (*converge.Attrs, bool, error) {
	resp, err := c.disks.Get(ctx, id.ResourceGroup, id.Name, nil)
	if err != nil {
		if errorutils.IsNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, errorutils.Simplify(err)
	}
	return diskAttrs(resp.Disk), true, nil
}

func (c *diskClient) CreateOrUpdate(ctx context.Context, id converge.Identity, desired *converge.Attrs) (*converge.Attrs, error) {
	disk, err := diskParameters(desired)
	if err != nil {
		return nil, errors.Trace(err)
	}
	poller, err := c.disks.BeginCreateOrUpdate(ctx, id.ResourceGroup, id.Name, disk, nil)
	if err != nil {
		return nil, errorutils.Simplify(err)
	}
	resp, err := azurerm.PollUntilDone(ctx, c.sess, poller)
	if err != nil {
		return nil, errorutils.Simplify(err)
	}
	return diskAttrs(resp.Disk), nil
}

func (c *diskClient) Delete(ctx context.Context, id converge.Identity) error {
	poller, err := c.disks.BeginDelete(ctx, id.ResourceGroup, id.Name, nil)
	if err != nil {
		if errorutils.IsNotFoundError(err) {
			return nil
		}
		return errorutils.Simplify(err)
	}
	if _, err := azurerm.PollUntilDone(ctx, c.sess, poller); err != nil {
		return errorutils.Simplify(err)
	}
	return nil
}

func diskAttrs(disk armcompute.Disk) *converge.Attrs {
	attrs := converge.NewAttrs().
		Set("name", azurerm.ToValue(disk.Name)).
		Set("location", azurerm.ToValue(disk.Location))
	if disk.Properties != nil && disk.Properties.DiskSizeGB != nil {
		attrs.Set("disk_size_gb", *disk.Properties.DiskSizeGB)
	}
	if disk.SKU != nil && disk.SKU.Name != nil {
		attrs.Set("sku", string(*disk.SKU.Name))
	}
	if tags := azurerm.StringMap(disk.Tags); len(tags) > 0 {
		attrs.Set("tags", azurerm.TagAttrs(tags))
	}
	return attrs
}

func diskParameters(attrs *converge.Attrs) (armcompute.Disk, error) {
	location, _ := azurerm.Attr[string](attrs, "location")
	size, _ := azurerm.Attr[int32](attrs, "disk_size_gb")
	disk := armcompute.Disk{
		Location: to.Ptr(location),
		Properties: &armcompute.DiskProperties{
			CreationData: &armcompute.CreationData{
				CreateOption: to.Ptr(armcompute.DiskCreateOptionEmpty),
			},
			DiskSizeGB: to.Ptr(size),
		},
	}
	if sku, ok := azurerm.Attr[string](attrs, "sku"); ok {
		disk.SKU = &armcompute.DiskSKU{
			Name: to.Ptr(armcompute.DiskStorageAccountTypes(sku)),
		}
	}
	tagAttrs, _ := azurerm.Attr[*converge.Attrs](attrs, "tags")
	tags, err := azurerm.TagsFromAttrs(tagAttrs)
	if err != nil {
		return armcompute.Disk{}, errors.Trace(err)
	}
	disk.Tags = tags
	return disk, nil
}
