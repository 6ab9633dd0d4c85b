// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package resource implements the resource group state module.
package resource

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/juju/errors"

	"github.com/juju/armstate/azurerm"
	"github.com/juju/armstate/converge"
	"github.com/juju/armstate/internal/errorutils"
)

// GroupArgs holds the declared state of a resource group.
type GroupArgs struct {
	// Name of the resource group.
	Name string

	// Location is the Azure location the group is created in. It cannot
	// be changed after creation.
	Location string

	// ManagedBy optionally names the resource that manages this group.
	// It cannot be changed after creation.
	ManagedBy string

	// Tags assigned to the resource group.
	Tags map[string]string
}

func (args GroupArgs) validate() error {
	if args.Name == "" {
		return errors.NotValidf("empty resource group name")
	}
	if args.Location == "" {
		return errors.NotValidf("empty location")
	}
	return nil
}

func (args GroupArgs) desired() *converge.Attrs {
	attrs := converge.NewAttrs().
		Set("name", args.Name).
		Set("location", args.Location)
	if args.ManagedBy != "" {
		attrs.Set("managed_by", args.ManagedBy)
	}
	if len(args.Tags) > 0 {
		attrs.Set("tags", azurerm.TagAttrs(args.Tags))
	}
	return attrs
}

// GroupPresent ensures the resource group exists with the declared
// state.
func GroupPresent(ctx context.Context, sess *azurerm.Session, args GroupArgs, dryRun bool) *converge.Result {
	if err := args.validate(); err != nil {
		return converge.Failure(args.Name, err)
	}
	client, err := newGroupClient(sess)
	if err != nil {
		return converge.Failure(args.Name, err)
	}
	controller := converge.NewController("Resource group", client)
	return controller.Present(ctx, converge.Identity{Name: args.Name}, args.desired(), dryRun)
}

// GroupAbsent ensures the resource group does not exist in the
// session's subscription.
func GroupAbsent(ctx context.Context, sess *azurerm.Session, name string, dryRun bool) *converge.Result {
	client, err := newGroupClient(sess)
	if err != nil {
		return converge.Failure(name, err)
	}
	controller := converge.NewController("Resource group", client)
	return controller.Absent(ctx, converge.Identity{Name: name}, dryRun)
}

// groupClient adapts the ARM resource groups API to converge.Client.
type groupClient struct {
	sess   *azurerm.Session
	groups *armresources.ResourceGroupsClient
}

func newGroupClient(sess *azurerm.Session) (*groupClient, error) {
	groups, err := sess.ResourceGroups()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &groupClient{sess: sess, groups: groups}, nil
}

func (c *groupClient) Get(ctx context.Context, id converge.Identity) (*converge.Attrs, bool, error) {
	resp, err := c.groups.Get(ctx, id.Name, nil)
	if err != nil {
		if errorutils.IsNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, errorutils.Simplify(err)
	}
	return groupAttrs(resp.ResourceGroup), true, nil
}

func (c *groupClient) CreateOrUpdate(ctx context.Context, id converge.Identity, desired *converge.Attrs) (*converge.Attrs, error) {
	group, err := groupParameters(desired)
	if err != nil {
		return nil, errors.Trace(err)
	}
	resp, err := c.groups.CreateOrUpdate(ctx, id.Name, group, nil)
	if err != nil {
		return nil, errorutils.Simplify(err)
	}
	return groupAttrs(resp.ResourceGroup), nil
}

func (c *groupClient) Delete(ctx context.Context, id converge.Identity) error {
	poller, err := c.groups.BeginDelete(ctx, id.Name, nil)
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

func groupAttrs(group armresources.ResourceGroup) *converge.Attrs {
	attrs := converge.NewAttrs().
		Set("name", azurerm.ToValue(group.Name)).
		Set("location", azurerm.ToValue(group.Location))
	if group.ManagedBy != nil {
		attrs.Set("managed_by", *group.ManagedBy)
	}
	if tags := azurerm.StringMap(group.Tags); len(tags) > 0 {
		attrs.Set("tags", azurerm.TagAttrs(tags))
	}
	return attrs
}

func groupParameters(attrs *converge.Attrs) (armresources.ResourceGroup, error) {
	location, _ := azurerm.Attr[string](attrs, "location")
	group := armresources.ResourceGroup{
		Location: to.Ptr(location),
	}
	if managedBy, ok := azurerm.Attr[string](attrs, "managed_by"); ok {
		group.ManagedBy = to.Ptr(managedBy)
	}
	tagAttrs, _ := azurerm.Attr[*converge.Attrs](attrs, "tags")
	tags, err := azurerm.TagsFromAttrs(tagAttrs)
	if err != nil {
		return armresources.ResourceGroup{}, errors.Trace(err)
	}
	group.Tags = tags
	return group, nil
}
