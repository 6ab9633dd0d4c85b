// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package network

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	azurenetwork "github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork"
	"github.com/juju/errors"

	"github.com/juju/armstate/azurerm"
	"github.com/juju/armstate/converge"
	"github.com/juju/armstate/internal/errorutils"
)

// SecurityGroupArgs holds the declared state of a network security
// group. Security rules are left to their owners: the group itself
// manages only placement and tags.
type SecurityGroupArgs struct {
	// Name of the security group.
	Name string

	// ResourceGroup the security group belongs to.
	ResourceGroup string

	// Location is the Azure location the group is created in.
	Location string

	// Tags assigned to the security group.
	Tags map[string]string
}

func (args SecurityGroupArgs) validate() error {
	if args.Name == "" {
		return errors.NotValidf("empty security group name")
	}
	if args.ResourceGroup == "" {
		return errors.NotValidf("empty resource group")
	}
	if args.Location == "" {
		return errors.NotValidf("empty location")
	}
	return nil
}

func (args SecurityGroupArgs) desired() *converge.Attrs {
	attrs := converge.NewAttrs().
		Set("name", args.Name).
		Set("location", args.Location)
	if len(args.Tags) > 0 {
		attrs.Set("tags", azurerm.TagAttrs(args.Tags))
	}
	return attrs
}

// SecurityGroupPresent ensures the network security group exists with
// the declared state.
func SecurityGroupPresent(ctx context.Context, sess *azurerm.Session, args SecurityGroupArgs, dryRun bool) *converge.Result {
	if err := args.validate(); err != nil {
		return converge.Failure(args.Name, err)
	}
	client, err := newSecurityGroupClient(sess)
	if err != nil {
		return converge.Failure(args.Name, err)
	}
	controller := converge.NewController("Network security group", client)
	id := converge.Identity{ResourceGroup: args.ResourceGroup, Name: args.Name}
	return controller.Present(ctx, id, args.desired(), dryRun)
}

// SecurityGroupAbsent ensures the named network security group does not
// exist in the resource group.
func SecurityGroupAbsent(ctx context.Context, sess *azurerm.Session, resourceGroup, name string, dryRun bool) *converge.Result {
	if resourceGroup == "" {
		return converge.Failure(name, errors.NotValidf("empty resource group"))
	}
	client, err := newSecurityGroupClient(sess)
	if err != nil {
		return converge.Failure(name, err)
	}
	controller := converge.NewController("Network security group", client)
	id := converge.Identity{ResourceGroup: resourceGroup, Name: name}
	return controller.Absent(ctx, id, dryRun)
}

// securityGroupClient adapts the ARM network security groups API to
// converge.Client.
type securityGroupClient struct {
	sess   *azurerm.Session
	groups *azurenetwork.SecurityGroupsClient
}

func newSecurityGroupClient(sess *azurerm.Session) (*securityGroupClient, error) {
	groups, err := sess.SecurityGroups()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &securityGroupClient{sess: sess, groups: groups}, nil
}

func (c *securityGroupClient) Get(ctx context.Context, id converge.Identity) (*converge.Attrs, bool, error) {
	resp, err := c.groups.Get(ctx, id.ResourceGroup, id.Name, nil)
	if err != nil {
		if errorutils.IsNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, errorutils.Simplify(err)
	}
	return securityGroupAttrs(resp.SecurityGroup), true, nil
}

func (c *securityGroupClient) CreateOrUpdate(ctx context.Context, id converge.Identity, desired *converge.Attrs) (*converge.Attrs, error) {
	group, err := securityGroupParameters(desired)
	if err != nil {
		return nil, errors.Trace(err)
	}
	poller, err := c.groups.BeginCreateOrUpdate(ctx, id.ResourceGroup, id.Name, group, nil)
	if err != nil {
		return nil, errorutils.Simplify(err)
	}
	resp, err := azurerm.PollUntilDone(ctx, c.sess, poller)
	if err != nil {
		return nil, errorutils.Simplify(err)
	}
	return securityGroupAttrs(resp.SecurityGroup), nil
}

func (c *securityGroupClient) Delete(ctx context.Context, id converge.Identity) error {
	poller, err := c.groups.BeginDelete(ctx, id.ResourceGroup, id.Name, nil)
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

func securityGroupAttrs(group azurenetwork.SecurityGroup) *converge.Attrs {
	attrs := converge.NewAttrs().
		Set("name", azurerm.ToValue(group.Name)).
		Set("location", azurerm.ToValue(group.Location))
	if tags := azurerm.StringMap(group.Tags); len(tags) > 0 {
		attrs.Set("tags", azurerm.TagAttrs(tags))
	}
	return attrs
}

func securityGroupParameters(attrs *converge.Attrs) (azurenetwork.SecurityGroup, error) {
	location, _ := azurerm.Attr[string](attrs, "location")
	group := azurenetwork.SecurityGroup{
		Location: to.Ptr(location),
	}
	tagAttrs, _ := azurerm.Attr[*converge.Attrs](attrs, "tags")
	tags, err := azurerm.TagsFromAttrs(tagAttrs)
	if err != nil {
		return azurenetwork.SecurityGroup{}, errors.Trace(err)
	}
	group.Tags = tags
	return group, nil
}
