// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package msi manages user assigned managed identities.
package msi

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/msi/armmsi"
	"github.com/juju/errors"

	"github.com/juju/armstate/azurerm"
	"github.com/juju/armstate/converge"
	"github.com/juju/armstate/internal/errorutils"
)

// IdentityArgs holds the declared state of a user assigned identity.
// The identity's client, principal and tenant IDs are assigned by the
// platform and reported back, never declared.
type IdentityArgs struct {
	// Name of the identity.
	Name string

	// ResourceGroup containing the identity.
	ResourceGroup string

	// Location is the Azure region, for example "eastus".
	Location string

	// Tags assigned to the identity.
	Tags map[string]string
}

func (args IdentityArgs) validate() error {
	if args.Name == "" {
		return errors.NotValidf("empty identity name")
	}
	if args.ResourceGroup == "" {
		return errors.NotValidf("empty resource group")
	}
	if args.Location == "" {
		return errors.NotValidf("empty location")
	}
	return nil
}

func (args IdentityArgs) desired() *converge.Attrs {
	attrs := converge.NewAttrs().
		Set("name", args.Name).
		Set("location", args.Location)
	if len(args.Tags) > 0 {
		attrs.Set("tags", azurerm.TagAttrs(args.Tags))
	}
	return attrs
}

// IdentityPresent ensures the user assigned identity exists with the
// declared state.
func IdentityPresent(ctx context.Context, sess *azurerm.Session, args IdentityArgs, dryRun bool) *converge.Result {
	if err := args.validate(); err != nil {
		return converge.Failure(args.Name, err)
	}
	client, err := newIdentityClient(sess)
	if err != nil {
		return converge.Failure(args.Name, err)
	}
	controller := converge.NewController("User assigned identity", client)
	id := converge.Identity{ResourceGroup: args.ResourceGroup, Name: args.Name}
	return controller.Present(ctx, id, args.desired(), dryRun)
}

// IdentityAbsent ensures the named identity does not exist.
func IdentityAbsent(ctx context.Context, sess *azurerm.Session, resourceGroup, name string, dryRun bool) *converge.Result {
	if resourceGroup == "" {
		return converge.Failure(name, errors.NotValidf("empty resource group"))
	}
	client, err := newIdentityClient(sess)
	if err != nil {
		return converge.Failure(name, err)
	}
	controller := converge.NewController("User assigned identity", client)
	id := converge.Identity{ResourceGroup: resourceGroup, Name: name}
	return controller.Absent(ctx, id, dryRun)
}

// identityClient adapts the user assigned identities API to
// converge.Client. The API is synchronous, there are no pollers.
type identityClient struct {
	identities *armmsi.UserAssignedIdentitiesClient
}

func newIdentityClient(sess *azurerm.Session) (*identityClient, error) {
	identities, err := sess.UserAssignedIdentities()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &identityClient{identities: identities}, nil
}

func (c *identityClient) Get(ctx context.Context, id converge.Identity) (*converge.Attrs, bool, error) {
	resp, err := c.identities.Get(ctx, id.ResourceGroup, id.Name, nil)
	if err != nil {
		if errorutils.IsNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, errorutils.Simplify(err)
	}
	return identityAttrs(resp.Identity), true, nil
}

func (c *identityClient) CreateOrUpdate(ctx context.Context, id converge.Identity, desired *converge.Attrs) (*converge.Attrs, error) {
	location, _ := azurerm.Attr[string](desired, "location")
	identity := armmsi.Identity{
		Location: to.Ptr(location),
	}
	tagAttrs, _ := azurerm.Attr[*converge.Attrs](desired, "tags")
	tags, err := azurerm.TagsFromAttrs(tagAttrs)
	if err != nil {
		return nil, errors.Trace(err)
	}
	identity.Tags = tags
	resp, err := c.identities.CreateOrUpdate(ctx, id.ResourceGroup, id.Name, identity, nil)
	if err != nil {
		return nil, errorutils.Simplify(err)
	}
	return identityAttrs(resp.Identity), nil
}

func (c *identityClient) Delete(ctx context.Context, id converge.Identity) error {
	if _, err := c.identities.Delete(ctx, id.ResourceGroup, id.Name, nil); err != nil {
		if errorutils.IsNotFoundError(err) {
			return nil
		}
		return errorutils.Simplify(err)
	}
	return nil
}

func identityAttrs(identity armmsi.Identity) *converge.Attrs {
	attrs := converge.NewAttrs().
		Set("name", azurerm.ToValue(identity.Name)).
		Set("location", azurerm.ToValue(identity.Location))
	if props := identity.Properties; props != nil {
		if props.ClientID != nil {
			attrs.Set("client_id", *props.ClientID)
		}
		if props.PrincipalID != nil {
			attrs.Set("principal_id", *props.PrincipalID)
		}
	}
	if tags := azurerm.StringMap(identity.Tags); len(tags) > 0 {
		attrs.Set("tags", azurerm.TagAttrs(tags))
	}
	return attrs
}
