// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package compute implements the availability set and managed disk
// state modules.
package compute

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v2"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/juju/errors"

	"github.com/juju/armstate/azurerm"
	"github.com/juju/armstate/converge"
	"github.com/juju/armstate/internal/errorutils"
)

// AvailabilitySetArgs holds the declared state of an availability set.
type AvailabilitySetArgs struct {
	// Name of the availability set.
	Name string

	// ResourceGroup the availability set belongs to.
	ResourceGroup string

	// Location is the Azure location the set is created in. When empty
	// the resource group's location is used.
	Location string

	// PlatformUpdateDomainCount groups virtual machines and underlying
	// hardware that can be rebooted at the same time. Zero leaves the
	// provider default in place.
	PlatformUpdateDomainCount int32

	// PlatformFaultDomainCount groups virtual machines that share a
	// common power source and network switch. Zero leaves the provider
	// default in place.
	PlatformFaultDomainCount int32

	// SKU is "Aligned" for managed virtual machines or "Classic" for
	// unmanaged ones. Any casing is accepted.
	SKU string

	// VirtualMachines names existing virtual machines in the resource
	// group to include in the set. Names are compared to the remote
	// membership case-insensitively.
	VirtualMachines []string

	// Tags assigned to the availability set.
	Tags map[string]string
}

func (args AvailabilitySetArgs) validate() error {
	if args.Name == "" {
		return errors.NotValidf("empty availability set name")
	}
	if args.ResourceGroup == "" {
		return errors.NotValidf("empty resource group")
	}
	return nil
}

func (args AvailabilitySetArgs) desired() *converge.Attrs {
	attrs := converge.NewAttrs().Set("name", args.Name)
	if args.Location != "" {
		attrs.Set("location", args.Location)
	}
	if args.PlatformUpdateDomainCount > 0 {
		attrs.Set("platform_update_domain_count", args.PlatformUpdateDomainCount)
	}
	if args.PlatformFaultDomainCount > 0 {
		attrs.Set("platform_fault_domain_count", args.PlatformFaultDomainCount)
	}
	if args.SKU != "" {
		attrs.Set("sku", capitalize(args.SKU))
	}
	if len(args.VirtualMachines) > 0 {
		names := make([]string, len(args.VirtualMachines))
		for i, name := range args.VirtualMachines {
			names[i] = strings.ToLower(name)
		}
		sort.Strings(names)
		attrs.Set("virtual_machines", names)
	}
	if len(args.Tags) > 0 {
		attrs.Set("tags", azurerm.TagAttrs(args.Tags))
	}
	return attrs
}

// AvailabilitySetPresent ensures the availability set exists with the
// declared state.
func AvailabilitySetPresent(ctx context.Context, sess *azurerm.Session, args AvailabilitySetArgs, dryRun bool) *converge.Result {
	if err := args.validate(); err != nil {
		return converge.Failure(args.Name, err)
	}
	client, err := newAvailabilitySetClient(sess)
	if err != nil {
		return converge.Failure(args.Name, err)
	}
	controller := converge.NewController("Availability set", client)
	id := converge.Identity{ResourceGroup: args.ResourceGroup, Name: args.Name}
	return controller.Present(ctx, id, args.desired(), dryRun)
}

// AvailabilitySetAbsent ensures the named availability set does not
// exist in the resource group.
func AvailabilitySetAbsent(ctx context.Context, sess *azurerm.Session, resourceGroup, name string, dryRun bool) *converge.Result {
	if resourceGroup == "" {
		return converge.Failure(name, errors.NotValidf("empty resource group"))
	}
	client, err := newAvailabilitySetClient(sess)
	if err != nil {
		return converge.Failure(name, err)
	}
	controller := converge.NewController("Availability set", client)
	id := converge.Identity{ResourceGroup: resourceGroup, Name: name}
	return controller.Absent(ctx, id, dryRun)
}

// availabilitySetClient adapts the ARM availability sets API to
// converge.Client. It holds a resource groups client as well so a set
// without a declared location can inherit the group's.
type availabilitySetClient struct {
	sess   *azurerm.Session
	sets   *armcompute.AvailabilitySetsClient
	groups *armresources.ResourceGroupsClient
}

func newAvailabilitySetClient(sess *azurerm.Session) (*availabilitySetClient, error) {
	sets, err := sess.AvailabilitySets()
	if err != nil {
		return nil, errors.Trace(err)
	}
	groups, err := sess.ResourceGroups()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &availabilitySetClient{sess: sess, sets: sets, groups: groups}, nil
}

func (c *availabilitySetClient) Get(ctx context.Context, id converge.Identity) (*converge.Attrs, bool, error) {
	resp, err := c.sets.Get(ctx, id.ResourceGroup, id.Name, nil)
	if err != nil {
		if errorutils.IsNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, errorutils.Simplify(err)
	}
	return availabilitySetAttrs(resp.AvailabilitySet), true, nil
}

func (c *availabilitySetClient) CreateOrUpdate(ctx context.Context, id converge.Identity, desired *converge.Attrs) (*converge.Attrs, error) {
	set, err := c.parameters(ctx, id, desired)
	if err != nil {
		return nil, errors.Trace(err)
	}
	resp, err := c.sets.CreateOrUpdate(ctx, id.ResourceGroup, id.Name, set, nil)
	if err != nil {
		return nil, errorutils.Simplify(err)
	}
	return availabilitySetAttrs(resp.AvailabilitySet), nil
}

func (c *availabilitySetClient) Delete(ctx context.Context, id converge.Identity) error {
	if _, err := c.sets.Delete(ctx, id.ResourceGroup, id.Name, nil); err != nil {
		if errorutils.IsNotFoundError(err) {
			return nil
		}
		return errorutils.Simplify(err)
	}
	return nil
}

func (c *availabilitySetClient) parameters(ctx context.Context, id converge.Identity, attrs *converge.Attrs) (armcompute.AvailabilitySet, error) {
	location, ok := azurerm.Attr[string](attrs, "location")
	if !ok {
		resp, err := c.groups.Get(ctx, id.ResourceGroup, nil)
		if err != nil {
			return armcompute.AvailabilitySet{}, errors.Annotate(
				errorutils.Simplify(err), "determining location from resource group")
		}
		location = azurerm.ToValue(resp.Location)
	}
	set := armcompute.AvailabilitySet{
		Location:   to.Ptr(location),
		Properties: &armcompute.AvailabilitySetProperties{},
	}
	if count, ok := azurerm.Attr[int32](attrs, "platform_update_domain_count"); ok {
		set.Properties.PlatformUpdateDomainCount = to.Ptr(count)
	}
	if count, ok := azurerm.Attr[int32](attrs, "platform_fault_domain_count"); ok {
		set.Properties.PlatformFaultDomainCount = to.Ptr(count)
	}
	if names, ok := azurerm.Attr[[]string](attrs, "virtual_machines"); ok {
		refs := make([]*armcompute.SubResource, len(names))
		for i, name := range names {
			refs[i] = &armcompute.SubResource{ID: to.Ptr(c.virtualMachineID(id.ResourceGroup, name))}
		}
		set.Properties.VirtualMachines = refs
	}
	if sku, ok := azurerm.Attr[string](attrs, "sku"); ok {
		set.SKU = &armcompute.SKU{Name: to.Ptr(sku)}
	}
	tagAttrs, _ := azurerm.Attr[*converge.Attrs](attrs, "tags")
	tags, err := azurerm.TagsFromAttrs(tagAttrs)
	if err != nil {
		return armcompute.AvailabilitySet{}, errors.Trace(err)
	}
	set.Tags = tags
	return set, nil
}

func (c *availabilitySetClient) virtualMachineID(resourceGroup, name string) string {
	return fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/Microsoft.Compute/virtualMachines/%s",
		c.sess.SubscriptionID(), resourceGroup, name)
}

func availabilitySetAttrs(set armcompute.AvailabilitySet) *converge.Attrs {
	attrs := converge.NewAttrs().
		Set("name", azurerm.ToValue(set.Name)).
		Set("location", azurerm.ToValue(set.Location))
	if props := set.Properties; props != nil {
		if props.PlatformUpdateDomainCount != nil {
			attrs.Set("platform_update_domain_count", *props.PlatformUpdateDomainCount)
		}
		if props.PlatformFaultDomainCount != nil {
			attrs.Set("platform_fault_domain_count", *props.PlatformFaultDomainCount)
		}
		if len(props.VirtualMachines) > 0 {
			attrs.Set("virtual_machines", virtualMachineNames(props.VirtualMachines))
		}
	}
	if set.SKU != nil && set.SKU.Name != nil {
		attrs.Set("sku", *set.SKU.Name)
	}
	if tags := azurerm.StringMap(set.Tags); len(tags) > 0 {
		attrs.Set("tags", azurerm.TagAttrs(tags))
	}
	return attrs
}

// virtualMachineNames reduces subresource references to the trailing
// segment of each ID, lowercased and sorted, the canonical form the
// desired state uses.
func virtualMachineNames(refs []*armcompute.SubResource) []string {
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref == nil || ref.ID == nil {
			continue
		}
		id := *ref.ID
		names = append(names, strings.ToLower(id[strings.LastIndex(id, "/")+1:]))
	}
	sort.Strings(names)
	return names
}

// capitalize upper-cases the first rune and lowers the rest, matching
// the casing ARM reports for enumerated names such as "Aligned".
func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
