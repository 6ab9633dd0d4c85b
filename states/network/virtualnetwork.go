// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package network implements the virtual network, network security
// group, public IP address and subnet state modules.
package network

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	azurenetwork "github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork"
	"github.com/juju/errors"

	"github.com/juju/armstate/azurerm"
	"github.com/juju/armstate/converge"
	"github.com/juju/armstate/internal/errorutils"
)

// VirtualNetworkArgs holds the declared state of a virtual network.
type VirtualNetworkArgs struct {
	// Name of the virtual network.
	Name string

	// ResourceGroup the virtual network belongs to.
	ResourceGroup string

	// Location is the Azure location the network is created in.
	Location string

	// AddressPrefixes lists the CIDR blocks available to subnets within
	// the network. Compared as a set.
	AddressPrefixes []string

	// DNSServers lists DNS server addresses handed to the network's
	// machines. Compared as a set.
	DNSServers []string

	// EnableVMProtection enables VM protection for all subnets.
	EnableVMProtection bool

	// EnableDdosProtection enables DDoS protection for all protected
	// resources in the network. Requires DdosProtectionPlan.
	EnableDdosProtection bool

	// DdosProtectionPlan is the resource ID of the DDoS protection plan
	// associated with the network.
	DdosProtectionPlan string

	// Tags assigned to the virtual network.
	Tags map[string]string
}

func (args VirtualNetworkArgs) validate() error {
	if args.Name == "" {
		return errors.NotValidf("empty virtual network name")
	}
	if args.ResourceGroup == "" {
		return errors.NotValidf("empty resource group")
	}
	if args.Location == "" {
		return errors.NotValidf("empty location")
	}
	if len(args.AddressPrefixes) == 0 {
		return errors.NotValidf("empty address prefixes")
	}
	if args.EnableDdosProtection && args.DdosProtectionPlan == "" {
		return errors.NotValidf("enabling DDoS protection without a protection plan")
	}
	if args.DdosProtectionPlan != "" {
		if _, err := arm.ParseResourceID(args.DdosProtectionPlan); err != nil {
			return errors.NotValidf("DDoS protection plan ID %q", args.DdosProtectionPlan)
		}
	}
	return nil
}

func (args VirtualNetworkArgs) desired() *converge.Attrs {
	attrs := converge.NewAttrs().
		Set("name", args.Name).
		Set("location", args.Location).
		Set("address_prefixes", azurerm.Sorted(args.AddressPrefixes))
	if len(args.DNSServers) > 0 {
		attrs.Set("dns_servers", azurerm.Sorted(args.DNSServers))
	}
	attrs.Set("enable_ddos_protection", args.EnableDdosProtection)
	attrs.Set("enable_vm_protection", args.EnableVMProtection)
	if args.DdosProtectionPlan != "" {
		attrs.Set("ddos_protection_plan", args.DdosProtectionPlan)
	}
	if len(args.Tags) > 0 {
		attrs.Set("tags", azurerm.TagAttrs(args.Tags))
	}
	return attrs
}

// VirtualNetworkPresent ensures the virtual network exists with the
// declared state.
func VirtualNetworkPresent(ctx context.Context, sess *azurerm.Session, args VirtualNetworkArgs, dryRun bool) *converge.Result {
	if err := args.validate(); err != nil {
		return converge.Failure(args.Name, err)
	}
	client, err := newVirtualNetworkClient(sess)
	if err != nil {
		return converge.Failure(args.Name, err)
	}
	controller := converge.NewController("Virtual network", client)
	id := converge.Identity{ResourceGroup: args.ResourceGroup, Name: args.Name}
	return controller.Present(ctx, id, args.desired(), dryRun)
}

// VirtualNetworkAbsent ensures the named virtual network does not exist
// in the resource group.
func VirtualNetworkAbsent(ctx context.Context, sess *azurerm.Session, resourceGroup, name string, dryRun bool) *converge.Result {
	if resourceGroup == "" {
		return converge.Failure(name, errors.NotValidf("empty resource group"))
	}
	client, err := newVirtualNetworkClient(sess)
	if err != nil {
		return converge.Failure(name, err)
	}
	controller := converge.NewController("Virtual network", client)
	id := converge.Identity{ResourceGroup: resourceGroup, Name: name}
	return controller.Absent(ctx, id, dryRun)
}

// virtualNetworkClient adapts the ARM virtual networks API to
// converge.Client.
type virtualNetworkClient struct {
	sess     *azurerm.Session
	networks *azurenetwork.VirtualNetworksClient
}

func newVirtualNetworkClient(sess *azurerm.Session) (*virtualNetworkClient, error) {
	networks, err := sess.VirtualNetworks()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &virtualNetworkClient{sess: sess, networks: networks}, nil
}

func (c *virtualNetworkClient) Get(ctx context.Context, id converge.Identity) (*converge.Attrs, bool, error) {
	resp, err := c.networks.Get(ctx, id.ResourceGroup, id.Name, nil)
	if err != nil {
		if errorutils.IsNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, errorutils.Simplify(err)
	}
	return virtualNetworkAttrs(resp.VirtualNetwork), true, nil
}

func (c *virtualNetworkClient) CreateOrUpdate(ctx context.Context, id converge.Identity, desired *converge.Attrs) (*converge.Attrs, error) {
	vnet, err := virtualNetworkParameters(desired)
	if err != nil {
		return nil, errors.Trace(err)
	}
	poller, err := c.networks.BeginCreateOrUpdate(ctx, id.ResourceGroup, id.Name, vnet, nil)
	if err != nil {
		return nil, errorutils.Simplify(err)
	}
	resp, err := azurerm.PollUntilDone(ctx, c.sess, poller)
	if err != nil {
		return nil, errorutils.Simplify(err)
	}
	return virtualNetworkAttrs(resp.VirtualNetwork), nil
}

func (c *virtualNetworkClient) Delete(ctx context.Context, id converge.Identity) error {
	poller, err := c.networks.BeginDelete(ctx, id.ResourceGroup, id.Name, nil)
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

func virtualNetworkAttrs(vnet azurenetwork.VirtualNetwork) *converge.Attrs {
	attrs := converge.NewAttrs().
		Set("name", azurerm.ToValue(vnet.Name)).
		Set("location", azurerm.ToValue(vnet.Location))
	if props := vnet.Properties; props != nil {
		if props.AddressSpace != nil && len(props.AddressSpace.AddressPrefixes) > 0 {
			attrs.Set("address_prefixes", azurerm.Sorted(azurerm.StringValues(props.AddressSpace.AddressPrefixes)))
		}
		if props.DhcpOptions != nil && len(props.DhcpOptions.DNSServers) > 0 {
			attrs.Set("dns_servers", azurerm.Sorted(azurerm.StringValues(props.DhcpOptions.DNSServers)))
		}
		attrs.Set("enable_ddos_protection", azurerm.ToValue(props.EnableDdosProtection))
		attrs.Set("enable_vm_protection", azurerm.ToValue(props.EnableVMProtection))
		if props.DdosProtectionPlan != nil && props.DdosProtectionPlan.ID != nil {
			attrs.Set("ddos_protection_plan", *props.DdosProtectionPlan.ID)
		}
	}
	if tags := azurerm.StringMap(vnet.Tags); len(tags) > 0 {
		attrs.Set("tags", azurerm.TagAttrs(tags))
	}
	return attrs
}

func virtualNetworkParameters(attrs *converge.Attrs) (azurenetwork.VirtualNetwork, error) {
	location, _ := azurerm.Attr[string](attrs, "location")
	vnet := azurenetwork.VirtualNetwork{
		Location:   to.Ptr(location),
		Properties: &azurenetwork.VirtualNetworkPropertiesFormat{},
	}
	if prefixes, ok := azurerm.Attr[[]string](attrs, "address_prefixes"); ok {
		vnet.Properties.AddressSpace = &azurenetwork.AddressSpace{
			AddressPrefixes: to.SliceOfPtrs(prefixes...),
		}
	}
	if servers, ok := azurerm.Attr[[]string](attrs, "dns_servers"); ok {
		vnet.Properties.DhcpOptions = &azurenetwork.DhcpOptions{
			DNSServers: to.SliceOfPtrs(servers...),
		}
	}
	if enabled, ok := azurerm.Attr[bool](attrs, "enable_ddos_protection"); ok {
		vnet.Properties.EnableDdosProtection = to.Ptr(enabled)
	}
	if enabled, ok := azurerm.Attr[bool](attrs, "enable_vm_protection"); ok {
		vnet.Properties.EnableVMProtection = to.Ptr(enabled)
	}
	if plan, ok := azurerm.Attr[string](attrs, "ddos_protection_plan"); ok {
		vnet.Properties.DdosProtectionPlan = &azurenetwork.SubResource{ID: to.Ptr(plan)}
	}
	tagAttrs, _ := azurerm.Attr[*converge.Attrs](attrs, "tags")
	tags, err := azurerm.TagsFromAttrs(tagAttrs)
	if err != nil {
		return azurenetwork.VirtualNetwork{}, errors.Trace(err)
	}
	vnet.Tags = tags
	return vnet, nil
}
