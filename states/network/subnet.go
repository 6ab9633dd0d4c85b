// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package network

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	azurenetwork "github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork"
	"github.com/juju/errors"

	"github.com/juju/armstate/azurerm"
	"github.com/juju/armstate/converge"
	"github.com/juju/armstate/internal/errorutils"
)

// SubnetArgs holds the declared state of a subnet within a virtual
// network.
type SubnetArgs struct {
	// Name of the subnet.
	Name string

	// ResourceGroup the owning virtual network belongs to.
	ResourceGroup string

	// VirtualNetwork names the owning virtual network.
	VirtualNetwork string

	// AddressPrefix is the CIDR block used by the subnet. It must lie
	// within the virtual network's address space.
	AddressPrefix string

	// SecurityGroup optionally names a network security group in the
	// same resource group to associate with the subnet.
	SecurityGroup string

	// ServiceEndpoints lists service endpoints to enable on the subnet
	// ("Microsoft.Sql", "Microsoft.Storage", ...). Compared as a set.
	ServiceEndpoints []string
}

func (args SubnetArgs) validate() error {
	if args.Name == "" {
		return errors.NotValidf("empty subnet name")
	}
	if args.ResourceGroup == "" {
		return errors.NotValidf("empty resource group")
	}
	if args.VirtualNetwork == "" {
		return errors.NotValidf("empty virtual network")
	}
	if args.AddressPrefix == "" {
		return errors.NotValidf("empty address prefix")
	}
	return nil
}

func (args SubnetArgs) desired() *converge.Attrs {
	attrs := converge.NewAttrs().
		Set("name", args.Name).
		Set("address_prefix", args.AddressPrefix)
	if args.SecurityGroup != "" {
		attrs.Set("network_security_group", args.SecurityGroup)
	}
	if len(args.ServiceEndpoints) > 0 {
		attrs.Set("service_endpoints", azurerm.Sorted(args.ServiceEndpoints))
	}
	return attrs
}

// SubnetPresent ensures the subnet exists within its virtual network
// with the declared state.
func SubnetPresent(ctx context.Context, sess *azurerm.Session, args SubnetArgs, dryRun bool) *converge.Result {
	if err := args.validate(); err != nil {
		return converge.Failure(args.Name, err)
	}
	client, err := newSubnetClient(sess)
	if err != nil {
		return converge.Failure(args.Name, err)
	}
	controller := converge.NewController("Subnet", client)
	id := converge.Identity{
		ResourceGroup: args.ResourceGroup,
		Parent:        args.VirtualNetwork,
		Name:          args.Name,
	}
	return controller.Present(ctx, id, args.desired(), dryRun)
}

// SubnetAbsent ensures the named subnet does not exist in the virtual
// network.
func SubnetAbsent(ctx context.Context, sess *azurerm.Session, resourceGroup, virtualNetwork, name string, dryRun bool) *converge.Result {
	if resourceGroup == "" {
		return converge.Failure(name, errors.NotValidf("empty resource group"))
	}
	if virtualNetwork == "" {
		return converge.Failure(name, errors.NotValidf("empty virtual network"))
	}
	client, err := newSubnetClient(sess)
	if err != nil {
		return converge.Failure(name, err)
	}
	controller := converge.NewController("Subnet", client)
	id := converge.Identity{
		ResourceGroup: resourceGroup,
		Parent:        virtualNetwork,
		Name:          name,
	}
	return controller.Absent(ctx, id, dryRun)
}

// subnetClient adapts the ARM subnets API to converge.Client. The
// identity's Parent carries the owning virtual network.
type subnetClient struct {
	sess    *azurerm.Session
	subnets *azurenetwork.SubnetsClient
}

func newSubnetClient(sess *azurerm.Session) (*subnetClient, error) {
	subnets, err := sess.Subnets()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &subnetClient{sess: sess, subnets: subnets}, nil
}

func (c *subnetClient) Get(ctx context.Context, id converge.Identity) (*converge.Attrs, bool, error) {
	resp, err := c.subnets.Get(ctx, id.ResourceGroup, id.Parent, id.Name, nil)
	if err != nil {
		if errorutils.IsNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, errorutils.Simplify(err)
	}
	return subnetAttrs(resp.Subnet), true, nil
}

func (c *subnetClient) CreateOrUpdate(ctx context.Context, id converge.Identity, desired *converge.Attrs) (*converge.Attrs, error) {
	subnet, err := c.parameters(id, desired)
	if err != nil {
		return nil, errors.Trace(err)
	}
	poller, err := c.subnets.BeginCreateOrUpdate(ctx, id.ResourceGroup, id.Parent, id.Name, subnet, nil)
	if err != nil {
		return nil, errorutils.Simplify(err)
	}
	resp, err := azurerm.PollUntilDone(ctx, c.sess, poller)
	if err != nil {
		return nil, errorutils.Simplify(err)
	}
	return subnetAttrs(resp.Subnet), nil
}

func (c *subnetClient) Delete(ctx context.Context, id converge.Identity) error {
	poller, err := c.subnets.BeginDelete(ctx, id.ResourceGroup, id.Parent, id.Name, nil)
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

func (c *subnetClient) parameters(id converge.Identity, attrs *converge.Attrs) (azurenetwork.Subnet, error) {
	subnet := azurenetwork.Subnet{
		Properties: &azurenetwork.SubnetPropertiesFormat{},
	}
	if prefix, ok := azurerm.Attr[string](attrs, "address_prefix"); ok {
		subnet.Properties.AddressPrefix = to.Ptr(prefix)
	}
	if group, ok := azurerm.Attr[string](attrs, "network_security_group"); ok {
		subnet.Properties.NetworkSecurityGroup = &azurenetwork.SecurityGroup{
			ID: to.Ptr(c.securityGroupID(id.ResourceGroup, group)),
		}
	}
	if endpoints, ok := azurerm.Attr[[]string](attrs, "service_endpoints"); ok {
		formats := make([]*azurenetwork.ServiceEndpointPropertiesFormat, len(endpoints))
		for i, endpoint := range endpoints {
			formats[i] = &azurenetwork.ServiceEndpointPropertiesFormat{
				Service: to.Ptr(endpoint),
			}
		}
		subnet.Properties.ServiceEndpoints = formats
	}
	return subnet, nil
}

func (c *subnetClient) securityGroupID(resourceGroup, name string) string {
	return fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/Microsoft.Network/networkSecurityGroups/%s",
		c.sess.SubscriptionID(), resourceGroup, name)
}

func subnetAttrs(subnet azurenetwork.Subnet) *converge.Attrs {
	attrs := converge.NewAttrs().
		Set("name", azurerm.ToValue(subnet.Name))
	if props := subnet.Properties; props != nil {
		if props.AddressPrefix != nil {
			attrs.Set("address_prefix", *props.AddressPrefix)
		}
		if props.NetworkSecurityGroup != nil && props.NetworkSecurityGroup.ID != nil {
			id := *props.NetworkSecurityGroup.ID
			attrs.Set("network_security_group", id[strings.LastIndex(id, "/")+1:])
		}
		if len(props.ServiceEndpoints) > 0 {
			services := make([]string, 0, len(props.ServiceEndpoints))
			for _, endpoint := range props.ServiceEndpoints {
				if endpoint == nil || endpoint.Service == nil {
					continue
				}
				services = append(services, *endpoint.Service)
			}
			attrs.Set("service_endpoints", azurerm.Sorted(services))
		}
	}
	return attrs
}
