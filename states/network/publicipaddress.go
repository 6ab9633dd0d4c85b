// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package network

import (
	"context"
	"strings"
	"unicode"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	azurenetwork "github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork"
	"github.com/juju/errors"

	"github.com/juju/armstate/azurerm"
	"github.com/juju/armstate/converge"
	"github.com/juju/armstate/internal/errorutils"
)

// PublicIPAddressArgs holds the declared state of a public IP address.
type PublicIPAddressArgs struct {
	// Name of the public IP address.
	Name string

	// ResourceGroup the address belongs to.
	ResourceGroup string

	// Location is the Azure location the address is created in.
	Location string

	// SKU is "Basic" or "Standard". Any casing is accepted.
	SKU string

	// AllocationMethod is "Static" or "Dynamic". Any casing is
	// accepted.
	AllocationMethod string

	// AddressVersion is "IPv4" or "IPv6". Any casing is accepted.
	AddressVersion string

	// IdleTimeoutInMinutes is how long an idle inbound connection is
	// kept open. Zero leaves the provider default in place.
	IdleTimeoutInMinutes int32

	// Tags assigned to the public IP address.
	Tags map[string]string
}

func (args PublicIPAddressArgs) validate() error {
	if args.Name == "" {
		return errors.NotValidf("empty public IP address name")
	}
	if args.ResourceGroup == "" {
		return errors.NotValidf("empty resource group")
	}
	if args.Location == "" {
		return errors.NotValidf("empty location")
	}
	return nil
}

func (args PublicIPAddressArgs) desired() *converge.Attrs {
	attrs := converge.NewAttrs().
		Set("name", args.Name).
		Set("location", args.Location)
	if args.SKU != "" {
		attrs.Set("sku", capitalize(args.SKU))
	}
	if args.AllocationMethod != "" {
		attrs.Set("public_ip_allocation_method", capitalize(args.AllocationMethod))
	}
	if args.AddressVersion != "" {
		attrs.Set("public_ip_address_version", addressVersion(args.AddressVersion))
	}
	if args.IdleTimeoutInMinutes > 0 {
		attrs.Set("idle_timeout_in_minutes", args.IdleTimeoutInMinutes)
	}
	if len(args.Tags) > 0 {
		attrs.Set("tags", azurerm.TagAttrs(args.Tags))
	}
	return attrs
}

// PublicIPAddressPresent ensures the public IP address exists with the
// declared state.
func PublicIPAddressPresent(ctx context.Context, sess *azurerm.Session, args PublicIPAddressArgs, dryRun bool) *converge.Result {
	if err := args.validate(); err != nil {
		return converge.Failure(args.Name, err)
	}
	client, err := newPublicIPAddressClient(sess)
	if err != nil {
		return converge.Failure(args.Name, err)
	}
	controller := converge.NewController("Public IP address", client)
	id := converge.Identity{ResourceGroup: args.ResourceGroup, Name: args.Name}
	return controller.Present(ctx, id, args.desired(), dryRun)
}

// PublicIPAddressAbsent ensures the named public IP address does not
// exist in the resource group.
func PublicIPAddressAbsent(ctx context.Context, sess *azurerm.Session, resourceGroup, name string, dryRun bool) *converge.Result {
	if resourceGroup == "" {
		return converge.Failure(name, errors.NotValidf("empty resource group"))
	}
	client, err := newPublicIPAddressClient(sess)
	if err != nil {
		return converge.Failure(name, err)
	}
	controller := converge.NewController("Public IP address", client)
	id := converge.Identity{ResourceGroup: resourceGroup, Name: name}
	return controller.Absent(ctx, id, dryRun)
}

// publicIPAddressClient adapts the ARM public IP addresses API to
// converge.Client.
type publicIPAddressClient struct {
	sess      *azurerm.Session
	addresses *azurenetwork.PublicIPAddressesClient
}

func newPublicIPAddressClient(sess *azurerm.Session) (*publicIPAddressClient, error) {
	addresses, err := sess.PublicIPAddresses()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &publicIPAddressClient{sess: sess, addresses: addresses}, nil
}

func (c *publicIPAddressClient) Get(ctx context.Context, id converge.Identity) (*converge.Attrs, bool, error) {
	resp, err := c.addresses.Get(ctx, id.ResourceGroup, id.Name, nil)
	if err != nil {
		if errorutils.IsNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, errorutils.Simplify(err)
	}
	return publicIPAddressAttrs(resp.PublicIPAddress), true, nil
}

func (c *publicIPAddressClient) CreateOrUpdate(ctx context.Context, id converge.Identity, desired *converge.Attrs) (*converge.Attrs, error) {
	address, err := publicIPAddressParameters(desired)
	if err != nil {
		return nil, errors.Trace(err)
	}
	poller, err := c.addresses.BeginCreateOrUpdate(ctx, id.ResourceGroup, id.Name, address, nil)
	if err != nil {
		return nil, errorutils.Simplify(err)
	}
	resp, err := azurerm.PollUntilDone(ctx, c.sess, poller)
	if err != nil {
		return nil, errorutils.Simplify(err)
	}
	return publicIPAddressAttrs(resp.PublicIPAddress), nil
}

func (c *publicIPAddressClient) Delete(ctx context.Context, id converge.Identity) error {
	poller, err := c.addresses.BeginDelete(ctx, id.ResourceGroup, id.Name, nil)
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

func publicIPAddressAttrs(address azurenetwork.PublicIPAddress) *converge.Attrs {
	attrs := converge.NewAttrs().
		Set("name", azurerm.ToValue(address.Name)).
		Set("location", azurerm.ToValue(address.Location))
	if address.SKU != nil && address.SKU.Name != nil {
		attrs.Set("sku", string(*address.SKU.Name))
	}
	if props := address.Properties; props != nil {
		if props.PublicIPAllocationMethod != nil {
			attrs.Set("public_ip_allocation_method", string(*props.PublicIPAllocationMethod))
		}
		if props.PublicIPAddressVersion != nil {
			attrs.Set("public_ip_address_version", string(*props.PublicIPAddressVersion))
		}
		if props.IdleTimeoutInMinutes != nil {
			attrs.Set("idle_timeout_in_minutes", *props.IdleTimeoutInMinutes)
		}
	}
	if tags := azurerm.StringMap(address.Tags); len(tags) > 0 {
		attrs.Set("tags", azurerm.TagAttrs(tags))
	}
	return attrs
}

func publicIPAddressParameters(attrs *converge.Attrs) (azurenetwork.PublicIPAddress, error) {
	location, _ := azurerm.Attr[string](attrs, "location")
	address := azurenetwork.PublicIPAddress{
		Location:   to.Ptr(location),
		Properties: &azurenetwork.PublicIPAddressPropertiesFormat{},
	}
	if sku, ok := azurerm.Attr[string](attrs, "sku"); ok {
		address.SKU = &azurenetwork.PublicIPAddressSKU{
			Name: to.Ptr(azurenetwork.PublicIPAddressSKUName(sku)),
		}
	}
	if method, ok := azurerm.Attr[string](attrs, "public_ip_allocation_method"); ok {
		address.Properties.PublicIPAllocationMethod = to.Ptr(azurenetwork.IPAllocationMethod(method))
	}
	if version, ok := azurerm.Attr[string](attrs, "public_ip_address_version"); ok {
		address.Properties.PublicIPAddressVersion = to.Ptr(azurenetwork.IPVersion(version))
	}
	if timeout, ok := azurerm.Attr[int32](attrs, "idle_timeout_in_minutes"); ok {
		address.Properties.IdleTimeoutInMinutes = to.Ptr(timeout)
	}
	tagAttrs, _ := azurerm.Attr[*converge.Attrs](attrs, "tags")
	tags, err := azurerm.TagsFromAttrs(tagAttrs)
	if err != nil {
		return azurenetwork.PublicIPAddress{}, errors.Trace(err)
	}
	address.Tags = tags
	return address, nil
}

// capitalize upper-cases the first rune and lowers the rest, matching
// the casing ARM reports for enumerated names such as "Static".
func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// addressVersion canonicalizes an IP version to the "IPv4"/"IPv6"
// casing ARM reports.
func addressVersion(s string) string {
	if strings.EqualFold(s, string(azurenetwork.IPVersionIPv6)) {
		return string(azurenetwork.IPVersionIPv6)
	}
	return string(azurenetwork.IPVersionIPv4)
}
