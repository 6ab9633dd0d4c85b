// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package postgresql

import (
	"context"
	"net"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/postgresql/armpostgresql"
	"github.com/juju/errors"

	"github.com/juju/armstate/azurerm"
	"github.com/juju/armstate/converge"
	"github.com/juju/armstate/internal/errorutils"
)

// FirewallRuleArgs holds the declared state of a firewall rule on a
// PostgreSQL server.
type FirewallRuleArgs struct {
	// Name of the firewall rule.
	Name string

	// ResourceGroup the owning server belongs to.
	ResourceGroup string

	// Server names the owning PostgreSQL server.
	Server string

	// StartIPAddress is the first address of the allowed range.
	StartIPAddress string

	// EndIPAddress is the last address of the allowed range.
	EndIPAddress string
}

func (args FirewallRuleArgs) validate() error {
	if args.Name == "" {
		return errors.NotValidf("empty firewall rule name")
	}
	if args.ResourceGroup == "" {
		return errors.NotValidf("empty resource group")
	}
	if args.Server == "" {
		return errors.NotValidf("empty server name")
	}
	if net.ParseIP(args.StartIPAddress) == nil {
		return errors.NotValidf("start IP address %q", args.StartIPAddress)
	}
	if net.ParseIP(args.EndIPAddress) == nil {
		return errors.NotValidf("end IP address %q", args.EndIPAddress)
	}
	return nil
}

func (args FirewallRuleArgs) desired() *converge.Attrs {
	return converge.NewAttrs().
		Set("name", args.Name).
		Set("start_ip_address", args.StartIPAddress).
		Set("end_ip_address", args.EndIPAddress)
}

// FirewallRulePresent ensures the firewall rule exists on its server
// with the declared address range.
func FirewallRulePresent(ctx context.Context, sess *azurerm.Session, args FirewallRuleArgs, dryRun bool) *converge.Result {
	if err := args.validate(); err != nil {
		return converge.Failure(args.Name, err)
	}
	client, err := newFirewallRuleClient(sess)
	if err != nil {
		return converge.Failure(args.Name, err)
	}
	controller := converge.NewController("Firewall rule", client)
	id := converge.Identity{
		ResourceGroup: args.ResourceGroup,
		Parent:        args.Server,
		Name:          args.Name,
	}
	return controller.Present(ctx, id, args.desired(), dryRun)
}

// FirewallRuleAbsent ensures the named firewall rule does not exist on
// the server.
func FirewallRuleAbsent(ctx context.Context, sess *azurerm.Session, resourceGroup, server, name string, dryRun bool) *converge.Result {
	if resourceGroup == "" {
		return converge.Failure(name, errors.NotValidf("empty resource group"))
	}
	if server == "" {
		return converge.Failure(name, errors.NotValidf("empty server name"))
	}
	client, err := newFirewallRuleClient(sess)
	if err != nil {
		return converge.Failure(name, err)
	}
	controller := converge.NewController("Firewall rule", client)
	id := converge.Identity{
		ResourceGroup: resourceGroup,
		Parent:        server,
		Name:          name,
	}
	return controller.Absent(ctx, id, dryRun)
}

// firewallRuleClient adapts the PostgreSQL firewall rules API to
// converge.Client. The identity's Parent carries the owning server.
type firewallRuleClient struct {
	sess  *azurerm.Session
	rules *armpostgresql.FirewallRulesClient
}

func newFirewallRuleClient(sess *azurerm.Session) (*firewallRuleClient, error) {
	rules, err := sess.PostgresFirewallRules()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &firewallRuleClient{sess: sess, rules: rules}, nil
}

func (c *firewallRuleClient) Get(ctx context.Context, id converge.Identity) (*converge.Attrs, bool, error) {
	resp, err := c.rules.Get(ctx, id.ResourceGroup, id.Parent, id.Name, nil)
	if err != nil {
		if errorutils.IsNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, errorutils.Simplify(err)
	}
	return firewallRuleAttrs(resp.FirewallRule), true, nil
}

func (c *firewallRuleClient) CreateOrUpdate(ctx context.Context, id converge.Identity, desired *converge.Attrs) (*converge.Attrs, error) {
	rule := armpostgresql.FirewallRule{
		Properties: &armpostgresql.FirewallRuleProperties{},
	}
	if start, ok := azurerm.Attr[string](desired, "start_ip_address"); ok {
		rule.Properties.StartIPAddress = to.Ptr(start)
	}
	if end, ok := azurerm.Attr[string](desired, "end_ip_address"); ok {
		rule.Properties.EndIPAddress = to.Ptr(end)
	}
	poller, err := c.rules.BeginCreateOrUpdate(ctx, id.ResourceGroup, id.Parent, id.Name, rule, nil)
	if err != nil {
		return nil, errorutils.Simplify(err)
	}
	resp, err := azurerm.PollUntilDone(ctx, c.sess, poller)
	if err != nil {
		return nil, errorutils.Simplify(err)
	}
	return firewallRuleAttrs(resp.FirewallRule), nil
}

func (c *firewallRuleClient) Delete(ctx context.Context, id converge.Identity) error {
	poller, err := c.rules.BeginDelete(ctx, id.ResourceGroup, id.Parent, id.Name, nil)
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

func firewallRuleAttrs(rule armpostgresql.FirewallRule) *converge.Attrs {
	attrs := converge.NewAttrs().
		Set("name", azurerm.ToValue(rule.Name))
	if props := rule.Properties; props != nil {
		if props.StartIPAddress != nil {
			attrs.Set("start_ip_address", *props.StartIPAddress)
		}
		if props.EndIPAddress != nil {
			attrs.Set("end_ip_address", *props.EndIPAddress)
		}
	}
	return attrs
}
