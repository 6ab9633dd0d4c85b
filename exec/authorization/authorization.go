// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package authorization queries role definitions and role assignments.
package authorization

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/authorization/armauthorization/v3"
	"github.com/juju/errors"

	"github.com/juju/armstate/azurerm"
	"github.com/juju/armstate/internal/errorutils"
)

// RoleDefinitions returns the role definitions applicable at a scope,
// for example "subscriptions/<id>" or
// "subscriptions/<id>/resourceGroups/<name>". An empty scope means the
// session's subscription.
func RoleDefinitions(ctx context.Context, sess *azurerm.Session, scope string) ([]*armauthorization.RoleDefinition, error) {
	if scope == "" {
		scope = "subscriptions/" + sess.SubscriptionID()
	}
	client, err := sess.RoleDefinitions()
	if err != nil {
		return nil, errors.Trace(err)
	}
	var definitions []*armauthorization.RoleDefinition
	pager := client.NewListPager(scope, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, errorutils.Simplify(err)
		}
		definitions = append(definitions, page.Value...)
	}
	return definitions, nil
}

// RoleAssignments returns the role assignments applying at a scope. An
// empty scope means the session's subscription.
func RoleAssignments(ctx context.Context, sess *azurerm.Session, scope string) ([]*armauthorization.RoleAssignment, error) {
	if scope == "" {
		scope = "subscriptions/" + sess.SubscriptionID()
	}
	client, err := sess.RoleAssignments()
	if err != nil {
		return nil, errors.Trace(err)
	}
	var assignments []*armauthorization.RoleAssignment
	pager := client.NewListForScopePager(scope, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, errorutils.Simplify(err)
		}
		assignments = append(assignments, page.Value...)
	}
	return assignments, nil
}
