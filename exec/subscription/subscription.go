// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package subscription queries the subscriptions and locations visible
// to a session's credential.
package subscription

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"
	"github.com/juju/errors"

	"github.com/juju/armstate/azurerm"
	"github.com/juju/armstate/internal/errorutils"
)

// List returns every subscription the session's credential can see.
func List(ctx context.Context, sess *azurerm.Session) ([]*armsubscriptions.Subscription, error) {
	client, err := sess.Subscriptions()
	if err != nil {
		return nil, errors.Trace(err)
	}
	var subscriptions []*armsubscriptions.Subscription
	pager := client.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, errorutils.Simplify(err)
		}
		subscriptions = append(subscriptions, page.Value...)
	}
	return subscriptions, nil
}

// Get returns one subscription. An empty subscriptionID means the
// session's own subscription.
func Get(ctx context.Context, sess *azurerm.Session, subscriptionID string) (*armsubscriptions.Subscription, error) {
	if subscriptionID == "" {
		subscriptionID = sess.SubscriptionID()
	}
	client, err := sess.Subscriptions()
	if err != nil {
		return nil, errors.Trace(err)
	}
	resp, err := client.Get(ctx, subscriptionID, nil)
	if err != nil {
		return nil, errorutils.Simplify(err)
	}
	return &resp.Subscription, nil
}

// Locations returns the locations available to a subscription. An
// empty subscriptionID means the session's own subscription.
func Locations(ctx context.Context, sess *azurerm.Session, subscriptionID string) ([]*armsubscriptions.Location, error) {
	if subscriptionID == "" {
		subscriptionID = sess.SubscriptionID()
	}
	client, err := sess.Subscriptions()
	if err != nil {
		return nil, errors.Trace(err)
	}
	var locations []*armsubscriptions.Location
	pager := client.NewListLocationsPager(subscriptionID, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, errorutils.Simplify(err)
		}
		locations = append(locations, page.Value...)
	}
	return locations, nil
}
