// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package postgresql

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/postgresql/armpostgresql"
	"github.com/juju/errors"

	"github.com/juju/armstate/azurerm"
	"github.com/juju/armstate/converge"
	"github.com/juju/armstate/internal/errorutils"
)

// DatabaseArgs holds the declared state of a database on a PostgreSQL
// server.
type DatabaseArgs struct {
	// Name of the database.
	Name string

	// ResourceGroup the owning server belongs to.
	ResourceGroup string

	// Server names the owning PostgreSQL server.
	Server string

	// Charset is the database character set, for example "UTF8".
	Charset string

	// Collation is the database collation, for example
	// "English_United States.1252".
	Collation string
}

func (args DatabaseArgs) validate() error {
	if args.Name == "" {
		return errors.NotValidf("empty database name")
	}
	if args.ResourceGroup == "" {
		return errors.NotValidf("empty resource group")
	}
	if args.Server == "" {
		return errors.NotValidf("empty server name")
	}
	return nil
}

func (args DatabaseArgs) desired() *converge.Attrs {
	attrs := converge.NewAttrs().
		Set("name", args.Name)
	if args.Charset != "" {
		attrs.Set("charset", args.Charset)
	}
	if args.Collation != "" {
		attrs.Set("collation", args.Collation)
	}
	return attrs
}

// DatabasePresent ensures the database exists on its server with the
// declared state.
func DatabasePresent(ctx context.Context, sess *azurerm.Session, args DatabaseArgs, dryRun bool) *converge.Result {
	if err := args.validate(); err != nil {
		return converge.Failure(args.Name, err)
	}
	client, err := newDatabaseClient(sess)
	if err != nil {
		return converge.Failure(args.Name, err)
	}
	controller := converge.NewController("Database", client)
	id := converge.Identity{
		ResourceGroup: args.ResourceGroup,
		Parent:        args.Server,
		Name:          args.Name,
	}
	return controller.Present(ctx, id, args.desired(), dryRun)
}

// DatabaseAbsent ensures the named database does not exist on the
// server.
func DatabaseAbsent(ctx context.Context, sess *azurerm.Session, resourceGroup, server, name string, dryRun bool) *converge.Result {
	if resourceGroup == "" {
		return converge.Failure(name, errors.NotValidf("empty resource group"))
	}
	if server == "" {
		return converge.Failure(name, errors.NotValidf("empty server name"))
	}
	client, err := newDatabaseClient(sess)
	if err != nil {
		return converge.Failure(name, err)
	}
	controller := converge.NewController("Database", client)
	id := converge.Identity{
		ResourceGroup: resourceGroup,
		Parent:        server,
		Name:          name,
	}
	return controller.Absent(ctx, id, dryRun)
}

// databaseClient adapts the PostgreSQL databases API to
// converge.Client. The identity's Parent carries the owning server.
type databaseClient struct {
	sess      *azurerm.Session
	databases *armpostgresql.DatabasesClient
}

func newDatabaseClient(sess *azurerm.Session) (*databaseClient, error) {
	databases, err := sess.PostgresDatabases()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &databaseClient{sess: sess, databases: databases}, nil
}

func (c *databaseClient) Get(ctx context.Context, id converge.Identity) (*converge.Attrs, bool, error) {
	resp, err := c.databases.Get(ctx, id.ResourceGroup, id.Parent, id.Name, nil)
	if err != nil {
		if errorutils.IsNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, errorutils.Simplify(err)
	}
	return databaseAttrs(resp.Database), true, nil
}

func (c *databaseClient) CreateOrUpdate(ctx context.Context, id converge.Identity, desired *converge.Attrs) (*converge.Attrs, error) {
	database := armpostgresql.Database{
		Properties: &armpostgresql.DatabaseProperties{},
	}
	if charset, ok := azurerm.Attr[string](desired, "charset"); ok {
		database.Properties.Charset = to.Ptr(charset)
	}
	if collation, ok := azurerm.Attr[string](desired, "collation"); ok {
		database.Properties.Collation = to.Ptr(collation)
	}
	poller, err := c.databases.BeginCreateOrUpdate(ctx, id.ResourceGroup, id.Parent, id.Name, database, nil)
	if err != nil {
		return nil, errorutils.Simplify(err)
	}
	resp, err := azurerm.PollUntilDone(ctx, c.sess, poller)
	if err != nil {
		return nil, errorutils.Simplify(err)
	}
	return databaseAttrs(resp.Database), nil
}

func (c *databaseClient) Delete(ctx context.Context, id converge.Identity) error {
	poller, err := c.databases.BeginDelete(ctx, id.ResourceGroup, id.Parent, id.Name, nil)
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

func databaseAttrs(database armpostgresql.Database) *converge.Attrs {
	attrs := converge.NewAttrs().
		Set("name", azurerm.ToValue(database.Name))
	if props := database.Properties; props != nil {
		if props.Charset != nil {
			attrs.Set("charset", *props.Charset)
		}
		if props.Collation != nil {
			attrs.Set("collation", *props.Collation)
		}
	}
	return attrs
}
