// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package postgresql implements the PostgreSQL single-server, database
// and firewall rule state modules.
package postgresql

import (
	"context"
	"strings"
	"unicode"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/postgresql/armpostgresql"
	"github.com/juju/errors"

	"github.com/juju/armstate/azurerm"
	"github.com/juju/armstate/converge"
	"github.com/juju/armstate/internal/errorutils"
)

// ServerArgs holds the declared state of a PostgreSQL single server.
type ServerArgs struct {
	// Name of the server.
	Name string

	// ResourceGroup the server belongs to.
	ResourceGroup string

	// Location is the Azure location the server is created in.
	Location string

	// SKU is the sku name, for example "GP_Gen5_2".
	SKU string

	// Version is the PostgreSQL engine version, for example "11".
	Version string

	// SSLEnforcement is "Enabled" or "Disabled". Any casing is
	// accepted.
	SSLEnforcement string

	// StorageMB is the allocated storage. Zero leaves the provider
	// default in place.
	StorageMB int32

	// BackupRetentionDays is the backup retention period. Zero leaves
	// the provider default in place.
	BackupRetentionDays int32

	// GeoRedundantBackup is "Enabled" or "Disabled". Any casing is
	// accepted.
	GeoRedundantBackup string

	// AdministratorLogin is the administrator account name. It cannot
	// be changed after the server is created.
	AdministratorLogin string

	// AdministratorLoginPassword is the administrator password. It is
	// write-only: it is never read back, never diffed, and reported
	// changes redact it.
	AdministratorLoginPassword string

	// ForcePassword forces an update cycle even when nothing else
	// changed, so a new password is always written.
	ForcePassword bool

	// Tags assigned to the server.
	Tags map[string]string
}

func (args ServerArgs) validate() error {
	if args.Name == "" {
		return errors.NotValidf("empty server name")
	}
	if args.ResourceGroup == "" {
		return errors.NotValidf("empty resource group")
	}
	if args.Location == "" {
		return errors.NotValidf("empty location")
	}
	return nil
}

func (args ServerArgs) desired() *converge.Attrs {
	attrs := converge.NewAttrs().
		Set("name", args.Name).
		Set("location", args.Location)
	if args.SKU != "" {
		attrs.Set("sku", args.SKU)
	}
	if args.Version != "" {
		attrs.Set("version", args.Version)
	}
	if args.SSLEnforcement != "" {
		attrs.Set("ssl_enforcement", capitalize(args.SSLEnforcement))
	}
	profile := converge.NewAttrs()
	if args.StorageMB > 0 {
		profile.Set("storage_mb", args.StorageMB)
	}
	if args.BackupRetentionDays > 0 {
		profile.Set("backup_retention_days", args.BackupRetentionDays)
	}
	if args.GeoRedundantBackup != "" {
		profile.Set("geo_redundant_backup", capitalize(args.GeoRedundantBackup))
	}
	if profile.Len() > 0 {
		attrs.Set("storage_profile", profile)
	}
	if args.AdministratorLogin != "" {
		attrs.Set("administrator_login", args.AdministratorLogin)
	}
	if len(args.Tags) > 0 {
		attrs.Set("tags", azurerm.TagAttrs(args.Tags))
	}
	return attrs
}

// ServerPresent ensures the PostgreSQL server exists with the declared
// state. The administrator password never appears in the reported
// changes: when one is supplied the change set carries a redacted
// marker instead.
func ServerPresent(ctx context.Context, sess *azurerm.Session, args ServerArgs, dryRun bool) *converge.Result {
	if err := args.validate(); err != nil {
		return converge.Failure(args.Name, err)
	}
	client, err := newServerClient(sess, args.AdministratorLoginPassword)
	if err != nil {
		return converge.Failure(args.Name, err)
	}
	var options []converge.Option
	if args.AdministratorLoginPassword != "" {
		options = append(options, converge.WithSecretField("administrator_login_password"))
	}
	if args.ForcePassword {
		options = append(options, converge.WithForcedUpdate())
	}
	controller := converge.NewController("Server", client, options...)
	id := converge.Identity{ResourceGroup: args.ResourceGroup, Name: args.Name}
	return controller.Present(ctx, id, args.desired(), dryRun)
}

// ServerAbsent ensures the named PostgreSQL server does not exist in
// the resource group.
func ServerAbsent(ctx context.Context, sess *azurerm.Session, resourceGroup, name string, dryRun bool) *converge.Result {
	if resourceGroup == "" {
		return converge.Failure(name, errors.NotValidf("empty resource group"))
	}
	client, err := newServerClient(sess, "")
	if err != nil {
		return converge.Failure(name, err)
	}
	controller := converge.NewController("Server", client)
	id := converge.Identity{ResourceGroup: resourceGroup, Name: name}
	return controller.Absent(ctx, id, dryRun)
}

// serverClient adapts the single-server PostgreSQL API to
// converge.Client. Create and update are distinct operations in this
// API, so the client remembers whether Get observed the server. The
// administrator password is held aside from the attributes and injected
// at write time only.
type serverClient struct {
	sess     *azurerm.Session
	servers  *armpostgresql.ServersClient
	password string
	exists   bool
}

func newServerClient(sess *azurerm.Session, password string) (*serverClient, error) {
	servers, err := sess.PostgresServers()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &serverClient{sess: sess, servers: servers, password: password}, nil
}

func (c *serverClient) Get(ctx context.Context, id converge.Identity) (*converge.Attrs, bool, error) {
	resp, err := c.servers.Get(ctx, id.ResourceGroup, id.Name, nil)
	if err != nil {
		if errorutils.IsNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, errorutils.Simplify(err)
	}
	c.exists = true
	return serverAttrs(resp.Server), true, nil
}

func (c *serverClient) CreateOrUpdate(ctx context.Context, id converge.Identity, desired *converge.Attrs) (*converge.Attrs, error) {
	if c.exists {
		return c.update(ctx, id, desired)
	}
	return c.create(ctx, id, desired)
}

func (c *serverClient) create(ctx context.Context, id converge.Identity, attrs *converge.Attrs) (*converge.Attrs, error) {
	properties := &armpostgresql.ServerPropertiesForDefaultCreate{
		StorageProfile: storageProfileParameters(attrs),
	}
	if login, ok := azurerm.Attr[string](attrs, "administrator_login"); ok {
		properties.AdministratorLogin = to.Ptr(login)
	}
	if c.password != "" {
		properties.AdministratorLoginPassword = to.Ptr(c.password)
	}
	if enforcement, ok := azurerm.Attr[string](attrs, "ssl_enforcement"); ok {
		properties.SSLEnforcement = to.Ptr(armpostgresql.SSLEnforcementEnum(enforcement))
	}
	if version, ok := azurerm.Attr[string](attrs, "version"); ok {
		properties.Version = to.Ptr(armpostgresql.ServerVersion(version))
	}
	location, _ := azurerm.Attr[string](attrs, "location")
	server := armpostgresql.ServerForCreate{
		Location:   to.Ptr(location),
		Properties: properties,
	}
	if sku, ok := azurerm.Attr[string](attrs, "sku"); ok {
		server.SKU = &armpostgresql.SKU{Name: to.Ptr(sku)}
	}
	tagAttrs, _ := azurerm.Attr[*converge.Attrs](attrs, "tags")
	tags, err := azurerm.TagsFromAttrs(tagAttrs)
	if err != nil {
		return nil, errors.Trace(err)
	}
	server.Tags = tags
	poller, err := c.servers.BeginCreate(ctx, id.ResourceGroup, id.Name, server, nil)
	if err != nil {
		return nil, errorutils.Simplify(err)
	}
	resp, err := azurerm.PollUntilDone(ctx, c.sess, poller)
	if err != nil {
		return nil, errorutils.Simplify(err)
	}
	return serverAttrs(resp.Server), nil
}

func (c *serverClient) update(ctx context.Context, id converge.Identity, attrs *converge.Attrs) (*converge.Attrs, error) {
	properties := &armpostgresql.ServerUpdateParametersProperties{
		StorageProfile: storageProfileParameters(attrs),
	}
	if c.password != "" {
		properties.AdministratorLoginPassword = to.Ptr(c.password)
	}
	if enforcement, ok := azurerm.Attr[string](attrs, "ssl_enforcement"); ok {
		properties.SSLEnforcement = to.Ptr(armpostgresql.SSLEnforcementEnum(enforcement))
	}
	if version, ok := azurerm.Attr[string](attrs, "version"); ok {
		properties.Version = to.Ptr(armpostgresql.ServerVersion(version))
	}
	parameters := armpostgresql.ServerUpdateParameters{
		Properties: properties,
	}
	if sku, ok := azurerm.Attr[string](attrs, "sku"); ok {
		parameters.SKU = &armpostgresql.SKU{Name: to.Ptr(sku)}
	}
	tagAttrs, _ := azurerm.Attr[*converge.Attrs](attrs, "tags")
	tags, err := azurerm.TagsFromAttrs(tagAttrs)
	if err != nil {
		return nil, errors.Trace(err)
	}
	parameters.Tags = tags
	poller, err := c.servers.BeginUpdate(ctx, id.ResourceGroup, id.Name, parameters, nil)
	if err != nil {
		return nil, errorutils.Simplify(err)
	}
	resp, err := azurerm.PollUntilDone(ctx, c.sess, poller)
	if err != nil {
		return nil, errorutils.Simplify(err)
	}
	return serverAttrs(resp.Server), nil
}

func (c *serverClient) Delete(ctx context.Context, id converge.Identity) error {
	poller, err := c.servers.BeginDelete(ctx, id.ResourceGroup, id.Name, nil)
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

func serverAttrs(server armpostgresql.Server) *converge.Attrs {
	attrs := converge.NewAttrs().
		Set("name", azurerm.ToValue(server.Name)).
		Set("location", azurerm.ToValue(server.Location))
	if server.SKU != nil && server.SKU.Name != nil {
		attrs.Set("sku", *server.SKU.Name)
	}
	if props := server.Properties; props != nil {
		if props.Version != nil {
			attrs.Set("version", string(*props.Version))
		}
		if props.SSLEnforcement != nil {
			attrs.Set("ssl_enforcement", string(*props.SSLEnforcement))
		}
		if profile := storageProfileAttrs(props.StorageProfile); profile.Len() > 0 {
			attrs.Set("storage_profile", profile)
		}
		if props.AdministratorLogin != nil {
			attrs.Set("administrator_login", *props.AdministratorLogin)
		}
	}
	if tags := azurerm.StringMap(server.Tags); len(tags) > 0 {
		attrs.Set("tags", azurerm.TagAttrs(tags))
	}
	return attrs
}

func storageProfileAttrs(profile *armpostgresql.StorageProfile) *converge.Attrs {
	attrs := converge.NewAttrs()
	if profile == nil {
		return attrs
	}
	if profile.StorageMB != nil {
		attrs.Set("storage_mb", *profile.StorageMB)
	}
	if profile.BackupRetentionDays != nil {
		attrs.Set("backup_retention_days", *profile.BackupRetentionDays)
	}
	if profile.GeoRedundantBackup != nil {
		attrs.Set("geo_redundant_backup", string(*profile.GeoRedundantBackup))
	}
	return attrs
}

func storageProfileParameters(attrs *converge.Attrs) *armpostgresql.StorageProfile {
	profileAttrs, ok := azurerm.Attr[*converge.Attrs](attrs, "storage_profile")
	if !ok {
		return nil
	}
	profile := &armpostgresql.StorageProfile{}
	if mb, ok := azurerm.Attr[int32](profileAttrs, "storage_mb"); ok {
		profile.StorageMB = to.Ptr(mb)
	}
	if days, ok := azurerm.Attr[int32](profileAttrs, "backup_retention_days"); ok {
		profile.BackupRetentionDays = to.Ptr(days)
	}
	if geo, ok := azurerm.Attr[string](profileAttrs, "geo_redundant_backup"); ok {
		profile.GeoRedundantBackup = to.Ptr(armpostgresql.GeoRedundantBackup(geo))
	}
	return profile
}

// capitalize upper-cases the first rune and lowers the rest, matching
// the casing ARM reports for enumerated names such as "Enabled".
func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
