// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package keyvault implements the key vault state module and the
// data-plane key and secret state modules.
package keyvault

import (
	"context"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/keyvault/armkeyvault"
	"github.com/google/uuid"
	"github.com/juju/errors"

	"github.com/juju/armstate/azurerm"
	"github.com/juju/armstate/converge"
	"github.com/juju/armstate/internal/errorutils"
)

// VaultArgs holds the declared state of a key vault. Access policies
// are left to their owners and are not managed here.
type VaultArgs struct {
	// Name of the vault.
	Name string

	// ResourceGroup the vault belongs to.
	ResourceGroup string

	// Location is the Azure location the vault is created in.
	Location string

	// TenantID is the Azure Active Directory tenant that should be
	// used for authenticating requests to the vault.
	TenantID string

	// SKUName is "standard" or "premium". Any casing is accepted.
	SKUName string

	// SKUFamily is the sku family. Empty means "A", the only family
	// the service offers.
	SKUFamily string

	// EnabledForDeployment permits Azure Virtual Machines to retrieve
	// certificates stored as secrets. Nil leaves the flag unmanaged.
	EnabledForDeployment *bool

	// EnabledForDiskEncryption permits Azure Disk Encryption to
	// retrieve secrets and unwrap keys. Nil leaves the flag unmanaged.
	EnabledForDiskEncryption *bool

	// EnabledForTemplateDeployment permits Azure Resource Manager to
	// retrieve secrets. Nil leaves the flag unmanaged.
	EnabledForTemplateDeployment *bool

	// SoftDeleteRetentionInDays is the soft delete retention period,
	// between 7 and 90. Zero leaves the provider default in place.
	SoftDeleteRetentionInDays int32

	// Tags assigned to the vault.
	Tags map[string]string
}

func (args VaultArgs) validate() error {
	if args.Name == "" {
		return errors.NotValidf("empty vault name")
	}
	if args.ResourceGroup == "" {
		return errors.NotValidf("empty resource group")
	}
	if args.Location == "" {
		return errors.NotValidf("empty location")
	}
	if _, err := uuid.Parse(args.TenantID); err != nil {
		return errors.NotValidf("tenant ID %q", args.TenantID)
	}
	if args.SKUName == "" {
		return errors.NotValidf("empty sku name")
	}
	return nil
}

func (args VaultArgs) desired() *converge.Attrs {
	family := args.SKUFamily
	if family == "" {
		family = string(armkeyvault.SKUFamilyA)
	}
	attrs := converge.NewAttrs().
		Set("name", args.Name).
		Set("location", args.Location).
		Set("tenant_id", strings.ToLower(args.TenantID)).
		Set("sku", converge.NewAttrs().
			Set("family", family).
			Set("name", strings.ToLower(args.SKUName)))
	if args.EnabledForDeployment != nil {
		attrs.Set("enabled_for_deployment", *args.EnabledForDeployment)
	}
	if args.EnabledForDiskEncryption != nil {
		attrs.Set("enabled_for_disk_encryption", *args.EnabledForDiskEncryption)
	}
	if args.EnabledForTemplateDeployment != nil {
		attrs.Set("enabled_for_template_deployment", *args.EnabledForTemplateDeployment)
	}
	if args.SoftDeleteRetentionInDays > 0 {
		attrs.Set("soft_delete_retention_in_days", args.SoftDeleteRetentionInDays)
	}
	if len(args.Tags) > 0 {
		attrs.Set("tags", azurerm.TagAttrs(args.Tags))
	}
	return attrs
}

// VaultPresent ensures the key vault exists with the declared state.
func VaultPresent(ctx context.Context, sess *azurerm.Session, args VaultArgs, dryRun bool) *converge.Result {
	if err := args.validate(); err != nil {
		return converge.Failure(args.Name, err)
	}
	client, err := newVaultClient(sess)
	if err != nil {
		return converge.Failure(args.Name, err)
	}
	controller := converge.NewController("Key vault", client)
	id := converge.Identity{ResourceGroup: args.ResourceGroup, Name: args.Name}
	return controller.Present(ctx, id, args.desired(), dryRun)
}

// VaultAbsent ensures the named key vault does not exist in the
// resource group.
func VaultAbsent(ctx context.Context, sess *azurerm.Session, resourceGroup, name string, dryRun bool) *converge.Result {
	if resourceGroup == "" {
		return converge.Failure(name, errors.NotValidf("empty resource group"))
	}
	client, err := newVaultClient(sess)
	if err != nil {
		return converge.Failure(name, err)
	}
	controller := converge.NewController("Key vault", client)
	id := converge.Identity{ResourceGroup: resourceGroup, Name: name}
	return controller.Absent(ctx, id, dryRun)
}

// vaultClient adapts the ARM vaults API to converge.Client.
type vaultClient struct {
	sess   *azurerm.Session
	vaults *armkeyvault.VaultsClient
}

func newVaultClient(sess *azurerm.Session) (*vaultClient, error) {
	vaults, err := sess.Vaults()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &vaultClient{sess: sess, vaults: vaults}, nil
}

func (c *vaultClient) Get(ctx context.Context, id converge.Identity) (*converge.Attrs, bool, error) {
	resp, err := c.vaults.Get(ctx, id.ResourceGroup, id.Name, nil)
	if err != nil {
		if errorutils.IsNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, errorutils.Simplify(err)
	}
	return vaultAttrs(resp.Vault), true, nil
}

func (c *vaultClient) CreateOrUpdate(ctx context.Context, id converge.Identity, desired *converge.Attrs) (*converge.Attrs, error) {
	vault, err := vaultParameters(desired)
	if err != nil {
		return nil, errors.Trace(err)
	}
	poller, err := c.vaults.BeginCreateOrUpdate(ctx, id.ResourceGroup, id.Name, vault, nil)
	if err != nil {
		return nil, errorutils.Simplify(err)
	}
	resp, err := azurerm.PollUntilDone(ctx, c.sess, poller)
	if err != nil {
		return nil, errorutils.Simplify(err)
	}
	return vaultAttrs(resp.Vault), nil
}

// Delete is synchronous: the vaults API deletes in a single call.
func (c *vaultClient) Delete(ctx context.Context, id converge.Identity) error {
	if _, err := c.vaults.Delete(ctx, id.ResourceGroup, id.Name, nil); err != nil {
		if errorutils.IsNotFoundError(err) {
			return nil
		}
		return errorutils.Simplify(err)
	}
	return nil
}

func vaultAttrs(vault armkeyvault.Vault) *converge.Attrs {
	attrs := converge.NewAttrs().
		Set("name", azurerm.ToValue(vault.Name)).
		Set("location", azurerm.ToValue(vault.Location))
	if props := vault.Properties; props != nil {
		if props.TenantID != nil {
			attrs.Set("tenant_id", strings.ToLower(*props.TenantID))
		}
		if sku := props.SKU; sku != nil {
			skuAttrs := converge.NewAttrs()
			if sku.Family != nil {
				skuAttrs.Set("family", string(*sku.Family))
			}
			if sku.Name != nil {
				skuAttrs.Set("name", strings.ToLower(string(*sku.Name)))
			}
			attrs.Set("sku", skuAttrs)
		}
		if props.EnabledForDeployment != nil {
			attrs.Set("enabled_for_deployment", *props.EnabledForDeployment)
		}
		if props.EnabledForDiskEncryption != nil {
			attrs.Set("enabled_for_disk_encryption", *props.EnabledForDiskEncryption)
		}
		if props.EnabledForTemplateDeployment != nil {
			attrs.Set("enabled_for_template_deployment", *props.EnabledForTemplateDeployment)
		}
		if props.SoftDeleteRetentionInDays != nil {
			attrs.Set("soft_delete_retention_in_days", *props.SoftDeleteRetentionInDays)
		}
	}
	if tags := azurerm.StringMap(vault.Tags); len(tags) > 0 {
		attrs.Set("tags", azurerm.TagAttrs(tags))
	}
	return attrs
}

func vaultParameters(attrs *converge.Attrs) (armkeyvault.VaultCreateOrUpdateParameters, error) {
	location, _ := azurerm.Attr[string](attrs, "location")
	properties := &armkeyvault.VaultProperties{}
	if tenant, ok := azurerm.Attr[string](attrs, "tenant_id"); ok {
		properties.TenantID = to.Ptr(tenant)
	}
	if skuAttrs, ok := azurerm.Attr[*converge.Attrs](attrs, "sku"); ok {
		sku := &armkeyvault.SKU{}
		if family, ok := azurerm.Attr[string](skuAttrs, "family"); ok {
			sku.Family = to.Ptr(armkeyvault.SKUFamily(family))
		}
		if name, ok := azurerm.Attr[string](skuAttrs, "name"); ok {
			sku.Name = to.Ptr(armkeyvault.SKUName(name))
		}
		properties.SKU = sku
	}
	if enabled, ok := azurerm.Attr[bool](attrs, "enabled_for_deployment"); ok {
		properties.EnabledForDeployment = to.Ptr(enabled)
	}
	if enabled, ok := azurerm.Attr[bool](attrs, "enabled_for_disk_encryption"); ok {
		properties.EnabledForDiskEncryption = to.Ptr(enabled)
	}
	if enabled, ok := azurerm.Attr[bool](attrs, "enabled_for_template_deployment"); ok {
		properties.EnabledForTemplateDeployment = to.Ptr(enabled)
	}
	if days, ok := azurerm.Attr[int32](attrs, "soft_delete_retention_in_days"); ok {
		properties.SoftDeleteRetentionInDays = to.Ptr(days)
	}
	parameters := armkeyvault.VaultCreateOrUpdateParameters{
		Location:   to.Ptr(location),
		Properties: properties,
	}
	tagAttrs, _ := azurerm.Attr[*converge.Attrs](attrs, "tags")
	tags, err := azurerm.TagsFromAttrs(tagAttrs)
	if err != nil {
		return armkeyvault.VaultCreateOrUpdateParameters{}, errors.Trace(err)
	}
	parameters.Tags = tags
	return parameters, nil
}
