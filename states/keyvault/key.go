// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package keyvault

import (
	"context"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"
	"github.com/juju/errors"

	"github.com/juju/armstate/azurerm"
	"github.com/juju/armstate/converge"
	"github.com/juju/armstate/internal/errorutils"
)

// KeyArgs holds the declared state of a key within a vault. Keys are
// managed through the vault's data plane rather than ARM, so the vault
// is addressed by URL.
type KeyArgs struct {
	// Name of the key. Key names can only contain alphanumeric
	// characters and dashes.
	Name string

	// VaultURL is the URL of the owning vault, for example
	// "https://myvault.vault.azure.net/".
	VaultURL string

	// KeyType is the type of key: "RSA", "RSA-HSM", "EC", "EC-HSM" or
	// "oct". Underscores and any casing are accepted.
	KeyType string

	// KeySize is the RSA key size in bits. Zero leaves the provider
	// default in place. The observed size is derived from the key's
	// public modulus, so only RSA keys diff on it.
	KeySize int32

	// KeyOps lists the permitted key operations ("encrypt", "decrypt",
	// "sign", "verify", "wrapKey", "unwrapKey"). Compared as a set.
	KeyOps []string

	// Enabled specifies whether the key is enabled for use. Nil leaves
	// the flag unmanaged.
	Enabled *bool

	// Tags assigned to the key.
	Tags map[string]string
}

func (args KeyArgs) validate() error {
	if args.Name == "" {
		return errors.NotValidf("empty key name")
	}
	if args.VaultURL == "" {
		return errors.NotValidf("empty vault URL")
	}
	if args.KeyType == "" {
		return errors.NotValidf("empty key type")
	}
	return nil
}

func (args KeyArgs) desired() *converge.Attrs {
	attrs := converge.NewAttrs().
		Set("name", args.Name).
		Set("key_type", keyType(args.KeyType))
	if args.KeySize > 0 {
		attrs.Set("key_size", args.KeySize)
	}
	if len(args.KeyOps) > 0 {
		attrs.Set("key_ops", azurerm.Sorted(args.KeyOps))
	}
	if args.Enabled != nil {
		attrs.Set("enabled", *args.Enabled)
	}
	if len(args.Tags) > 0 {
		attrs.Set("tags", azurerm.TagAttrs(args.Tags))
	}
	return attrs
}

// KeyPresent ensures the key exists in the vault with the declared
// state. Updating an existing key creates a new key version.
func KeyPresent(ctx context.Context, sess *azurerm.Session, args KeyArgs, dryRun bool) *converge.Result {
	if err := args.validate(); err != nil {
		return converge.Failure(args.Name, err)
	}
	client, err := newKeyClient(sess, args.VaultURL)
	if err != nil {
		return converge.Failure(args.Name, err)
	}
	controller := converge.NewController("Key", client)
	id := converge.Identity{Parent: args.VaultURL, Name: args.Name}
	return controller.Present(ctx, id, args.desired(), dryRun)
}

// KeyAbsent ensures the named key does not exist in the vault.
func KeyAbsent(ctx context.Context, sess *azurerm.Session, vaultURL, name string, dryRun bool) *converge.Result {
	if vaultURL == "" {
		return converge.Failure(name, errors.NotValidf("empty vault URL"))
	}
	client, err := newKeyClient(sess, vaultURL)
	if err != nil {
		return converge.Failure(name, err)
	}
	controller := converge.NewController("Key", client)
	id := converge.Identity{Parent: vaultURL, Name: name}
	return controller.Absent(ctx, id, dryRun)
}

// keyClient adapts the vault keys data plane to converge.Client.
type keyClient struct {
	keys *azkeys.Client
}

func newKeyClient(sess *azurerm.Session, vaultURL string) (*keyClient, error) {
	keys, err := sess.VaultKeys(vaultURL)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &keyClient{keys: keys}, nil
}

func (c *keyClient) Get(ctx context.Context, id converge.Identity) (*converge.Attrs, bool, error) {
	resp, err := c.keys.GetKey(ctx, id.Name, "", nil)
	if err != nil {
		if errorutils.IsNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, errorutils.Simplify(err)
	}
	return keyAttrs(resp.KeyBundle), true, nil
}

func (c *keyClient) CreateOrUpdate(ctx context.Context, id converge.Identity, desired *converge.Attrs) (*converge.Attrs, error) {
	parameters := azkeys.CreateKeyParameters{}
	if typ, ok := azurerm.Attr[string](desired, "key_type"); ok {
		parameters.Kty = to.Ptr(azkeys.KeyType(typ))
	}
	if size, ok := azurerm.Attr[int32](desired, "key_size"); ok {
		parameters.KeySize = to.Ptr(size)
	}
	if ops, ok := azurerm.Attr[[]string](desired, "key_ops"); ok {
		keyOps := make([]*azkeys.KeyOperation, len(ops))
		for i, op := range ops {
			keyOps[i] = to.Ptr(azkeys.KeyOperation(op))
		}
		parameters.KeyOps = keyOps
	}
	if enabled, ok := azurerm.Attr[bool](desired, "enabled"); ok {
		parameters.KeyAttributes = &azkeys.KeyAttributes{Enabled: to.Ptr(enabled)}
	}
	tagAttrs, _ := azurerm.Attr[*converge.Attrs](desired, "tags")
	tags, err := azurerm.TagsFromAttrs(tagAttrs)
	if err != nil {
		return nil, errors.Trace(err)
	}
	parameters.Tags = tags
	resp, err := c.keys.CreateKey(ctx, id.Name, parameters, nil)
	if err != nil {
		return nil, errorutils.Simplify(err)
	}
	return keyAttrs(resp.KeyBundle), nil
}

func (c *keyClient) Delete(ctx context.Context, id converge.Identity) error {
	if _, err := c.keys.DeleteKey(ctx, id.Name, nil); err != nil {
		if errorutils.IsNotFoundError(err) {
			return nil
		}
		return errorutils.Simplify(err)
	}
	return nil
}

func keyAttrs(key azkeys.KeyBundle) *converge.Attrs {
	attrs := converge.NewAttrs()
	if web := key.Key; web != nil {
		if web.KID != nil {
			attrs.Set("name", web.KID.Name())
		}
		if web.Kty != nil {
			attrs.Set("key_type", string(*web.Kty))
			if strings.HasPrefix(string(*web.Kty), "RSA") && len(web.N) > 0 {
				attrs.Set("key_size", int32(len(web.N)*8))
			}
		}
		if len(web.KeyOps) > 0 {
			ops := make([]string, 0, len(web.KeyOps))
			for _, op := range web.KeyOps {
				if op == nil {
					continue
				}
				ops = append(ops, string(*op))
			}
			attrs.Set("key_ops", azurerm.Sorted(ops))
		}
	}
	if key.Attributes != nil && key.Attributes.Enabled != nil {
		attrs.Set("enabled", *key.Attributes.Enabled)
	}
	if tags := azurerm.StringMap(key.Tags); len(tags) > 0 {
		attrs.Set("tags", azurerm.TagAttrs(tags))
	}
	return attrs
}

// keyType canonicalizes a key type to the form the data plane reports:
// upper case with dashes, except the symmetric "oct" type.
func keyType(s string) string {
	if strings.EqualFold(s, "oct") {
		return "oct"
	}
	return strings.ReplaceAll(strings.ToUpper(s), "_", "-")
}
