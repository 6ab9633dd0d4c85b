// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package keyvault

import (
	"context"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/juju/errors"

	"github.com/juju/armstate/azurerm"
	"github.com/juju/armstate/converge"
	"github.com/juju/armstate/internal/errorutils"
)

// SecretArgs holds the declared state of a secret within a vault.
type SecretArgs struct {
	// Name of the secret. Secret names can only contain alphanumeric
	// characters and dashes.
	Name string

	// VaultURL is the URL of the owning vault.
	VaultURL string

	// Value of the secret. The value is compared against the stored
	// secret but always reported as "REDACTED".
	Value string

	// ContentType describes the secret value, for example
	// "text/plain". Compared case-insensitively.
	ContentType string

	// Enabled specifies whether the secret is enabled for use. Nil
	// leaves the flag unmanaged.
	Enabled *bool

	// Tags assigned to the secret.
	Tags map[string]string
}

func (args SecretArgs) validate() error {
	if args.Name == "" {
		return errors.NotValidf("empty secret name")
	}
	if args.VaultURL == "" {
		return errors.NotValidf("empty vault URL")
	}
	if args.Value == "" {
		return errors.NotValidf("empty secret value")
	}
	return nil
}

func (args SecretArgs) desired() *converge.Attrs {
	attrs := converge.NewAttrs().
		Set("name", args.Name).
		Set("value", args.Value)
	if args.ContentType != "" {
		attrs.Set("content_type", strings.ToLower(args.ContentType))
	}
	if args.Enabled != nil {
		attrs.Set("enabled", *args.Enabled)
	}
	if len(args.Tags) > 0 {
		attrs.Set("tags", azurerm.TagAttrs(args.Tags))
	}
	return attrs
}

// SecretPresent ensures the secret exists in the vault with the
// declared value. A changed value creates a new secret version.
func SecretPresent(ctx context.Context, sess *azurerm.Session, args SecretArgs, dryRun bool) *converge.Result {
	if err := args.validate(); err != nil {
		return converge.Failure(args.Name, err)
	}
	client, err := newSecretClient(sess, args.VaultURL)
	if err != nil {
		return converge.Failure(args.Name, err)
	}
	controller := converge.NewController("Secret", client,
		converge.WithSecretField("value"),
	)
	id := converge.Identity{Parent: args.VaultURL, Name: args.Name}
	return controller.Present(ctx, id, args.desired(), dryRun)
}

// SecretAbsent ensures the named secret does not exist in the vault.
func SecretAbsent(ctx context.Context, sess *azurerm.Session, vaultURL, name string, dryRun bool) *converge.Result {
	if vaultURL == "" {
		return converge.Failure(name, errors.NotValidf("empty vault URL"))
	}
	client, err := newSecretClient(sess, vaultURL)
	if err != nil {
		return converge.Failure(name, err)
	}
	controller := converge.NewController("Secret", client,
		converge.WithSecretField("value"),
	)
	id := converge.Identity{Parent: vaultURL, Name: name}
	return controller.Absent(ctx, id, dryRun)
}

// secretClient adapts the vault secrets data plane to converge.Client.
type secretClient struct {
	secrets *azsecrets.Client
}

func newSecretClient(sess *azurerm.Session, vaultURL string) (*secretClient, error) {
	secrets, err := sess.VaultSecrets(vaultURL)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &secretClient{secrets: secrets}, nil
}

func (c *secretClient) Get(ctx context.Context, id converge.Identity) (*converge.Attrs, bool, error) {
	resp, err := c.secrets.GetSecret(ctx, id.Name, "", nil)
	if err != nil {
		if errorutils.IsNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, errorutils.Simplify(err)
	}
	return secretAttrs(resp.Secret), true, nil
}

func (c *secretClient) CreateOrUpdate(ctx context.Context, id converge.Identity, desired *converge.Attrs) (*converge.Attrs, error) {
	parameters := azsecrets.SetSecretParameters{}
	if value, ok := azurerm.Attr[string](desired, "value"); ok {
		parameters.Value = to.Ptr(value)
	}
	if contentType, ok := azurerm.Attr[string](desired, "content_type"); ok {
		parameters.ContentType = to.Ptr(contentType)
	}
	if enabled, ok := azurerm.Attr[bool](desired, "enabled"); ok {
		parameters.SecretAttributes = &azsecrets.SecretAttributes{Enabled: to.Ptr(enabled)}
	}
	tagAttrs, _ := azurerm.Attr[*converge.Attrs](desired, "tags")
	tags, err := azurerm.TagsFromAttrs(tagAttrs)
	if err != nil {
		return nil, errors.Trace(err)
	}
	parameters.Tags = tags
	resp, err := c.secrets.SetSecret(ctx, id.Name, parameters, nil)
	if err != nil {
		return nil, errorutils.Simplify(err)
	}
	return secretAttrs(resp.Secret), nil
}

func (c *secretClient) Delete(ctx context.Context, id converge.Identity) error {
	if _, err := c.secrets.DeleteSecret(ctx, id.Name, nil); err != nil {
		if errorutils.IsNotFoundError(err) {
			return nil
		}
		return errorutils.Simplify(err)
	}
	return nil
}

func secretAttrs(secret azsecrets.Secret) *converge.Attrs {
	attrs := converge.NewAttrs()
	if secret.ID != nil {
		attrs.Set("name", secret.ID.Name())
	}
	if secret.Value != nil {
		attrs.Set("value", *secret.Value)
	}
	if secret.ContentType != nil {
		attrs.Set("content_type", strings.ToLower(*secret.ContentType))
	}
	if secret.Attributes != nil && secret.Attributes.Enabled != nil {
		attrs.Set("enabled", *secret.Attributes.Enabled)
	}
	if tags := azurerm.StringMap(secret.Tags); len(tags) > 0 {
		attrs.Set("tags", azurerm.TagAttrs(tags))
	}
	return attrs
}
