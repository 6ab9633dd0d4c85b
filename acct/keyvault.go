// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package acct resolves provider credential profiles from an Azure Key
// Vault. Secrets named <designator><provider>-<profile>-<parameter>
// are gathered into nested profile maps keyed by provider and profile.
package acct

import (
	"context"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/juju/armstate/internal/azureauth"
	"github.com/juju/armstate/internal/errorutils"
)

var logger = loggo.GetLogger("armstate.acct")

// DefaultDesignator prefixes the vault secrets holding profile
// parameters.
const DefaultDesignator = "acct-provider-"

// Profiles holds unlocked credential profiles: parameter values keyed
// by provider, profile and parameter name.
type Profiles map[string]map[string]map[string]string

// UnlockArgs configures Unlock.
type UnlockArgs struct {
	// VaultURL is the URL of the vault holding the profile secrets,
	// for example "https://myvault.vault.azure.net". Required.
	VaultURL string

	// Designator prefixes the secret names to gather. Defaults to
	// DefaultDesignator.
	Designator string

	// Credential, if non-nil, overrides the default credential chain.
	Credential azcore.TokenCredential

	// Transport, if non-nil, replaces the pipeline transport. Tests
	// inject canned senders here.
	Transport policy.Transporter
}

// Unlock lists the vault's secrets and gathers those named
// <designator><provider>-<profile>-<parameter> into profiles, fetching
// the latest version of each. A name with fewer than two dashes after
// the designator is logged at error level and skipped. Secret names
// cannot contain underscores, so dashes past the profile field map to
// underscores in the parameter name: "acct-provider-azurerm-default-
// subscription-id" unlocks into profiles["azurerm"]["default"]
// ["subscription_id"].
func Unlock(ctx context.Context, args UnlockArgs) (Profiles, error) {
	if args.VaultURL == "" {
		return nil, errors.NotValidf("empty vault URL")
	}
	designator := args.Designator
	if designator == "" {
		designator = DefaultDesignator
	}
	credential := args.Credential
	if credential == nil {
		cred, err := azureauth.NewCredential(azureauth.Config{})
		if err != nil {
			return nil, errors.Annotate(err, "resolving credential")
		}
		credential = cred
	}
	client, err := azsecrets.NewClient(args.VaultURL, credential, &azsecrets.ClientOptions{
		ClientOptions: azcore.ClientOptions{Transport: args.Transport},
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	profiles := make(Profiles)
	pager := client.NewListSecretPropertiesPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, errorutils.Simplify(err)
		}
		for _, item := range page.Value {
			if item == nil || item.ID == nil {
				continue
			}
			name := item.ID.Name()
			if !strings.HasPrefix(name, designator) {
				continue
			}
			provider, profile, param, ok := splitSecretName(strings.TrimPrefix(name, designator))
			if !ok {
				logger.Errorf("ignoring secret %q: need <provider>-<profile>-<parameter> after %q", name, designator)
				continue
			}
			resp, err := client.GetSecret(ctx, name, "", nil)
			if err != nil {
				return nil, errorutils.Simplify(err)
			}
			byProfile := profiles[provider]
			if byProfile == nil {
				byProfile = make(map[string]map[string]string)
				profiles[provider] = byProfile
			}
			params := byProfile[profile]
			if params == nil {
				params = make(map[string]string)
				byProfile[profile] = params
			}
			var value string
			if resp.Value != nil {
				value = *resp.Value
			}
			params[param] = value
		}
	}
	logger.Debugf("unlocked %d providers from %s", len(profiles), args.VaultURL)
	return profiles, nil
}

func splitSecretName(rest string) (provider, profile, param string, ok bool) {
	parts := strings.Split(rest, "-")
	if len(parts) < 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], strings.Join(parts[2:], "_"), true
}
