// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package azureauth resolves recognized authentication options into a
// token credential. Precedence follows the wider azurerm tooling:
// service principal with secret, then service principal with
// certificate, then user name and password, then the ambient default
// chain (environment variables or managed identity).
package azureauth

import (
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("armstate.azureauth")

// Client ID of the Azure CLI, used for user-password authentication
// when no application registration is supplied.
const azureCLIClientID = "04b07795-8ddb-461a-bbee-02f9e1bf7b46"

// Config holds the recognized authentication options. Unset fields fall
// through to the next credential type in precedence order.
type Config struct {
	TenantID        string
	ClientID        string
	Secret          string
	CertificatePath string
	Username        string
	Password        string
	Cloud           cloud.Configuration
}

// NewCredential returns the token credential selected by cfg.
func NewCredential(cfg Config) (azcore.TokenCredential, error) {
	options := azcore.ClientOptions{Cloud: cfg.Cloud}
	switch {
	case cfg.TenantID != "" && cfg.ClientID != "" && cfg.Secret != "":
		logger.Debugf("authenticating with service principal secret")
		cred, err := azidentity.NewClientSecretCredential(
			cfg.TenantID, cfg.ClientID, cfg.Secret,
			&azidentity.ClientSecretCredentialOptions{ClientOptions: options},
		)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return cred, nil

	case cfg.TenantID != "" && cfg.ClientID != "" && cfg.CertificatePath != "":
		logger.Debugf("authenticating with service principal certificate")
		data, err := os.ReadFile(cfg.CertificatePath)
		if err != nil {
			return nil, errors.Annotate(err, "reading client certificate")
		}
		certs, key, err := azidentity.ParseCertificates(data, nil)
		if err != nil {
			return nil, errors.Annotate(err, "parsing client certificate")
		}
		cred, err := azidentity.NewClientCertificateCredential(
			cfg.TenantID, cfg.ClientID, certs, key,
			&azidentity.ClientCertificateCredentialOptions{ClientOptions: options},
		)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return cred, nil

	case cfg.TenantID != "" && cfg.Username != "" && cfg.Password != "":
		logger.Debugf("authenticating with user name and password")
		clientID := cfg.ClientID
		if clientID == "" {
			clientID = azureCLIClientID
		}
		cred, err := azidentity.NewUsernamePasswordCredential(
			cfg.TenantID, clientID, cfg.Username, cfg.Password,
			&azidentity.UsernamePasswordCredentialOptions{ClientOptions: options},
		)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return cred, nil
	}

	logger.Debugf("authenticating with the default credential chain")
	cred, err := azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{
		ClientOptions: options,
		TenantID:      cfg.TenantID,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return cred, nil
}
