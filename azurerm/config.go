// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package azurerm

import (
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/juju/schema"
)

const (
	configAttrTenant          = "tenant"
	configAttrClientID        = "client_id"
	configAttrSecret          = "secret"
	configAttrCertificatePath = "client_certificate_path"
	configAttrUsername        = "username"
	configAttrPassword        = "password"
	configAttrSubscriptionID  = "subscription_id"
	configAttrCloudEnv        = "cloud_environment"
)

// Cloud environment names recognized in configuration.
const (
	cloudEnvironmentPublic = "AZURE_PUBLIC_CLOUD"
	cloudEnvironmentChina  = "AZURE_CHINA_CLOUD"
	cloudEnvironmentUSGov  = "AZURE_US_GOV_CLOUD"
)

var configFields = schema.Fields{
	configAttrTenant:          schema.String(),
	configAttrClientID:        schema.String(),
	configAttrSecret:          schema.String(),
	configAttrCertificatePath: schema.String(),
	configAttrUsername:        schema.String(),
	configAttrPassword:        schema.String(),
	configAttrSubscriptionID:  schema.String(),
	configAttrCloudEnv:        schema.String(),
}

var configDefaults = schema.Defaults{
	configAttrTenant:          schema.Omit,
	configAttrClientID:        schema.Omit,
	configAttrSecret:          schema.Omit,
	configAttrCertificatePath: schema.Omit,
	configAttrUsername:        schema.Omit,
	configAttrPassword:        schema.Omit,
	configAttrSubscriptionID:  schema.Omit,
	configAttrCloudEnv:        cloudEnvironmentPublic,
}

// Unknown options are rejected rather than forwarded silently.
var configChecker = schema.StrictFieldMap(configFields, configDefaults)

// Config holds the validated authentication options for a session.
type Config struct {
	Tenant                string
	ClientID              string
	Secret                string
	ClientCertificatePath string
	Username              string
	Password              string
	SubscriptionID        string
	CloudEnvironment      string
}

// ValidateConfig coerces attrs against the recognized option set and
// validates field values. Options that are not recognized fail
// validation.
func ValidateConfig(attrs map[string]interface{}) (*Config, error) {
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	coerced, err := configChecker.Coerce(attrs, nil)
	if err != nil {
		return nil, errors.NewNotValid(err, "auth configuration")
	}
	validated := coerced.(map[string]interface{})
	cfg := &Config{
		Tenant:                stringAttr(validated, configAttrTenant),
		ClientID:              stringAttr(validated, configAttrClientID),
		Secret:                stringAttr(validated, configAttrSecret),
		ClientCertificatePath: stringAttr(validated, configAttrCertificatePath),
		Username:              stringAttr(validated, configAttrUsername),
		Password:              stringAttr(validated, configAttrPassword),
		SubscriptionID:        stringAttr(validated, configAttrSubscriptionID),
		CloudEnvironment:      stringAttr(validated, configAttrCloudEnv),
	}
	if cfg.Tenant != "" {
		if err := uuid.Validate(cfg.Tenant); err != nil {
			return nil, errors.NotValidf("tenant %q", cfg.Tenant)
		}
	}
	if cfg.SubscriptionID != "" {
		if err := uuid.Validate(cfg.SubscriptionID); err != nil {
			return nil, errors.NotValidf("subscription_id %q", cfg.SubscriptionID)
		}
	}
	if _, err := cfg.cloud(); err != nil {
		return nil, errors.Trace(err)
	}
	return cfg, nil
}

func stringAttr(attrs map[string]interface{}, name string) string {
	if value, ok := attrs[name]; ok {
		return value.(string)
	}
	return ""
}

// cloud maps the configured environment name to the SDK's cloud
// configuration.
func (c *Config) cloud() (cloud.Configuration, error) {
	switch c.CloudEnvironment {
	case "", cloudEnvironmentPublic:
		return cloud.AzurePublic, nil
	case cloudEnvironmentChina:
		return cloud.AzureChina, nil
	case cloudEnvironmentUSGov:
		return cloud.AzureGovernment, nil
	}
	if strings.HasPrefix(c.CloudEnvironment, "http") {
		return cloud.Configuration{}, errors.NotSupportedf("cloud metadata discovery endpoints")
	}
	return cloud.Configuration{}, errors.NotSupportedf("cloud environment %q", c.CloudEnvironment)
}
