// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package azurerm_test

import (
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/armstate/azurerm"
)

const (
	fakeTenantID       = "11111111-1111-1111-1111-111111111111"
	fakeClientID       = "00000000-0000-0000-0000-000000000000"
	fakeSubscriptionID = "22222222-2222-2222-2222-222222222222"
)

type configSuite struct{}

var _ = gc.Suite(&configSuite{})

func minimalAuth(extra map[string]interface{}) map[string]interface{} {
	attrs := map[string]interface{}{
		"tenant":          fakeTenantID,
		"client_id":       fakeClientID,
		"secret":          "opensezme",
		"subscription_id": fakeSubscriptionID,
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return attrs
}

func (s *configSuite) assertConfigInvalid(c *gc.C, extra map[string]interface{}, expect string) {
	_, err := azurerm.ValidateConfig(minimalAuth(extra))
	c.Assert(err, gc.ErrorMatches, expect)
}

func (s *configSuite) TestValidateConfig(c *gc.C) {
	cfg, err := azurerm.ValidateConfig(minimalAuth(nil))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cfg.Tenant, gc.Equals, fakeTenantID)
	c.Check(cfg.ClientID, gc.Equals, fakeClientID)
	c.Check(cfg.Secret, gc.Equals, "opensezme")
	c.Check(cfg.SubscriptionID, gc.Equals, fakeSubscriptionID)
	c.Check(cfg.CloudEnvironment, gc.Equals, "AZURE_PUBLIC_CLOUD")
}

func (s *configSuite) TestValidateConfigNilAttrs(c *gc.C) {
	cfg, err := azurerm.ValidateConfig(nil)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cfg.CloudEnvironment, gc.Equals, "AZURE_PUBLIC_CLOUD")
}

func (s *configSuite) TestValidateConfigUnknownOption(c *gc.C) {
	_, err := azurerm.ValidateConfig(minimalAuth(map[string]interface{}{"bogus": "x"}))
	c.Assert(err, jc.ErrorIs, errors.NotValid)
	c.Assert(err, gc.ErrorMatches, `auth configuration: unknown key "bogus" \(value "x"\)`)
}

func (s *configSuite) TestValidateConfigNonStringValue(c *gc.C) {
	s.assertConfigInvalid(c, map[string]interface{}{"secret": 42}, `auth configuration: secret: expected string, got int\(42\)`)
}

func (s *configSuite) TestValidateConfigInvalidTenant(c *gc.C) {
	s.assertConfigInvalid(c, map[string]interface{}{"tenant": "not-a-guid"}, `tenant "not-a-guid" not valid`)
}

func (s *configSuite) TestValidateConfigInvalidSubscription(c *gc.C) {
	s.assertConfigInvalid(c, map[string]interface{}{"subscription_id": "not-a-guid"}, `subscription_id "not-a-guid" not valid`)
}

func (s *configSuite) TestValidateConfigUnknownCloudEnvironment(c *gc.C) {
	s.assertConfigInvalid(c, map[string]interface{}{"cloud_environment": "AZURE_GERMAN_CLOUD"}, `cloud environment "AZURE_GERMAN_CLOUD" not supported`)
	_, err := azurerm.ValidateConfig(minimalAuth(map[string]interface{}{"cloud_environment": "AZURE_GERMAN_CLOUD"}))
	c.Assert(err, jc.ErrorIs, errors.NotSupported)
}

func (s *configSuite) TestValidateConfigMetadataEndpoint(c *gc.C) {
	s.assertConfigInvalid(
		c, map[string]interface{}{"cloud_environment": "https://management.azurestack.local/metadata/endpoints"},
		`cloud metadata discovery endpoints not supported`,
	)
}

func (s *configSuite) TestCloudConfiguration(c *gc.C) {
	for env, expect := range map[string]cloud.Configuration{
		"AZURE_PUBLIC_CLOUD": cloud.AzurePublic,
		"AZURE_CHINA_CLOUD":  cloud.AzureChina,
		"AZURE_US_GOV_CLOUD": cloud.AzureGovernment,
	} {
		cfg, err := azurerm.ValidateConfig(minimalAuth(map[string]interface{}{"cloud_environment": env}))
		c.Assert(err, jc.ErrorIsNil)
		cloudConfig, err := azurerm.CloudConfiguration(cfg)
		c.Assert(err, jc.ErrorIsNil)
		c.Check(cloudConfig.ActiveDirectoryAuthorityHost, gc.Equals, expect.ActiveDirectoryAuthorityHost)
	}
}
