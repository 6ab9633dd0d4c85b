// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package keyvault_test

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/keyvault/armkeyvault"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/armstate/azurerm"
	"github.com/juju/armstate/internal/azuretesting"
	"github.com/juju/armstate/states/keyvault"
)

const testVaultURL = "https://vault1.vault.azure.net"

// baseSuite carries the HTTP-level fixture shared by every state suite
// in the package.
type baseSuite struct {
	testing.IsolationSuite
	sender   azuretesting.Senders
	requests []*http.Request
	sess     *azurerm.Session
}

func (s *baseSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.sender = nil
	s.requests = nil
	sess, err := azurerm.NewSession(azurerm.SessionArgs{
		Auth:       azuretesting.FakeAuth(),
		Credential: &azuretesting.FakeCredential{},
		Transport:  &s.sender,
		Policies:   []policy.Policy{azuretesting.RequestRecorder(&s.requests)},
	})
	c.Assert(err, jc.ErrorIsNil)
	s.sess = sess
}

func makeSender(pattern string, v interface{}) *azuretesting.MockSender {
	sender := azuretesting.NewSenderWithValue(v)
	sender.PathPattern = pattern
	return sender
}

func resultJSON(c *gc.C, result interface{}) string {
	data, err := json.Marshal(result)
	c.Assert(err, jc.ErrorIsNil)
	return string(data)
}

// challengeSender serves the 401 a vault data plane returns to a fresh
// client's unauthorized probe. The client authenticates against the
// challenge and repeats the request, consuming the next sender.
func challengeSender() *azuretesting.MockSender {
	resp := azuretesting.NewResponseWithStatus(http.StatusUnauthorized, "Unauthorized")
	resp.Header.Set("WWW-Authenticate",
		`Bearer authorization="https://login.microsoftonline.com/`+azuretesting.FakeTenantID+`", resource="https://vault.azure.net"`)
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(resp)
	return sender
}

type vaultSuite struct {
	baseSuite
}

var _ = gc.Suite(&vaultSuite{})

func testVault() armkeyvault.Vault {
	return armkeyvault.Vault{
		Name:     to.Ptr("vault1"),
		Location: to.Ptr("eastus"),
		Properties: &armkeyvault.VaultProperties{
			TenantID: to.Ptr(azuretesting.FakeTenantID),
			SKU: &armkeyvault.SKU{
				Family: to.Ptr(armkeyvault.SKUFamilyA),
				Name:   to.Ptr(armkeyvault.SKUNameStandard),
			},
			EnabledForDeployment:      to.Ptr(true),
			SoftDeleteRetentionInDays: to.Ptr(int32(7)),
		},
		Tags: map[string]*string{"env": to.Ptr("prod")},
	}
}

func testVaultArgs() keyvault.VaultArgs {
	return keyvault.VaultArgs{
		Name:                      "vault1",
		ResourceGroup:             "rg1",
		Location:                  "eastus",
		TenantID:                  azuretesting.FakeTenantID,
		SKUName:                   "Standard",
		EnabledForDeployment:      to.Ptr(true),
		SoftDeleteRetentionInDays: 7,
		Tags:                      map[string]string{"env": "prod"},
	}
}

func (s *vaultSuite) TestPresentCreates(c *gc.C) {
	s.sender = azuretesting.Senders{
		azuretesting.NewSenderWithError(http.StatusNotFound, "ResourceNotFound"),
		makeSender("/vaults/vault1", testVault()),
	}

	result := keyvault.VaultPresent(context.Background(), s.sess, testVaultArgs(), false)
	c.Assert(resultJSON(c, result), gc.Equals,
		`{"name":"vault1","result":true,"comment":"Key vault vault1 has been created.",`+
			`"changes":{"old":{},"new":{"name":"vault1","location":"eastus",`+
			`"tenant_id":"11111111-1111-1111-1111-111111111111",`+
			`"sku":{"family":"A","name":"standard"},"enabled_for_deployment":true,`+
			`"soft_delete_retention_in_days":7,"tags":{"env":"prod"}}}}`)

	c.Assert(s.requests, gc.HasLen, 2)
	c.Check(s.requests[1].Method, gc.Equals, "PUT")
	var sent armkeyvault.VaultCreateOrUpdateParameters
	c.Assert(json.NewDecoder(s.requests[1].Body).Decode(&sent), jc.ErrorIsNil)
	c.Check(azurerm.ToValue(sent.Location), gc.Equals, "eastus")
	c.Assert(sent.Properties, gc.NotNil)
	c.Check(azurerm.ToValue(sent.Properties.TenantID), gc.Equals, azuretesting.FakeTenantID)
	c.Assert(sent.Properties.SKU, gc.NotNil)
	c.Check(azurerm.ToValue(sent.Properties.SKU.Name), gc.Equals, armkeyvault.SKUNameStandard)
	c.Check(azurerm.ToValue(sent.Properties.EnabledForDeployment), jc.IsTrue)
	c.Check(azurerm.ToValue(sent.Properties.SoftDeleteRetentionInDays), gc.Equals, int32(7))
}

func (s *vaultSuite) TestPresentUpgradesSKU(c *gc.C) {
	upgraded := testVault()
	upgraded.Properties.SKU.Name = to.Ptr(armkeyvault.SKUNamePremium)
	s.sender = azuretesting.Senders{
		makeSender("/vaults/vault1", testVault()),
		makeSender("/vaults/vault1", upgraded),
	}

	args := testVaultArgs()
	args.SKUName = "Premium"
	result := keyvault.VaultPresent(context.Background(), s.sess, args, false)
	c.Assert(resultJSON(c, result), gc.Equals,
		`{"name":"vault1","result":true,"comment":"Key vault vault1 has been updated.",`+
			`"changes":{"sku":{"name":{"new":"premium","old":"standard"}}}}`)

	c.Assert(s.requests, gc.HasLen, 2)
	c.Check(s.requests[1].Method, gc.Equals, "PUT")
	var sent armkeyvault.VaultCreateOrUpdateParameters
	c.Assert(json.NewDecoder(s.requests[1].Body).Decode(&sent), jc.ErrorIsNil)
	c.Assert(sent.Properties, gc.NotNil)
	c.Assert(sent.Properties.SKU, gc.NotNil)
	c.Check(azurerm.ToValue(sent.Properties.SKU.Name), gc.Equals, armkeyvault.SKUNamePremium)
}

func (s *vaultSuite) TestPresentAlreadyPresent(c *gc.C) {
	s.sender = azuretesting.Senders{
		makeSender("/vaults/vault1", testVault()),
	}

	result := keyvault.VaultPresent(context.Background(), s.sess, testVaultArgs(), false)
	c.Assert(resultJSON(c, result), gc.Equals,
		`{"name":"vault1","result":true,"comment":"Key vault vault1 is already present.","changes":{}}`)
	c.Assert(s.requests, gc.HasLen, 1)
}

func (s *vaultSuite) TestPresentDryRun(c *gc.C) {
	s.sender = azuretesting.Senders{
		azuretesting.NewSenderWithError(http.StatusNotFound, "ResourceNotFound"),
	}

	result := keyvault.VaultPresent(context.Background(), s.sess, testVaultArgs(), true)
	c.Assert(result.Result, gc.IsNil)
	c.Assert(result.Comment, gc.Equals, "Key vault vault1 would be created.")
	c.Assert(s.requests, gc.HasLen, 1)
}

func (s *vaultSuite) TestPresentInvalidTenant(c *gc.C) {
	args := testVaultArgs()
	args.TenantID = "not-a-uuid"
	result := keyvault.VaultPresent(context.Background(), s.sess, args, false)
	c.Assert(result.Result, gc.NotNil)
	c.Assert(*result.Result, jc.IsFalse)
	c.Assert(result.Comment, gc.Equals, `tenant ID "not-a-uuid" not valid`)
	c.Assert(s.requests, gc.HasLen, 0)
}

func (s *vaultSuite) TestAbsentDeletes(c *gc.C) {
	s.sender = azuretesting.Senders{
		makeSender("/vaults/vault1", testVault()),
		makeSender("/vaults/vault1", map[string]interface{}{}),
	}

	result := keyvault.VaultAbsent(context.Background(), s.sess, "rg1", "vault1", false)
	c.Assert(resultJSON(c, result), gc.Equals,
		`{"name":"vault1","result":true,"comment":"Key vault vault1 has been deleted.",`+
			`"changes":{"old":{"name":"vault1","location":"eastus",`+
			`"tenant_id":"11111111-1111-1111-1111-111111111111",`+
			`"sku":{"family":"A","name":"standard"},"enabled_for_deployment":true,`+
			`"soft_delete_retention_in_days":7,"tags":{"env":"prod"}},"new":{}}}`)
	c.Assert(s.requests, gc.HasLen, 2)
	c.Check(s.requests[1].Method, gc.Equals, "DELETE")
}

func (s *vaultSuite) TestAbsentMissing(c *gc.C) {
	s.sender = azuretesting.Senders{
		azuretesting.NewSenderWithError(http.StatusNotFound, "ResourceNotFound"),
	}

	result := keyvault.VaultAbsent(context.Background(), s.sess, "rg1", "vault1", false)
	c.Assert(result.Result, gc.NotNil)
	c.Assert(*result.Result, jc.IsTrue)
	c.Assert(result.Comment, gc.Equals, "Key vault vault1 was not found.")
	c.Assert(s.requests, gc.HasLen, 1)
}
