// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package acct_test

import (
	"context"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/armstate/acct"
	"github.com/juju/armstate/internal/azuretesting"
)

const testVaultURL = "https://vault1.vault.azure.net"

type unlockSuite struct {
	testing.IsolationSuite
	sender azuretesting.Senders
}

var _ = gc.Suite(&unlockSuite{})

func (s *unlockSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.sender = nil
}

func (s *unlockSuite) unlock(c *gc.C, designator string) (acct.Profiles, error) {
	return acct.Unlock(context.Background(), acct.UnlockArgs{
		VaultURL:   testVaultURL,
		Designator: designator,
		Credential: &azuretesting.FakeCredential{},
		Transport:  &s.sender,
	})
}

// challengeSender serves the 401 the vault data plane returns to a
// fresh client's unauthorized probe.
func challengeSender() *azuretesting.MockSender {
	resp := azuretesting.NewResponseWithStatus(http.StatusUnauthorized, "Unauthorized")
	resp.Header.Set("WWW-Authenticate",
		`Bearer authorization="https://login.microsoftonline.com/`+azuretesting.FakeTenantID+`", resource="https://vault.azure.net"`)
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(resp)
	return sender
}

func secretID(name string) *azsecrets.ID {
	id := azsecrets.ID(testVaultURL + "/secrets/" + name + "/v1")
	return &id
}

func listSender(next string, names ...string) *azuretesting.MockSender {
	result := azsecrets.SecretPropertiesListResult{}
	for _, name := range names {
		result.Value = append(result.Value, &azsecrets.SecretProperties{ID: secretID(name)})
	}
	if next != "" {
		result.NextLink = to.Ptr(next)
	}
	sender := azuretesting.NewSenderWithValue(result)
	sender.PathPattern = "/secrets"
	return sender
}

func valueSender(name, value string) *azuretesting.MockSender {
	sender := azuretesting.NewSenderWithValue(azsecrets.Secret{
		ID:    secretID(name),
		Value: to.Ptr(value),
	})
	sender.PathPattern = "/secrets/" + name
	return sender
}

func (s *unlockSuite) TestUnlock(c *gc.C) {
	s.sender = azuretesting.Senders{
		challengeSender(),
		listSender("",
			"acct-provider-azurerm-default-subscription-id",
			"acct-provider-azurerm-default-secret",
			"acct-provider-gcp-prod-project",
			"unrelated",
			"acct-provider-azurerm",
		),
		valueSender("acct-provider-azurerm-default-subscription-id", "sub-123"),
		valueSender("acct-provider-azurerm-default-secret", "hunter2"),
		valueSender("acct-provider-gcp-prod-project", "proj-9"),
	}

	profiles, err := s.unlock(c, "")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(profiles, jc.DeepEquals, acct.Profiles{
		"azurerm": {"default": {
			"subscription_id": "sub-123",
			"secret":          "hunter2",
		}},
		"gcp": {"prod": {
			"project": "proj-9",
		}},
	})
	c.Assert(c.GetTestLog(), jc.Contains, `ignoring secret "acct-provider-azurerm"`)
}

func (s *unlockSuite) TestUnlockCustomDesignator(c *gc.C) {
	s.sender = azuretesting.Senders{
		challengeSender(),
		listSender("",
			"creds-azurerm-default-tenant",
			"acct-provider-azurerm-default-secret",
		),
		valueSender("creds-azurerm-default-tenant", "t-1"),
	}

	profiles, err := s.unlock(c, "creds-")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(profiles, jc.DeepEquals, acct.Profiles{
		"azurerm": {"default": {"tenant": "t-1"}},
	})
}

func (s *unlockSuite) TestUnlockMultiPage(c *gc.C) {
	s.sender = azuretesting.Senders{
		challengeSender(),
		listSender(testVaultURL+"/secrets?$skiptoken=page2",
			"acct-provider-azurerm-default-client-id",
		),
		valueSender("acct-provider-azurerm-default-client-id", "c-1"),
		listSender("",
			"acct-provider-azurerm-default-client-secret",
		),
		valueSender("acct-provider-azurerm-default-client-secret", "s-1"),
	}

	profiles, err := s.unlock(c, "")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(profiles, jc.DeepEquals, acct.Profiles{
		"azurerm": {"default": {
			"client_id":     "c-1",
			"client_secret": "s-1",
		}},
	})
}

func (s *unlockSuite) TestUnlockMissingVaultURL(c *gc.C) {
	profiles, err := acct.Unlock(context.Background(), acct.UnlockArgs{})
	c.Assert(err, jc.Satisfies, errors.IsNotValid)
	c.Assert(err, gc.ErrorMatches, "empty vault URL not valid")
	c.Assert(profiles, gc.IsNil)
}

func (s *unlockSuite) TestUnlockListError(c *gc.C) {
	s.sender = azuretesting.Senders{
		challengeSender(),
		azuretesting.NewSenderWithError(http.StatusForbidden, "Forbidden"),
	}

	profiles, err := s.unlock(c, "")
	c.Assert(err, gc.ErrorMatches, "Forbidden: mock Forbidden error")
	c.Assert(profiles, gc.IsNil)
}
