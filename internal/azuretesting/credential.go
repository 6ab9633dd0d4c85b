// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package azuretesting

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
)

// FakeCredential is an azcore.TokenCredential serving a static token, so
// pipeline tests never perform a real authentication round trip.
type FakeCredential struct{}

// GetToken implements azcore.TokenCredential.
func (*FakeCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{
		Token:     "FakeToken",
		ExpiresOn: time.Now().Add(time.Hour),
	}, nil
}
