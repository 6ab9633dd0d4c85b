// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package azuretesting

// Fake identifiers for session construction in tests.
const (
	FakeTenantID       = "11111111-1111-1111-1111-111111111111"
	FakeClientID       = "00000000-0000-0000-0000-000000000000"
	FakeSubscriptionID = "22222222-2222-2222-2222-222222222222"
)

// FakeAuth returns a valid set of authentication options for tests.
func FakeAuth() map[string]interface{} {
	return map[string]interface{}{
		"tenant":          FakeTenantID,
		"client_id":       FakeClientID,
		"secret":          "opensezme",
		"subscription_id": FakeSubscriptionID,
	}
}
