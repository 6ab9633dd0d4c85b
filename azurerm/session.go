// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package azurerm holds the session layer shared by every state and
// query module: validated authentication configuration, credential
// resolution, ARM client construction, and bounded waits for
// long-running operations.
package azurerm

import (
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/authorization/armauthorization/v3"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v2"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/keyvault/armkeyvault"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/msi/armmsi"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/postgresql/armpostgresql"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/juju/armstate/internal/azureauth"
)

var logger = loggo.GetLogger("armstate.azurerm")

// User agent appended to every request.
const userAgent = "juju-armstate"

const (
	// Pipeline-level retry of throttled and failed requests.
	retryAttempts = 4
	retryDelay    = 4 * time.Second
	retryMaxDelay = 90 * time.Second

	// Bounds for waiting on long-running operations.
	defaultPollInterval = 5 * time.Second
	defaultPollTimeout  = 10 * time.Minute
	maxPollDelay        = time.Minute
)

// SessionArgs configures a Session.
type SessionArgs struct {
	// Auth holds the recognized authentication options; see
	// ValidateConfig. A subscription_id is required.
	Auth map[string]interface{}

	// Credential, if non-nil, overrides the credential that would be
	// resolved from Auth.
	Credential azcore.TokenCredential

	// Transport, if non-nil, replaces the pipeline transport. Tests
	// inject canned senders here.
	Transport policy.Transporter

	// Policies are appended to the pipeline as per-call policies.
	Policies []policy.Policy

	// Clock drives the bounded waits for long-running operations.
	// Defaults to the wall clock.
	Clock clock.Clock

	// PollInterval and PollTimeout bound the wait for long-running
	// operations.
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Session wraps the subscription-scoped ARM clients behind a single
// validated configuration, credential and set of client options. A
// Session is read-only after construction and safe for concurrent use.
type Session struct {
	subscriptionID string
	credential     azcore.TokenCredential
	options        arm.ClientOptions
	clock          clock.Clock
	pollInterval   time.Duration
	pollTimeout    time.Duration
}

// NewSession validates the authentication options, resolves a
// credential and returns a Session.
func NewSession(args SessionArgs) (*Session, error) {
	cfg, err := ValidateConfig(args.Auth)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.SubscriptionID == "" {
		return nil, errors.NotValidf("empty subscription_id")
	}
	cloudConfig, err := cfg.cloud()
	if err != nil {
		return nil, errors.Trace(err)
	}
	credential := args.Credential
	if credential == nil {
		credential, err = azureauth.NewCredential(azureauth.Config{
			TenantID:        cfg.Tenant,
			ClientID:        cfg.ClientID,
			Secret:          cfg.Secret,
			CertificatePath: cfg.ClientCertificatePath,
			Username:        cfg.Username,
			Password:        cfg.Password,
			Cloud:           cloudConfig,
		})
		if err != nil {
			return nil, errors.Annotate(err, "resolving credential")
		}
	}
	session := &Session{
		subscriptionID: cfg.SubscriptionID,
		credential:     credential,
		options: arm.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				Cloud: cloudConfig,
				Retry: policy.RetryOptions{
					MaxRetries:    retryAttempts,
					RetryDelay:    retryDelay,
					MaxRetryDelay: retryMaxDelay,
				},
				Telemetry: policy.TelemetryOptions{
					ApplicationID: userAgent,
				},
				Transport:       args.Transport,
				PerCallPolicies: args.Policies,
			},
		},
		clock:        args.Clock,
		pollInterval: args.PollInterval,
		pollTimeout:  args.PollTimeout,
	}
	if session.clock == nil {
		session.clock = clock.WallClock
	}
	if session.pollInterval <= 0 {
		session.pollInterval = defaultPollInterval
	}
	if session.pollTimeout <= 0 {
		session.pollTimeout = defaultPollTimeout
	}
	logger.Debugf("session opened for subscription %q", cfg.SubscriptionID)
	return session, nil
}

// SubscriptionID returns the subscription the session is bound to.
func (s *Session) SubscriptionID() string {
	return s.subscriptionID
}

// ResourceGroups returns a client for managing resource groups.
func (s *Session) ResourceGroups() (*armresources.ResourceGroupsClient, error) {
	client, err := armresources.NewResourceGroupsClient(s.subscriptionID, s.credential, &s.options)
	return client, errors.Trace(err)
}

// AvailabilitySets returns a client for managing availability sets.
func (s *Session) AvailabilitySets() (*armcompute.AvailabilitySetsClient, error) {
	client, err := armcompute.NewAvailabilitySetsClient(s.subscriptionID, s.credential, &s.options)
	return client, errors.Trace(err)
}

// Disks returns a client for managing managed disks.
func (s *Session) Disks() (*armcompute.DisksClient, error) {
	client, err := armcompute.NewDisksClient(s.subscriptionID, s.credential, &s.options)
	return client, errors.Trace(err)
}

// VirtualNetworks returns a client for managing virtual networks.
func (s *Session) VirtualNetworks() (*armnetwork.VirtualNetworksClient, error) {
	client, err := armnetwork.NewVirtualNetworksClient(s.subscriptionID, s.credential, &s.options)
	return client, errors.Trace(err)
}

// SecurityGroups returns a client for managing network security groups.
func (s *Session) SecurityGroups() (*armnetwork.SecurityGroupsClient, error) {
	client, err := armnetwork.NewSecurityGroupsClient(s.subscriptionID, s.credential, &s.options)
	return client, errors.Trace(err)
}

// PublicIPAddresses returns a client for managing public IP addresses.
func (s *Session) PublicIPAddresses() (*armnetwork.PublicIPAddressesClient, error) {
	client, err := armnetwork.NewPublicIPAddressesClient(s.subscriptionID, s.credential, &s.options)
	return client, errors.Trace(err)
}

// Subnets returns a client for managing virtual network subnets.
func (s *Session) Subnets() (*armnetwork.SubnetsClient, error) {
	client, err := armnetwork.NewSubnetsClient(s.subscriptionID, s.credential, &s.options)
	return client, errors.Trace(err)
}

// PostgresServers returns a client for managing PostgreSQL servers.
func (s *Session) PostgresServers() (*armpostgresql.ServersClient, error) {
	client, err := armpostgresql.NewServersClient(s.subscriptionID, s.credential, &s.options)
	return client, errors.Trace(err)
}

// PostgresDatabases returns a client for managing PostgreSQL databases.
func (s *Session) PostgresDatabases() (*armpostgresql.DatabasesClient, error) {
	client, err := armpostgresql.NewDatabasesClient(s.subscriptionID, s.credential, &s.options)
	return client, errors.Trace(err)
}

// PostgresFirewallRules returns a client for managing PostgreSQL server
// firewall rules.
func (s *Session) PostgresFirewallRules() (*armpostgresql.FirewallRulesClient, error) {
	client, err := armpostgresql.NewFirewallRulesClient(s.subscriptionID, s.credential, &s.options)
	return client, errors.Trace(err)
}

// Vaults returns a client for managing key vaults.
func (s *Session) Vaults() (*armkeyvault.VaultsClient, error) {
	client, err := armkeyvault.NewVaultsClient(s.subscriptionID, s.credential, &s.options)
	return client, errors.Trace(err)
}

// VaultKeys returns a data-plane client for the keys of one vault.
func (s *Session) VaultKeys(vaultURL string) (*azkeys.Client, error) {
	client, err := azkeys.NewClient(vaultURL, s.credential, &azkeys.ClientOptions{
		ClientOptions: s.options.ClientOptions,
	})
	return client, errors.Trace(err)
}

// VaultSecrets returns a data-plane client for the secrets of one vault.
func (s *Session) VaultSecrets(vaultURL string) (*azsecrets.Client, error) {
	client, err := azsecrets.NewClient(vaultURL, s.credential, &azsecrets.ClientOptions{
		ClientOptions: s.options.ClientOptions,
	})
	return client, errors.Trace(err)
}

// UserAssignedIdentities returns a client for managing user assigned
// identities.
func (s *Session) UserAssignedIdentities() (*armmsi.UserAssignedIdentitiesClient, error) {
	client, err := armmsi.NewUserAssignedIdentitiesClient(s.subscriptionID, s.credential, &s.options)
	return client, errors.Trace(err)
}

// RoleDefinitions returns a client for querying role definitions.
func (s *Session) RoleDefinitions() (*armauthorization.RoleDefinitionsClient, error) {
	client, err := armauthorization.NewRoleDefinitionsClient(s.credential, &s.options)
	return client, errors.Trace(err)
}

// RoleAssignments returns a client for querying role assignments.
func (s *Session) RoleAssignments() (*armauthorization.RoleAssignmentsClient, error) {
	client, err := armauthorization.NewRoleAssignmentsClient(s.subscriptionID, s.credential, &s.options)
	return client, errors.Trace(err)
}

// Subscriptions returns a client for querying the subscriptions the
// credential can see.
func (s *Session) Subscriptions() (*armsubscriptions.Client, error) {
	client, err := armsubscriptions.NewClient(s.credential, &s.options)
	return client, errors.Trace(err)
}
