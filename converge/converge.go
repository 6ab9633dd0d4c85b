// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package converge implements the present/absent convergence engine
// shared by every state module: fetch the observed state of one remote
// resource, diff it against the desired state, apply the difference in a
// single write unless running dry, and report a uniform result record.
package converge

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("armstate.converge")

// Identity addresses one remote resource within the session's
// subscription. Which fields are required depends on the resource kind:
// every resource has a name, most live in a resource group, and some are
// nested under a parent resource such as a server or a vault.
type Identity struct {
	ResourceGroup string
	Parent        string
	Name          string
}

// Validate returns an error if the identity cannot address a resource.
func (id Identity) Validate() error {
	if id.Name == "" {
		return errors.NotValidf("empty resource name")
	}
	return nil
}

// Client is the facade through which the controller reads and writes one
// kind of remote resource. Implementations wrap a single ARM client and
// translate between Attrs and the SDK's parameter types.
type Client interface {
	// Get returns the observed state of the identified resource. A
	// resource that does not exist reports found false with a nil error;
	// errors are reserved for transport, throttling and auth failures.
	Get(ctx context.Context, id Identity) (attrs *Attrs, found bool, err error)

	// CreateOrUpdate applies the desired state in a single write,
	// blocking until any long-running provisioning reaches a terminal
	// state, and returns the state observed after the write.
	CreateOrUpdate(ctx context.Context, id Identity, desired *Attrs) (*Attrs, error)

	// Delete removes the resource. Deleting a resource that does not
	// exist is not an error.
	Delete(ctx context.Context, id Identity) error
}

// Controller drives present and absent convergence for one resource kind
// through an injected Client. A Controller is cheap to construct and
// holds no state across calls.
type Controller struct {
	reporter
	client       Client
	secretFields []string
	forceUpdate  bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithSecretField registers a secret field: its value never appears in
// a reported change set or change record, with a redacted marker taking
// its place. A client that cannot read the field back omits it from
// observed state, applies it on every write and relies on
// WithForcedUpdate to push it when nothing else changed.
func WithSecretField(name string) Option {
	return func(c *Controller) {
		c.secretFields = append(c.secretFields, name)
	}
}

// WithForcedUpdate makes Present apply an update even when the computed
// change set is empty, so write-only fields can be re-applied on demand.
func WithForcedUpdate() Option {
	return func(c *Controller) {
		c.forceUpdate = true
	}
}

// NewController returns a Controller for the named resource kind. The
// kind appears capitalized in result comments ("Resource group", "Virtual
// network").
func NewController(kind string, client Client, options ...Option) *Controller {
	c := &Controller{
		reporter: reporter{kind: kind},
		client:   client,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

const redactedValue = "REDACTED"

// Present converges the identified resource towards the desired state: a
// missing resource is created, a differing resource is updated with the
// desired fields merged over the observed ones, and a matching resource
// is left alone. With dryRun set no write is issued and the result
// reports what would happen.
func (c *Controller) Present(ctx context.Context, id Identity, desired *Attrs, dryRun bool) *Result {
	if err := id.Validate(); err != nil {
		return Failure(id.Name, err)
	}
	observed, found, err := c.client.Get(ctx, id)
	if err != nil {
		return c.retrieveFailed(id.Name, err)
	}
	if !found {
		if dryRun {
			return c.wouldChange(id.Name, "create", Created(c.redactSecrets(desired)))
		}
		logger.Debugf("creating %s %q", c.lowerKind(), id.Name)
		created, err := c.client.CreateOrUpdate(ctx, id, desired)
		if err != nil {
			return c.failed(id.Name, "create", err)
		}
		return c.completed(id.Name, "create", Created(c.redactSecrets(created)))
	}
	changes := Diff(desired, observed)
	if changes.Len() == 0 && !c.forceUpdate {
		return c.alreadyPresent(id.Name)
	}
	for _, name := range c.secretFields {
		changes.AddNew(name, redactedValue)
	}
	if dryRun {
		return c.wouldChange(id.Name, "update", Updated(changes))
	}
	logger.Debugf("updating %s %q: %s", c.lowerKind(), id.Name, changes)
	if _, err := c.client.CreateOrUpdate(ctx, id, observed.Merge(desired)); err != nil {
		return c.failed(id.Name, "update", err)
	}
	return c.completed(id.Name, "update", Updated(changes))
}

// Absent converges the identified resource towards absence: a missing
// resource is an idempotent no-op, an existing one is deleted. With
// dryRun set no delete is issued.
func (c *Controller) Absent(ctx context.Context, id Identity, dryRun bool) *Result {
	if err := id.Validate(); err != nil {
		return Failure(id.Name, err)
	}
	observed, found, err := c.client.Get(ctx, id)
	if err != nil {
		return c.retrieveFailed(id.Name, err)
	}
	if !found {
		return c.notFound(id.Name)
	}
	if dryRun {
		return c.wouldChange(id.Name, "delete", Deleted(c.redactSecrets(observed)))
	}
	logger.Debugf("deleting %s %q", c.lowerKind(), id.Name)
	if err := c.client.Delete(ctx, id); err != nil {
		return c.failed(id.Name, "delete", err)
	}
	return c.completed(id.Name, "delete", Deleted(c.redactSecrets(observed)))
}

// redactSecrets returns attrs with every registered secret field
// replaced by the redacted marker. attrs itself is left untouched.
func (c *Controller) redactSecrets(attrs *Attrs) *Attrs {
	if len(c.secretFields) == 0 || attrs == nil {
		return attrs
	}
	redacted := NewAttrs()
	for _, key := range attrs.Keys() {
		value, _ := attrs.Get(key)
		for _, name := range c.secretFields {
			if key == name {
				value = redactedValue
				break
			}
		}
		redacted.Set(key, value)
	}
	return redacted
}
