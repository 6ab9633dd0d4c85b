// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package converge_test

import (
	"context"
	"encoding/json"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/armstate/converge"
)

type convergeSuite struct {
	testing.IsolationSuite
	client *fakeClient
}

var _ = gc.Suite(&convergeSuite{})

func (s *convergeSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.client = &fakeClient{}
}

func (s *convergeSuite) controller(options ...converge.Option) *converge.Controller {
	return converge.NewController("Resource group", s.client, options...)
}

func (s *convergeSuite) changesJSON(c *gc.C, result *converge.Result) string {
	data, err := json.Marshal(result.Changes)
	c.Assert(err, jc.ErrorIsNil)
	return string(data)
}

func assertTrue(c *gc.C, result *converge.Result) {
	c.Assert(result.Result, gc.NotNil)
	c.Assert(*result.Result, jc.IsTrue)
}

func assertFalse(c *gc.C, result *converge.Result) {
	c.Assert(result.Result, gc.NotNil)
	c.Assert(*result.Result, jc.IsFalse)
}

var rg1 = converge.Identity{Name: "rg1"}

func (s *convergeSuite) TestPresentCreates(c *gc.C) {
	desired := converge.NewAttrs().Set("name", "rg1").Set("location", "eastus")
	s.client.applyResult = converge.NewAttrs().
		Set("name", "rg1").
		Set("location", "eastus")

	result := s.controller().Present(context.Background(), rg1, desired, false)
	assertTrue(c, result)
	c.Assert(result.Name, gc.Equals, "rg1")
	c.Assert(result.Comment, gc.Equals, "Resource group rg1 has been created.")
	c.Assert(s.changesJSON(c, result), gc.Equals,
		`{"old":{},"new":{"name":"rg1","location":"eastus"}}`)
	c.Assert(s.client.applied, gc.HasLen, 1)
	c.Assert(s.client.applied[0], gc.Equals, desired)
}

func (s *convergeSuite) TestPresentCreateFailure(c *gc.C) {
	s.client.applyErr = errors.Errorf("boom")

	result := s.controller().Present(context.Background(), rg1,
		converge.NewAttrs().Set("location", "eastus"), false)
	assertFalse(c, result)
	c.Assert(result.Comment, gc.Equals, "Failed to create resource group rg1! (boom)")
	c.Assert(s.changesJSON(c, result), gc.Equals, `{}`)
}

func (s *convergeSuite) TestPresentCreateDryRun(c *gc.C) {
	desired := converge.NewAttrs().Set("name", "rg1").Set("location", "eastus")

	result := s.controller().Present(context.Background(), rg1, desired, true)
	c.Assert(result.Result, gc.IsNil)
	c.Assert(result.Comment, gc.Equals, "Resource group rg1 would be created.")
	c.Assert(s.changesJSON(c, result), gc.Equals,
		`{"old":{},"new":{"name":"rg1","location":"eastus"}}`)
	c.Assert(s.client.applied, gc.HasLen, 0)
	c.Assert(s.client.deleted, gc.HasLen, 0)
}

func (s *convergeSuite) TestPresentNoChanges(c *gc.C) {
	s.client.found = true
	s.client.observed = converge.NewAttrs().Set("name", "rg1").Set("location", "eastus")

	desired := converge.NewAttrs().Set("name", "rg1").Set("location", "eastus")
	result := s.controller().Present(context.Background(), rg1, desired, false)
	assertTrue(c, result)
	c.Assert(result.Comment, gc.Equals, "Resource group rg1 is already present.")
	c.Assert(s.changesJSON(c, result), gc.Equals, `{}`)
	c.Assert(s.client.applied, gc.HasLen, 0)
}

func (s *convergeSuite) TestPresentNoChangesDryRun(c *gc.C) {
	s.client.found = true
	s.client.observed = converge.NewAttrs().Set("name", "rg1")

	result := s.controller().Present(context.Background(), rg1,
		converge.NewAttrs().Set("name", "rg1"), true)
	assertTrue(c, result)
	c.Assert(result.Comment, gc.Equals, "Resource group rg1 is already present.")
	c.Assert(s.changesJSON(c, result), gc.Equals, `{}`)
}

func (s *convergeSuite) TestPresentSecondCallIdempotent(c *gc.C) {
	desired := converge.NewAttrs().Set("name", "rg1").Set("location", "eastus")
	s.client.applyResult = converge.NewAttrs().Set("name", "rg1").Set("location", "eastus")

	first := s.controller().Present(context.Background(), rg1, desired, false)
	assertTrue(c, first)

	// The remote resource now exists with the desired state.
	s.client.found = true
	s.client.observed = s.client.applyResult
	second := s.controller().Present(context.Background(), rg1, desired, false)
	assertTrue(c, second)
	c.Assert(second.Comment, gc.Equals, "Resource group rg1 is already present.")
	c.Assert(s.changesJSON(c, second), gc.Equals, `{}`)
	c.Assert(s.client.applied, gc.HasLen, 1)
}

func (s *convergeSuite) TestPresentUpdates(c *gc.C) {
	s.client.found = true
	s.client.observed = converge.NewAttrs().
		Set("name", "rg1").
		Set("location", "eastus").
		Set("managed_by", "operator")
	desired := converge.NewAttrs().
		Set("name", "rg1").
		Set("location", "eastus").
		Set("tags", converge.NewAttrs().Set("env", "prod"))

	result := s.controller().Present(context.Background(), rg1, desired, false)
	assertTrue(c, result)
	c.Assert(result.Comment, gc.Equals, "Resource group rg1 has been updated.")
	c.Assert(s.changesJSON(c, result), gc.Equals, `{"tags":{"new":{"env":"prod"}}}`)

	// The write carries the desired fields merged over the observed
	// state, so unmanaged remote fields survive the update.
	c.Assert(s.client.applied, gc.HasLen, 1)
	managedBy, ok := s.client.applied[0].Get("managed_by")
	c.Assert(ok, jc.IsTrue)
	c.Assert(managedBy, gc.Equals, "operator")
	tags, ok := s.client.applied[0].Get("tags")
	c.Assert(ok, jc.IsTrue)
	c.Assert(tags.(*converge.Attrs).Equal(converge.NewAttrs().Set("env", "prod")), jc.IsTrue)
}

func (s *convergeSuite) TestPresentUpdateDryRun(c *gc.C) {
	s.client.found = true
	s.client.observed = converge.NewAttrs().Set("name", "rg1").Set("location", "eastus")

	result := s.controller().Present(context.Background(), rg1,
		converge.NewAttrs().Set("name", "rg1").Set("location", "westus"), true)
	c.Assert(result.Result, gc.IsNil)
	c.Assert(result.Comment, gc.Equals, "Resource group rg1 would be updated.")
	c.Assert(s.changesJSON(c, result), gc.Equals,
		`{"location":{"new":"westus","old":"eastus"}}`)
	c.Assert(s.client.applied, gc.HasLen, 0)
}

func (s *convergeSuite) TestPresentUpdateFailure(c *gc.C) {
	s.client.found = true
	s.client.observed = converge.NewAttrs().Set("location", "eastus")
	s.client.applyErr = errors.Errorf("throttled")

	result := s.controller().Present(context.Background(), rg1,
		converge.NewAttrs().Set("location", "westus"), false)
	assertFalse(c, result)
	c.Assert(result.Comment, gc.Equals, "Failed to update resource group rg1! (throttled)")
	c.Assert(s.changesJSON(c, result), gc.Equals, `{}`)
}

func (s *convergeSuite) TestPresentRetrieveFailure(c *gc.C) {
	s.client.getErr = errors.Errorf("boom")

	result := s.controller().Present(context.Background(), rg1,
		converge.NewAttrs().Set("location", "eastus"), false)
	assertFalse(c, result)
	c.Assert(result.Comment, gc.Equals, "Failed to retrieve resource group rg1! (boom)")
	c.Assert(s.client.applied, gc.HasLen, 0)
}

func (s *convergeSuite) TestPresentInvalidIdentity(c *gc.C) {
	result := s.controller().Present(context.Background(), converge.Identity{},
		converge.NewAttrs().Set("location", "eastus"), false)
	assertFalse(c, result)
	c.Assert(result.Comment, gc.Equals, "empty resource name not valid")
	c.Assert(s.client.gets, gc.Equals, 0)
}

func (s *convergeSuite) TestPresentForcedUpdate(c *gc.C) {
	s.client.found = true
	s.client.observed = converge.NewAttrs().Set("name", "srv1")

	controller := converge.NewController("Server", s.client,
		converge.WithSecretField("administrator_login_password"),
		converge.WithForcedUpdate())
	result := controller.Present(context.Background(), converge.Identity{Name: "srv1"},
		converge.NewAttrs().Set("name", "srv1"), false)
	assertTrue(c, result)
	c.Assert(result.Comment, gc.Equals, "Server srv1 has been updated.")
	c.Assert(s.changesJSON(c, result), gc.Equals,
		`{"administrator_login_password":{"new":"REDACTED"}}`)
	c.Assert(s.client.applied, gc.HasLen, 1)
}

func (s *convergeSuite) TestPresentSecretFieldAnnotatesUpdate(c *gc.C) {
	s.client.found = true
	s.client.observed = converge.NewAttrs().Set("version", "10")

	controller := converge.NewController("Server", s.client,
		converge.WithSecretField("administrator_login_password"))
	result := controller.Present(context.Background(), converge.Identity{Name: "srv1"},
		converge.NewAttrs().Set("version", "11"), false)
	assertTrue(c, result)
	c.Assert(s.changesJSON(c, result), gc.Equals,
		`{"version":{"new":"11","old":"10"},"administrator_login_password":{"new":"REDACTED"}}`)
}

func (s *convergeSuite) TestPresentSecretFieldQuietWhenNoChanges(c *gc.C) {
	s.client.found = true
	s.client.observed = converge.NewAttrs().Set("version", "11")

	controller := converge.NewController("Server", s.client,
		converge.WithSecretField("administrator_login_password"))
	result := controller.Present(context.Background(), converge.Identity{Name: "srv1"},
		converge.NewAttrs().Set("version", "11"), false)
	assertTrue(c, result)
	c.Assert(result.Comment, gc.Equals, "Server srv1 is already present.")
	c.Assert(s.changesJSON(c, result), gc.Equals, `{}`)
	c.Assert(s.client.applied, gc.HasLen, 0)
}

func (s *convergeSuite) TestPresentSecretFieldRedactedOnCreate(c *gc.C) {
	controller := converge.NewController("Secret", s.client,
		converge.WithSecretField("value"))
	desired := converge.NewAttrs().Set("name", "db-password").Set("value", "hunter2")

	result := controller.Present(context.Background(), converge.Identity{Name: "db-password"}, desired, false)
	assertTrue(c, result)
	c.Assert(s.changesJSON(c, result), gc.Equals,
		`{"old":{},"new":{"name":"db-password","value":"REDACTED"}}`)
	// The write itself still carries the real value.
	c.Assert(s.client.applied, gc.HasLen, 1)
	value, _ := s.client.applied[0].Get("value")
	c.Assert(value, gc.Equals, "hunter2")
}

func (s *convergeSuite) TestAbsentSecretFieldRedacted(c *gc.C) {
	s.client.found = true
	s.client.observed = converge.NewAttrs().Set("name", "db-password").Set("value", "hunter2")

	controller := converge.NewController("Secret", s.client,
		converge.WithSecretField("value"))
	result := controller.Absent(context.Background(), converge.Identity{Name: "db-password"}, false)
	assertTrue(c, result)
	c.Assert(s.changesJSON(c, result), gc.Equals,
		`{"old":{"name":"db-password","value":"REDACTED"},"new":{}}`)
}

func (s *convergeSuite) TestAbsentMissingIdempotent(c *gc.C) {
	for i := 0; i < 2; i++ {
		result := s.controller().Absent(context.Background(), rg1, false)
		assertTrue(c, result)
		c.Assert(result.Comment, gc.Equals, "Resource group rg1 was not found.")
		c.Assert(s.changesJSON(c, result), gc.Equals, `{}`)
	}
	c.Assert(s.client.deleted, gc.HasLen, 0)
}

func (s *convergeSuite) TestAbsentDeletes(c *gc.C) {
	s.client.found = true
	s.client.observed = converge.NewAttrs().Set("name", "rg1").Set("location", "eastus")

	result := s.controller().Absent(context.Background(), rg1, false)
	assertTrue(c, result)
	c.Assert(result.Comment, gc.Equals, "Resource group rg1 has been deleted.")
	c.Assert(s.changesJSON(c, result), gc.Equals,
		`{"old":{"name":"rg1","location":"eastus"},"new":{}}`)
	c.Assert(s.client.deleted, jc.DeepEquals, []converge.Identity{rg1})
}

func (s *convergeSuite) TestAbsentDryRun(c *gc.C) {
	s.client.found = true
	s.client.observed = converge.NewAttrs().Set("name", "rg1")

	result := s.controller().Absent(context.Background(), rg1, true)
	c.Assert(result.Result, gc.IsNil)
	c.Assert(result.Comment, gc.Equals, "Resource group rg1 would be deleted.")
	c.Assert(s.changesJSON(c, result), gc.Equals, `{"old":{"name":"rg1"},"new":{}}`)
	c.Assert(s.client.deleted, gc.HasLen, 0)
}

func (s *convergeSuite) TestAbsentDeleteFailure(c *gc.C) {
	s.client.found = true
	s.client.observed = converge.NewAttrs().Set("name", "rg1")
	s.client.deleteErr = errors.Errorf("locked")

	result := s.controller().Absent(context.Background(), rg1, false)
	assertFalse(c, result)
	c.Assert(result.Comment, gc.Equals, "Failed to delete resource group rg1! (locked)")
	c.Assert(s.changesJSON(c, result), gc.Equals, `{}`)
}

func (s *convergeSuite) TestAbsentRetrieveFailure(c *gc.C) {
	s.client.getErr = errors.Errorf("boom")

	result := s.controller().Absent(context.Background(), rg1, false)
	assertFalse(c, result)
	c.Assert(result.Comment, gc.Equals, "Failed to retrieve resource group rg1! (boom)")
}

func (s *convergeSuite) TestAbsentInvalidIdentity(c *gc.C) {
	result := s.controller().Absent(context.Background(), converge.Identity{}, false)
	assertFalse(c, result)
	c.Assert(s.client.gets, gc.Equals, 0)
}

// fakeClient is an in-memory converge.Client recording the writes issued
// through it.
type fakeClient struct {
	observed    *converge.Attrs
	found       bool
	getErr      error
	gets        int
	applied     []*converge.Attrs
	applyResult *converge.Attrs
	applyErr    error
	deleted     []converge.Identity
	deleteErr   error
}

func (f *fakeClient) Get(ctx context.Context, id converge.Identity) (*converge.Attrs, bool, error) {
	f.gets++
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	return f.observed, f.found, nil
}

func (f *fakeClient) CreateOrUpdate(ctx context.Context, id converge.Identity, desired *converge.Attrs) (*converge.Attrs, error) {
	f.applied = append(f.applied, desired)
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	if f.applyResult != nil {
		return f.applyResult, nil
	}
	return desired, nil
}

func (f *fakeClient) Delete(ctx context.Context, id converge.Identity) error {
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}
