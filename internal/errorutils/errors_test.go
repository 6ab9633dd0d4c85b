// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package errorutils_test

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/armstate/internal/errorutils"
)

type errorsSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&errorsSuite{})

func responseError(status int, code, body string) error {
	return &azcore.ResponseError{
		StatusCode: status,
		ErrorCode:  code,
		RawResponse: &http.Response{
			StatusCode: status,
			Body:       io.NopCloser(strings.NewReader(body)),
		},
	}
}

func (s *errorsSuite) TestStatusCode(c *gc.C) {
	c.Assert(errorutils.StatusCode(responseError(404, "", "")), gc.Equals, 404)
	c.Assert(errorutils.StatusCode(errors.New("plain")), gc.Equals, 0)
	c.Assert(errorutils.StatusCode(nil), gc.Equals, 0)
}

func (s *errorsSuite) TestStatusCodeWrapped(c *gc.C) {
	err := errors.Annotate(responseError(409, "Conflict", ""), "creating vault")
	c.Assert(errorutils.StatusCode(err), gc.Equals, 409)
}

func (s *errorsSuite) TestIsNotFoundError(c *gc.C) {
	c.Assert(errorutils.IsNotFoundError(responseError(404, "", "")), jc.IsTrue)
	c.Assert(errorutils.IsNotFoundError(responseError(400, "ResourceGroupNotFound", "")), jc.IsTrue)
	c.Assert(errorutils.IsNotFoundError(responseError(400, "SecretNotFound", "")), jc.IsTrue)
	c.Assert(errorutils.IsNotFoundError(responseError(500, "InternalServerError", "")), jc.IsFalse)
	c.Assert(errorutils.IsNotFoundError(errors.New("plain")), jc.IsFalse)
}

func (s *errorsSuite) TestIsConflictError(c *gc.C) {
	c.Assert(errorutils.IsConflictError(responseError(409, "RoleAssignmentExists", "")), jc.IsTrue)
	c.Assert(errorutils.IsConflictError(responseError(404, "", "")), jc.IsFalse)
}

func (s *errorsSuite) TestIsForbiddenError(c *gc.C) {
	c.Assert(errorutils.IsForbiddenError(responseError(401, "", "")), jc.IsTrue)
	c.Assert(errorutils.IsForbiddenError(responseError(403, "AuthorizationFailed", "")), jc.IsTrue)
	c.Assert(errorutils.IsForbiddenError(responseError(404, "", "")), jc.IsFalse)
}

func (s *errorsSuite) TestIsTransientError(c *gc.C) {
	for _, status := range []int{408, 429, 500, 502, 503, 504} {
		c.Assert(errorutils.IsTransientError(responseError(status, "", "")), jc.IsTrue,
			gc.Commentf("status %d", status))
	}
	c.Assert(errorutils.IsTransientError(responseError(400, "BadRequest", "")), jc.IsFalse)
	c.Assert(errorutils.IsTransientError(context.DeadlineExceeded), jc.IsTrue)
	c.Assert(errorutils.IsTransientError(nil), jc.IsFalse)
}

func (s *errorsSuite) TestErrorMessageFromBody(c *gc.C) {
	err := responseError(409, "Conflict",
		`{"error":{"code":"RoleAssignmentExists","message":"The role assignment already exists."}}`)
	c.Assert(errorutils.ErrorMessage(err), gc.Equals,
		"RoleAssignmentExists: The role assignment already exists.")
}

func (s *errorsSuite) TestErrorMessageFallbacks(c *gc.C) {
	c.Assert(errorutils.ErrorMessage(responseError(502, "BadGateway", "")), gc.Equals, "BadGateway")
	c.Assert(errorutils.ErrorMessage(responseError(502, "", "")), gc.Equals, "HTTP 502")
	c.Assert(errorutils.ErrorMessage(errors.New("dial tcp: timeout")), gc.Equals, "dial tcp: timeout")
}

func (s *errorsSuite) TestSimplify(c *gc.C) {
	err := responseError(404, "ResourceGroupNotFound",
		`{"error":{"code":"ResourceGroupNotFound","message":"Resource group 'rg1' could not be found."}}`)
	simplified := errorutils.Simplify(err)
	c.Assert(simplified.Error(), gc.Equals,
		"ResourceGroupNotFound: Resource group 'rg1' could not be found.")

	// Classification still sees the response error through the chain.
	c.Assert(errorutils.IsNotFoundError(simplified), jc.IsTrue)
	c.Assert(errorutils.StatusCode(simplified), gc.Equals, 404)
}

func (s *errorsSuite) TestSimplifyPassthrough(c *gc.C) {
	plain := errors.New("boom")
	c.Assert(errorutils.Simplify(plain), gc.Equals, plain)
	c.Assert(errorutils.Simplify(nil), gc.IsNil)
}
