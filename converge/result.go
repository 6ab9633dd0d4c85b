// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package converge

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// Result is the uniform record produced by every convergence operation
// and consumed by the orchestration runtime. Result is three-valued: true
// for a successful or no-op convergence, false for a failure, and nil for
// a dry run, where the comment states the action that would be taken.
type Result struct {
	Name    string   `json:"name"`
	Result  *bool    `json:"result"`
	Comment string   `json:"comment"`
	Changes *Changes `json:"changes"`
}

// Changes describes what a convergence operation changed or would change.
// It renders as one of three JSON shapes: an empty object for no-ops and
// failures, an old/new envelope for creations and deletions, or a
// ChangeSet object for updates.
type Changes struct {
	oldState *Attrs
	newState *Attrs
	fields   *ChangeSet
}

// NoChanges returns the empty Changes used for no-ops and failures.
func NoChanges() *Changes {
	return &Changes{}
}

// Created returns the Changes envelope for a creation: everything in
// state is new.
func Created(state *Attrs) *Changes {
	return &Changes{oldState: NewAttrs(), newState: state}
}

// Deleted returns the Changes envelope for a deletion: everything in
// state is gone.
func Deleted(state *Attrs) *Changes {
	return &Changes{oldState: state, newState: NewAttrs()}
}

// Updated returns the Changes for an in-place update.
func Updated(fields *ChangeSet) *Changes {
	return &Changes{fields: fields}
}

// IsEmpty reports whether the Changes carry nothing.
func (c *Changes) IsEmpty() bool {
	if c == nil {
		return true
	}
	return c.fields.Len() == 0 && c.oldState.Len() == 0 && c.newState.Len() == 0
}

// Old returns the prior state recorded by a creation or deletion
// envelope, or nil for other shapes.
func (c *Changes) Old() *Attrs {
	return c.oldState
}

// New returns the resulting state recorded by a creation or deletion
// envelope, or nil for other shapes.
func (c *Changes) New() *Attrs {
	return c.newState
}

// Fields returns the ChangeSet of an update, or nil for other shapes.
func (c *Changes) Fields() *ChangeSet {
	return c.fields
}

// MarshalJSON renders the appropriate shape for the changes held.
func (c *Changes) MarshalJSON() ([]byte, error) {
	if c.fields != nil {
		return c.fields.MarshalJSON()
	}
	if c.oldState == nil && c.newState == nil {
		return []byte("{}"), nil
	}
	old, err := c.oldState.MarshalJSON()
	if err != nil {
		return nil, err
	}
	updated, err := c.newState.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return []byte(`{"old":` + string(old) + `,"new":` + string(updated) + `}`), nil
}

// Failure returns a failed Result carrying the error text as its comment.
// State modules use it for configuration errors detected before any
// network call is made.
func Failure(name string, err error) *Result {
	return &Result{
		Name:    name,
		Result:  boolPtr(false),
		Comment: err.Error(),
		Changes: NoChanges(),
	}
}

func boolPtr(b bool) *bool {
	return &b
}

// reporter formats the human-readable comments for one resource kind.
// Kind is capitalized for the start of a sentence ("Resource group") and
// has its first rune lowered when it appears mid-sentence.
type reporter struct {
	kind string
}

func (r reporter) lowerKind() string {
	first, size := utf8.DecodeRuneInString(r.kind)
	if first == utf8.RuneError {
		return r.kind
	}
	return string(unicode.ToLower(first)) + r.kind[size:]
}

func (r reporter) completed(name, action string, changes *Changes) *Result {
	return &Result{
		Name:    name,
		Result:  boolPtr(true),
		Comment: fmt.Sprintf("%s %s has been %sd.", r.kind, name, action),
		Changes: changes,
	}
}

func (r reporter) wouldChange(name, action string, changes *Changes) *Result {
	return &Result{
		Name:    name,
		Comment: fmt.Sprintf("%s %s would be %sd.", r.kind, name, action),
		Changes: changes,
	}
}

func (r reporter) alreadyPresent(name string) *Result {
	return &Result{
		Name:    name,
		Result:  boolPtr(true),
		Comment: fmt.Sprintf("%s %s is already present.", r.kind, name),
		Changes: NoChanges(),
	}
}

func (r reporter) notFound(name string) *Result {
	return &Result{
		Name:    name,
		Result:  boolPtr(true),
		Comment: fmt.Sprintf("%s %s was not found.", r.kind, name),
		Changes: NoChanges(),
	}
}

func (r reporter) failed(name, action string, err error) *Result {
	return &Result{
		Name:    name,
		Result:  boolPtr(false),
		Comment: fmt.Sprintf("Failed to %s %s %s! (%v)", action, r.lowerKind(), name, err),
		Changes: NoChanges(),
	}
}

func (r reporter) retrieveFailed(name string, err error) *Result {
	return r.failed(name, "retrieve", err)
}
