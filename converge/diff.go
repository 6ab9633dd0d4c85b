// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package converge

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/juju/errors"
)

// ChangeSet is the minimal, ordered difference between desired and
// observed state. Each entry records a field's new value, its old value
// when the field had one, or a nested ChangeSet for nested mappings.
type ChangeSet struct {
	keys    []string
	entries map[string]changeEntry
}

type changeEntry struct {
	nested   *ChangeSet
	newValue any
	oldValue any
	hasOld   bool
}

// NewChangeSet returns an empty ChangeSet.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{entries: make(map[string]changeEntry)}
}

// AddNew records a field gaining a value it did not previously have.
func (c *ChangeSet) AddNew(name string, newValue any) {
	c.add(name, changeEntry{newValue: newValue})
}

// AddPair records a field changing from oldValue to newValue.
func (c *ChangeSet) AddPair(name string, newValue, oldValue any) {
	c.add(name, changeEntry{newValue: newValue, oldValue: oldValue, hasOld: true})
}

// AddNested records the changes within a nested mapping field.
func (c *ChangeSet) AddNested(name string, nested *ChangeSet) {
	c.add(name, changeEntry{nested: nested})
}

func (c *ChangeSet) add(name string, entry changeEntry) {
	if _, ok := c.entries[name]; !ok {
		c.keys = append(c.keys, name)
	}
	c.entries[name] = entry
}

// Keys returns the changed field names in insertion order.
func (c *ChangeSet) Keys() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.keys...)
}

// Len returns the number of changed fields.
func (c *ChangeSet) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

// MarshalJSON renders the change set as a JSON object in insertion order.
// Leaf entries render as {"new": ...} or {"new": ..., "old": ...}; nested
// change sets render recursively under their field name.
func (c *ChangeSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range c.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, errors.Trace(err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		entry := c.entries[name]
		if entry.nested != nil {
			nested, err := entry.nested.MarshalJSON()
			if err != nil {
				return nil, errors.Trace(err)
			}
			buf.Write(nested)
			continue
		}
		newValue, err := json.Marshal(entry.newValue)
		if err != nil {
			return nil, errors.Annotatef(err, "marshalling new value of %q", name)
		}
		buf.WriteString(`{"new":`)
		buf.Write(newValue)
		if entry.hasOld {
			oldValue, err := json.Marshal(entry.oldValue)
			if err != nil {
				return nil, errors.Annotatef(err, "marshalling old value of %q", name)
			}
			buf.WriteString(`,"old":`)
			buf.Write(oldValue)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// String renders the change set as compact JSON, for logging.
func (c *ChangeSet) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("ChangeSet(%v)", err)
	}
	return string(data)
}

// Diff computes the change set that would take observed state to desired
// state. Fields are visited in desired order. A field absent from observed
// is always reported as new; a field set in both but unequal is reported
// with its new and old values, or recursed into when both values are
// nested Attrs; equal fields and fields only present in observed are
// omitted. Equality is strict, with no type coercion.
func Diff(desired, observed *Attrs) *ChangeSet {
	changes := NewChangeSet()
	if desired == nil {
		return changes
	}
	for _, name := range desired.Keys() {
		desiredValue, _ := desired.Get(name)
		observedValue, ok := observed.Get(name)
		if !ok {
			changes.AddNew(name, desiredValue)
			continue
		}
		if equalValues(desiredValue, observedValue) {
			continue
		}
		desiredAttrs, desiredIsAttrs := desiredValue.(*Attrs)
		observedAttrs, observedIsAttrs := observedValue.(*Attrs)
		if desiredIsAttrs && observedIsAttrs {
			if nested := Diff(desiredAttrs, observedAttrs); nested.Len() > 0 {
				changes.AddNested(name, nested)
			}
			continue
		}
		changes.AddPair(name, desiredValue, observedValue)
	}
	return changes
}
