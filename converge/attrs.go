// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package converge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/juju/errors"
)

// Attrs is an ordered mapping of resource field names to values, used for
// both desired and observed resource state. Iteration follows insertion
// order, which keeps change sets and their rendering deterministic. Values
// are scalars, string slices, or nested *Attrs.
type Attrs struct {
	keys   []string
	values map[string]any
}

// NewAttrs returns an empty Attrs.
func NewAttrs() *Attrs {
	return &Attrs{values: make(map[string]any)}
}

// Set records the value of the named field, appending the field to the
// iteration order on first use. Set returns the receiver so construction
// can be chained.
func (a *Attrs) Set(name string, value any) *Attrs {
	if _, ok := a.values[name]; !ok {
		a.keys = append(a.keys, name)
	}
	a.values[name] = value
	return a
}

// Get returns the value of the named field, and whether the field is set.
func (a *Attrs) Get(name string) (any, bool) {
	if a == nil {
		return nil, false
	}
	value, ok := a.values[name]
	return value, ok
}

// Keys returns the field names in insertion order.
func (a *Attrs) Keys() []string {
	if a == nil {
		return nil
	}
	return append([]string(nil), a.keys...)
}

// Len returns the number of fields set.
func (a *Attrs) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

// Merge returns a new Attrs holding the receiver's fields with overlay's
// fields applied over them. Shared fields keep the receiver's position;
// fields only in overlay are appended in overlay order. Neither input is
// modified.
func (a *Attrs) Merge(overlay *Attrs) *Attrs {
	merged := NewAttrs()
	if a != nil {
		for _, name := range a.keys {
			merged.Set(name, a.values[name])
		}
	}
	if overlay != nil {
		for _, name := range overlay.keys {
			merged.Set(name, overlay.values[name])
		}
	}
	return merged
}

// Equal reports whether a and other hold the same fields with equal
// values. Insertion order does not affect equality.
func (a *Attrs) Equal(other *Attrs) bool {
	if a == nil || other == nil {
		return a.Len() == 0 && other.Len() == 0
	}
	if len(a.values) != len(other.values) {
		return false
	}
	for name, value := range a.values {
		otherValue, ok := other.values[name]
		if !ok || !equalValues(value, otherValue) {
			return false
		}
	}
	return true
}

// equalValues compares two field values strictly: types must match and no
// coercion is applied, so the string "5" and the integer 5 are different.
// Nested Attrs compare by content.
func equalValues(a, b any) bool {
	if attrsA, ok := a.(*Attrs); ok {
		attrsB, ok := b.(*Attrs)
		return ok && attrsA.Equal(attrsB)
	}
	if _, ok := b.(*Attrs); ok {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// MarshalJSON renders the attributes as a JSON object in iteration order.
func (a *Attrs) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range a.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, errors.Trace(err)
		}
		value, err := json.Marshal(a.values[name])
		if err != nil {
			return nil, errors.Annotatef(err, "marshalling field %q", name)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// String renders the attributes as compact JSON, for logging.
func (a *Attrs) String() string {
	data, err := a.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Attrs(%v)", err)
	}
	return string(data)
}
