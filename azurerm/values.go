// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package azurerm

import (
	"sort"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/juju/errors"

	"github.com/juju/armstate/converge"
)

// ToValue dereferences p, returning the zero value if p is nil. ARM
// response types hold pointers for every field, even mandatory ones.
func ToValue[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

// StringMap converts an ARM tag map to plain values, dropping nil
// entries.
func StringMap(m map[string]*string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v == nil {
			continue
		}
		out[k] = *v
	}
	return out
}

// TagMap converts plain tag values to the pointer map ARM requires.
func TagMap(tags map[string]string) map[string]*string {
	out := make(map[string]*string, len(tags))
	for k, v := range tags {
		out[k] = to.Ptr(v)
	}
	return out
}

// TagAttrs builds a nested attribute mapping from tags, in sorted key
// order so that reported changes are stable.
func TagAttrs(tags map[string]string) *converge.Attrs {
	attrs := converge.NewAttrs()
	for _, k := range Sorted(keys(tags)) {
		attrs.Set(k, tags[k])
	}
	return attrs
}

// TagsFromAttrs converts a nested attribute mapping back to the
// pointer map ARM requires for a write.
func TagsFromAttrs(attrs *converge.Attrs) (map[string]*string, error) {
	if attrs == nil {
		return nil, nil
	}
	out := make(map[string]*string, attrs.Len())
	for _, k := range attrs.Keys() {
		v, _ := attrs.Get(k)
		s, ok := v.(string)
		if !ok {
			return nil, errors.NotSupportedf("tag %q value of type %T", k, v)
		}
		out[k] = to.Ptr(s)
	}
	return out, nil
}

// Attr returns the named attribute asserted to type T. The second
// return is false when the attribute is unset or holds another type.
func Attr[T any](attrs *converge.Attrs, name string) (T, bool) {
	value, ok := attrs.Get(name)
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := value.(T)
	return typed, ok
}

// StringValues dereferences a slice of ARM string pointers, dropping
// nil entries.
func StringValues(in []*string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if p == nil {
			continue
		}
		out = append(out, *p)
	}
	return out
}

// Sorted returns a sorted copy of in. Declared and observed list
// fields are compared as sets, so both sides are canonicalized before
// diffing.
func Sorted(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
