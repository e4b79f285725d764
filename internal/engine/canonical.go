package engine

import (
	"sort"
	"strings"

	"github.com/rahul/loom/internal/tools"
)

// Canonicalizers post-process a resolved parameter tree for tools whose
// callers historically send inconsistent shapes. This is deliberately
// narrow: it is not part of general resolution.
var canonicalizers = map[string]func(Value) Value{
	tools.NameMutate: canonicalizeMutateParams,
}

func canonicalize(toolName string, params Value) Value {
	if fn, ok := canonicalizers[toolName]; ok {
		return fn(params)
	}
	return params
}

// canonicalizeMutateParams coerces the mutate tool's selector field (seen
// as a string, a list of strings, or a nested {selector: ...} object) into
// one string, and its indices field into a flat ascending list of
// non-negative integers.
func canonicalizeMutateParams(params Value) Value {
	if params.Kind() != KindMap {
		return params
	}
	m := params.MapVal()
	if sel, ok := m["selector"]; ok {
		m["selector"] = String(flattenSelector(sel))
	}
	if idx, ok := m["indices"]; ok {
		m["indices"] = flattenIndices(idx)
	}
	return Map(m)
}

func flattenSelector(v Value) string {
	switch v.Kind() {
	case KindString:
		return v.StringVal()
	case KindList:
		var parts []string
		for _, item := range v.ListVal() {
			if s := flattenSelector(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case KindMap:
		for _, key := range []string{"selector", "css", "value"} {
			if inner, ok := v.MapVal()[key]; ok {
				return flattenSelector(inner)
			}
		}
	}
	return ""
}

func flattenIndices(v Value) Value {
	var out []int
	var collect func(Value)
	collect = func(v Value) {
		switch v.Kind() {
		case KindNumber:
			if n := int(v.NumberVal()); n >= 0 {
				out = append(out, n)
			}
		case KindString:
			// A lone numeric string still counts as an index.
			s := strings.TrimSpace(v.StringVal())
			n := 0
			ok := s != ""
			for _, r := range s {
				if r < '0' || r > '9' {
					ok = false
					break
				}
				n = n*10 + int(r-'0')
			}
			if ok {
				out = append(out, n)
			}
		case KindList:
			for _, item := range v.ListVal() {
				collect(item)
			}
		case KindMap:
			for _, key := range v.Keys() {
				collect(v.MapVal()[key])
			}
		}
	}
	collect(v)
	sort.Ints(out)
	items := make([]Value, len(out))
	for i, n := range out {
		items[i] = Number(float64(n))
	}
	return List(items...)
}
