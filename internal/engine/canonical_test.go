package engine

import (
	"reflect"
	"testing"
)

func TestCanonicalizeMutateParams_SelectorShapes(t *testing.T) {
	cases := []struct {
		name string
		in   Value
		want string
	}{
		{"plain string", String(".ad"), ".ad"},
		{"list of strings", List(String(".ad"), String(".promo")), ".ad, .promo"},
		{"nested object", Map(map[string]Value{"selector": String(".ad")}), ".ad"},
		{"css key", Map(map[string]Value{"css": String(".banner")}), ".banner"},
		{"list of objects", List(
			Map(map[string]Value{"selector": String(".a")}),
			Map(map[string]Value{"value": String(".b")}),
		), ".a, .b"},
	}

	for _, tc := range cases {
		params := Map(map[string]Value{"action": String("hide"), "selector": tc.in})
		got := canonicalize("mutate", params).MapVal()["selector"]
		if got.Kind() != KindString || got.StringVal() != tc.want {
			t.Errorf("%s: selector = %v, expected %q", tc.name, got.Interface(), tc.want)
		}
	}
}

func TestCanonicalizeMutateParams_Indices(t *testing.T) {
	params := Map(map[string]Value{
		"action":   String("remove"),
		"selector": String(".item"),
		"indices":  List(Number(4), String("1"), Number(-2), List(Number(3))),
	})

	got := canonicalize("mutate", params).MapVal()["indices"]
	want := []any{float64(1), float64(3), float64(4)}
	if !reflect.DeepEqual(got.Interface(), want) {
		t.Errorf("Indices = %v, expected %v", got.Interface(), want)
	}
}

func TestCanonicalize_OtherToolsUntouched(t *testing.T) {
	params := Map(map[string]Value{"selector": List(String(".a"))})
	got := canonicalize("browser", params).MapVal()["selector"]
	if got.Kind() != KindList {
		t.Errorf("Non-mutate params must pass through unchanged, got kind %v", got.Kind())
	}
}
