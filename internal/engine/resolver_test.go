package engine

import (
	"reflect"
	"testing"
)

func resolveCtx(notepad map[string]Value, inputs map[string]Value) *ResolveContext {
	np := NewNotepad()
	for k, v := range notepad {
		np.Write(k, v)
	}
	return &ResolveContext{
		Notepad:    np,
		Inputs:     inputs,
		TabHandle:  "tab-7",
		Credential: "secret-token",
	}
}

func TestResolve_ExactMatchKeepsNativeType(t *testing.T) {
	rc := resolveCtx(map[string]Value{
		"raw": List(String("a"), String("b")),
	}, nil)

	got := Resolve(String("{{notepad:raw}}"), rc)
	if got.Kind() != KindList {
		t.Fatalf("Expected list, got kind %v", got.Kind())
	}
	if !reflect.DeepEqual(got.Interface(), []any{"a", "b"}) {
		t.Errorf("Expected [a b], got %v", got.Interface())
	}
}

func TestResolve_EmbeddedTokenSplicesText(t *testing.T) {
	rc := resolveCtx(map[string]Value{
		"raw": List(String("a"), String("b")),
	}, nil)

	got := Resolve(String("items: {{notepad:raw}}"), rc)
	if got.Kind() != KindString {
		t.Fatalf("Expected string, got kind %v", got.Kind())
	}
	if got.StringVal() != `items: ["a","b"]` {
		t.Errorf("Expected JSON splice, got %q", got.StringVal())
	}
}

func TestResolve_EmbeddedObjectSplicesJSON(t *testing.T) {
	rc := resolveCtx(map[string]Value{
		"item": Map(map[string]Value{"price": Number(42)}),
	}, nil)

	got := Resolve(String("the offer {{notepad:item}} stands"), rc)
	if got.StringVal() != `the offer {"price":42} stands` {
		t.Errorf("Unexpected splice result: %q", got.StringVal())
	}
}

func TestResolve_AbsentKeyPassesThroughLiterally(t *testing.T) {
	rc := resolveCtx(nil, nil)

	cases := []string{
		"{{notepad:missing}}",
		"prefix {{notepad:missing}} suffix",
		"{{input:unbound}}",
	}
	for _, in := range cases {
		got := Resolve(String(in), rc)
		if got.StringVal() != in {
			t.Errorf("Resolve(%q) = %q, expected literal pass-through", in, got.StringVal())
		}
	}
}

func TestResolve_TwoTokensInOneString(t *testing.T) {
	rc := resolveCtx(map[string]Value{
		"a": String("first"),
		"b": String("second"),
	}, nil)

	got := Resolve(String("{{notepad:a}} then {{notepad:b}}"), rc)
	if got.StringVal() != "first then second" {
		t.Errorf("Expected both tokens resolved, got %q", got.StringVal())
	}
}

func TestResolve_ContextTokensFullStringOnly(t *testing.T) {
	rc := resolveCtx(nil, nil)

	if got := Resolve(String("{{tab}}"), rc); got.StringVal() != "tab-7" {
		t.Errorf("Full-string tab token: got %q", got.StringVal())
	}
	if got := Resolve(String("{{credential}}"), rc); got.StringVal() != "secret-token" {
		t.Errorf("Full-string credential token: got %q", got.StringVal())
	}

	// Embedded context tokens stay literal so credentials never leak into
	// assembled text.
	embedded := "use {{credential}} here"
	if got := Resolve(String(embedded), rc); got.StringVal() != embedded {
		t.Errorf("Embedded credential token resolved: got %q", got.StringVal())
	}
}

func TestResolve_InputBinding(t *testing.T) {
	rc := resolveCtx(nil, map[string]Value{
		"semanticQuery": String("mechanical keyboards"),
	})

	got := Resolve(String("{{input:semanticQuery}}"), rc)
	if got.StringVal() != "mechanical keyboards" {
		t.Errorf("Expected bound input, got %q", got.StringVal())
	}
}

func TestResolve_WalksNestedTrees(t *testing.T) {
	rc := resolveCtx(map[string]Value{
		"url": String("https://example.com"),
	}, nil)

	tree := Map(map[string]Value{
		"action": String("navigate"),
		"targets": List(
			String("{{notepad:url}}"),
			Map(map[string]Value{"backup": String("{{notepad:url}}/b")}),
		),
	})

	got := Resolve(tree, rc)
	targets := got.MapVal()["targets"].ListVal()
	if targets[0].StringVal() != "https://example.com" {
		t.Errorf("List element not resolved: %q", targets[0].StringVal())
	}
	if targets[1].MapVal()["backup"].StringVal() != "https://example.com/b" {
		t.Errorf("Nested map not resolved: %q", targets[1].MapVal()["backup"].StringVal())
	}
}

func TestResolve_DoesNotMutateInput(t *testing.T) {
	rc := resolveCtx(map[string]Value{"k": String("v")}, nil)
	tree := Map(map[string]Value{"p": String("{{notepad:k}}")})

	Resolve(tree, rc)
	if tree.MapVal()["p"].StringVal() != "{{notepad:k}}" {
		t.Error("Resolve mutated its argument")
	}
}

func TestResolve_ResolvedValuesAreNotRescanned(t *testing.T) {
	// A stored value that itself looks like a token must come out verbatim.
	rc := resolveCtx(map[string]Value{
		"tricky": String("{{notepad:other}}"),
		"other":  String("should never appear"),
	}, nil)

	got := Resolve(String("{{notepad:tricky}}"), rc)
	if got.StringVal() != "{{notepad:other}}" {
		t.Errorf("Resolution recursed into stored value: %q", got.StringVal())
	}
}

func TestParseTemplate_MalformedTokensStayLiteral(t *testing.T) {
	cases := []string{
		"{{notepad:}}",
		"{{unknown:key}}",
		"{{notepad:open",
		"plain text",
	}
	for _, in := range cases {
		got := Resolve(String(in), resolveCtx(nil, nil))
		if got.StringVal() != in {
			t.Errorf("Resolve(%q) = %q, expected unchanged", in, got.StringVal())
		}
	}
}

func TestParseTemplate_MalformedThenValidToken(t *testing.T) {
	rc := resolveCtx(map[string]Value{"k": String("v")}, nil)
	got := Resolve(String("{{bogus}} and {{notepad:k}}"), rc)
	if got.StringVal() != "{{bogus}} and v" {
		t.Errorf("Expected later valid token to resolve, got %q", got.StringVal())
	}
}

func TestValidateReferences(t *testing.T) {
	plan := &Plan{Steps: []Step{
		{StepNumber: 1, ToolName: "scrape", Params: Map(map[string]Value{
			"url": String("https://example.com"),
		}), StoreAs: "page"},
		{StepNumber: 2, ToolName: "infer", Params: Map(map[string]Value{
			"data": String("{{notepad:page}}"),
		})},
	}}
	if err := plan.ValidateReferences(); err != nil {
		t.Errorf("Valid plan flagged: %v", err)
	}

	bad := &Plan{Steps: []Step{
		{StepNumber: 1, ToolName: "infer", Params: Map(map[string]Value{
			"data": String("{{notepad:never}}"),
		})},
	}}
	if err := bad.ValidateReferences(); err == nil {
		t.Error("Dangling reference not reported")
	}
}
