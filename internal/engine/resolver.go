package engine

import "strings"

// ResolveContext supplies the referents for template tokens during one
// resolution pass.
type ResolveContext struct {
	Notepad    *Notepad
	Inputs     map[string]Value
	TabHandle  string
	Credential string
}

func (rc *ResolveContext) lookup(seg segment) (Value, bool) {
	switch seg.kind {
	case segNotepad:
		if rc.Notepad == nil {
			return Null, false
		}
		return rc.Notepad.Read(seg.key)
	case segInput:
		v, ok := rc.Inputs[seg.key]
		return v, ok
	case segTab:
		return String(rc.TabHandle), rc.TabHandle != ""
	case segCredential:
		return String(rc.Credential), rc.Credential != ""
	}
	return Null, false
}

// Resolve substitutes template tokens throughout a parameter tree and
// returns a new tree; the argument is never mutated.
//
// A string leaf that is exactly one token resolves to the referent with its
// native type. A token whose referent is absent resolves to the original
// literal text, never an error: a step whose dependency failed just sees
// the raw token. Tokens embedded in longer strings splice in the referent's
// text form (lists and maps as JSON). Tab and credential tokens resolve
// only as full-string matches.
func Resolve(tree Value, rc *ResolveContext) Value {
	switch tree.Kind() {
	case KindString:
		return resolveString(tree.StringVal(), rc)
	case KindList:
		items := make([]Value, len(tree.ListVal()))
		for i, item := range tree.ListVal() {
			items[i] = Resolve(item, rc)
		}
		return List(items...)
	case KindMap:
		m := make(map[string]Value, tree.Len())
		for k, item := range tree.MapVal() {
			m[k] = Resolve(item, rc)
		}
		return Map(m)
	default:
		return tree
	}
}

func resolveString(s string, rc *ResolveContext) Value {
	segs := parseTemplate(s)
	if !hasToken(segs) {
		return String(s)
	}

	if seg, ok := singleToken(segs); ok {
		if v, found := rc.lookup(seg); found {
			return v
		}
		return String(s)
	}

	var b strings.Builder
	for _, seg := range segs {
		if seg.kind == segLiteral {
			b.WriteString(seg.text)
			continue
		}
		// Context tokens only resolve as full-string matches; embedded
		// they stay literal.
		if seg.kind == segTab || seg.kind == segCredential {
			b.WriteString(seg.text)
			continue
		}
		if v, found := rc.lookup(seg); found {
			b.WriteString(v.Text())
		} else {
			b.WriteString(seg.text)
		}
	}
	return String(b.String())
}
