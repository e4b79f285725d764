package engine

import (
	"fmt"
	"strings"
)

// Template tokens thread data into step parameters:
//
//	{{notepad:key}}   value stored by an earlier step
//	{{input:key}}     compiled-function input
//	{{tab}}           handle of the controlled tab
//	{{credential}}    caller's credential
//
// A string is parsed once into segments; resolution then walks the segments
// instead of re-scanning the text.

type segmentKind int

const (
	segLiteral segmentKind = iota
	segNotepad
	segInput
	segTab
	segCredential
)

type segment struct {
	kind segmentKind
	text string // literal text, or the raw token text for pass-through
	key  string // notepad/input key
}

const (
	tokenOpen  = "{{"
	tokenClose = "}}"
)

// parseTemplate splits s into literal and token segments. Malformed or
// unknown {{...}} sequences stay literal.
func parseTemplate(s string) []segment {
	var segs []segment
	rest := s
	for {
		open := strings.Index(rest, tokenOpen)
		if open < 0 {
			break
		}
		close := strings.Index(rest[open:], tokenClose)
		if close < 0 {
			break
		}
		close += open
		raw := rest[open : close+len(tokenClose)]
		seg, ok := parseToken(raw)
		if !ok {
			// Keep scanning past the opening braces so a later valid
			// token in the same string is still found.
			if open+len(tokenOpen) <= len(rest) {
				segs = append(segs, segment{kind: segLiteral, text: rest[:open+len(tokenOpen)]})
				rest = rest[open+len(tokenOpen):]
				continue
			}
			break
		}
		if open > 0 {
			segs = append(segs, segment{kind: segLiteral, text: rest[:open]})
		}
		segs = append(segs, seg)
		rest = rest[close+len(tokenClose):]
	}
	if rest != "" {
		segs = append(segs, segment{kind: segLiteral, text: rest})
	}
	return segs
}

func parseToken(raw string) (segment, bool) {
	body := strings.TrimSpace(raw[len(tokenOpen) : len(raw)-len(tokenClose)])
	switch {
	case body == "tab":
		return segment{kind: segTab, text: raw}, true
	case body == "credential":
		return segment{kind: segCredential, text: raw}, true
	case strings.HasPrefix(body, "notepad:"):
		key := strings.TrimSpace(strings.TrimPrefix(body, "notepad:"))
		if key == "" {
			return segment{}, false
		}
		return segment{kind: segNotepad, text: raw, key: key}, true
	case strings.HasPrefix(body, "input:"):
		key := strings.TrimSpace(strings.TrimPrefix(body, "input:"))
		if key == "" {
			return segment{}, false
		}
		return segment{kind: segInput, text: raw, key: key}, true
	}
	return segment{}, false
}

// singleToken reports whether the parse is exactly one token with no
// surrounding literal text, which resolves type-preserving.
func singleToken(segs []segment) (segment, bool) {
	if len(segs) == 1 && segs[0].kind != segLiteral {
		return segs[0], true
	}
	return segment{}, false
}

func hasToken(segs []segment) bool {
	for _, seg := range segs {
		if seg.kind != segLiteral {
			return true
		}
	}
	return false
}

// tokenRefs walks a parameter tree and collects every notepad and input key
// it references. Used for static plan validation.
func tokenRefs(v Value, notepadKeys, inputKeys map[string]bool) {
	switch v.Kind() {
	case KindString:
		for _, seg := range parseTemplate(v.StringVal()) {
			switch seg.kind {
			case segNotepad:
				notepadKeys[seg.key] = true
			case segInput:
				inputKeys[seg.key] = true
			}
		}
	case KindList:
		for _, item := range v.ListVal() {
			tokenRefs(item, notepadKeys, inputKeys)
		}
	case KindMap:
		for _, item := range v.MapVal() {
			tokenRefs(item, notepadKeys, inputKeys)
		}
	}
}

// ValidateReferences checks, before execution, that every notepad reference
// in a plan can only point at a key some earlier step stores. Forward and
// dangling references are reported together.
func (p *Plan) ValidateReferences() error {
	stored := make(map[string]bool)
	var problems []string
	for _, step := range p.Steps {
		notepadKeys := make(map[string]bool)
		inputKeys := make(map[string]bool)
		tokenRefs(step.Params, notepadKeys, inputKeys)
		for key := range notepadKeys {
			if !stored[key] {
				problems = append(problems, fmt.Sprintf("step %d references notepad key %q before any step stores it", step.StepNumber, key))
			}
		}
		if step.StoreAs != "" {
			stored[step.StoreAs] = true
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}
