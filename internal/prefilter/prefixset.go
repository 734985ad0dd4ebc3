/*
Copyright 2024 The atc-router Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package prefilter implements spec.md §4.6: deriving, per matcher, a set
// of mandatory literal string prefixes on a nominated schema field, and
// indexing those prefixes in a radix trie so full evaluation of a matcher
// can be skipped when the observed field value cannot possibly satisfy it.
package prefilter

import (
	"github.com/Kong/atc-router/internal/ast"
	"github.com/Kong/atc-router/internal/types"
)

// PrefixSet is either "unbounded" (no prefix guarantee, per spec.md §3) or a
// finite set of UTF-8 literal byte strings.
type PrefixSet struct {
	Unbounded bool
	Prefixes  map[string]struct{}
}

// Finite builds a PrefixSet from an explicit list of literal prefixes.
func Finite(prefixes ...string) PrefixSet {
	m := make(map[string]struct{}, len(prefixes))
	for _, p := range prefixes {
		m[p] = struct{}{}
	}
	return PrefixSet{Prefixes: m}
}

// UnboundedSet is the PrefixSet disabling prefiltering for a matcher.
func UnboundedSet() PrefixSet { return PrefixSet{Unbounded: true} }

func (ps PrefixSet) IsEmpty() bool {
	return !ps.Unbounded && len(ps.Prefixes) == 0
}

// Intersect implements spec.md §4.6's And rule: the narrower (finite) side
// wins if one side is unbounded; otherwise the finite set-intersection
// (which may be empty, meaning the matcher is unsatisfiable on this field —
// still registered, left for the evaluator to reject).
func Intersect(a, b PrefixSet) PrefixSet {
	if a.Unbounded {
		return b
	}
	if b.Unbounded {
		return a
	}
	out := make(map[string]struct{})
	for p := range a.Prefixes {
		for q := range b.Prefixes {
			if hasPrefixEither(p, q) {
				// The narrower (longer) of the two prefixes is the one
				// that actually constrains membership; keep it.
				if len(p) >= len(q) {
					out[p] = struct{}{}
				} else {
					out[q] = struct{}{}
				}
			}
		}
	}
	return PrefixSet{Prefixes: out}
}

func hasPrefixEither(a, b string) bool {
	if len(a) <= len(b) {
		return len(b) >= len(a) && b[:len(a)] == a
	}
	return a[:len(b)] == b
}

// Union implements spec.md §4.6's Or rule.
func Union(a, b PrefixSet) PrefixSet {
	if a.Unbounded || b.Unbounded {
		return UnboundedSet()
	}
	out := make(map[string]struct{}, len(a.Prefixes)+len(b.Prefixes))
	for p := range a.Prefixes {
		out[p] = struct{}{}
	}
	for p := range b.Prefixes {
		out[p] = struct{}{}
	}
	return PrefixSet{Prefixes: out}
}

// FromAST derives a matcher's PrefixSet for field by walking its bound
// expression tree, per spec.md §4.6.
func FromAST(node ast.Node, field string) PrefixSet {
	switch n := node.(type) {
	case *ast.And:
		return Intersect(FromAST(n.Left, field), FromAST(n.Right, field))
	case *ast.Or:
		return Union(FromAST(n.Left, field), FromAST(n.Right, field))
	case *ast.Not:
		return UnboundedSet()
	case *ast.Predicate:
		return fromPredicate(n, field)
	default:
		return UnboundedSet()
	}
}

func fromPredicate(pred *ast.Predicate, field string) PrefixSet {
	if pred.LHS.Field != field || pred.LHS.Transform != "" {
		return UnboundedSet()
	}
	switch pred.Op {
	case ast.Prefix:
		return Finite(pred.RHS.Str())
	case ast.Equals:
		if pred.RHS.Type == types.String {
			return Finite(pred.RHS.Str())
		}
	case ast.Regex:
		return ExtractRegexPrefixes(pred.RHS)
	}
	return UnboundedSet()
}
