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

// Package ast defines the normalized expression tree shared by the parser,
// binder, evaluator, and prefilter, per spec.md §4.4 / §9: nodes are plain
// tagged structs, never opaque closures, so the prefilter can introspect a
// Predicate's operator and literal without re-running the parser.
package ast

import (
	"github.com/Kong/atc-router/internal/srcerr"
	"github.com/Kong/atc-router/internal/types"
)

// Operator is a binary relational operator appearing in a Predicate.
type Operator int

const (
	Equals Operator = iota
	NotEquals
	Regex
	Prefix
	Postfix
	Greater
	Less
	GreaterEq
	LessEq
	In
	NotIn
	Contains
)

// IsNegative reports whether op has universal (rather than existential)
// multi-value quantification semantics per spec.md §4.1.
func (op Operator) IsNegative() bool {
	return op == NotEquals || op == NotIn
}

func (op Operator) String() string {
	switch op {
	case Equals:
		return "=="
	case NotEquals:
		return "!="
	case Regex:
		return "~"
	case Prefix:
		return "^="
	case Postfix:
		return "=^"
	case Greater:
		return ">"
	case Less:
		return "<"
	case GreaterEq:
		return ">="
	case LessEq:
		return "<="
	case In:
		return "in"
	case NotIn:
		return "not in"
	case Contains:
		return "contains"
	default:
		return "?"
	}
}

// Node is any expression tree node: And, Or, Not, or Predicate.
type Node interface {
	isNode()
}

// And is a short-circuiting logical conjunction.
type And struct {
	Left, Right Node
}

// Or is a short-circuiting logical disjunction.
type Or struct {
	Left, Right Node
}

// Not negates its inner expression; matched-value info produced inside it
// is discarded per spec.md §4.4.
type Not struct {
	Inner Node
}

// LHS is a field reference, optionally wrapped in one pre-declared
// transform ("lower" or "any"). Transform is empty for a bare field.
type LHS struct {
	Field     string
	Transform string
}

// Predicate is a single `lhs op rhs` comparison. RHS is filled in by the
// parser as a literal (String for a pending regex pattern, pre-compiled
// Regex is only produced by the binder, per spec.md §4.2/§4.3) and may be
// replaced by the binder (e.g. a regex-pattern String becomes a compiled
// Regex value once bound against a field known to be String).
type Predicate struct {
	LHS LHS
	Op  Operator
	RHS types.Value
	// Pos is the source position of the RHS literal, used to render a
	// caret-indexed error if binding (e.g. regex compilation) fails.
	Pos srcerr.Position
}

func (*And) isNode()       {}
func (*Or) isNode()        {}
func (*Not) isNode()       {}
func (*Predicate) isNode() {}

// Walk calls fn for node and, recursively, every node beneath it,
// pre-order, e.g. to collect all Predicates in a tree.
func Walk(node Node, fn func(Node)) {
	if node == nil {
		return
	}
	fn(node)
	switch n := node.(type) {
	case *And:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *Or:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *Not:
		Walk(n.Inner, fn)
	}
}
