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

// Package bind implements the semantic binder (spec.md §4.3): it resolves
// every LHS field against a Schema, type-checks each Predicate's operand
// pair, compiles pending regex literals, and collects the set of fields the
// expression references. The table-driven Functions/identifier-resolution
// shape is carried over from the teacher's lib/services/parser.go
// (NewWhereParser), generalized from struct-tag reflection to a runtime
// Schema lookup.
package bind

import (
	"fmt"
	"strings"

	"github.com/gravitational/trace"

	"github.com/Kong/atc-router/internal/ast"
	"github.com/Kong/atc-router/internal/srcerr"
	"github.com/Kong/atc-router/internal/types"
)

// FieldError reports a reference to an undeclared schema field.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string { return "Unknown field: " + e.Field }

// TypeError reports a bind-time operand-type mismatch.
type TypeError struct {
	msg string
}

func (e *TypeError) Error() string { return e.msg }

func newTypeError(msg string) *TypeError { return &TypeError{msg: msg} }

// transform describes how a transform changes the effective LHS type
// and multi-value quantification used during evaluation.
type transform struct {
	// resultType checks that fieldType is valid input for this transform and
	// returns the type the RHS must match.
	resultType func(fieldType types.Type) (types.Type, error)
	// forceExistential overrides the default quantifier (existential for
	// positive operators, universal for negative ones) to always be
	// existential, per spec.md §4.1's "any" transform.
	forceExistential bool
}

var transforms = map[string]transform{
	"lower": {
		resultType: func(t types.Type) (types.Type, error) {
			if t != types.String {
				return 0, newTypeError(fmt.Sprintf("transform lower() requires a String field, got %s", t))
			}
			return types.String, nil
		},
	},
	"any": {
		resultType: func(t types.Type) (types.Type, error) { return t, nil },
		forceExistential: true,
	},
}

// Bound is the result of a successful Bind: the (possibly rewritten) tree,
// plus metadata the router needs.
type Bound struct {
	Tree            ast.Node
	FieldsReferenced map[string]struct{}
}

// Bind type-checks expr against schema and returns a bound tree. source is
// the original rule text, used only to render caret-located errors for
// regex-compile failures discovered at this stage.
func Bind(schema *types.Schema, expr ast.Node, source string) (*Bound, error) {
	fields := make(map[string]struct{})
	tree, err := bindNode(schema, expr, source, fields)
	if err != nil {
		return nil, err
	}
	return &Bound{Tree: tree, FieldsReferenced: fields}, nil
}

func bindNode(schema *types.Schema, node ast.Node, source string, fields map[string]struct{}) (ast.Node, error) {
	switch n := node.(type) {
	case *ast.And:
		left, err := bindNode(schema, n.Left, source, fields)
		if err != nil {
			return nil, err
		}
		right, err := bindNode(schema, n.Right, source, fields)
		if err != nil {
			return nil, err
		}
		return &ast.And{Left: left, Right: right}, nil
	case *ast.Or:
		left, err := bindNode(schema, n.Left, source, fields)
		if err != nil {
			return nil, err
		}
		right, err := bindNode(schema, n.Right, source, fields)
		if err != nil {
			return nil, err
		}
		return &ast.Or{Left: left, Right: right}, nil
	case *ast.Not:
		inner, err := bindNode(schema, n.Inner, source, fields)
		if err != nil {
			return nil, err
		}
		return &ast.Not{Inner: inner}, nil
	case *ast.Predicate:
		return bindPredicate(schema, n, source, fields)
	default:
		return nil, trace.BadParameter("unknown AST node type %T", node)
	}
}

func bindPredicate(schema *types.Schema, pred *ast.Predicate, source string, fields map[string]struct{}) (ast.Node, error) {
	fieldType, ok := schema.Lookup(pred.LHS.Field)
	if !ok {
		return nil, trace.Wrap(&FieldError{Field: pred.LHS.Field})
	}
	fields[pred.LHS.Field] = struct{}{}

	lhsType := fieldType
	if pred.LHS.Transform != "" {
		tr, ok := transforms[pred.LHS.Transform]
		if !ok {
			return nil, trace.BadParameter("unknown transform '%s'", pred.LHS.Transform)
		}
		rt, err := tr.resultType(fieldType)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		lhsType = rt
	}

	rhs := pred.RHS
	if pred.Op == ast.Regex {
		if lhsType != types.String {
			return nil, trace.Wrap(newTypeError("Type mismatch between the LHS and RHS values of predicate"))
		}
		re, err := types.NewRegex(rhs.Str())
		if err != nil {
			return nil, trace.Wrap(&srcerr.Error{
				Source: source,
				Pos:    pred.Pos,
				Width:  1,
				Reason: "invalid regex: " + err.Error(),
			})
		}
		rhs = re
	} else if err := checkOperandTypes(lhsType, pred.Op, rhs.Type); err != nil {
		return nil, trace.Wrap(err)
	}

	return &ast.Predicate{LHS: pred.LHS, Op: pred.Op, RHS: rhs, Pos: pred.Pos}, nil
}

// checkOperandTypes enforces spec.md §4.1's operator/operand type table.
func checkOperandTypes(lhs types.Type, op ast.Operator, rhs types.Type) error {
	switch op {
	case ast.Equals, ast.NotEquals:
		if (lhs == types.String && rhs == types.String) ||
			(lhs == types.Int && rhs == types.Int) ||
			(lhs == types.IPAddr && rhs == types.IPAddr) {
			return nil
		}
	case ast.Prefix, ast.Postfix, ast.Contains:
		if lhs == types.String && rhs == types.String {
			return nil
		}
	case ast.Greater, ast.Less, ast.GreaterEq, ast.LessEq:
		if lhs == types.Int && rhs == types.Int {
			return nil
		}
	case ast.In, ast.NotIn:
		if lhs == types.IPAddr && rhs == types.IPCIDR {
			return nil
		}
		return newTypeError("In/NotIn operators only supports IP in CIDR")
	}
	return newTypeError("Type mismatch between the LHS and RHS values of predicate")
}

// ForcesExistential reports whether transform forces existential
// multi-value quantification (spec.md §4.1's "any").
func ForcesExistential(transformName string) bool {
	return transforms[transformName].forceExistential
}

// ApplyTransform maps a single raw field value through transformName,
// returning an error if the transform doesn't apply to v's type (should
// not happen for a bound predicate, since Bind already validated it).
func ApplyTransform(transformName string, v types.Value) (types.Value, error) {
	if transformName == "" {
		return v, nil
	}
	switch transformName {
	case "lower":
		if v.Type != types.String {
			return types.Value{}, trace.BadParameter("lower() requires a String value")
		}
		return types.NewString(strings.ToLower(v.Str())), nil
	case "any":
		return v, nil
	default:
		return types.Value{}, trace.BadParameter("unknown transform '%s'", transformName)
	}
}
