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

// Package eval implements the post-order AST evaluator of spec.md §4.4:
// And/Or short-circuit, Not flips truthiness and discards matched-value
// info from its subtree, and a Predicate's multi-valued quantifier is
// existential for positive operators and universal for negative ones
// (overridden to always-existential by the "any" transform).
package eval

import (
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"github.com/Kong/atc-router/internal/ast"
	"github.com/Kong/atc-router/internal/bind"
	"github.com/Kong/atc-router/internal/rcontext"
	"github.com/Kong/atc-router/internal/types"
)

// Evaluate walks node against ctx and returns whether it matched, plus the
// ordered list of predicate contributions that made it match (empty/nil on
// no match, per spec.md §4.4's rule that Not discards inner matches).
func Evaluate(node ast.Node, ctx *rcontext.Context) (bool, []rcontext.PredicateMatch) {
	switch n := node.(type) {
	case *ast.And:
		ok, left := Evaluate(n.Left, ctx)
		if !ok {
			return false, nil
		}
		ok, right := Evaluate(n.Right, ctx)
		if !ok {
			return false, nil
		}
		return true, append(left, right...)
	case *ast.Or:
		if ok, m := Evaluate(n.Left, ctx); ok {
			return true, m
		}
		return Evaluate(n.Right, ctx)
	case *ast.Not:
		ok, _ := Evaluate(n.Inner, ctx)
		return !ok, nil
	case *ast.Predicate:
		return evalPredicate(n, ctx)
	default:
		return false, nil
	}
}

func evalPredicate(pred *ast.Predicate, ctx *rcontext.Context) (bool, []rcontext.PredicateMatch) {
	values := ctx.Values(pred.LHS.Field)

	existential := !pred.Op.IsNegative()
	if bind.ForcesExistential(pred.LHS.Transform) {
		existential = true
	}

	anySuccess := false
	allSuccess := true
	matchedIdx := -1
	var matchedCaptures map[string]string

	for i, raw := range values {
		v, err := bind.ApplyTransform(pred.LHS.Transform, raw)
		if err != nil {
			allSuccess = false
			continue
		}
		ok, captures := applyOperator(pred.Op, v, pred.RHS)
		if ok {
			anySuccess = true
			if matchedIdx < 0 {
				matchedIdx = i
				matchedCaptures = captures
			}
		} else {
			allSuccess = false
		}
	}
	if len(values) == 0 {
		allSuccess = true // vacuous truth for universal quantification
	}

	var matched bool
	if existential {
		matched = anySuccess
	} else {
		matched = allSuccess
		if matchedIdx < 0 && len(values) > 0 {
			matchedIdx = len(values) - 1
		}
	}
	if !matched {
		return false, nil
	}
	return true, []rcontext.PredicateMatch{{
		Field:      pred.LHS.Field,
		ValueIndex: matchedIdx,
		Captures:   matchedCaptures,
	}}
}

// applyOperator implements spec.md §4.1's operator semantics for a single
// (lhs value, rhs literal) pair. Type safety is already established at bind
// time, so mismatches here are unreachable in practice (spec.md §7).
func applyOperator(op ast.Operator, lhs, rhs types.Value) (bool, map[string]string) {
	switch op {
	case ast.Equals:
		return valuesEqual(lhs, rhs), nil
	case ast.NotEquals:
		return !valuesEqual(lhs, rhs), nil
	case ast.Regex:
		re := rhs.Regexp()
		loc := re.FindStringSubmatchIndex(lhs.Str())
		if loc == nil {
			return false, nil
		}
		return true, regexCaptures(re, lhs.Str(), loc)
	case ast.Prefix:
		return strings.HasPrefix(lhs.Str(), rhs.Str()), nil
	case ast.Postfix:
		return strings.HasSuffix(lhs.Str(), rhs.Str()), nil
	case ast.Contains:
		return strings.Contains(lhs.Str(), rhs.Str()), nil
	case ast.Greater:
		return lhs.Int() > rhs.Int(), nil
	case ast.Less:
		return lhs.Int() < rhs.Int(), nil
	case ast.GreaterEq:
		return lhs.Int() >= rhs.Int(), nil
	case ast.LessEq:
		return lhs.Int() <= rhs.Int(), nil
	case ast.In:
		return cidrContains(rhs.IPCIDR(), lhs.IPAddr()), nil
	case ast.NotIn:
		return !cidrContains(rhs.IPCIDR(), lhs.IPAddr()), nil
	default:
		return false, nil
	}
}

func valuesEqual(a, b types.Value) bool {
	switch a.Type {
	case types.String:
		return a.Str() == b.Str()
	case types.Int:
		return a.Int() == b.Int()
	case types.IPAddr:
		return a.IPAddr() == b.IPAddr()
	default:
		return false
	}
}

func cidrContains(prefix netip.Prefix, addr netip.Addr) bool {
	return prefix.IsValid() && addr.IsValid() && prefix.Contains(addr)
}

// regexCaptures builds both the named-group map and a stringified
// 1-based-index fallback map, per spec.md §4.1 ("captures exposed by name
// (or by 1-based index, stringified)") and SPEC_FULL.md §4's supplement
// that both are always populated.
func regexCaptures(re *regexp.Regexp, s string, loc []int) map[string]string {
	names := re.SubexpNames()
	out := make(map[string]string, len(names))
	for i := 1; i < len(names) && 2*i+1 < len(loc); i++ {
		if loc[2*i] < 0 {
			continue
		}
		val := s[loc[2*i]:loc[2*i+1]]
		out[strconv.Itoa(i)] = val
		if names[i] != "" {
			out[names[i]] = val
		}
	}
	return out
}
