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

// Package rcontext implements spec.md §4.7's EvaluationContext: a per-request
// value bag plus the slot for the last successful match result. A Context is
// exclusively owned by one evaluator at a time and is reused across requests
// via Reset (spec.md §5).
package rcontext

import (
	"github.com/google/uuid"
	"github.com/gravitational/trace"

	"github.com/Kong/atc-router/internal/types"
)

// PredicateMatch is one predicate's contribution to a successful match:
// which field it read, which value in that field's list satisfied it (-1 if
// the match was vacuous, e.g. a universal predicate over an empty list), and
// any named/indexed regex captures.
type PredicateMatch struct {
	Field      string
	ValueIndex int
	Captures   map[string]string
}

// MatchResult is the outcome of the most recent successful Router.Execute.
type MatchResult struct {
	UUID       uuid.UUID
	Predicates []PredicateMatch
}

// Context is a field -> []Value bag bound to a Schema, reused across many
// Router.Execute calls via Reset.
type Context struct {
	schema     *types.Schema
	values     map[string][]types.Value
	fieldIndex map[string]int
	indexField []string
	result     *MatchResult
}

// New returns a Context bound to schema. fieldIndex, if non-nil, is the
// Router's stable field->int mapping (spec.md §4.5's get_fields_with_index),
// enabling AddValueByIndex on the hot path.
func New(schema *types.Schema, fieldIndex map[string]int) *Context {
	c := &Context{
		schema: schema,
		values: make(map[string][]types.Value),
	}
	if fieldIndex != nil {
		c.fieldIndex = fieldIndex
		// Indexes may be sparse: the Router reuses slots freed by removals.
		size := 0
		for _, i := range fieldIndex {
			if i+1 > size {
				size = i + 1
			}
		}
		c.indexField = make([]string, size)
		for f, i := range fieldIndex {
			c.indexField[i] = f
		}
	}
	return c
}

// Schema returns the Schema this Context is bound to.
func (c *Context) Schema() *types.Schema { return c.schema }

// AddValue appends v to field's value list, after validating v against the
// field's declared type (spec.md §4.7): UTF-8 validity for String, a
// matching tag otherwise.
func (c *Context) AddValue(field string, v types.Value) error {
	declared, ok := c.schema.Lookup(field)
	if !ok {
		return trace.BadParameter("Unknown field: %s", field)
	}
	if v.Type != declared {
		return trace.BadParameter("value of type %s does not match field %s's declared type %s", v.Type, field, declared)
	}
	if declared == types.String {
		if err := types.ValidateUTF8(v.Str()); err != nil {
			return trace.Wrap(err)
		}
	}
	c.values[field] = append(c.values[field], v)
	return nil
}

// AddValueByIndex is AddValue addressed by the compact integer id returned
// by Router.GetFieldsWithIndex, for the hot request path (spec.md §4.5/§6).
func (c *Context) AddValueByIndex(index int, v types.Value) error {
	if index < 0 || index >= len(c.indexField) || c.indexField[index] == "" {
		return trace.BadParameter("invalid field index %d", index)
	}
	return c.AddValue(c.indexField[index], v)
}

// Values returns the current value list for field (nil if none were added).
func (c *Context) Values(field string) []types.Value {
	return c.values[field]
}

// SetResult is called by the router/evaluator to record a successful match.
func (c *Context) SetResult(r *MatchResult) { c.result = r }

// GetResult returns the last recorded match. matchedField, if non-empty,
// additionally resolves to the specific matched value for that field if one
// of the recorded predicates decided the match on it.
func (c *Context) GetResult(matchedField string) (res MatchResult, matchedValue *types.Value, captures map[string]string, ok bool) {
	if c.result == nil {
		return MatchResult{}, nil, nil, false
	}
	res = *c.result
	if matchedField != "" {
		for _, pm := range res.Predicates {
			if pm.Field != matchedField {
				continue
			}
			captures = pm.Captures
			if pm.ValueIndex >= 0 {
				vals := c.values[matchedField]
				if pm.ValueIndex < len(vals) {
					v := vals[pm.ValueIndex]
					matchedValue = &v
				}
			}
			break
		}
	}
	return res, matchedValue, captures, true
}

// Reset clears all values and the result, preserving the schema binding and
// any already-allocated backing arrays/maps (spec.md §4.7).
func (c *Context) Reset() {
	for k := range c.values {
		c.values[k] = c.values[k][:0]
	}
	c.result = nil
}
