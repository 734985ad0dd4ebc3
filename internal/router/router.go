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

// Package router implements spec.md §4.5: the Router index that owns a
// schema, stores priority-ordered matchers, and executes them against an
// EvaluationContext. Matcher storage logging is adapted from the teacher's
// lib/utils.Logger/InitLogger idiom (see internal/obs).
package router

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/gravitational/trace"

	"github.com/Kong/atc-router/internal/bind"
	"github.com/Kong/atc-router/internal/eval"
	"github.com/Kong/atc-router/internal/obs"
	"github.com/Kong/atc-router/internal/parser"
	"github.com/Kong/atc-router/internal/prefilter"
	"github.com/Kong/atc-router/internal/rcontext"
	"github.com/Kong/atc-router/internal/types"
)

// DuplicateUUIDError is returned by AddMatcher when uuid is already
// registered, per spec.md §4.5/§7.
type DuplicateUUIDError struct {
	UUID uuid.UUID
}

func (e *DuplicateUUIDError) Error() string {
	return "UUID already exists: " + e.UUID.String()
}

// Router owns a Schema and a priority-ordered set of Matchers. Per spec.md
// §5, many readers may call Execute concurrently as long as no mutation
// (AddMatcher/RemoveMatcher/EnablePrefilter) is in flight; Router enforces
// this with an internal RWMutex rather than requiring external locking.
type Router struct {
	mu sync.RWMutex

	schema *types.Schema
	byUUID map[uuid.UUID]*Matcher
	sorted []*Matcher

	// fieldRefs counts, per field, how many installed matchers reference it;
	// the entry (and its fieldIndex slot) is dropped once the count reaches
	// zero, so GetFields/GetFieldsWithIndex never report a field no matcher
	// references anymore.
	fieldRefs   map[string]int
	fieldIndex  map[string]int
	freeIndices []int
	nextIndex   int

	prefilterField string
	prefilterOn    bool
	trie           *prefilter.Index

	log *obs.Logger
}

// New returns a Router over schema. schema must not be mutated afterward.
func New(schema *types.Schema) *Router {
	return &Router{
		schema:     schema,
		byUUID:     make(map[uuid.UUID]*Matcher),
		fieldRefs:  make(map[string]int),
		fieldIndex: make(map[string]int),
		log:        obs.NewLogger("router"),
	}
}

// Schema returns the Schema this Router was built with.
func (r *Router) Schema() *types.Schema { return r.schema }

// EnablePrefilter nominates field as the prefilter field (spec.md §4.6).
// It must be a declared String field. Enabling re-derives prefixes for
// every already-installed matcher.
func (r *Router) EnablePrefilter(field string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.schema.Lookup(field)
	if !ok {
		return trace.BadParameter("Unknown field: %s", field)
	}
	if t != types.String {
		return trace.BadParameter("prefilter field %s must be String, got %s", field, t)
	}

	r.prefilterField = field
	r.prefilterOn = true
	r.trie = prefilter.NewIndex()
	for _, m := range r.sorted {
		m.Prefixes = prefilter.FromAST(m.Expr, field)
		r.trie.Insert(m.UUID, m.Prefixes)
	}
	return nil
}

// AddMatcher parses and binds text against the Router's schema, then
// installs it as a Matcher keyed by (priority, id). No partial state is
// left behind on failure (spec.md §5/§7).
func (r *Router) AddMatcher(priority uint64, id uuid.UUID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byUUID[id]; exists {
		return trace.Wrap(&DuplicateUUIDError{UUID: id})
	}

	bound, err := r.parseAndBind(text)
	if err != nil {
		return err
	}

	m := &Matcher{Priority: priority, UUID: id, Expr: bound.Tree, Fields: bound.FieldsReferenced}
	if r.prefilterOn {
		m.Prefixes = prefilter.FromAST(m.Expr, r.prefilterField)
	} else {
		m.Prefixes = prefilter.UnboundedSet()
	}

	r.insertSorted(m)
	r.byUUID[id] = m
	for f := range m.Fields {
		r.fieldRefs[f]++
		if _, ok := r.fieldIndex[f]; !ok {
			r.fieldIndex[f] = r.allocIndex()
		}
	}
	if r.prefilterOn {
		r.trie.Insert(id, m.Prefixes)
	}

	r.log.WithFields(map[string]interface{}{"uuid": id, "priority": priority}).Debug("matcher added")
	return nil
}

// RemoveMatcher removes the matcher registered under (priority, id),
// reporting whether a removal occurred.
func (r *Router) RemoveMatcher(priority uint64, id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byUUID[id]
	if !ok || m.Priority != priority {
		return false
	}
	delete(r.byUUID, id)
	for i, cand := range r.sorted {
		if cand.UUID == id {
			r.sorted = append(r.sorted[:i], r.sorted[i+1:]...)
			break
		}
	}
	for f := range m.Fields {
		r.fieldRefs[f]--
		if r.fieldRefs[f] <= 0 {
			delete(r.fieldRefs, f)
			if idx, ok := r.fieldIndex[f]; ok {
				delete(r.fieldIndex, f)
				r.freeIndices = append(r.freeIndices, idx)
			}
		}
	}
	if r.prefilterOn {
		r.trie.Remove(id, m.Prefixes)
	}
	r.log.WithFields(map[string]interface{}{"uuid": id, "priority": priority}).Debug("matcher removed")
	return true
}

// allocIndex returns a fresh compact field-index slot, reusing one freed by
// RemoveMatcher if available rather than growing nextIndex unboundedly under
// churn (as Kong's upstream atc-router Router does).
func (r *Router) allocIndex() int {
	if n := len(r.freeIndices); n > 0 {
		idx := r.freeIndices[n-1]
		r.freeIndices = r.freeIndices[:n-1]
		return idx
	}
	idx := r.nextIndex
	r.nextIndex++
	return idx
}

// Execute runs ctx against the Router's matchers in descending priority
// order (ties broken by ascending uuid), recording the first match into
// ctx's result slot (spec.md §4.5).
func (r *Router) Execute(ctx *rcontext.Context) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ctx.Schema() != r.schema {
		return false
	}

	var candidateSet map[uuid.UUID]struct{}
	if r.prefilterOn {
		// Unbounded matchers (no derivable literal prefix on the prefilter
		// field) are always candidates, independent of how many values ctx
		// carries for the field — including zero, per Testable Property 5.
		candidateSet = r.trie.UnboundedIDs()
		for _, v := range ctx.Values(r.prefilterField) {
			for id := range r.trie.Candidates(v.Str()) {
				candidateSet[id] = struct{}{}
			}
		}
	}

	for _, m := range r.sorted {
		if r.prefilterOn {
			if _, ok := candidateSet[m.UUID]; !ok {
				continue
			}
		}
		if ok, matches := eval.Evaluate(m.Expr, ctx); ok {
			ctx.SetResult(&rcontext.MatchResult{UUID: m.UUID, Predicates: matches})
			return true
		}
	}
	return false
}

// GetFields returns the union of every installed matcher's referenced
// fields, sorted.
func (r *Router) GetFields() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.fieldRefs))
	for f := range r.fieldRefs {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// GetFieldsWithIndex returns the same fields as GetFields, mapped to the
// stable compact integer ids used by Context.AddValueByIndex.
func (r *Router) GetFieldsWithIndex() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.fieldIndex))
	for f, i := range r.fieldIndex {
		out[f] = i
	}
	return out
}

// Validate parses and binds text against the Router's schema without
// installing it, returning the fields it references (spec.md §4.5,
// Testable Property 1: this is the exact same pipeline AddMatcher uses).
func (r *Router) Validate(text string) (map[string]struct{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bound, err := r.parseAndBind(text)
	if err != nil {
		return nil, err
	}
	return bound.FieldsReferenced, nil
}

func (r *Router) parseAndBind(text string) (*bind.Bound, error) {
	if len(text) == 0 {
		return nil, trace.BadParameter("empty predicate")
	}
	expr, err := parser.Parse(text)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	bound, err := bind.Bind(r.schema, expr, text)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return bound, nil
}

// insertSorted inserts m keeping r.sorted in the router's total order
// (priority descending, uuid ascending).
func (r *Router) insertSorted(m *Matcher) {
	i := sort.Search(len(r.sorted), func(i int) bool { return !less(r.sorted[i], m) })
	r.sorted = append(r.sorted, nil)
	copy(r.sorted[i+1:], r.sorted[i:])
	r.sorted[i] = m
}

// NewContext returns an EvaluationContext bound to r's schema, pre-wired
// with r's current field->index map for the compact AddValueByIndex path.
func (r *Router) NewContext() *rcontext.Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := make(map[string]int, len(r.fieldIndex))
	for f, i := range r.fieldIndex {
		idx[f] = i
	}
	return rcontext.New(r.schema, idx)
}
