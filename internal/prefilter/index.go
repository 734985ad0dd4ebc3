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

package prefilter

import (
	"sync"

	radix "github.com/armon/go-radix"
	"github.com/google/uuid"
)

// Index is the prefilter's radix trie over every registered matcher's
// finite prefixes, per spec.md §4.6/§9 ("use a radix trie, not a sorted
// map — range-like 'prefix of input' queries are natural there"). It wraps
// the teacher's own github.com/armon/go-radix, using Tree.WalkPath to find
// every stored prefix that is a prefix of a queried value.
type Index struct {
	mu   sync.RWMutex
	tree *radix.Tree
	// unbounded holds matchers whose PrefixSet has no finite guarantee;
	// they are always candidates regardless of the observed value.
	unbounded map[uuid.UUID]struct{}
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{tree: radix.New(), unbounded: make(map[uuid.UUID]struct{})}
}

// Insert adds id's contribution to the trie for ps. Re-adding the same id
// (e.g. on a priority update) must be preceded by Remove with its prior
// PrefixSet to avoid stale entries (spec.md §4.6).
func (x *Index) Insert(id uuid.UUID, ps PrefixSet) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if ps.Unbounded {
		x.unbounded[id] = struct{}{}
		return
	}
	for p := range ps.Prefixes {
		set := x.getSet(p)
		set[id] = struct{}{}
		x.tree.Insert(p, set)
	}
}

// Remove undoes a prior Insert of id under ps.
func (x *Index) Remove(id uuid.UUID, ps PrefixSet) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if ps.Unbounded {
		delete(x.unbounded, id)
		return
	}
	for p := range ps.Prefixes {
		v, ok := x.tree.Get(p)
		if !ok {
			continue
		}
		set := v.(map[uuid.UUID]struct{})
		delete(set, id)
		if len(set) == 0 {
			x.tree.Delete(p)
		} else {
			x.tree.Insert(p, set)
		}
	}
}

func (x *Index) getSet(prefix string) map[uuid.UUID]struct{} {
	if v, ok := x.tree.Get(prefix); ok {
		return v.(map[uuid.UUID]struct{})
	}
	return make(map[uuid.UUID]struct{})
}

// UnboundedIDs returns every matcher id registered as unbounded — always a
// candidate, independent of any observed prefilter-field value. Callers that
// query Candidates once per value (e.g. zero, when the field is absent from
// an evaluation context) must still seed their candidate set from this, or
// unbounded matchers are wrongly skipped.
func (x *Index) UnboundedIDs() map[uuid.UUID]struct{} {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make(map[uuid.UUID]struct{}, len(x.unbounded))
	for id := range x.unbounded {
		out[id] = struct{}{}
	}
	return out
}

// Candidates returns every matcher id that could possibly match value: all
// unbounded matchers, plus every matcher whose registered prefix is itself a
// prefix of value.
func (x *Index) Candidates(value string) map[uuid.UUID]struct{} {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make(map[uuid.UUID]struct{}, len(x.unbounded))
	for id := range x.unbounded {
		out[id] = struct{}{}
	}
	x.tree.WalkPath(value, func(s string, v interface{}) bool {
		for id := range v.(map[uuid.UUID]struct{}) {
			out[id] = struct{}{}
		}
		return false
	})
	return out
}
