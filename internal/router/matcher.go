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

package router

import (
	"bytes"

	"github.com/google/uuid"

	"github.com/Kong/atc-router/internal/ast"
	"github.com/Kong/atc-router/internal/prefilter"
)

// Matcher is one installed (priority, uuid, expression) rule, per spec.md §3.
type Matcher struct {
	Priority uint64
	UUID     uuid.UUID
	Expr     ast.Node
	Fields   map[string]struct{}
	Prefixes prefilter.PrefixSet
}

// less implements the router's total order: priority descending, then uuid
// ascending (lexicographic on the 16-byte form), per spec.md §3/§4.5 and
// Testable Property 6.
func less(a, b *Matcher) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return bytes.Compare(a.UUID[:], b.UUID[:]) < 0
}
