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
	"regexp/syntax"
	"strings"

	"github.com/Kong/atc-router/internal/types"
)

// ExtractRegexPrefixes implements spec.md §4.6/§9's best-effort literal
// prefix extraction: an anchored alternation of literal concatenations
// (e.g. `^/a|^/b/c`) yields {"/a", "/b/c"}; anything else — unanchored,
// containing a non-literal construct before any wildcard, etc. — yields
// unbounded. Soundness, not tightness, is the goal: under-extracting only
// costs some prefilter efficiency, never correctness (Testable Property 4).
func ExtractRegexPrefixes(regexValue types.Value) PrefixSet {
	parsed, err := syntax.Parse(regexValue.RegexPattern(), syntax.Perl)
	if err != nil {
		return UnboundedSet()
	}
	parsed = parsed.Simplify()
	prefixes, ok := literalPrefixes(parsed)
	if !ok || len(prefixes) == 0 {
		return UnboundedSet()
	}
	return Finite(prefixes...)
}

func literalPrefixes(re *syntax.Regexp) ([]string, bool) {
	switch re.Op {
	case syntax.OpAlternate:
		var all []string
		for _, sub := range re.Sub {
			ps, ok := literalPrefixes(sub)
			if !ok {
				return nil, false
			}
			all = append(all, ps...)
		}
		return all, true
	case syntax.OpConcat:
		return concatPrefix(re.Sub)
	default:
		return concatPrefix([]*syntax.Regexp{re})
	}
}

// concatPrefix requires the sequence to open with a start-of-text ^
// (OpBeginText; a multi-line ^ can match after any newline, so it is not an
// anchor here) and reads off the run of literal runes that follows, stopping at the
// first non-literal construct (which may still match zero-or-more, so
// nothing past it is mandatory).
func concatPrefix(subs []*syntax.Regexp) ([]string, bool) {
	if len(subs) == 0 {
		return nil, false
	}
	i := 0
	switch subs[0].Op {
	case syntax.OpBeginText:
		i = 1
	default:
		return nil, false
	}

	var sb strings.Builder
	for ; i < len(subs); i++ {
		if subs[i].Op != syntax.OpLiteral {
			break
		}
		if subs[i].Flags&syntax.FoldCase != 0 {
			break // case-insensitive literal has no single mandatory prefix string
		}
		sb.WriteString(string(subs[i].Rune))
	}
	if sb.Len() == 0 {
		return nil, false
	}
	return []string{sb.String()}, true
}
