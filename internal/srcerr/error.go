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

// Package srcerr renders the caret-indexed source error frame that
// spec.md §7 specifies as normative text for ParseError/RegexError:
//
//	 --> <line>:<col>
//	  |
//	<line> | <source-line>
//	  |  <caret-underline>
//	  |
//	  = <reason>
package srcerr

import (
	"fmt"
	"strconv"
	"strings"
)

// Position is a 1-based line/column location in a source string.
type Position struct {
	Line int
	Col  int
}

// Error is a syntactic or semantic failure located in ATC rule source.
// It implements error and renders spec.md §7's frame byte-for-byte (modulo
// platform line endings, which rule text never contains after parsing).
type Error struct {
	Source string
	Pos    Position
	// Width is the number of columns the caret underline spans; it is
	// clamped to at least 1 so a zero-length span still renders a caret.
	Width  int
	Reason string
}

func (e *Error) Error() string {
	lines := strings.Split(e.Source, "\n")
	var lineText string
	if e.Pos.Line-1 >= 0 && e.Pos.Line-1 < len(lines) {
		lineText = lines[e.Pos.Line-1]
	}

	width := e.Width
	if width < 1 {
		width = 1
	}
	col := e.Pos.Col
	if col < 1 {
		col = 1
	}

	gutter := strings.Repeat(" ", len(strconv.Itoa(e.Pos.Line)))
	caret := strings.Repeat(" ", col-1) + strings.Repeat("^", width)

	var b strings.Builder
	fmt.Fprintf(&b, " --> %d:%d\n", e.Pos.Line, col)
	fmt.Fprintf(&b, "%s |\n", gutter)
	fmt.Fprintf(&b, "%d | %s\n", e.Pos.Line, lineText)
	fmt.Fprintf(&b, "%s | %s\n", gutter, caret)
	fmt.Fprintf(&b, "%s |\n", gutter)
	fmt.Fprintf(&b, "%s = %s\n", gutter, e.Reason)
	return b.String()
}
