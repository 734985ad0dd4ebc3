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

package eval

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Kong/atc-router/internal/bind"
	"github.com/Kong/atc-router/internal/parser"
	"github.com/Kong/atc-router/internal/rcontext"
	"github.com/Kong/atc-router/internal/types"
)

func schema() *types.Schema {
	s := types.NewSchema()
	s.AddField("http.path", types.String)
	s.AddField("tcp.port", types.Int)
	s.AddField("net.src.ip", types.IPAddr)
	s.AddField("http.headers.x_id", types.String)
	return s
}

func bindSrc(t *testing.T, s *types.Schema, src string) *bind.Bound {
	t.Helper()
	node, err := parser.Parse(src)
	require.NoError(t, err)
	bound, err := bind.Bind(s, node, src)
	require.NoError(t, err)
	return bound
}

func TestEvaluatePathPrefixAndPort(t *testing.T) {
	t.Parallel()
	s := schema()
	bound := bindSrc(t, s, `http.path ^= "/foo" && tcp.port == 80`)

	ctx := rcontext.New(s, nil)
	require.NoError(t, ctx.AddValue("http.path", types.NewString("/foo/bar")))
	require.NoError(t, ctx.AddValue("tcp.port", types.NewInt(80)))

	ok, matches := Evaluate(bound.Tree, ctx)
	require.True(t, ok)
	require.Len(t, matches, 2)
}

func TestEvaluateOrFallsThroughToRight(t *testing.T) {
	t.Parallel()
	s := schema()
	bound := bindSrc(t, s, `http.path == "/a" || http.path == "/b"`)

	ctx := rcontext.New(s, nil)
	require.NoError(t, ctx.AddValue("http.path", types.NewString("/b")))

	ok, matches := Evaluate(bound.Tree, ctx)
	require.True(t, ok)
	require.Len(t, matches, 1)
}

func TestEvaluateNotNegatesAndDropsMatches(t *testing.T) {
	t.Parallel()
	s := schema()
	bound := bindSrc(t, s, `!(http.path == "/a")`)

	ctx := rcontext.New(s, nil)
	require.NoError(t, ctx.AddValue("http.path", types.NewString("/b")))

	ok, matches := Evaluate(bound.Tree, ctx)
	require.True(t, ok)
	require.Empty(t, matches)
}

func TestEvaluateMultiValueExistentialForEquals(t *testing.T) {
	t.Parallel()
	s := schema()
	bound := bindSrc(t, s, `http.headers.x_id == "wanted"`)

	ctx := rcontext.New(s, nil)
	require.NoError(t, ctx.AddValue("http.headers.x_id", types.NewString("other")))
	require.NoError(t, ctx.AddValue("http.headers.x_id", types.NewString("wanted")))

	ok, matches := Evaluate(bound.Tree, ctx)
	require.True(t, ok)
	require.Equal(t, 1, matches[0].ValueIndex)
}

func TestEvaluateMultiValueUniversalForNotEquals(t *testing.T) {
	t.Parallel()
	s := schema()
	bound := bindSrc(t, s, `http.headers.x_id != "bad"`)

	ctx := rcontext.New(s, nil)
	require.NoError(t, ctx.AddValue("http.headers.x_id", types.NewString("bad")))
	require.NoError(t, ctx.AddValue("http.headers.x_id", types.NewString("good")))

	ok, _ := Evaluate(bound.Tree, ctx)
	require.False(t, ok, "one value equals \"bad\", so universal != must fail")
}

func TestEvaluateAnyTransformForcesExistentialOnNegation(t *testing.T) {
	t.Parallel()
	s := schema()
	bound := bindSrc(t, s, `any(http.headers.x_id) != "bad"`)

	ctx := rcontext.New(s, nil)
	require.NoError(t, ctx.AddValue("http.headers.x_id", types.NewString("bad")))
	require.NoError(t, ctx.AddValue("http.headers.x_id", types.NewString("good")))

	ok, _ := Evaluate(bound.Tree, ctx)
	require.True(t, ok, "any() forces existential: at least one value != \"bad\"")
}

func TestEvaluateVacuousTruthOnEmptyUniversal(t *testing.T) {
	t.Parallel()
	s := schema()
	bound := bindSrc(t, s, `http.headers.x_id != "bad"`)

	ctx := rcontext.New(s, nil)
	ok, _ := Evaluate(bound.Tree, ctx)
	require.True(t, ok, "no values present: universal != is vacuously true")
}

func TestEvaluateRegexCaptures(t *testing.T) {
	t.Parallel()
	s := schema()
	bound := bindSrc(t, s, `http.path ~ r#"^/users/(?P<id>\d+)$"#`)

	ctx := rcontext.New(s, nil)
	require.NoError(t, ctx.AddValue("http.path", types.NewString("/users/42")))

	ok, matches := Evaluate(bound.Tree, ctx)
	require.True(t, ok)
	require.Equal(t, "42", matches[0].Captures["id"])
	require.Equal(t, "42", matches[0].Captures["1"])
}

func TestEvaluateCIDRContainment(t *testing.T) {
	t.Parallel()
	s := schema()
	bound := bindSrc(t, s, `net.src.ip in 10.0.0.0/8`)

	ctx := rcontext.New(s, nil)
	addr, err := types.NewIPAddr("10.1.2.3")
	require.NoError(t, err)
	require.NoError(t, ctx.AddValue("net.src.ip", addr))

	ok, _ := Evaluate(bound.Tree, ctx)
	require.True(t, ok)
}
