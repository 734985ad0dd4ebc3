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
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Kong/atc-router/internal/types"
)

func schema() *types.Schema {
	s := types.NewSchema()
	s.AddField("http.path", types.String)
	s.AddField("tcp.port", types.Int)
	return s
}

func TestAddMatcherAndExecute(t *testing.T) {
	t.Parallel()
	r := New(schema())
	id := uuid.New()
	require.NoError(t, r.AddMatcher(0, id, `http.path ^= "/foo" && tcp.port == 80`))

	ctx := r.NewContext()
	require.NoError(t, ctx.AddValue("http.path", types.NewString("/foo/bar")))
	require.NoError(t, ctx.AddValue("tcp.port", types.NewInt(80)))

	require.True(t, r.Execute(ctx))
	res, val, _, ok := ctx.GetResult("http.path")
	require.True(t, ok)
	require.Equal(t, id, res.UUID)
	require.Equal(t, "/foo/bar", val.Str())
}

func TestAddMatcherDuplicateUUIDRejected(t *testing.T) {
	t.Parallel()
	r := New(schema())
	id := uuid.New()
	require.NoError(t, r.AddMatcher(0, id, `tcp.port == 80`))
	err := r.AddMatcher(1, id, `tcp.port == 81`)
	require.Error(t, err)
	var dup *DuplicateUUIDError
	require.ErrorAs(t, err, &dup)
}

func TestAddMatcherRejectsUnknownField(t *testing.T) {
	t.Parallel()
	r := New(schema())
	err := r.AddMatcher(0, uuid.New(), `nope.field == "x"`)
	require.Error(t, err)
	// no partial state: field union stays empty
	require.Empty(t, r.GetFields())
}

func TestExecutePriorityOrdering(t *testing.T) {
	t.Parallel()
	r := New(schema())
	low := uuid.New()
	high := uuid.New()
	require.NoError(t, r.AddMatcher(0, low, `tcp.port == 80`))
	require.NoError(t, r.AddMatcher(10, high, `tcp.port == 80`))

	ctx := r.NewContext()
	require.NoError(t, ctx.AddValue("tcp.port", types.NewInt(80)))
	require.True(t, r.Execute(ctx))
	res, _, _, _ := ctx.GetResult("")
	require.Equal(t, high, res.UUID, "higher priority wins regardless of insertion order")
}

func TestExecuteTieBreaksOnAscendingUUID(t *testing.T) {
	t.Parallel()
	r := New(schema())
	a, b := uuid.New(), uuid.New()
	first, second := a, b
	if second.String() < first.String() {
		first, second = second, first
	}
	require.NoError(t, r.AddMatcher(0, second, `tcp.port == 80`))
	require.NoError(t, r.AddMatcher(0, first, `tcp.port == 80`))

	ctx := r.NewContext()
	require.NoError(t, ctx.AddValue("tcp.port", types.NewInt(80)))
	require.True(t, r.Execute(ctx))
	res, _, _, _ := ctx.GetResult("")
	require.Equal(t, first, res.UUID)
}

func TestRemoveMatcher(t *testing.T) {
	t.Parallel()
	r := New(schema())
	id := uuid.New()
	require.NoError(t, r.AddMatcher(0, id, `tcp.port == 80`))
	require.True(t, r.RemoveMatcher(0, id))

	ctx := r.NewContext()
	require.NoError(t, ctx.AddValue("tcp.port", types.NewInt(80)))
	require.False(t, r.Execute(ctx))
}

func TestRemoveMatcherWrongPriorityNoOp(t *testing.T) {
	t.Parallel()
	r := New(schema())
	id := uuid.New()
	require.NoError(t, r.AddMatcher(5, id, `tcp.port == 80`))
	require.False(t, r.RemoveMatcher(1, id))
}

func TestValidateDoesNotInstall(t *testing.T) {
	t.Parallel()
	r := New(schema())
	fields, err := r.Validate(`http.path == "/foo"`)
	require.NoError(t, err)
	require.Contains(t, fields, "http.path")
	require.Empty(t, r.GetFields())
}

func TestGetFieldsWithIndexStable(t *testing.T) {
	t.Parallel()
	r := New(schema())
	require.NoError(t, r.AddMatcher(0, uuid.New(), `http.path == "/a"`))
	idx1 := r.GetFieldsWithIndex()
	require.NoError(t, r.AddMatcher(0, uuid.New(), `tcp.port == 80`))
	idx2 := r.GetFieldsWithIndex()
	require.Equal(t, idx1["http.path"], idx2["http.path"], "existing field ids never get renumbered")
}

func TestEnablePrefilterSkipsNonCandidates(t *testing.T) {
	t.Parallel()
	r := New(schema())
	require.NoError(t, r.EnablePrefilter("http.path"))
	id := uuid.New()
	require.NoError(t, r.AddMatcher(0, id, `http.path ^= "/foo"`))

	ctx := r.NewContext()
	require.NoError(t, ctx.AddValue("http.path", types.NewString("/bar")))
	require.False(t, r.Execute(ctx), "prefilter must exclude a value that cannot match any registered prefix")
}

func TestEnablePrefilterRejectsNonStringField(t *testing.T) {
	t.Parallel()
	r := New(schema())
	err := r.EnablePrefilter("tcp.port")
	require.Error(t, err)
}

func TestEnablePrefilterStillMatchesUnboundedMatcherWithoutFieldValue(t *testing.T) {
	t.Parallel()
	r := New(schema())
	require.NoError(t, r.EnablePrefilter("http.path"))
	id := uuid.New()
	require.NoError(t, r.AddMatcher(0, id, `tcp.port == 80`))

	ctx := r.NewContext()
	require.NoError(t, ctx.AddValue("tcp.port", types.NewInt(80)))
	require.True(t, r.Execute(ctx), "a matcher with no predicate on the prefilter field is always a candidate, even with zero prefilter-field values present")
	res, _, _, _ := ctx.GetResult("")
	require.Equal(t, id, res.UUID)
}

func TestRemoveMatcherRollsBackFieldBookkeeping(t *testing.T) {
	t.Parallel()
	r := New(schema())
	id := uuid.New()

	before := r.GetFieldsWithIndex()
	require.NoError(t, r.AddMatcher(0, id, `http.path == "/a" && tcp.port == 80`))
	require.NotEmpty(t, r.GetFields())
	require.True(t, r.RemoveMatcher(0, id))

	require.Equal(t, before, r.GetFieldsWithIndex(), "add-then-remove must leave field bookkeeping bit-equal to the pre-add state")
	require.Empty(t, r.GetFields())
}

func TestFieldIndexSlotIsReusedAfterRemove(t *testing.T) {
	t.Parallel()
	r := New(schema())
	first := uuid.New()
	require.NoError(t, r.AddMatcher(0, first, `http.path == "/a"`))
	idx := r.GetFieldsWithIndex()["http.path"]
	require.True(t, r.RemoveMatcher(0, first))

	second := uuid.New()
	require.NoError(t, r.AddMatcher(0, second, `http.path == "/b"`))
	require.Equal(t, idx, r.GetFieldsWithIndex()["http.path"], "freed index slots are reused instead of growing nextIndex unboundedly")
}

func TestFieldRefCountSurvivesSharedFieldAcrossMatchers(t *testing.T) {
	t.Parallel()
	r := New(schema())
	a, b := uuid.New(), uuid.New()
	require.NoError(t, r.AddMatcher(0, a, `http.path == "/a"`))
	require.NoError(t, r.AddMatcher(0, b, `http.path == "/b"`))

	require.True(t, r.RemoveMatcher(0, a))
	require.Contains(t, r.GetFields(), "http.path", "field is still referenced by matcher b")

	require.True(t, r.RemoveMatcher(0, b))
	require.Empty(t, r.GetFields(), "last referencing matcher removed: field bookkeeping must drop to empty")
}
