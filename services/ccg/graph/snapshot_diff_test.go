// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"strings"
	"testing"

	"github.com/sourcegraph/go-diff/diff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
)

// greeterGraph builds m.py with a Greeter class, its greet method and a
// helper function. shift moves every declaration inside the module, params
// overrides greet's parameters and withMain adds a main function.
func greeterGraph(t *testing.T, shift int, params []string, withHelper, withMain bool) *CodeContextGraph {
	t.Helper()
	mod := makeModule("m.py", 250)
	cls := makeDecl("m.py", ast.KindClass, "Greeter", 10+shift, 80+shift, mod.ID)
	greet := makeDecl("m.py", ast.KindMethod, "greet", 20+shift, 70+shift, cls.ID)
	greet.Parameters = params
	decls := []Declaration{mod, cls, greet}

	a := NewAssembler("/proj")
	if withHelper {
		helper := makeDecl("m.py", ast.KindFunction, "helper", 90+shift, 120+shift, mod.ID)
		decls = append(decls, helper)
		a.AddEdges(resolvedEdge(EdgeCalls, greet, helper))
	}
	if withMain {
		decls = append(decls, makeDecl("m.py", ast.KindFunction, "main", 130+shift, 190+shift, mod.ID))
	}
	a.AddDeclarations(decls...)
	g, err := a.Assemble(context.Background())
	require.NoError(t, err)
	return g
}

func TestDiffGraphs_Identical(t *testing.T) {
	g := greeterGraph(t, 0, []string{"self"}, true, false)
	d, err := DiffGraphs(g, g)
	require.NoError(t, err)
	assert.True(t, d.Empty())
	assert.Empty(t, d.DeclarationsAdded)
}

func TestDiffGraphs_ShiftedOffsetsAreNotChanges(t *testing.T) {
	base := greeterGraph(t, 0, []string{"self"}, true, false)
	target := greeterGraph(t, 5, []string{"self"}, true, false)
	require.NotEqual(t, base.Hash(), target.Hash())

	d, err := DiffGraphs(base, target)
	require.NoError(t, err)
	assert.Empty(t, d.DeclarationsAdded)
	assert.Empty(t, d.DeclarationsRemoved)
	assert.Empty(t, d.EdgesAdded)
	assert.Empty(t, d.EdgesRemoved)
	assert.Empty(t, d.DeclarationsModified)
}

func TestDiffGraphs_Changes(t *testing.T) {
	base := greeterGraph(t, 0, []string{"self"}, true, false)
	target := greeterGraph(t, 0, []string{"self", "name"}, false, true)

	d, err := DiffGraphs(base, target)
	require.NoError(t, err)

	assert.Equal(t, []string{"m.py#function:main"}, d.DeclarationsAdded)
	assert.Equal(t, []string{"m.py#function:helper"}, d.DeclarationsRemoved)
	require.Len(t, d.DeclarationsModified, 1)
	assert.Equal(t, "m.py#method:Greeter.greet", d.DeclarationsModified[0].Path)
	assert.Equal(t, ChangeSignature, d.DeclarationsModified[0].ChangeType)

	assert.Contains(t, d.EdgesRemoved, "calls m.py#method:Greeter.greet -> m.py#function:helper")
	assert.Equal(t, 1, d.Summary.FilesAffected)
	assert.Greater(t, d.Summary.TotalChanges, 3)
	assert.InDelta(t, 3.0/4.0, d.Summary.ChangeRatio, 1e-9)
}

func TestDiffGraphs_Nil(t *testing.T) {
	_, err := DiffGraphs(nil, greeterGraph(t, 0, nil, false, false))
	assert.Error(t, err)
}

func TestOutlinePatch(t *testing.T) {
	base := greeterGraph(t, 0, []string{"self"}, true, false)
	target := greeterGraph(t, 0, []string{"self"}, false, true)

	patch, err := OutlinePatch(base, target)
	require.NoError(t, err)
	text := string(patch)
	assert.Contains(t, text, "--- a/m.py")
	assert.Contains(t, text, "+++ b/m.py")
	assert.Contains(t, text, "-function helper()")
	assert.Contains(t, text, "+function main()")
	assert.Contains(t, text, "   method greet(self)")

	parsed, err := diff.ParseMultiFileDiff(patch)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	require.Len(t, parsed[0].Hunks, 1)
	h := parsed[0].Hunks[0]
	assert.Equal(t, int32(3), h.OrigLines)
	assert.Equal(t, int32(3), h.NewLines)
}

func TestOutlinePatch_NoChanges(t *testing.T) {
	g := greeterGraph(t, 0, []string{"self"}, true, false)
	patch, err := OutlinePatch(g, g)
	require.NoError(t, err)
	assert.Empty(t, patch)
}

func TestOutlinePatch_NewFile(t *testing.T) {
	empty := newGraph("/proj", nil, nil, nil)
	target := greeterGraph(t, 0, nil, false, false)

	patch, err := OutlinePatch(empty, target)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(patch), "--- /dev/null"), string(patch))
	assert.Contains(t, string(patch), "@@ -0,0 +1,2 @@")
}

func TestOutline(t *testing.T) {
	g := greeterGraph(t, 0, []string{"self", "name"}, true, false)
	assert.Equal(t, []string{
		"class Greeter",
		"  method greet(self, name)",
		"function helper()",
	}, Outline(g, "m.py"))
}

func TestEditScript(t *testing.T) {
	ops := editScript([]string{"a", "b", "c"}, []string{"a", "c", "d"})
	var got []string
	for _, op := range ops {
		got = append(got, string(op.op)+op.line)
	}
	assert.Equal(t, []string{" a", "-b", " c", "+d"}, got)
}
