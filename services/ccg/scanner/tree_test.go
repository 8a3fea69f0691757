// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
)

func TestBuildFileTree(t *testing.T) {
	entries := []FileEntry{
		{RelPath: "src/util/b.py", Size: 5, Language: ast.LanguagePython},
		{RelPath: "README.md", Size: 100},
		{RelPath: "src/a.py", Size: 10, Language: ast.LanguagePython},
		{RelPath: "main.go", Size: 7, Language: ast.LanguageGo},
	}
	tree := BuildFileTree("proj", entries)

	assert.Equal(t, "proj", tree.Name)
	assert.Equal(t, NodeDir, tree.Kind)
	assert.Equal(t, int64(122), tree.Size)
	assert.Equal(t, 4, tree.FileCount())

	names := make([]string, len(tree.Children))
	for i, c := range tree.Children {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"src", "README.md", "main.go"}, names, "directories sort before files")

	util, ok := tree.Find("src/util")
	require.True(t, ok)
	assert.Equal(t, NodeDir, util.Kind)
	assert.Equal(t, int64(5), util.Size)

	b, ok := tree.Find("src/util/b.py")
	require.True(t, ok)
	assert.Equal(t, ast.LanguagePython, b.Language)
	assert.Equal(t, "src/util/b.py", b.Path)

	_, ok = tree.Find("src/missing.py")
	assert.False(t, ok)
}

func TestComputeLanguageStats(t *testing.T) {
	stats := ComputeLanguageStats([]FileEntry{
		{RelPath: "a.py", Language: ast.LanguagePython},
		{RelPath: "b.py", Language: ast.LanguagePython},
		{RelPath: "c.go", Language: ast.LanguageGo},
		{RelPath: "d.rs", Language: ast.LanguageRust},
		{RelPath: "notes.md"},
	})

	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, ast.LanguagePython, stats.Primary)
	assert.InDelta(t, 0.5, stats.Confidence, 1e-9)
	assert.Equal(t, 1, stats.Files[ast.LanguageGo])

	tie := ComputeLanguageStats([]FileEntry{
		{RelPath: "x.rs", Language: ast.LanguageRust},
		{RelPath: "y.go", Language: ast.LanguageGo},
	})
	assert.Equal(t, ast.LanguageGo, tie.Primary, "ties break by name")

	empty := ComputeLanguageStats(nil)
	assert.Empty(t, empty.Primary)
	assert.Zero(t, empty.Confidence)
}

func TestIsEntryPointFile(t *testing.T) {
	assert.True(t, IsEntryPointFile("cmd/server/main.go"))
	assert.True(t, IsEntryPointFile("pkg/__main__.py"))
	assert.True(t, IsEntryPointFile("Main.java"))
	assert.False(t, IsEntryPointFile("src/helpers.py"))
}
