// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
	"github.com/AleutianAI/AleutianCCG/services/ccg/graph"
	"github.com/AleutianAI/AleutianCCG/services/ccg/scanner"
)

const greeterSource = `"""Greeting helpers."""

class Greeter:
    def greet(self, name):
        return helper(name)

def helper(x):
    return x
`

func pythonUnit(path, content string) *scanner.ParseUnit {
	return &scanner.ParseUnit{
		AbsPath:  "/proj/" + path,
		RelPath:  path,
		Language: ast.LanguagePython,
		Content:  []byte(content),
	}
}

func declByName(t *testing.T, res *Result, name string) graph.Declaration {
	t.Helper()
	for _, d := range res.Declarations {
		if d.Name == name && d.Kind != ast.KindModule {
			return d
		}
	}
	t.Fatalf("declaration %q not found", name)
	return graph.Declaration{}
}

func TestExtract_ModuleAndNesting(t *testing.T) {
	res, err := NewExtractor().Extract(context.Background(), pythonUnit("pkg/greet.py", greeterSource))
	require.NoError(t, err)

	require.NotEmpty(t, res.Declarations)
	mod := res.Declarations[0]
	assert.Equal(t, res.Module, mod)
	assert.Equal(t, ast.KindModule, mod.Kind)
	assert.Equal(t, "greet", mod.Name)
	assert.Empty(t, mod.ParentID)
	assert.Equal(t, "Greeting helpers.", mod.DocComment)
	assert.Equal(t, 0, mod.Span.Start)
	assert.Equal(t, len(greeterSource), mod.Span.End)
	assert.Equal(t, 9, mod.Span.EndLine)

	cls := declByName(t, res, "Greeter")
	greet := declByName(t, res, "greet")
	helper := declByName(t, res, "helper")
	assert.Equal(t, mod.ID, cls.ParentID)
	assert.Equal(t, cls.ID, greet.ParentID)
	assert.Equal(t, mod.ID, helper.ParentID)
	assert.Equal(t, ast.KindMethod, greet.Kind)
	assert.Equal(t, []string{"name"}, greet.Parameters)

	require.Len(t, res.Edges, len(res.Declarations)-1)
	for _, e := range res.Edges {
		assert.Equal(t, graph.EdgeContains, e.Kind)
		assert.Equal(t, graph.ConfidenceResolved, e.Confidence)
	}
}

func TestExtract_ReferencesCarryScope(t *testing.T) {
	res, err := NewExtractor().Extract(context.Background(), pythonUnit("greet.py", greeterSource))
	require.NoError(t, err)

	greet := declByName(t, res, "greet")
	var call *Reference
	for i := range res.References {
		if res.References[i].Kind == ast.RefCall && res.References[i].Name == "helper" {
			call = &res.References[i]
		}
	}
	require.NotNil(t, call, "call to helper not extracted")
	assert.Equal(t, greet.ID, call.ScopeID)
	assert.Equal(t, "greet.py", call.FilePath)
	assert.Equal(t, ast.LanguagePython, call.Language)
}

func TestExtract_StableIDs(t *testing.T) {
	ex := NewExtractor()
	a, err := ex.Extract(context.Background(), pythonUnit("greet.py", greeterSource))
	require.NoError(t, err)
	b, err := ex.Extract(context.Background(), pythonUnit("greet.py", greeterSource))
	require.NoError(t, err)
	assert.Equal(t, a.Declarations, b.Declarations)

	moved, err := ex.Extract(context.Background(), pythonUnit("other.py", greeterSource))
	require.NoError(t, err)
	assert.NotEqual(t, a.Module.ID, moved.Module.ID)
}

func TestExtract_SyntaxErrorIsParseFailure(t *testing.T) {
	_, err := NewExtractor().Extract(context.Background(), pythonUnit("bad.py", "def broken(:\n    pass\n"))
	require.Error(t, err)

	var pf *ast.ParseFailure
	require.True(t, errors.As(err, &pf))
	assert.Equal(t, "bad.py", pf.FilePath)
	assert.ErrorIs(t, err, ast.ErrSyntax)
}

func TestExtract_UnsupportedLanguage(t *testing.T) {
	unit := pythonUnit("x.cobol", "IDENTIFICATION DIVISION.")
	unit.Language = "cobol"
	_, err := NewExtractor().Extract(context.Background(), unit)
	assert.ErrorIs(t, err, ast.ErrUnsupportedLanguage)
}

func TestExtract_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewExtractor().Extract(ctx, pythonUnit("greet.py", greeterSource))
	require.Error(t, err)
	var pf *ast.ParseFailure
	assert.True(t, errors.As(err, &pf))
}

// slowAdapter blocks in Parse until its context is done.
type slowAdapter struct{}

type slowTree struct{}

func (slowTree) Language() ast.Language { return ast.LanguagePython }
func (slowTree) FilePath() string       { return "" }
func (slowTree) Content() []byte        { return nil }
func (slowTree) Close()                 {}

func (slowAdapter) Language() ast.Language { return ast.LanguagePython }
func (slowAdapter) Extensions() []string   { return []string{".py"} }

func (slowAdapter) Parse(ctx context.Context, _ []byte, _ string) (ast.Tree, error) {
	<-ctx.Done()
	return slowTree{}, nil
}

func (slowAdapter) Extract(context.Context, ast.Tree) (*ast.Extraction, error) {
	return &ast.Extraction{Language: ast.LanguagePython}, nil
}

func TestExtract_Timeout(t *testing.T) {
	ex := NewExtractor(
		WithRegistry(ast.NewRegistry(slowAdapter{})),
		WithParseTimeout(10*time.Millisecond),
	)
	_, err := ex.Extract(context.Background(), pythonUnit("greet.py", greeterSource))
	require.Error(t, err)
	assert.True(t, ast.IsTimeout(err), "got %v", err)
}

type countingCache struct {
	mu   sync.Mutex
	data map[string]*ast.Extraction
	gets int
	hits int
	puts int
}

func (c *countingCache) Get(_ context.Context, lang ast.Language, content []byte) (*ast.Extraction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	ex, ok := c.data[string(lang)+"|"+string(content)]
	if ok {
		c.hits++
	}
	return ex, ok
}

func (c *countingCache) Put(_ context.Context, lang ast.Language, content []byte, ex *ast.Extraction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	c.data[string(lang)+"|"+string(content)] = ex
}

func TestExtract_CacheSkipsReparse(t *testing.T) {
	cache := &countingCache{data: make(map[string]*ast.Extraction)}
	ex := NewExtractor(WithCache(cache))

	first, err := ex.Extract(context.Background(), pythonUnit("a.py", greeterSource))
	require.NoError(t, err)
	assert.False(t, first.Cached)

	// Same bytes under another path: the cached extraction is reused but
	// ids are computed for the new path.
	second, err := ex.Extract(context.Background(), pythonUnit("b.py", greeterSource))
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, cache.puts)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, len(first.Declarations), len(second.Declarations))
	assert.Equal(t, "b.py", second.Module.FilePath)
	assert.NotEqual(t, first.Module.ID, second.Module.ID)
}

func TestExtract_FailuresAreNotCached(t *testing.T) {
	cache := &countingCache{data: make(map[string]*ast.Extraction)}
	_, err := NewExtractor(WithCache(cache)).Extract(context.Background(), pythonUnit("bad.py", "class (:\n"))
	require.Error(t, err)
	assert.Zero(t, cache.puts)
}

func TestFromExtraction_ForwardParentsFallBackToModule(t *testing.T) {
	raw := &ast.Extraction{
		Language: ast.LanguageGo,
		Declarations: []ast.RawDeclaration{
			{Name: "A", Kind: ast.KindClass, Span: ast.Span{Start: 0, End: 5}, Parent: 1},
			{Name: "B", Kind: ast.KindClass, Span: ast.Span{Start: 6, End: 9}, Parent: -1},
		},
		References: []ast.RawReference{{Kind: ast.RefCall, Name: "f", Scope: 7}},
	}
	res := FromExtraction("x.go", ast.LanguageGo, []byte("0123456789"), raw)
	require.Len(t, res.Declarations, 3)
	assert.Equal(t, res.Module.ID, res.Declarations[1].ParentID)
	assert.Equal(t, res.Module.ID, res.References[0].ScopeID)
}

func TestFileSpan(t *testing.T) {
	tests := []struct {
		content         string
		endLine, endCol int
	}{
		{"", 1, 1},
		{"abc", 1, 4},
		{"abc\n", 2, 1},
		{"a\nbc", 2, 3},
	}
	for _, tt := range tests {
		s := fileSpan([]byte(tt.content))
		assert.Equal(t, tt.endLine, s.EndLine, "%q", tt.content)
		assert.Equal(t, tt.endCol, s.EndCol, "%q", tt.content)
		assert.Equal(t, len(tt.content), s.End)
	}
}
