// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
	"github.com/AleutianAI/AleutianCCG/services/ccg/cache"
	"github.com/AleutianAI/AleutianCCG/services/ccg/config"
	"github.com/AleutianAI/AleutianCCG/services/ccg/diag"
	"github.com/AleutianAI/AleutianCCG/services/ccg/graph"
	"github.com/AleutianAI/AleutianCCG/services/ccg/scanner"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

var polyglot = map[string]string{
	"main.py":           "from util import helper\n\ndef main():\n    helper()\n",
	"util.py":           "def helper():\n    return 1\n\nclass Base:\n    pass\n\nclass Child(Base):\n    def run(self):\n        self.go()\n\n    def go(self):\n        pass\n",
	"web/app.js":        "import { render } from './view.js';\n\nfunction start() {\n  render();\n}\n",
	"web/view.js":       "export function render() {\n  return 1;\n}\n",
	"go.mod":            "module example.com/poly\n\ngo 1.22\n",
	"cmd/tool/main.go":  "package main\n\nimport \"example.com/poly/lib\"\n\nfunc main() {\n\tlib.Do()\n}\n",
	"lib/lib.go":        "package lib\n\nfunc Do() {}\n",
	"src/App.java":      "package src;\n\npublic class App {\n  public static void main(String[] args) {\n    run();\n  }\n  static void run() {}\n}\n",
	"native/util.h":     "int add(int a, int b);\n",
	"native/util.cpp":   "#include \"util.h\"\n\nint add(int a, int b) { return a + b; }\n",
	"rs/main.rs":        "mod shapes;\n\nfn main() {\n    shapes::area();\n}\n",
	"rs/shapes.rs":      "pub fn area() -> i32 { 1 }\n",
	"walker.jac":        "node Person {\n    has name: str;\n}\n\nwalker Greeter {\n    can greet with Person entry {\n        print(here.name);\n    }\n}\n",
	"README.md":         "# poly\n",
	"node_modules/x.js": "function ignored() {}\n",
}

func build(t *testing.T, root string, opts ...Option) *Result {
	t.Helper()
	res, err := NewBuilder(opts...).Build(t.Context(), root)
	require.NoError(t, err)
	require.Equal(t, StateDone, res.State)
	require.NotNil(t, res.Graph)
	return res
}

func declNamed(t *testing.T, g *graph.CodeContextGraph, file, name string) graph.Declaration {
	t.Helper()
	for _, d := range g.DeclarationsInFile(file) {
		if d.Name == name && d.Kind != ast.KindModule {
			return d
		}
	}
	t.Fatalf("no declaration %s in %s", name, file)
	return graph.Declaration{}
}

func edgesOfKind(g *graph.CodeContextGraph, kind graph.EdgeKind) []graph.Edge {
	return g.Relationships(kind)
}

func TestBuild_TwoFilePython(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.py": "def foo():\n    return 1\n",
		"b.py": "from a import foo\n\ndef bar():\n    return foo()\n",
	})
	res := build(t, root)
	g := res.Graph

	modA, ok := g.Module("a.py")
	require.True(t, ok)
	modB, ok := g.Module("b.py")
	require.True(t, ok)
	foo := declNamed(t, g, "a.py", "foo")
	bar := declNamed(t, g, "b.py", "bar")

	var sawImport, sawCall bool
	for _, e := range edgesOfKind(g, graph.EdgeImports) {
		if e.SourceID == modB.ID && e.TargetID == modA.ID {
			sawImport = true
		}
	}
	for _, e := range edgesOfKind(g, graph.EdgeCalls) {
		if e.SourceID == bar.ID && e.TargetID == foo.ID {
			sawCall = true
			assert.Equal(t, graph.ConfidenceResolved, e.Confidence)
		}
	}
	assert.True(t, sawImport, "b imports a")
	assert.True(t, sawCall, "bar calls foo")

	assert.Equal(t, 2, res.Stats.FilesParsed)
	assert.Zero(t, res.Stats.FilesFailed)
	assert.Equal(t, 2, res.Languages.Files[ast.LanguagePython])
	assert.Zero(t, diag.Count(g.Diagnostics(), diag.CodeParseFailure))
	assert.NotEmpty(t, res.RunID)
}

func TestBuild_PlainImportResolvesCalls(t *testing.T) {
	res := build(t, writeTree(t, map[string]string{
		"a.py": "def helper():\n    return 1\n",
		"b.py": "import a\n\ndef run():\n    return helper()\n",
	}))
	g := res.Graph

	helper := declNamed(t, g, "a.py", "helper")
	run := declNamed(t, g, "b.py", "run")
	assert.Contains(t, g.Callees(run.ID), helper)
	assert.Zero(t, diag.Count(g.Diagnostics(), diag.CodeUnresolvedReference))
	assert.Equal(t, 1, res.Stats.Resolve.Imports)
}

func TestBuild_PlainImportAmbiguity(t *testing.T) {
	res := build(t, writeTree(t, map[string]string{
		"a.py": "def helper():\n    pass\n",
		"b.py": "def helper():\n    pass\n",
		"c.py": "import a\nimport b\n\ndef run():\n    helper()\n",
	}))
	g := res.Graph

	run := declNamed(t, g, "c.py", "run")
	calls := g.Outgoing(run.ID, graph.EdgeCalls)
	require.Len(t, calls, 2)
	for _, e := range calls {
		assert.Equal(t, graph.ConfidenceBestEffort, e.Confidence)
	}
	assert.Equal(t, 1, diag.Count(g.Diagnostics(), diag.CodeAmbiguousReference))
}

func TestBuild_Deterministic(t *testing.T) {
	root := writeTree(t, polyglot)

	first := build(t, root, WithWorkers(1))
	firstJSON, err := first.Graph.MarshalJSON()
	require.NoError(t, err)

	for _, workers := range []int{1, 4, 8} {
		res := build(t, root, WithWorkers(workers))
		assert.Equal(t, first.Graph.Hash(), res.Graph.Hash(), "workers=%d", workers)
		data, err := res.Graph.MarshalJSON()
		require.NoError(t, err)
		assert.Equal(t, string(firstJSON), string(data), "workers=%d", workers)
	}
}

func TestBuild_GraphIntegrity(t *testing.T) {
	res := build(t, writeTree(t, polyglot), WithWorkers(4))
	g := res.Graph

	ids := make(map[string]graph.Declaration)
	for _, d := range g.Declarations() {
		_, dup := ids[d.ID]
		require.False(t, dup, "duplicate id %s", d.ID)
		ids[d.ID] = d
	}

	t.Run("no dangling edges", func(t *testing.T) {
		for _, e := range g.Edges() {
			assert.Contains(t, ids, e.SourceID, "source of %s edge", e.Kind)
			assert.Contains(t, ids, e.TargetID, "target of %s edge", e.Kind)
		}
	})

	t.Run("containment is a forest", func(t *testing.T) {
		for _, d := range g.Declarations() {
			seen := map[string]bool{}
			for cur := d; cur.ParentID != ""; {
				require.False(t, seen[cur.ID], "cycle through %s", cur.ID)
				seen[cur.ID] = true
				parent, ok := ids[cur.ParentID]
				require.True(t, ok, "parent of %s missing", cur.ID)
				cur = parent
			}
		}
	})

	t.Run("every parsed file has a module", func(t *testing.T) {
		for _, f := range g.Files() {
			_, ok := g.Module(f)
			assert.True(t, ok, f)
		}
	})

	t.Run("ignored and unsupported files", func(t *testing.T) {
		assert.NotContains(t, g.Files(), "node_modules/x.js")
		assert.NotContains(t, g.Files(), "README.md")
		assert.GreaterOrEqual(t, res.Stats.FilesSkipped, 2, "README.md and go.mod")
		assert.Positive(t, diag.Count(g.Diagnostics(), diag.CodeUnsupportedLanguage))
	})

	t.Run("entry points", func(t *testing.T) {
		assert.Contains(t, res.EntryPoints, "main.py")
		assert.Contains(t, res.EntryPoints, "cmd/tool/main.go")
		assert.IsIncreasing(t, res.EntryPoints)
	})

	t.Run("go imports resolve through go.mod", func(t *testing.T) {
		main := declNamed(t, g, "cmd/tool/main.go", "main")
		do := declNamed(t, g, "lib/lib.go", "Do")
		assert.Contains(t, g.Callees(main.ID), do)
	})
}

func TestBuild_ParseFailureIsIsolated(t *testing.T) {
	root := writeTree(t, map[string]string{
		"good.py": "def ok():\n    pass\n",
		"bad.py":  "def broken(:\n    pass\n",
	})
	res := build(t, root)
	g := res.Graph

	var failures []diag.Diagnostic
	for _, d := range g.Diagnostics() {
		if d.Code == diag.CodeParseFailure {
			failures = append(failures, d)
		}
	}
	require.Len(t, failures, 1)
	assert.Equal(t, "bad.py", failures[0].Path)
	assert.Equal(t, 1, res.Stats.FilesFailed)
	assert.Equal(t, 1, res.Stats.FilesParsed)

	declNamed(t, g, "good.py", "ok")
	assert.Empty(t, g.DeclarationsInFile("bad.py"))
}

func TestBuild_SameFileDeclarationWins(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.py": "def helper():\n    pass\n",
		"b.py": "from a import *\n\ndef helper():\n    pass\n\ndef run():\n    helper()\n",
	})
	g := build(t, root).Graph

	run := declNamed(t, g, "b.py", "run")
	local := declNamed(t, g, "b.py", "helper")
	callees := g.Callees(run.ID)
	require.Len(t, callees, 1)
	assert.Equal(t, local.ID, callees[0].ID)
	assert.Zero(t, diag.Count(g.Diagnostics(), diag.CodeAmbiguousReference))
}

func TestBuild_AmbiguousReferenceYieldsBestEffortEdges(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.py": "def helper():\n    pass\n",
		"b.py": "def helper():\n    pass\n",
		"c.py": "from a import *\nfrom b import *\n\ndef run():\n    helper()\n",
	})
	g := build(t, root).Graph

	run := declNamed(t, g, "c.py", "run")
	edges := g.Outgoing(run.ID, graph.EdgeCalls)
	require.Len(t, edges, 2)
	for _, e := range edges {
		assert.Equal(t, graph.ConfidenceBestEffort, e.Confidence)
	}
	assert.Equal(t, 1, diag.Count(g.Diagnostics(), diag.CodeAmbiguousReference))
}

func TestBuild_EmptyDirectory(t *testing.T) {
	res := build(t, t.TempDir())
	assert.Zero(t, res.Graph.DeclarationCount())
	assert.Zero(t, res.Graph.EdgeCount())
	assert.Equal(t, 1, diag.Count(res.Graph.Diagnostics(), diag.CodeZeroFiles))
}

func TestBuild_OnlyUnparsableFiles(t *testing.T) {
	res := build(t, writeTree(t, map[string]string{"bad.py": "class (:\n"}))
	diags := res.Graph.Diagnostics()
	assert.Equal(t, 1, diag.Count(diags, diag.CodeParseFailure))
	assert.Equal(t, 1, diag.Count(diags, diag.CodeZeroFiles))
}

func TestBuild_FatalInputErrors(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.py")
	require.NoError(t, os.WriteFile(file, []byte("x = 1\n"), 0o644))

	tests := []struct {
		name   string
		root   string
		opts   []Option
		reason error
	}{
		{"missing root", filepath.Join(t.TempDir(), "missing"), nil, ErrRootNotFound},
		{"empty root", "", nil, ErrRootNotFound},
		{"empty root with scanner root set", "", []Option{WithScannerConfig(scanner.Config{Root: "."})}, ErrRootNotFound},
		{"file as root", file, nil, ErrRootNotDir},
		{
			"invalid ignore glob",
			t.TempDir(),
			[]Option{WithScannerConfig(scanner.Config{IgnorePatterns: []string{"a["}})},
			ErrInvalidOptions,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewBuilder(tt.opts...).Build(t.Context(), tt.root)
			require.Error(t, err)
			var fie *FatalInputError
			require.ErrorAs(t, err, &fie)
			assert.ErrorIs(t, err, tt.reason)
			require.NotNil(t, res)
			assert.Equal(t, StateFailed, res.State)
			assert.Nil(t, res.Graph)
		})
	}
}

func TestBuild_NoReadableFiles(t *testing.T) {
	root := writeTree(t, map[string]string{"a.py": "x = 1\n", "b.py": "y = 2\n"})
	cfg := scanner.Config{
		ReadRetries: -1,
		ReadFile: func(string) ([]byte, error) {
			return nil, errors.New("disk on fire")
		},
	}
	res, err := NewBuilder(WithScannerConfig(cfg)).Build(t.Context(), root)
	assert.ErrorIs(t, err, ErrNoReadableFiles)
	assert.Equal(t, StateFailed, res.State)
}

func TestBuild_CancelledContext(t *testing.T) {
	root := writeTree(t, polyglot)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	res, err := NewBuilder().Build(ctx, root)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, res.State)
	assert.Nil(t, res.Graph)
}

func TestBuild_ProgressAndPhases(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.py": "def foo():\n    pass\n",
		"b.py": "def bar():\n    pass\n",
		"c.py": "def baz():\n    pass\n",
	})

	var (
		mu     sync.Mutex
		states []State
		done   int
	)
	res := build(t, root, WithWorkers(2), WithProgress(func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		if p.FilesDone > 0 {
			done++
			return
		}
		states = append(states, p.State)
	}))

	assert.Equal(t, []State{StateExtracting, StateResolving, StateAssembling, StateDone}, states)
	assert.Equal(t, 3, done)

	phases := make([]State, len(res.Phases))
	for i, p := range res.Phases {
		phases[i] = p.State
	}
	assert.Equal(t, []State{StateScanning, StateExtracting, StateResolving, StateAssembling}, phases)
}

func TestBuild_UsesCache(t *testing.T) {
	mem, err := cache.NewMemoryCache(64)
	require.NoError(t, err)
	root := writeTree(t, map[string]string{
		"a.py": "def foo():\n    pass\n",
		"b.py": "import a\n\ndef bar():\n    a.foo()\n",
	})
	b := NewBuilder(WithCache(mem))

	first, err := b.Build(t.Context(), root)
	require.NoError(t, err)
	assert.Zero(t, first.Stats.FilesCached)

	second, err := b.Build(t.Context(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Stats.FilesCached)
	assert.Equal(t, first.Graph.Hash(), second.Graph.Hash())
}

func TestBuild_WithConfig(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.py":      "def foo():\n    pass\n",
		"Main.java": "class Main {}\n",
	})
	cfg, err := config.LoadForRoot(root)
	require.NoError(t, err)
	cfg.Languages[string(ast.LanguageJava)] = false

	res := build(t, root, WithConfig(cfg))
	assert.Equal(t, 1, diag.Count(res.Graph.Diagnostics(), diag.CodeLanguageDisabled))
	assert.NotContains(t, res.Graph.Files(), "Main.java")
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateScanning, StateExtracting, true},
		{StateExtracting, StateResolving, true},
		{StateResolving, StateAssembling, true},
		{StateAssembling, StateDone, true},
		{StateScanning, StateFailed, true},
		{StateAssembling, StateFailed, true},
		{StateScanning, StateResolving, false},
		{StateResolving, StateExtracting, false},
		{StateDone, StateFailed, false},
		{StateFailed, StateScanning, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, canTransition(tt.from, tt.to))
		})
	}
	assert.True(t, StateDone.Terminal())
	assert.False(t, StateAssembling.Terminal())
	assert.Equal(t, "unknown", State(99).String())
}

func TestFatalInputError(t *testing.T) {
	err := fatal("/p", ErrCanceled, context.Canceled)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "build /p: build canceled: context canceled", err.Error())
	assert.Equal(t, "build /p: root path does not exist", fatal("/p", ErrRootNotFound, nil).Error())
}

func TestBuild_SampleGoProjectFixture(t *testing.T) {
	res := build(t, filepath.Join("..", "..", "..", "test", "fixtures", "sample-go-project"))
	g := res.Graph

	assert.Equal(t, 2, res.Stats.FilesParsed)
	assert.Equal(t, []string{"main.go"}, res.EntryPoints)
	assert.True(t, filepath.IsAbs(g.ProjectRoot()))

	main := declNamed(t, g, "main.go", "main")
	newFn := declNamed(t, g, "greet/greet.go", "New")
	assert.Contains(t, g.Callees(main.ID), newFn, "import path resolves through go.mod")

	greeter := declNamed(t, g, "greet/greet.go", "Greeter")
	hello := declNamed(t, g, "greet/greet.go", "Hello")
	assert.Equal(t, ast.KindMethod, hello.Kind)
	assert.Equal(t, greeter.ID, hello.ParentID)

	prefix := declNamed(t, g, "greet/greet.go", "prefix")
	assert.Contains(t, g.Callers(prefix.ID), hello)
}
