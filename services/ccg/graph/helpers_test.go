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
	"testing"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
)

// makeDecl builds a declaration with a computed id. Lines are derived from
// the byte offsets assuming 10 bytes per line.
func makeDecl(path string, kind ast.Kind, name string, start, end int, parentID string) Declaration {
	span := ast.Span{Start: start, End: end, StartLine: start/10 + 1, EndLine: end/10 + 1}
	return Declaration{
		ID:       DeclarationID(path, span, kind),
		Kind:     kind,
		Name:     name,
		FilePath: path,
		Span:     span,
		ParentID: parentID,
		Language: ast.LanguagePython,
	}
}

func makeModule(path string, size int) Declaration {
	return makeDecl(path, ast.KindModule, ModuleName(path), 0, size, "")
}

func resolvedEdge(kind EdgeKind, src, dst Declaration) Edge {
	return Edge{Kind: kind, SourceID: src.ID, TargetID: dst.ID, Confidence: ConfidenceResolved}
}

// fixture is a two-file project:
//
//	a.py: def foo(): ...
//	b.py: import a; def bar(): foo()
type fixture struct {
	modA, modB, foo, bar Declaration
}

func newFixture() fixture {
	modA := makeModule("a.py", 40)
	modB := makeModule("b.py", 60)
	return fixture{
		modA: modA,
		modB: modB,
		foo:  makeDecl("a.py", ast.KindFunction, "foo", 0, 30, modA.ID),
		bar:  makeDecl("b.py", ast.KindFunction, "bar", 10, 50, modB.ID),
	}
}

func (f fixture) assemble(t *testing.T, extra ...Edge) *CodeContextGraph {
	t.Helper()
	a := NewAssembler("/proj")
	a.AddDeclarations(f.modA, f.modB, f.foo, f.bar)
	a.AddEdges(resolvedEdge(EdgeImports, f.modB, f.modA), resolvedEdge(EdgeCalls, f.bar, f.foo))
	a.AddEdges(extra...)
	g, err := a.Assemble(context.Background())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	return g
}
