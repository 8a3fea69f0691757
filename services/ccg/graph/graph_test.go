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
	"testing"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
)

func TestGraph_Queries(t *testing.T) {
	f := newFixture()
	g := f.assemble(t)

	if got := g.Callers(f.foo.ID); len(got) != 1 || got[0].ID != f.bar.ID {
		t.Errorf("Callers(foo) = %v, want [bar]", got)
	}
	if got := g.Callees(f.bar.ID); len(got) != 1 || got[0].ID != f.foo.ID {
		t.Errorf("Callees(bar) = %v, want [foo]", got)
	}
	if got := g.Imports(f.modB.ID); len(got) != 1 || got[0].ID != f.modA.ID {
		t.Errorf("Imports(b) = %v, want [a]", got)
	}
	if got := g.Children(f.modA.ID); len(got) != 1 || got[0].Name != "foo" {
		t.Errorf("Children(a) = %v, want [foo]", got)
	}
	if _, ok := g.Parent(f.modA.ID); ok {
		t.Error("module must not have a parent")
	}

	mod, ok := g.Module("b.py")
	if !ok || mod.ID != f.modB.ID {
		t.Errorf("Module(b.py) = %v, %v", mod, ok)
	}
	if _, ok := g.Module("missing.py"); ok {
		t.Error("Module(missing.py) should not be found")
	}

	if got := g.Files(); len(got) != 2 || got[0] != "a.py" || got[1] != "b.py" {
		t.Errorf("Files() = %v", got)
	}
	if got := g.FindByName("foo"); len(got) != 1 {
		t.Errorf("FindByName(foo) = %v", got)
	}
	if got := g.Outgoing(f.bar.ID, ""); len(got) != 1 {
		t.Errorf("Outgoing(bar, all) = %v, want 1 edge", got)
	}
	if got := g.Incoming(f.foo.ID, ""); len(got) != 2 {
		t.Errorf("Incoming(foo, all) = %v, want contains + calls", got)
	}
}

func TestGraph_DeclarationsInFileSourceOrder(t *testing.T) {
	mod := makeModule("m.py", 100)
	cls := makeDecl("m.py", ast.KindClass, "C", 10, 80, mod.ID)
	meth := makeDecl("m.py", ast.KindMethod, "run", 20, 40, cls.ID)
	fn := makeDecl("m.py", ast.KindFunction, "helper", 85, 99, mod.ID)

	g := newGraph("/proj", []Declaration{fn, meth, mod, cls}, nil, nil)
	got := g.DeclarationsInFile("m.py")
	want := []string{"m", "C", "run", "helper"}
	if len(got) != len(want) {
		t.Fatalf("got %d declarations, want %d", len(got), len(want))
	}
	for i, d := range got {
		if d.Name != want[i] {
			t.Errorf("position %d: got %s, want %s", i, d.Name, want[i])
		}
	}
}

func TestGraph_AccessorsReturnCopies(t *testing.T) {
	f := newFixture()
	g := f.assemble(t)

	decls := g.Declarations()
	decls[0].Name = "mutated"
	edges := g.Edges()
	edges[0].Kind = EdgeReferences

	if d := g.Declarations()[0]; d.Name == "mutated" {
		t.Error("Declarations() exposed internal state")
	}
	if e := g.Edges()[0]; e.Kind == EdgeReferences {
		t.Error("Edges() exposed internal state")
	}
}

func TestGraph_Stats(t *testing.T) {
	f := newFixture()
	weak := Edge{Kind: EdgeReferences, SourceID: f.bar.ID, TargetID: f.foo.ID, Confidence: ConfidenceBestEffort}
	s := f.assemble(t, weak).Stats()

	if s.Declarations != 4 || s.Files != 2 {
		t.Errorf("Stats = %+v", s)
	}
	if s.ByKind[ast.KindModule] != 2 || s.ByKind[ast.KindFunction] != 2 {
		t.Errorf("ByKind = %v", s.ByKind)
	}
	if s.ByEdgeKind[EdgeContains] != 2 || s.ByEdgeKind[EdgeCalls] != 1 || s.ByEdgeKind[EdgeImports] != 1 {
		t.Errorf("ByEdgeKind = %v", s.ByEdgeKind)
	}
	if s.BestEffort != 1 {
		t.Errorf("BestEffort = %d, want 1", s.BestEffort)
	}
}

func TestDeclarationID_Stable(t *testing.T) {
	span := ast.Span{Start: 4, End: 20}
	a := DeclarationID("pkg/a.py", span, ast.KindFunction)
	b := DeclarationID("pkg/a.py", span, ast.KindFunction)
	if a != b {
		t.Fatalf("ids differ: %s vs %s", a, b)
	}
	if len(a) != 32 {
		t.Errorf("id length = %d, want 32", len(a))
	}

	others := []string{
		DeclarationID("pkg/b.py", span, ast.KindFunction),
		DeclarationID("pkg/a.py", ast.Span{Start: 5, End: 20}, ast.KindFunction),
		DeclarationID("pkg/a.py", ast.Span{Start: 4, End: 21}, ast.KindFunction),
		DeclarationID("pkg/a.py", span, ast.KindMethod),
	}
	for i, o := range others {
		if o == a {
			t.Errorf("variant %d collides with base id", i)
		}
	}
}

func TestEdgeKind_Valid(t *testing.T) {
	for _, k := range AllEdgeKinds() {
		if !k.Valid() {
			t.Errorf("%s should be valid", k)
		}
	}
	if EdgeKind("extends").Valid() {
		t.Error("extends should not be valid")
	}
}
