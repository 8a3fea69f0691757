// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

const jacSource = `"""Room graph."""

import from utils { helper, fmt as f }
import math;
include shared;

glob counter = 0, label: str = "x";

"""A room in the house."""
node Room(Place) {
    has name: str, size: int = 1;

    def describe(self) -> str {
        return helper(self.name);
    }
}

walker Visitor {
    can start with ` + "`" + `root entry {
        visit [-->];
    }
}

# adds two numbers
def add(a: int, b: int) -> int {
    return a + b;
}

with entry {
    r = Room(name="hall");
    print(add(1, 2));
}
`

func TestJacAdapter_Declarations(t *testing.T) {
	ex := extractSource(t, NewJacAdapter(), "house.jac", jacSource)

	if ex.ModuleDoc != "Room graph." {
		t.Errorf("ModuleDoc = %q", ex.ModuleDoc)
	}
	if !ex.EntryPoint {
		t.Error("expected with entry to mark an entry point")
	}

	assertParent(t, ex, findDecl(t, ex, "counter", KindVariable), -1)
	assertParent(t, ex, findDecl(t, ex, "label", KindVariable), -1)

	room := findDecl(t, ex, "Room", KindClass)
	if doc := ex.Declarations[room].DocComment; doc != "A room in the house." {
		t.Errorf("Room doc = %q", doc)
	}
	assertParent(t, ex, findDecl(t, ex, "name", KindVariable), room)
	assertParent(t, ex, findDecl(t, ex, "size", KindVariable), room)

	describe := findDecl(t, ex, "describe", KindMethod)
	assertParent(t, ex, describe, room)
	if ex.Declarations[describe].Parameters != nil {
		t.Errorf("describe params = %v, want self skipped", ex.Declarations[describe].Parameters)
	}
	rs, ds := ex.Declarations[room].Span, ex.Declarations[describe].Span
	if ds.Start < rs.Start || ds.End > rs.End {
		t.Errorf("describe span %+v not inside Room span %+v", ds, rs)
	}

	visitor := findDecl(t, ex, "Visitor", KindClass)
	assertParent(t, ex, findDecl(t, ex, "start", KindMethod), visitor)

	add := findDecl(t, ex, "add", KindFunction)
	assertParent(t, ex, add, -1)
	if got := ex.Declarations[add].Parameters; !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("add params = %v", got)
	}
}

func TestJacAdapter_References(t *testing.T) {
	ex := extractSource(t, NewJacAdapter(), "house.jac", jacSource)
	room := findDecl(t, ex, "Room", KindClass)
	describe := findDecl(t, ex, "describe", KindMethod)

	if r := findRef(t, ex, RefImport, "utils"); !reflect.DeepEqual(r.Names, []string{"helper", "fmt as f"}) {
		t.Errorf("utils names = %v", r.Names)
	}
	findRef(t, ex, RefImport, "math")
	findRef(t, ex, RefImport, "shared")

	if r := findRef(t, ex, RefInherit, "Place"); r.Scope != room {
		t.Errorf("Place inherit scope = %d, want %d", r.Scope, room)
	}

	if r := findRef(t, ex, RefCall, "helper"); r.Scope != describe {
		t.Errorf("helper call scope = %d, want %d", r.Scope, describe)
	}
	if r := findRef(t, ex, RefCall, "Room"); r.Scope != -1 {
		t.Errorf("Room() call scope = %d", r.Scope)
	}
	if r := findRef(t, ex, RefCall, "add"); r.Scope != -1 {
		t.Errorf("add call scope = %d", r.Scope)
	}
	for _, name := range []string{"describe", "print", "name"} {
		if hasRef(ex, RefCall, name) {
			t.Errorf("unexpected call reference %q", name)
		}
	}
}

func TestJacAdapter_MaskedText(t *testing.T) {
	src := "# helper(1) in a comment\nglob s = \"call(2)\";\n#* block\nother(3) *#\n"
	ex := extractSource(t, NewJacAdapter(), "m.jac", src)
	if len(ex.References) != 0 {
		t.Errorf("expected no references from comments or strings, got %+v", ex.References)
	}
	findDecl(t, ex, "s", KindVariable)
}

func TestJacAdapter_Unterminated(t *testing.T) {
	for _, src := range []string{"glob s = \"open;\n", "#* never closed\n", "glob t = \"\"\"doc\n"} {
		_, err := NewJacAdapter().Parse(context.Background(), []byte(src), "bad.jac")
		if !errors.Is(err, ErrSyntax) {
			t.Errorf("Parse(%q) error = %v, want ErrSyntax", src, err)
		}
	}
}
