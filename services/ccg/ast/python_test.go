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
	"reflect"
	"testing"
)

const pythonSource = `"""Inventory helpers."""

import os
import json as j
from ..utils import helper, fmt as f
from . import sibling

LIMIT = 10
a, b = 1, 2

@dataclass
class Item(Base, mixins.Audit):
    """A stocked item."""
    count = 0

    def total(self, price, *args, **kwargs):
        """Compute the total."""
        return self.scale(price) * helper(price)

    def scale(self, value=1):
        return value

def outer(x: int):
    def inner():
        return os.getcwd()
    return inner()

if __name__ == "__main__":
    outer(1)
`

func TestPythonAdapter_Declarations(t *testing.T) {
	ex := extractSource(t, NewPythonAdapter(), "inv.py", pythonSource)

	if ex.ModuleDoc != "Inventory helpers." {
		t.Errorf("ModuleDoc = %q", ex.ModuleDoc)
	}
	if !ex.EntryPoint {
		t.Error("expected entry point from __main__ guard")
	}

	item := findDecl(t, ex, "Item", KindClass)
	assertParent(t, ex, item, -1)
	if doc := ex.Declarations[item].DocComment; doc != "A stocked item." {
		t.Errorf("Item doc = %q", doc)
	}

	total := findDecl(t, ex, "total", KindMethod)
	assertParent(t, ex, total, item)
	if got := ex.Declarations[total].Parameters; !reflect.DeepEqual(got, []string{"price", "*args", "**kwargs"}) {
		t.Errorf("total params = %v", got)
	}
	if doc := ex.Declarations[total].DocComment; doc != "Compute the total." {
		t.Errorf("total doc = %q", doc)
	}

	scale := findDecl(t, ex, "scale", KindMethod)
	assertParent(t, ex, scale, item)
	if got := ex.Declarations[scale].Parameters; !reflect.DeepEqual(got, []string{"value"}) {
		t.Errorf("scale params = %v", got)
	}

	count := findDecl(t, ex, "count", KindVariable)
	assertParent(t, ex, count, item)

	outer := findDecl(t, ex, "outer", KindFunction)
	inner := findDecl(t, ex, "inner", KindFunction)
	assertParent(t, ex, inner, outer)

	findDecl(t, ex, "LIMIT", KindVariable)
	va := findDecl(t, ex, "a", KindVariable)
	vb := findDecl(t, ex, "b", KindVariable)
	if ex.Declarations[va].Span == ex.Declarations[vb].Span {
		t.Error("tuple-bound variables share a span")
	}
}

func TestPythonAdapter_SourceOrder(t *testing.T) {
	ex := extractSource(t, NewPythonAdapter(), "inv.py", pythonSource)
	for i := 1; i < len(ex.Declarations); i++ {
		if ex.Declarations[i].Span.Start < ex.Declarations[i-1].Span.Start {
			t.Fatalf("declaration %d (%s) starts before %d (%s)",
				i, ex.Declarations[i].Name, i-1, ex.Declarations[i-1].Name)
		}
		if p := ex.Declarations[i].Parent; p >= i {
			t.Fatalf("declaration %d has forward parent %d", i, p)
		}
	}
}

func TestPythonAdapter_References(t *testing.T) {
	ex := extractSource(t, NewPythonAdapter(), "inv.py", pythonSource)
	item := findDecl(t, ex, "Item", KindClass)
	total := findDecl(t, ex, "total", KindMethod)
	inner := findDecl(t, ex, "inner", KindFunction)

	osImport := findRef(t, ex, RefImport, "os")
	if osImport.Scope != -1 {
		t.Errorf("import scope = %d", osImport.Scope)
	}
	if r := findRef(t, ex, RefImport, "json"); r.Qualifier != "j" {
		t.Errorf("json alias = %q", r.Qualifier)
	}
	if r := findRef(t, ex, RefImport, "..utils"); !reflect.DeepEqual(r.Names, []string{"helper", "fmt as f"}) {
		t.Errorf("from-import names = %v", r.Names)
	}
	if r := findRef(t, ex, RefImport, "."); !reflect.DeepEqual(r.Names, []string{"sibling"}) {
		t.Errorf("relative import names = %v", r.Names)
	}

	base := findRef(t, ex, RefInherit, "Base")
	if base.Scope != item {
		t.Errorf("Base inherit scope = %d, want %d", base.Scope, item)
	}
	if audit := findRef(t, ex, RefInherit, "Audit"); audit.Qualifier != "mixins" {
		t.Errorf("Audit qualifier = %q", audit.Qualifier)
	}

	if dec := findRef(t, ex, RefReference, "dataclass"); dec.Scope != item {
		t.Errorf("decorator scope = %d, want %d", dec.Scope, item)
	}

	scaleCall := findRef(t, ex, RefCall, "scale")
	if scaleCall.Qualifier != "self" || scaleCall.Scope != total {
		t.Errorf("self.scale call = %+v", scaleCall)
	}
	if helperCall := findRef(t, ex, RefCall, "helper"); helperCall.Scope != total {
		t.Errorf("helper call scope = %d", helperCall.Scope)
	}
	if getcwd := findRef(t, ex, RefCall, "getcwd"); getcwd.Scope != inner || getcwd.Qualifier != "os" {
		t.Errorf("os.getcwd call = %+v", getcwd)
	}
	if outerCall := findRef(t, ex, RefCall, "outer"); outerCall.Scope != -1 {
		t.Errorf("top-level outer() scope = %d", outerCall.Scope)
	}
}

func TestPythonAdapter_EmptyFile(t *testing.T) {
	ex := extractSource(t, NewPythonAdapter(), "empty.py", "")
	if len(ex.Declarations) != 0 || len(ex.References) != 0 {
		t.Errorf("expected empty extraction, got %d declarations, %d references",
			len(ex.Declarations), len(ex.References))
	}
	if ex.Language != LanguagePython {
		t.Errorf("Language = %s", ex.Language)
	}
}
