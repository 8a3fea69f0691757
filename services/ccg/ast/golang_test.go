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

const goSource = `// Package shapes provides geometry.
package shapes

import (
	"fmt"
	u "example.com/proj/util"
)

// Shape is anything with an area.
type Shape interface {
	Drawer
	Area() float64
}

type Base struct{ ID int }

// Circle is round.
type Circle struct {
	Base
	*u.Helper
	Radius, Scale float64
}

var Default, Other = NewCircle(1), 2

const Limit = 10

func NewCircle(r float64) *Circle {
	return &Circle{Radius: r}
}

// Area computes the area.
func (c *Circle) Area() float64 {
	fmt.Println("area")
	return u.Square(c.Radius)
}
`

func TestGoAdapter_Declarations(t *testing.T) {
	ex := extractSource(t, NewGoAdapter(), "shapes/circle.go", goSource)

	if ex.Package != "shapes" {
		t.Errorf("Package = %q", ex.Package)
	}
	if ex.ModuleDoc != "Package shapes provides geometry." {
		t.Errorf("ModuleDoc = %q", ex.ModuleDoc)
	}
	if ex.EntryPoint {
		t.Error("non-main package should not be an entry point")
	}

	shape := findDecl(t, ex, "Shape", KindClass)
	if doc := ex.Declarations[shape].DocComment; doc != "Shape is anything with an area." {
		t.Errorf("Shape doc = %q", doc)
	}
	ifaceArea := findDecl(t, ex, "Area", KindMethod)
	assertParent(t, ex, ifaceArea, shape)

	base := findDecl(t, ex, "Base", KindClass)
	assertParent(t, ex, findDecl(t, ex, "ID", KindVariable), base)

	circle := findDecl(t, ex, "Circle", KindClass)
	assertParent(t, ex, findDecl(t, ex, "Radius", KindVariable), circle)
	assertParent(t, ex, findDecl(t, ex, "Scale", KindVariable), circle)

	area := findDeclAfter(t, ex, ifaceArea, "Area", KindMethod)
	assertParent(t, ex, area, circle)
	if doc := ex.Declarations[area].DocComment; doc != "Area computes the area." {
		t.Errorf("Area doc = %q", doc)
	}

	newCircle := findDecl(t, ex, "NewCircle", KindFunction)
	if got := ex.Declarations[newCircle].Parameters; !reflect.DeepEqual(got, []string{"r"}) {
		t.Errorf("NewCircle params = %v", got)
	}

	for _, name := range []string{"Default", "Other", "Limit"} {
		assertParent(t, ex, findDecl(t, ex, name, KindVariable), -1)
	}
}

func TestGoAdapter_References(t *testing.T) {
	ex := extractSource(t, NewGoAdapter(), "shapes/circle.go", goSource)
	shape := findDecl(t, ex, "Shape", KindClass)
	circle := findDecl(t, ex, "Circle", KindClass)

	if r := findRef(t, ex, RefImport, "fmt"); r.Qualifier != "" {
		t.Errorf("fmt alias = %q", r.Qualifier)
	}
	if r := findRef(t, ex, RefImport, "example.com/proj/util"); r.Qualifier != "u" {
		t.Errorf("util alias = %q", r.Qualifier)
	}

	if r := findRef(t, ex, RefInherit, "Drawer"); r.Scope != shape {
		t.Errorf("embedded interface scope = %d, want %d", r.Scope, shape)
	}
	if r := findRef(t, ex, RefInherit, "Base"); r.Scope != circle {
		t.Errorf("embedded Base scope = %d, want %d", r.Scope, circle)
	}
	if r := findRef(t, ex, RefInherit, "Helper"); r.Qualifier != "u" || r.Scope != circle {
		t.Errorf("embedded *u.Helper = %+v", r)
	}

	if r := findRef(t, ex, RefCall, "NewCircle"); r.Scope != -1 {
		t.Errorf("package-level NewCircle call scope = %d", r.Scope)
	}
	if r := findRef(t, ex, RefCall, "Println"); r.Qualifier != "fmt" {
		t.Errorf("fmt.Println qualifier = %q", r.Qualifier)
	}
	if r := findRef(t, ex, RefCall, "Square"); r.Qualifier != "u" {
		t.Errorf("u.Square qualifier = %q", r.Qualifier)
	}
}

func TestGoAdapter_MainPackage(t *testing.T) {
	ex := extractSource(t, NewGoAdapter(), "cmd/app/main.go", "package main\n\nfunc main() {\n\trun()\n}\n\nfunc run() {}\n")
	if !ex.EntryPoint {
		t.Error("expected func main in package main to be an entry point")
	}
	main := findDecl(t, ex, "main", KindFunction)
	if r := findRef(t, ex, RefCall, "run"); r.Scope != main {
		t.Errorf("run call scope = %d, want %d", r.Scope, main)
	}
}
