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

const javaSource = `package com.example.app;

import com.example.util.Helper;
import java.util.*;

/** Main application. */
public class App extends BaseApp implements Runnable, Closeable {
    private int count = 0;

    public App(int start) {
        this.count = start;
    }

    public static void main(String[] args) {
        new App(1).run();
    }

    @Override
    public void run() {
        helper(Helper.scale(count));
    }

    private void helper(int value) {
    }
}

interface Shape extends Drawable {
    double area();
}
`

func TestJavaAdapter_Declarations(t *testing.T) {
	ex := extractSource(t, NewJavaAdapter(), "com/example/app/App.java", javaSource)

	if ex.Package != "com.example.app" {
		t.Errorf("Package = %q", ex.Package)
	}
	if !ex.EntryPoint {
		t.Error("expected static main to mark an entry point")
	}

	app := findDecl(t, ex, "App", KindClass)
	assertParent(t, ex, app, -1)
	if doc := ex.Declarations[app].DocComment; doc != "Main application." {
		t.Errorf("App doc = %q", doc)
	}

	ctor := findDeclAfter(t, ex, app, "App", KindMethod)
	assertParent(t, ex, ctor, app)
	if got := ex.Declarations[ctor].Parameters; !reflect.DeepEqual(got, []string{"start"}) {
		t.Errorf("constructor params = %v", got)
	}

	for _, name := range []string{"main", "run", "helper"} {
		assertParent(t, ex, findDecl(t, ex, name, KindMethod), app)
	}
	assertParent(t, ex, findDecl(t, ex, "count", KindVariable), app)

	shape := findDecl(t, ex, "Shape", KindClass)
	assertParent(t, ex, findDecl(t, ex, "area", KindMethod), shape)
}

func TestJavaAdapter_References(t *testing.T) {
	ex := extractSource(t, NewJavaAdapter(), "com/example/app/App.java", javaSource)
	app := findDecl(t, ex, "App", KindClass)
	run := findDecl(t, ex, "run", KindMethod)

	if r := findRef(t, ex, RefImport, "com.example.util.Helper"); !reflect.DeepEqual(r.Names, []string{"Helper"}) {
		t.Errorf("Helper import names = %v", r.Names)
	}
	if r := findRef(t, ex, RefImport, "java.util"); !reflect.DeepEqual(r.Names, []string{"*"}) {
		t.Errorf("wildcard import names = %v", r.Names)
	}

	for _, base := range []string{"BaseApp", "Runnable", "Closeable"} {
		if r := findRef(t, ex, RefInherit, base); r.Scope != app {
			t.Errorf("%s inherit scope = %d, want %d", base, r.Scope, app)
		}
	}
	if !hasRef(ex, RefInherit, "Drawable") {
		t.Error("missing inherit for extended interface")
	}

	if r := findRef(t, ex, RefCall, "scale"); r.Qualifier != "Helper" || r.Scope != run {
		t.Errorf("Helper.scale call = %+v", r)
	}
	if r := findRef(t, ex, RefCall, "helper"); r.Qualifier != "" || r.Scope != run {
		t.Errorf("helper call = %+v", r)
	}
	if !hasRef(ex, RefCall, "App") {
		t.Error("missing constructor call for new App(1)")
	}
}
