// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast provides the grammar adapters that turn source files into
// normalized declarations and unresolved references.
//
// Each supported language has one Adapter with two capabilities, Parse and
// Extract. Adapters are registered in a static table (DefaultRegistry) keyed
// by language and file extension. A file that does not parse cleanly is
// rejected as a whole with a *ParseFailure; no partial declarations are
// produced for it.
//
// # Normalized kinds
//
// Every language is flattened onto five kinds: module, class, function,
// method and variable. The module declaration for a file is created by the
// extractor, not by the adapters. Adapters report parent indices, from which
// contains edges are derived.
//
// # Mapping rules
//
//	Python      class -> class; def -> function, or method inside a class;
//	            module/class assignment targets -> variable; decorators ->
//	            reference; base classes -> inherit; import / from-import -> import;
//	            if __name__ == "__main__" -> entry point
//	Jac         obj/node/edge/walker/class/enum -> class; def/can -> function
//	            or method; has/glob -> variable; parent list -> inherit;
//	            import/include -> import; with entry -> entry point
//	JavaScript  function declarations and functions bound to const/let/var ->
//	            function; class -> class; method_definition -> method; class
//	            fields -> variable; extends -> inherit; import and require("x")
//	            -> import; new X() -> call
//	Java        class/interface/enum/record -> class; method/constructor ->
//	            method; field -> variable; extends/implements -> inherit;
//	            import -> import (wildcards keep "*"); static main -> entry point
//	C++         class/struct/union with body -> class; function definition ->
//	            function, or method in a class body or as Class::name;
//	            data members and globals -> variable; base classes -> inherit;
//	            #include "x" -> import; namespaces are transparent
//	Rust        struct/enum/union/trait -> class; fn -> function; fn in impl or
//	            trait -> method contained by the type; impl Trait for T ->
//	            inherit from T to Trait; const/static -> variable; use -> import
//	            per module path; mod x; -> import of self::x; inline mod is
//	            transparent; macros are not expanded
//	Go          type specs -> class; func -> function; methods -> method
//	            contained by the receiver type when declared earlier in the
//	            file; struct fields and package-level var/const -> variable;
//	            embedded fields and embedded interfaces -> inherit; interface
//	            method elements -> method; import spec -> import
//
// Variables are spanned by their identifier so several names bound in one
// statement get distinct ids. Calls are attributed to the innermost
// enclosing declaration; calls in top-level code belong to the module.
package ast
