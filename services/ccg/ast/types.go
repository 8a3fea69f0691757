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

import "sort"

// Language identifies a supported source language.
type Language string

const (
	LanguagePython     Language = "python"
	LanguageJac        Language = "jac"
	LanguageJavaScript Language = "javascript"
	LanguageJava       Language = "java"
	LanguageCpp        Language = "cpp"
	LanguageRust       Language = "rust"
	LanguageGo         Language = "go"
)

// String returns the language name.
func (l Language) String() string {
	return string(l)
}

// AllLanguages returns every language with a grammar adapter, sorted by name.
func AllLanguages() []Language {
	langs := []Language{
		LanguagePython,
		LanguageJac,
		LanguageJavaScript,
		LanguageJava,
		LanguageCpp,
		LanguageRust,
		LanguageGo,
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })
	return langs
}

// Kind is the normalized declaration kind shared by every language.
type Kind string

const (
	// KindModule is one source file. Every file yields exactly one.
	KindModule Kind = "module"

	// KindClass is any named type with members: classes, structs, traits,
	// interfaces, enums and Jac archetypes.
	KindClass Kind = "class"

	// KindFunction is a free function, including nested functions.
	KindFunction Kind = "function"

	// KindMethod is a function whose enclosing declaration is a class.
	KindMethod Kind = "method"

	// KindVariable is a module- or class-level binding (fields, constants, globals).
	KindVariable Kind = "variable"
)

// IsCallable reports whether declarations of this kind can be the target of a call.
func (k Kind) IsCallable() bool {
	return k == KindFunction || k == KindMethod || k == KindClass
}

// RefKind is the kind hint attached to an unresolved reference.
type RefKind string

const (
	RefCall      RefKind = "call"
	RefImport    RefKind = "import"
	RefInherit   RefKind = "inherit"
	RefReference RefKind = "reference"
)

// Span locates a syntax node in the source.
//
// Start and End are byte offsets (End exclusive). Lines and columns are
// 1-indexed.
type Span struct {
	Start     int `json:"start_byte"`
	End       int `json:"end_byte"`
	StartLine int `json:"start_line"`
	StartCol  int `json:"start_col"`
	EndLine   int `json:"end_line"`
	EndCol    int `json:"end_col"`
}

// RawDeclaration is one declaration as produced by an adapter, before ids
// are assigned.
type RawDeclaration struct {
	// Name is the declared identifier.
	Name string

	// Kind is the normalized kind.
	Kind Kind

	// Span covers the whole declaration. For variables it covers the
	// identifier so that several names bound by one statement stay distinct.
	Span Span

	// Parent is the index of the enclosing declaration in
	// Extraction.Declarations, or -1 for top-level declarations.
	Parent int

	// DocComment is the docstring or leading comment, trimmed.
	DocComment string

	// Parameters lists parameter names in declaration order.
	Parameters []string

	// Signature is the declaration header as written (first line, trimmed).
	Signature string
}

// RawReference is an unresolved use of a name.
type RawReference struct {
	// Kind is the reference kind hint.
	Kind RefKind

	// Name is the referenced identifier. For imports it is the module path
	// as written ("a.b", "./util", "github.com/x/y", "crate::a").
	Name string

	// Qualifier is the receiver or module prefix of a qualified use
	// ("self" in self.save(), "os" in os.path). For imports it is the local
	// alias, if any.
	Qualifier string

	// Names lists the imported names of a from-style import, each either
	// "name" or "name as alias". A single "*" marks a wildcard import.
	Names []string

	// Span locates the use.
	Span Span

	// Scope is the index of the innermost enclosing declaration in
	// Extraction.Declarations, or -1 for module-level code.
	Scope int
}

// Extraction is the raw output of an adapter for one file.
type Extraction struct {
	// Language of the file.
	Language Language

	// Declarations in source order. Parent indices always point backwards.
	Declarations []RawDeclaration

	// References in source order.
	References []RawReference

	// ModuleDoc is the module docstring or leading file comment.
	ModuleDoc string

	// Package is the declared package (Go package clause, Java package
	// declaration). Empty when the language has none.
	Package string

	// EntryPoint is true when the file declares a program entry point.
	EntryPoint bool
}

// Counts returns the number of declarations and references.
func (e *Extraction) Counts() (declarations, references int) {
	if e == nil {
		return 0, 0
	}
	return len(e.Declarations), len(e.References)
}
