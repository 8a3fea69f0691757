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

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"
)

// CppAdapter maps C++ onto the normalized model.
//
// Namespaces are transparent: their members belong to the enclosing scope.
// Classes and structs with a body are classes. Function definitions are
// functions, or methods when defined inside a class body or out of line as
// Class::name for a class declared in the same file. Prototypes without a
// body are not declarations. Quoted #include directives are imports;
// system includes are not recorded.
type CppAdapter struct {
	opts adapterOptions
}

// NewCppAdapter creates a C++ adapter.
func NewCppAdapter(opts ...AdapterOption) *CppAdapter {
	return &CppAdapter{opts: buildAdapterOptions(opts)}
}

func (a *CppAdapter) Language() Language { return LanguageCpp }

func (a *CppAdapter) Extensions() []string {
	return []string{".cpp", ".cc", ".cxx", ".c++", ".hpp", ".hh", ".hxx", ".h"}
}

// Parse builds a tree-sitter tree for C++ source.
func (a *CppAdapter) Parse(ctx context.Context, content []byte, filePath string) (Tree, error) {
	return parseWithGrammar(ctx, LanguageCpp, cpp.GetLanguage(), a.opts.maxFileSize, content, filePath)
}

// Extract walks a C++ tree.
func (a *CppAdapter) Extract(ctx context.Context, tree Tree) (*Extraction, error) {
	st, err := asSitterTree(tree, LanguageCpp)
	if err != nil {
		return nil, err
	}
	ctx, span := startExtractSpan(ctx, LanguageCpp, st.filePath)
	defer span.End()

	w := &cppWalker{collector: newCollector(LanguageCpp, st.content)}
	if err := w.walk(ctx, st.filePath, st.root(), w.visit); err != nil {
		return nil, err
	}

	setExtractSpanResult(span, len(w.out.Declarations), len(w.out.References))
	return w.finish(ctx), nil
}

type cppWalker struct {
	*collector
}

func (w *cppWalker) visit(n *sitter.Node, scope int) bool {
	switch n.Type() {
	case "preproc_include":
		path := n.ChildByFieldName("path")
		if path != nil && path.Type() == "string_literal" {
			w.importRef(unquote(w.text(path)), "", nil, n, scope)
		}
		return false
	case "class_specifier", "struct_specifier", "union_specifier":
		w.class(n, scope)
		return false
	case "function_definition":
		w.function(n, scope)
		return false
	case "field_declaration":
		w.field(n, scope)
		return false
	case "declaration":
		if w.kindOf(scope) == KindModule {
			w.globals(n, scope)
		}
		return true
	case "call_expression":
		w.call(n, scope)
		return true
	}
	return true
}

func (w *cppWalker) class(n *sitter.Node, scope int) {
	body := n.ChildByFieldName("body")
	name := w.fieldText(n, "name")
	if body == nil || name == "" {
		return
	}
	idx := w.declare(KindClass, baseTypeName(name), n, scope)
	w.decl(idx).DocComment = w.leadingComment(n)

	for i := 0; i < int(n.NamedChildCount()); i++ {
		clause := n.NamedChild(i)
		if clause.Type() != "base_class_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			base := clause.NamedChild(j)
			switch base.Type() {
			case "type_identifier":
				w.reference(RefInherit, w.text(base), "", base, idx)
			case "qualified_identifier", "template_type":
				text := w.text(base)
				w.reference(RefInherit, baseTypeName(text), qualifierOf(baseTypeNameStrip(text), "::"), base, idx)
			}
		}
	}
	w.schedule(idx, body)
}

// baseTypeNameStrip removes template arguments from a qualified type.
func baseTypeNameStrip(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '<' {
			return s[:i]
		}
	}
	return s
}

// functionDeclarator unwraps pointer and reference declarators down to the
// function_declarator.
func functionDeclarator(n *sitter.Node) *sitter.Node {
	for n != nil {
		switch n.Type() {
		case "function_declarator":
			return n
		case "pointer_declarator", "reference_declarator", "init_declarator", "parenthesized_declarator":
			n = n.ChildByFieldName("declarator")
			if n == nil {
				return nil
			}
		default:
			return nil
		}
	}
	return nil
}

func (w *cppWalker) function(n *sitter.Node, scope int) {
	fd := functionDeclarator(n.ChildByFieldName("declarator"))
	if fd == nil {
		w.schedule(scope, n.ChildByFieldName("body"))
		return
	}
	nameNode := fd.ChildByFieldName("declarator")
	if nameNode == nil {
		return
	}

	kind := w.callableKind(scope)
	parent := scope
	var name string
	switch nameNode.Type() {
	case "qualified_identifier":
		full := w.text(nameNode)
		name = lastSegment(full, "::")
		owner := baseTypeName(qualifierOf(full, "::"))
		if cls := w.findClass(owner); cls >= 0 {
			parent = cls
			kind = KindMethod
		} else if owner != "" {
			kind = KindMethod
		}
	default:
		name = w.text(nameNode)
	}
	if name == "" {
		return
	}

	idx := w.declare(kind, name, n, parent)
	d := w.decl(idx)
	d.DocComment = w.leadingComment(n)
	d.Parameters = w.parameters(fd.ChildByFieldName("parameters"))

	if name == "main" && parent < 0 {
		w.out.EntryPoint = true
	}
	w.schedule(idx, n.ChildByFieldName("body"))
}

func (w *cppWalker) parameters(params *sitter.Node) []string {
	if params == nil {
		return nil
	}
	var out []string
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		if p.Type() != "parameter_declaration" && p.Type() != "optional_parameter_declaration" {
			continue
		}
		if id := innermostIdentifier(p.ChildByFieldName("declarator")); id != nil {
			out = append(out, w.text(id))
		}
	}
	return out
}

// field declares data members. Member function prototypes are skipped;
// their definitions are declared where the body appears.
func (w *cppWalker) field(n *sitter.Node, scope int) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "field_identifier":
			w.declareSpan(KindVariable, w.text(child), spanOf(child), scope, w.signature(n))
		case "pointer_declarator", "reference_declarator", "array_declarator":
			if functionDeclarator(child) != nil {
				continue
			}
			if id := innermostIdentifier(child); id != nil {
				w.declareSpan(KindVariable, w.text(id), spanOf(id), scope, w.signature(n))
			}
		case "class_specifier", "struct_specifier", "union_specifier":
			w.schedule(scope, child)
		}
	}
	w.schedule(scope, n.ChildByFieldName("default_value"))
}

// globals declares namespace-scope variables.
func (w *cppWalker) globals(n *sitter.Node, scope int) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "init_declarator", "identifier", "pointer_declarator", "reference_declarator", "array_declarator":
		default:
			continue
		}
		if functionDeclarator(child) != nil {
			continue
		}
		if id := innermostIdentifier(child); id != nil {
			w.declareSpan(KindVariable, w.text(id), spanOf(id), scope, w.signature(n))
		}
	}
}

func innermostIdentifier(n *sitter.Node) *sitter.Node {
	for n != nil {
		switch n.Type() {
		case "identifier", "field_identifier":
			return n
		}
		next := n.ChildByFieldName("declarator")
		if next == nil {
			return nil
		}
		n = next
	}
	return nil
}

func (w *cppWalker) call(n *sitter.Node, scope int) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}
	switch fn.Type() {
	case "identifier":
		w.reference(RefCall, w.text(fn), "", n, scope)
	case "field_expression":
		w.reference(RefCall, w.fieldText(fn, "field"), w.fieldText(fn, "argument"), n, scope)
	case "qualified_identifier":
		full := w.text(fn)
		w.reference(RefCall, baseTypeName(lastSegment(full, "::")), qualifierOf(full, "::"), n, scope)
	case "template_function":
		w.reference(RefCall, baseTypeName(w.fieldText(fn, "name")), "", n, scope)
	}
}
