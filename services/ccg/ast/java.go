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
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
)

// JavaAdapter maps Java onto the normalized model.
//
// Classes, interfaces, enums and records are classes; methods and
// constructors are methods; fields are variables. extends/implements
// clauses are inherit references.
type JavaAdapter struct {
	opts adapterOptions
}

// NewJavaAdapter creates a Java adapter.
func NewJavaAdapter(opts ...AdapterOption) *JavaAdapter {
	return &JavaAdapter{opts: buildAdapterOptions(opts)}
}

func (a *JavaAdapter) Language() Language { return LanguageJava }

func (a *JavaAdapter) Extensions() []string { return []string{".java"} }

// Parse builds a tree-sitter tree for Java source.
func (a *JavaAdapter) Parse(ctx context.Context, content []byte, filePath string) (Tree, error) {
	return parseWithGrammar(ctx, LanguageJava, java.GetLanguage(), a.opts.maxFileSize, content, filePath)
}

// Extract walks a Java tree.
func (a *JavaAdapter) Extract(ctx context.Context, tree Tree) (*Extraction, error) {
	st, err := asSitterTree(tree, LanguageJava)
	if err != nil {
		return nil, err
	}
	ctx, span := startExtractSpan(ctx, LanguageJava, st.filePath)
	defer span.End()

	w := &javaWalker{collector: newCollector(LanguageJava, st.content)}
	if err := w.walk(ctx, st.filePath, st.root(), w.visit); err != nil {
		return nil, err
	}

	setExtractSpanResult(span, len(w.out.Declarations), len(w.out.References))
	return w.finish(ctx), nil
}

type javaWalker struct {
	*collector
}

func (w *javaWalker) visit(n *sitter.Node, scope int) bool {
	switch n.Type() {
	case "package_declaration":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == "scoped_identifier" || child.Type() == "identifier" {
				w.out.Package = w.text(child)
			}
		}
		return false
	case "import_declaration":
		w.importDecl(n, scope)
		return false
	case "class_declaration", "interface_declaration", "enum_declaration", "record_declaration", "annotation_type_declaration":
		w.typeDecl(n, scope)
		return false
	case "method_declaration", "constructor_declaration", "compact_constructor_declaration":
		w.method(n, scope)
		return false
	case "field_declaration", "constant_declaration":
		w.field(n, scope)
		return false
	case "method_invocation":
		w.reference(RefCall, w.fieldText(n, "name"), w.fieldText(n, "object"), n, scope)
		return true
	case "object_creation_expression":
		if t := n.ChildByFieldName("type"); t != nil {
			w.reference(RefCall, baseTypeName(w.text(t)), qualifierOf(w.text(t), "."), n, scope)
		}
		return true
	}
	return true
}

func (w *javaWalker) importDecl(n *sitter.Node, scope int) {
	var path string
	wildcard := false
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "scoped_identifier", "identifier":
			path = w.text(child)
		case "asterisk":
			wildcard = true
		}
	}
	if path == "" {
		return
	}
	if wildcard || strings.HasSuffix(strings.TrimSpace(w.text(n)), "*;") {
		w.importRef(path, "", []string{"*"}, n, scope)
		return
	}
	w.importRef(path, "", []string{lastSegment(path, ".")}, n, scope)
}

func (w *javaWalker) typeDecl(n *sitter.Node, scope int) {
	name := w.fieldText(n, "name")
	if name == "" {
		return
	}
	idx := w.declare(KindClass, name, n, scope)
	w.decl(idx).DocComment = w.leadingComment(n)

	if sc := n.ChildByFieldName("superclass"); sc != nil {
		w.inheritTypes(sc, idx)
	}
	if ifaces := n.ChildByFieldName("interfaces"); ifaces != nil {
		w.inheritTypes(ifaces, idx)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if child := n.NamedChild(i); child.Type() == "extends_interfaces" {
			w.inheritTypes(child, idx)
		}
	}
	w.schedule(idx, n.ChildByFieldName("body"))
}

// inheritTypes emits an inherit reference for every type named under n.
func (w *javaWalker) inheritTypes(n *sitter.Node, idx int) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "type_identifier":
			w.reference(RefInherit, w.text(child), "", child, idx)
		case "scoped_type_identifier", "generic_type":
			text := w.text(child)
			if i := strings.Index(text, "<"); i > 0 {
				text = text[:i]
			}
			w.reference(RefInherit, baseTypeName(text), qualifierOf(text, "."), child, idx)
		case "type_list", "interface_type_list":
			w.inheritTypes(child, idx)
		}
	}
}

func (w *javaWalker) method(n *sitter.Node, scope int) {
	name := w.fieldText(n, "name")
	if name == "" {
		return
	}
	idx := w.declare(w.callableKind(scope), name, n, scope)
	d := w.decl(idx)
	d.DocComment = w.leadingComment(n)

	if params := n.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			p := params.NamedChild(i)
			if p.Type() == "formal_parameter" || p.Type() == "spread_parameter" {
				if pn := p.ChildByFieldName("name"); pn != nil {
					d.Parameters = append(d.Parameters, w.text(pn))
				} else if last := p.NamedChild(int(p.NamedChildCount()) - 1); last != nil {
					d.Parameters = append(d.Parameters, w.text(last))
				}
			}
		}
	}

	if name == "main" && n.Type() == "method_declaration" && w.hasModifier(n, "static") {
		w.out.EntryPoint = true
	}
	w.schedule(idx, n.ChildByFieldName("body"))
}

func (w *javaWalker) hasModifier(n *sitter.Node, modifier string) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "modifiers" {
			for _, f := range strings.Fields(w.text(child)) {
				if f == modifier {
					return true
				}
			}
		}
	}
	return false
}

func (w *javaWalker) field(n *sitter.Node, scope int) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() != "variable_declarator" {
			continue
		}
		if nameNode := child.ChildByFieldName("name"); nameNode != nil {
			w.declareSpan(KindVariable, w.text(nameNode), spanOf(nameNode), scope, w.signature(n))
		}
		w.schedule(scope, child.ChildByFieldName("value"))
	}
}
