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
	"github.com/smacker/go-tree-sitter/golang"
)

// GoAdapter maps Go onto the normalized model.
//
// Description:
//
//	Every named type is a class. Struct fields are variables; embedded
//	struct fields and embedded interfaces are inherit references. Interface
//	method elements are methods of the interface. Methods are contained by
//	their receiver type when it is declared earlier in the same file and
//	are top-level methods otherwise. Package-level var and const names are
//	variables. Import specs are imports keyed by import path.
//
// Thread Safety:
//
//	GoAdapter instances are safe for concurrent use.
type GoAdapter struct {
	opts adapterOptions
}

// NewGoAdapter creates a Go adapter.
func NewGoAdapter(opts ...AdapterOption) *GoAdapter {
	return &GoAdapter{opts: buildAdapterOptions(opts)}
}

func (a *GoAdapter) Language() Language { return LanguageGo }

func (a *GoAdapter) Extensions() []string { return []string{".go"} }

// Parse builds a tree-sitter tree for Go source.
func (a *GoAdapter) Parse(ctx context.Context, content []byte, filePath string) (Tree, error) {
	return parseWithGrammar(ctx, LanguageGo, golang.GetLanguage(), a.opts.maxFileSize, content, filePath)
}

// Extract walks a Go tree.
func (a *GoAdapter) Extract(ctx context.Context, tree Tree) (*Extraction, error) {
	st, err := asSitterTree(tree, LanguageGo)
	if err != nil {
		return nil, err
	}
	ctx, span := startExtractSpan(ctx, LanguageGo, st.filePath)
	defer span.End()

	w := &goWalker{collector: newCollector(LanguageGo, st.content)}
	if err := w.walk(ctx, st.filePath, st.root(), w.visit); err != nil {
		return nil, err
	}

	setExtractSpanResult(span, len(w.out.Declarations), len(w.out.References))
	return w.finish(ctx), nil
}

type goWalker struct {
	*collector
}

func (w *goWalker) visit(n *sitter.Node, scope int) bool {
	switch n.Type() {
	case "package_clause":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if child := n.NamedChild(i); child.Type() == "package_identifier" {
				w.out.Package = w.text(child)
				w.out.ModuleDoc = w.leadingComment(n)
			}
		}
		return false
	case "import_spec":
		alias := w.fieldText(n, "name")
		w.importRef(unquote(w.fieldText(n, "path")), alias, nil, n, scope)
		return false
	case "function_declaration":
		w.function(n, scope)
		return false
	case "method_declaration":
		w.method(n, scope)
		return false
	case "type_declaration":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			spec := n.NamedChild(i)
			if spec.Type() == "type_spec" || spec.Type() == "type_alias" {
				w.typeSpec(spec, n, scope)
			}
		}
		return false
	case "var_declaration", "const_declaration":
		if w.kindOf(scope) != KindModule {
			return true
		}
		w.valueSpecs(n, scope)
		return false
	case "call_expression":
		fn := n.ChildByFieldName("function")
		if fn != nil {
			switch fn.Type() {
			case "identifier":
				w.reference(RefCall, w.text(fn), "", n, scope)
			case "selector_expression":
				w.reference(RefCall, w.fieldText(fn, "field"), w.fieldText(fn, "operand"), n, scope)
			}
		}
		return true
	}
	return true
}

func (w *goWalker) function(n *sitter.Node, scope int) {
	name := w.fieldText(n, "name")
	if name == "" {
		return
	}
	idx := w.declare(KindFunction, name, n, scope)
	d := w.decl(idx)
	d.DocComment = w.leadingComment(n)
	d.Parameters = w.parameters(n.ChildByFieldName("parameters"))
	if name == "main" && w.out.Package == "main" {
		w.out.EntryPoint = true
	}
	w.schedule(idx, n.ChildByFieldName("body"))
}

func (w *goWalker) method(n *sitter.Node, scope int) {
	name := w.fieldText(n, "name")
	if name == "" {
		return
	}
	parent := scope
	if recv := w.receiverType(n.ChildByFieldName("receiver")); recv != "" {
		if cls := w.findClass(recv); cls >= 0 {
			parent = cls
		}
	}
	idx := w.declare(KindMethod, name, n, parent)
	d := w.decl(idx)
	d.DocComment = w.leadingComment(n)
	d.Parameters = w.parameters(n.ChildByFieldName("parameters"))
	w.schedule(idx, n.ChildByFieldName("body"))
}

// receiverType returns the bare type name of a method receiver.
func (w *goWalker) receiverType(recv *sitter.Node) string {
	if recv == nil {
		return ""
	}
	for i := 0; i < int(recv.NamedChildCount()); i++ {
		p := recv.NamedChild(i)
		if p.Type() == "parameter_declaration" {
			return baseTypeName(w.fieldText(p, "type"))
		}
	}
	return ""
}

func (w *goWalker) parameters(params *sitter.Node) []string {
	if params == nil {
		return nil
	}
	var out []string
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		if p.Type() != "parameter_declaration" && p.Type() != "variadic_parameter_declaration" {
			continue
		}
		for j := 0; j < int(p.NamedChildCount()); j++ {
			if id := p.NamedChild(j); id.Type() == "identifier" {
				out = append(out, w.text(id))
			}
		}
	}
	return out
}

// typeSpec declares a named type and its members.
func (w *goWalker) typeSpec(spec, decl *sitter.Node, scope int) {
	name := w.fieldText(spec, "name")
	if name == "" {
		return
	}
	idx := w.declare(KindClass, name, spec, scope)
	d := w.decl(idx)
	d.DocComment = w.leadingComment(spec)
	if d.DocComment == "" {
		d.DocComment = w.leadingComment(decl)
	}

	typ := spec.ChildByFieldName("type")
	if typ == nil {
		return
	}
	switch typ.Type() {
	case "struct_type":
		w.structFields(typ, idx)
	case "interface_type":
		w.interfaceElems(typ, idx)
	}
}

func (w *goWalker) structFields(st *sitter.Node, idx int) {
	for i := 0; i < int(st.NamedChildCount()); i++ {
		list := st.NamedChild(i)
		if list.Type() != "field_declaration_list" {
			continue
		}
		for j := 0; j < int(list.NamedChildCount()); j++ {
			field := list.NamedChild(j)
			if field.Type() != "field_declaration" {
				continue
			}
			named := false
			for k := 0; k < int(field.NamedChildCount()); k++ {
				child := field.NamedChild(k)
				if child.Type() == "field_identifier" {
					named = true
					w.declareSpan(KindVariable, w.text(child), spanOf(child), idx, w.signature(field))
				}
			}
			if !named {
				if typ := field.ChildByFieldName("type"); typ != nil {
					w.embedded(typ, idx)
				}
			}
		}
	}
}

func (w *goWalker) interfaceElems(it *sitter.Node, idx int) {
	for i := 0; i < int(it.NamedChildCount()); i++ {
		elem := it.NamedChild(i)
		switch elem.Type() {
		case "method_elem", "method_spec":
			name := w.fieldText(elem, "name")
			if name == "" {
				continue
			}
			m := w.declare(KindMethod, name, elem, idx)
			d := w.decl(m)
			d.DocComment = w.leadingComment(elem)
			d.Parameters = w.parameters(elem.ChildByFieldName("parameters"))
		case "type_elem", "constraint_elem", "interface_type_name":
			for j := 0; j < int(elem.NamedChildCount()); j++ {
				w.embedded(elem.NamedChild(j), idx)
			}
		case "type_identifier", "qualified_type":
			w.embedded(elem, idx)
		}
	}
}

// embedded records an inherit reference for an embedded type.
func (w *goWalker) embedded(typ *sitter.Node, idx int) {
	switch typ.Type() {
	case "type_identifier":
		w.reference(RefInherit, w.text(typ), "", typ, idx)
	case "qualified_type":
		w.reference(RefInherit, w.fieldText(typ, "name"), w.fieldText(typ, "package"), typ, idx)
	case "pointer_type", "generic_type":
		for i := 0; i < int(typ.NamedChildCount()); i++ {
			child := typ.NamedChild(i)
			if child.Type() == "type_identifier" || child.Type() == "qualified_type" {
				w.embedded(child, idx)
				return
			}
		}
	}
}

// valueSpecs declares package-level var and const names.
func (w *goWalker) valueSpecs(n *sitter.Node, scope int) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		spec := n.NamedChild(i)
		switch spec.Type() {
		case "var_spec", "const_spec":
			for j := 0; j < int(spec.NamedChildCount()); j++ {
				child := spec.NamedChild(j)
				if child.Type() != "identifier" {
					break
				}
				w.declareSpan(KindVariable, w.text(child), spanOf(child), scope, w.signature(spec))
			}
			w.schedule(scope, spec.ChildByFieldName("value"))
		case "var_spec_list", "const_spec_list":
			w.valueSpecs(spec, scope)
		}
	}
}
