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
	"github.com/smacker/go-tree-sitter/javascript"
)

// JavaScriptAdapter maps JavaScript (including JSX and CommonJS) onto the
// normalized model.
//
// Function declarations and functions bound to a const/let/var become
// functions; class bodies yield methods and field variables. ES imports and
// require() calls with a literal argument are import references.
//
// Thread Safety: safe for concurrent use.
type JavaScriptAdapter struct {
	opts adapterOptions
}

// NewJavaScriptAdapter creates a JavaScript adapter.
func NewJavaScriptAdapter(opts ...AdapterOption) *JavaScriptAdapter {
	return &JavaScriptAdapter{opts: buildAdapterOptions(opts)}
}

func (a *JavaScriptAdapter) Language() Language { return LanguageJavaScript }

func (a *JavaScriptAdapter) Extensions() []string { return []string{".js", ".jsx", ".mjs", ".cjs"} }

// Parse builds a tree-sitter tree for JavaScript source.
func (a *JavaScriptAdapter) Parse(ctx context.Context, content []byte, filePath string) (Tree, error) {
	return parseWithGrammar(ctx, LanguageJavaScript, javascript.GetLanguage(), a.opts.maxFileSize, content, filePath)
}

// Extract walks a JavaScript tree.
func (a *JavaScriptAdapter) Extract(ctx context.Context, tree Tree) (*Extraction, error) {
	st, err := asSitterTree(tree, LanguageJavaScript)
	if err != nil {
		return nil, err
	}
	ctx, span := startExtractSpan(ctx, LanguageJavaScript, st.filePath)
	defer span.End()

	w := &jsWalker{collector: newCollector(LanguageJavaScript, st.content)}
	root := st.root()
	if first := root.NamedChild(0); first != nil && first.Type() == "comment" {
		w.out.ModuleDoc = cleanComment(w.text(first))
	}
	if err := w.walk(ctx, st.filePath, root, w.visit); err != nil {
		return nil, err
	}

	setExtractSpanResult(span, len(w.out.Declarations), len(w.out.References))
	return w.finish(ctx), nil
}

type jsWalker struct {
	*collector
}

func (w *jsWalker) visit(n *sitter.Node, scope int) bool {
	switch n.Type() {
	case "function_declaration", "generator_function_declaration":
		w.function(n, w.fieldText(n, "name"), n, scope)
		return false
	case "class_declaration", "class":
		w.class(n, scope)
		return false
	case "method_definition":
		w.method(n, scope)
		return false
	case "field_definition", "public_field_definition":
		w.field(n, scope)
		return false
	case "variable_declarator":
		w.variable(n, scope)
		return false
	case "import_statement":
		w.importStatement(n, scope)
		return false
	case "call_expression":
		w.call(n, scope)
		return true
	case "new_expression":
		ctor := n.ChildByFieldName("constructor")
		if ctor != nil {
			switch ctor.Type() {
			case "identifier":
				w.reference(RefCall, w.text(ctor), "", n, scope)
			case "member_expression":
				w.reference(RefCall, w.fieldText(ctor, "property"), w.fieldText(ctor, "object"), n, scope)
			}
		}
		return true
	}
	return true
}

// function declares a function named name spanning declNode with fn's
// parameters and body.
func (w *jsWalker) function(declNode *sitter.Node, name string, fn *sitter.Node, scope int) int {
	if name == "" {
		w.scheduleChildren(fn, scope)
		return -1
	}
	idx := w.declare(w.callableKind(scope), name, declNode, scope)
	d := w.decl(idx)
	d.DocComment = w.leadingComment(declNode)
	d.Parameters = w.parameters(fn)
	w.schedule(idx, fn.ChildByFieldName("body"))
	return idx
}

func (w *jsWalker) class(n *sitter.Node, scope int) {
	name := w.fieldText(n, "name")
	if name == "" {
		w.scheduleChildren(n, scope)
		return
	}
	idx := w.declare(KindClass, name, n, scope)
	w.decl(idx).DocComment = w.leadingComment(n)

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() != "class_heritage" {
			continue
		}
		for j := 0; j < int(child.NamedChildCount()); j++ {
			base := child.NamedChild(j)
			switch base.Type() {
			case "identifier":
				w.reference(RefInherit, w.text(base), "", base, idx)
			case "member_expression":
				w.reference(RefInherit, w.fieldText(base, "property"), w.fieldText(base, "object"), base, idx)
			case "call_expression":
				w.schedule(scope, base)
			}
		}
	}
	w.schedule(idx, n.ChildByFieldName("body"))
}

func (w *jsWalker) method(n *sitter.Node, scope int) {
	name := w.fieldText(n, "name")
	if name == "" {
		return
	}
	idx := w.declare(KindMethod, name, n, scope)
	d := w.decl(idx)
	d.DocComment = w.leadingComment(n)
	d.Parameters = w.parameters(n)
	w.schedule(idx, n.ChildByFieldName("body"))
}

func (w *jsWalker) field(n *sitter.Node, scope int) {
	prop := n.ChildByFieldName("property")
	if prop == nil {
		return
	}
	value := n.ChildByFieldName("value")
	if value != nil && isJSFunction(value.Type()) {
		w.function(n, w.text(prop), value, scope)
		return
	}
	w.declareSpan(KindVariable, w.text(prop), spanOf(prop), scope, w.signature(n))
	w.schedule(scope, value)
}

// variable handles a declarator: functions bound to names become
// functions, module-level bindings become variables.
func (w *jsWalker) variable(n *sitter.Node, scope int) {
	nameNode := n.ChildByFieldName("name")
	value := n.ChildByFieldName("value")
	if nameNode == nil {
		return
	}
	if nameNode.Type() == "identifier" && value != nil && isJSFunction(value.Type()) {
		w.function(n, w.text(nameNode), value, scope)
		return
	}
	if nameNode.Type() == "identifier" && value != nil && value.Type() == "class" {
		idx := w.declare(KindClass, w.text(nameNode), n, scope)
		w.schedule(idx, value.ChildByFieldName("body"))
		return
	}
	if w.kindOf(scope) == KindModule {
		w.bindPattern(nameNode, scope)
	}
	w.schedule(scope, value)
}

func (w *jsWalker) bindPattern(n *sitter.Node, scope int) {
	switch n.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		w.declareSpan(KindVariable, w.text(n), spanOf(n), scope, w.signature(n.Parent()))
	case "object_pattern", "array_pattern", "pair_pattern", "assignment_pattern", "rest_pattern":
		key := n.ChildByFieldName("key")
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if key != nil && child.StartByte() == key.StartByte() {
				continue
			}
			if n.Type() == "assignment_pattern" && i > 0 {
				continue
			}
			w.bindPattern(child, scope)
		}
	}
}

func (w *jsWalker) call(n *sitter.Node, scope int) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}
	switch fn.Type() {
	case "identifier":
		name := w.text(fn)
		if name == "require" {
			if spec := w.requireSpecifier(n); spec != "" {
				w.importRef(spec, w.requireAlias(n), nil, n, scope)
				return
			}
		}
		w.reference(RefCall, name, "", n, scope)
	case "member_expression":
		w.reference(RefCall, w.fieldText(fn, "property"), w.fieldText(fn, "object"), n, scope)
	case "import":
		if spec := w.requireSpecifier(n); spec != "" {
			w.importRef(spec, "", nil, n, scope)
		}
	}
}

// requireSpecifier returns the string literal argument of require("x").
func (w *jsWalker) requireSpecifier(call *sitter.Node) string {
	args := call.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() != 1 {
		return ""
	}
	arg := args.NamedChild(0)
	if arg.Type() != "string" && arg.Type() != "template_string" {
		return ""
	}
	return unquote(w.text(arg))
}

// requireAlias returns the identifier a require() result is bound to.
func (w *jsWalker) requireAlias(call *sitter.Node) string {
	parent := call.Parent()
	if parent != nil && parent.Type() == "variable_declarator" {
		if name := parent.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
			return w.text(name)
		}
	}
	return ""
}

// importStatement handles ES module imports.
func (w *jsWalker) importStatement(n *sitter.Node, scope int) {
	source := unquote(w.fieldText(n, "source"))
	if source == "" {
		return
	}
	var names []string
	alias := ""
	for i := 0; i < int(n.NamedChildCount()); i++ {
		clause := n.NamedChild(i)
		if clause.Type() != "import_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			part := clause.NamedChild(j)
			switch part.Type() {
			case "identifier":
				names = append(names, "default as "+w.text(part))
			case "namespace_import":
				alias = w.text(part.NamedChild(0))
			case "named_imports":
				for k := 0; k < int(part.NamedChildCount()); k++ {
					spec := part.NamedChild(k)
					if spec.Type() != "import_specifier" {
						continue
					}
					name := w.fieldText(spec, "name")
					if a := w.fieldText(spec, "alias"); a != "" {
						name += " as " + a
					}
					names = append(names, name)
				}
			}
		}
	}
	w.importRef(source, alias, names, n, scope)
}

func (w *jsWalker) parameters(fn *sitter.Node) []string {
	params := fn.ChildByFieldName("parameters")
	if params == nil {
		if single := fn.ChildByFieldName("parameter"); single != nil {
			return []string{w.text(single)}
		}
		return nil
	}
	var out []string
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		switch p.Type() {
		case "identifier":
			out = append(out, w.text(p))
		case "assignment_pattern":
			out = append(out, w.fieldText(p, "left"))
		case "rest_pattern":
			out = append(out, "..."+w.text(p.NamedChild(0)))
		case "comment":
		default:
			out = append(out, w.text(p))
		}
	}
	return out
}

func isJSFunction(nodeType string) bool {
	switch nodeType {
	case "arrow_function", "function", "function_expression", "generator_function":
		return true
	}
	return false
}
