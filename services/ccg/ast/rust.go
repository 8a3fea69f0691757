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
	"github.com/smacker/go-tree-sitter/rust"
)

// RustAdapter maps Rust onto the normalized model.
//
// Structs, enums, unions and traits are classes. impl blocks are flattened:
// their functions become methods contained by the implementing type when it
// is declared in the same file, and "impl Trait for Type" becomes an inherit
// reference from the type to the trait. Inline modules are transparent;
// "mod name;" is an import of the child module file. Macros are not expanded.
type RustAdapter struct {
	opts adapterOptions
}

// NewRustAdapter creates a Rust adapter.
func NewRustAdapter(opts ...AdapterOption) *RustAdapter {
	return &RustAdapter{opts: buildAdapterOptions(opts)}
}

func (a *RustAdapter) Language() Language { return LanguageRust }

func (a *RustAdapter) Extensions() []string { return []string{".rs"} }

// Parse builds a tree-sitter tree for Rust source.
func (a *RustAdapter) Parse(ctx context.Context, content []byte, filePath string) (Tree, error) {
	return parseWithGrammar(ctx, LanguageRust, rust.GetLanguage(), a.opts.maxFileSize, content, filePath)
}

// Extract walks a Rust tree.
func (a *RustAdapter) Extract(ctx context.Context, tree Tree) (*Extraction, error) {
	st, err := asSitterTree(tree, LanguageRust)
	if err != nil {
		return nil, err
	}
	ctx, span := startExtractSpan(ctx, LanguageRust, st.filePath)
	defer span.End()

	w := &rustWalker{collector: newCollector(LanguageRust, st.content)}
	if err := w.walk(ctx, st.filePath, st.root(), w.visit); err != nil {
		return nil, err
	}

	setExtractSpanResult(span, len(w.out.Declarations), len(w.out.References))
	return w.finish(ctx), nil
}

type rustWalker struct {
	*collector
}

func (w *rustWalker) visit(n *sitter.Node, scope int) bool {
	switch n.Type() {
	case "use_declaration":
		w.use(n, scope)
		return false
	case "mod_item":
		if n.ChildByFieldName("body") == nil {
			w.importRef("self::"+w.fieldText(n, "name"), "", nil, n, scope)
			return false
		}
		w.schedule(scope, n.ChildByFieldName("body"))
		return false
	case "struct_item", "enum_item", "union_item", "trait_item":
		name := w.fieldText(n, "name")
		if name == "" {
			return false
		}
		idx := w.declare(KindClass, name, n, scope)
		w.decl(idx).DocComment = w.leadingComment(n)
		w.schedule(idx, n.ChildByFieldName("body"))
		return false
	case "impl_item":
		w.impl(n, scope)
		return false
	case "function_item":
		w.function(n, scope, w.callableKind(scope))
		return false
	case "function_signature_item":
		if name := w.fieldText(n, "name"); name != "" && w.kindOf(scope) == KindClass {
			idx := w.declare(KindMethod, name, n, scope)
			d := w.decl(idx)
			d.DocComment = w.leadingComment(n)
			d.Parameters = w.parameters(n.ChildByFieldName("parameters"))
		}
		return false
	case "field_declaration":
		if w.kindOf(scope) == KindClass {
			if name := n.ChildByFieldName("name"); name != nil {
				w.declareSpan(KindVariable, w.text(name), spanOf(name), scope, w.signature(n))
			}
		}
		return false
	case "const_item", "static_item":
		k := w.kindOf(scope)
		if k == KindModule || k == KindClass {
			if name := n.ChildByFieldName("name"); name != nil {
				w.declareSpan(KindVariable, w.text(name), spanOf(name), scope, w.signature(n))
			}
		}
		w.schedule(scope, n.ChildByFieldName("value"))
		return false
	case "call_expression":
		w.call(n.ChildByFieldName("function"), n, scope)
		return true
	}
	return true
}

func (w *rustWalker) function(n *sitter.Node, scope int, kind Kind) {
	name := w.fieldText(n, "name")
	if name == "" {
		return
	}
	idx := w.declare(kind, name, n, scope)
	d := w.decl(idx)
	d.DocComment = w.leadingComment(n)
	d.Parameters = w.parameters(n.ChildByFieldName("parameters"))
	if name == "main" && scope < 0 {
		w.out.EntryPoint = true
	}
	w.schedule(idx, n.ChildByFieldName("body"))
}

// impl attaches an impl block's items to the implementing type.
func (w *rustWalker) impl(n *sitter.Node, scope int) {
	typeName := baseTypeName(w.fieldText(n, "type"))
	parent := scope
	if cls := w.findClass(typeName); cls >= 0 {
		parent = cls
	}

	if trait := n.ChildByFieldName("trait"); trait != nil && parent != scope {
		text := baseTypeNameStrip(w.text(trait))
		w.reference(RefInherit, lastSegment(text, "::"), qualifierOf(text, "::"), trait, parent)
	}

	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		item := body.NamedChild(i)
		if item.Type() == "function_item" {
			w.function(item, parent, KindMethod)
			continue
		}
		w.schedule(parent, item)
	}
}

func (w *rustWalker) parameters(params *sitter.Node) []string {
	if params == nil {
		return nil
	}
	var out []string
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		if p.Type() == "parameter" {
			out = append(out, w.fieldText(p, "pattern"))
		}
	}
	return out
}

func (w *rustWalker) call(fn, call *sitter.Node, scope int) {
	if fn == nil {
		return
	}
	switch fn.Type() {
	case "identifier":
		w.reference(RefCall, w.text(fn), "", call, scope)
	case "field_expression":
		w.reference(RefCall, w.fieldText(fn, "field"), w.fieldText(fn, "value"), call, scope)
	case "scoped_identifier":
		w.reference(RefCall, w.fieldText(fn, "name"), w.fieldText(fn, "path"), call, scope)
	case "generic_function":
		w.call(fn.ChildByFieldName("function"), call, scope)
	}
}

// use expands a use tree into one import reference per module path.
func (w *rustWalker) use(n *sitter.Node, scope int) {
	arg := n.ChildByFieldName("argument")
	if arg == nil {
		return
	}
	byModule := make(map[string][]string)
	var order []string
	for _, path := range expandRustUse(w.text(arg)) {
		item, alias := path, ""
		if i := strings.Index(path, " as "); i >= 0 {
			item, alias = strings.TrimSpace(path[:i]), strings.TrimSpace(path[i+4:])
		}
		module := qualifierOf(item, "::")
		name := lastSegment(item, "::")
		if module == "" {
			module, name = item, ""
		}
		if _, seen := byModule[module]; !seen {
			order = append(order, module)
			byModule[module] = nil
		}
		if name != "" {
			if alias != "" {
				name += " as " + alias
			}
			byModule[module] = append(byModule[module], name)
		}
	}
	for _, module := range order {
		w.importRef(module, "", byModule[module], n, scope)
	}
}

// expandRustUse flattens a use tree such as "crate::a::{b, c::{D, E as F}}"
// into full paths.
func expandRustUse(s string) []string {
	s = strings.Join(strings.Fields(s), " ")
	open := strings.Index(s, "{")
	if open < 0 {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	closing := strings.LastIndex(s, "}")
	if closing < open {
		return []string{s}
	}
	prefix := strings.TrimSpace(s[:open])
	var out []string
	for _, part := range splitTopLevel(s[open+1:closing], ',') {
		part = strings.TrimSpace(part)
		switch part {
		case "":
			continue
		case "self":
			out = append(out, strings.TrimSuffix(prefix, "::"))
			continue
		}
		for _, sub := range expandRustUse(part) {
			out = append(out, prefix+sub)
		}
	}
	return out
}

// splitTopLevel splits s on sep outside of brace groups.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
