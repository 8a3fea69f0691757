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
	"github.com/smacker/go-tree-sitter/python"
)

// AdapterOption configures a tree-sitter adapter.
type AdapterOption func(*adapterOptions)

type adapterOptions struct {
	maxFileSize int64
}

func defaultAdapterOptions() adapterOptions {
	return adapterOptions{maxFileSize: DefaultMaxFileSize}
}

// WithMaxFileSize sets the maximum file size the adapter will accept.
//
// Example:
//
//	adapter := NewPythonAdapter(WithMaxFileSize(5 * 1024 * 1024))
func WithMaxFileSize(bytes int64) AdapterOption {
	return func(o *adapterOptions) {
		if bytes > 0 {
			o.maxFileSize = bytes
		}
	}
}

func buildAdapterOptions(opts []AdapterOption) adapterOptions {
	o := defaultAdapterOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// PythonAdapter maps Python source onto the normalized model.
//
// Description:
//
//	Classes become class declarations, def inside a class becomes a method,
//	every other def a function. Module- and class-level assignments become
//	variables. Calls, decorators, base classes and import statements are
//	emitted as references.
//
// Thread Safety:
//
//	PythonAdapter instances are safe for concurrent use.
type PythonAdapter struct {
	opts adapterOptions
}

// NewPythonAdapter creates a Python adapter.
func NewPythonAdapter(opts ...AdapterOption) *PythonAdapter {
	return &PythonAdapter{opts: buildAdapterOptions(opts)}
}

func (a *PythonAdapter) Language() Language { return LanguagePython }

func (a *PythonAdapter) Extensions() []string { return []string{".py", ".pyi"} }

// Parse builds a tree-sitter tree for Python source.
func (a *PythonAdapter) Parse(ctx context.Context, content []byte, filePath string) (Tree, error) {
	return parseWithGrammar(ctx, LanguagePython, python.GetLanguage(), a.opts.maxFileSize, content, filePath)
}

// Extract walks a Python tree.
func (a *PythonAdapter) Extract(ctx context.Context, tree Tree) (*Extraction, error) {
	st, err := asSitterTree(tree, LanguagePython)
	if err != nil {
		return nil, err
	}
	ctx, span := startExtractSpan(ctx, LanguagePython, st.filePath)
	defer span.End()

	w := &pythonWalker{collector: newCollector(LanguagePython, st.content)}
	root := st.root()
	w.out.ModuleDoc = w.docstring(root)

	if err := w.walk(ctx, st.filePath, root, w.visit); err != nil {
		return nil, err
	}

	setExtractSpanResult(span, len(w.out.Declarations), len(w.out.References))
	return w.finish(ctx), nil
}

type pythonWalker struct {
	*collector
}

func (w *pythonWalker) visit(n *sitter.Node, scope int) bool {
	switch n.Type() {
	case "function_definition":
		w.function(n, scope, nil)
		return false
	case "class_definition":
		w.class(n, scope, nil)
		return false
	case "decorated_definition":
		w.decorated(n, scope)
		return false
	case "import_statement":
		w.importStatement(n, scope)
		return false
	case "import_from_statement":
		w.importFrom(n, scope)
		return false
	case "assignment":
		w.assignment(n, scope)
		return false
	case "call":
		w.call(n, scope)
		return true
	case "if_statement":
		if scope < 0 && w.isMainGuard(n.ChildByFieldName("condition")) {
			w.out.EntryPoint = true
		}
		return true
	}
	return true
}

// function declares a def and schedules its body.
func (w *pythonWalker) function(n *sitter.Node, scope int, decorators []*sitter.Node) int {
	name := w.fieldText(n, "name")
	if name == "" {
		return -1
	}
	idx := w.declare(w.callableKind(scope), name, n, scope)
	d := w.decl(idx)
	d.Parameters = w.parameters(n.ChildByFieldName("parameters"))
	body := n.ChildByFieldName("body")
	d.DocComment = w.docstring(body)
	if d.DocComment == "" {
		d.DocComment = w.leadingComment(n)
	}
	w.decorators(decorators, idx)
	w.schedule(idx, body)
	return idx
}

// class declares a class, records its bases and schedules its body.
func (w *pythonWalker) class(n *sitter.Node, scope int, decorators []*sitter.Node) int {
	name := w.fieldText(n, "name")
	if name == "" {
		return -1
	}
	idx := w.declare(KindClass, name, n, scope)
	body := n.ChildByFieldName("body")
	d := w.decl(idx)
	d.DocComment = w.docstring(body)
	if d.DocComment == "" {
		d.DocComment = w.leadingComment(n)
	}

	if bases := n.ChildByFieldName("superclasses"); bases != nil {
		for i := 0; i < int(bases.NamedChildCount()); i++ {
			base := bases.NamedChild(i)
			switch base.Type() {
			case "identifier":
				w.reference(RefInherit, w.text(base), "", base, idx)
			case "attribute":
				w.reference(RefInherit, w.fieldText(base, "attribute"), w.fieldText(base, "object"), base, idx)
			}
		}
	}

	w.decorators(decorators, idx)
	w.schedule(idx, body)
	return idx
}

// decorated handles @decorator stacks on functions and classes.
func (w *pythonWalker) decorated(n *sitter.Node, scope int) {
	var decorators []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if child := n.NamedChild(i); child.Type() == "decorator" {
			decorators = append(decorators, child)
		}
	}
	def := n.ChildByFieldName("definition")
	if def == nil {
		return
	}
	switch def.Type() {
	case "function_definition":
		w.function(def, scope, decorators)
	case "class_definition":
		w.class(def, scope, decorators)
	}
}

// decorators records a reference from the decorated declaration to each
// decorator name. Decorator arguments are walked in the declaration scope.
func (w *pythonWalker) decorators(decorators []*sitter.Node, idx int) {
	for _, dec := range decorators {
		expr := dec.NamedChild(0)
		if expr == nil {
			continue
		}
		target := expr
		if expr.Type() == "call" {
			target = expr.ChildByFieldName("function")
			w.scheduleChildren(expr.ChildByFieldName("arguments"), idx)
		}
		switch target.Type() {
		case "identifier":
			w.reference(RefReference, w.text(target), "", target, idx)
		case "attribute":
			w.reference(RefReference, w.fieldText(target, "attribute"), w.fieldText(target, "object"), target, idx)
		}
	}
}

// assignment declares module- and class-level variables.
func (w *pythonWalker) assignment(n *sitter.Node, scope int) {
	kind := w.kindOf(scope)
	if kind == KindModule || kind == KindClass {
		w.bindTargets(n.ChildByFieldName("left"), scope)
	}
	w.schedule(scope, n.ChildByFieldName("right"))
}

func (w *pythonWalker) bindTargets(target *sitter.Node, scope int) {
	if target == nil {
		return
	}
	switch target.Type() {
	case "identifier":
		w.declareSpan(KindVariable, w.text(target), spanOf(target), scope, w.signature(target.Parent()))
	case "pattern_list", "tuple_pattern", "list_pattern":
		for i := 0; i < int(target.NamedChildCount()); i++ {
			w.bindTargets(target.NamedChild(i), scope)
		}
	}
}

func (w *pythonWalker) call(n *sitter.Node, scope int) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}
	switch fn.Type() {
	case "identifier":
		w.reference(RefCall, w.text(fn), "", n, scope)
	case "attribute":
		w.reference(RefCall, w.fieldText(fn, "attribute"), w.fieldText(fn, "object"), n, scope)
	}
}

// importStatement handles "import a.b, c as d".
func (w *pythonWalker) importStatement(n *sitter.Node, scope int) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			w.importRef(w.text(child), "", nil, child, scope)
		case "aliased_import":
			w.importRef(w.fieldText(child, "name"), w.fieldText(child, "alias"), nil, child, scope)
		}
	}
}

// importFrom handles "from .mod import a, b as c" and wildcard imports.
func (w *pythonWalker) importFrom(n *sitter.Node, scope int) {
	module := n.ChildByFieldName("module_name")
	if module == nil {
		return
	}
	var names []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.StartByte() == module.StartByte() {
			continue
		}
		switch child.Type() {
		case "dotted_name":
			names = append(names, w.text(child))
		case "aliased_import":
			names = append(names, w.fieldText(child, "name")+" as "+w.fieldText(child, "alias"))
		case "wildcard_import":
			names = append(names, "*")
		}
	}
	w.importRef(strings.Join(strings.Fields(w.text(module)), ""), "", names, n, scope)
}

// parameters lists parameter names, skipping self and cls.
func (w *pythonWalker) parameters(params *sitter.Node) []string {
	if params == nil {
		return nil
	}
	var out []string
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		var name string
		switch p.Type() {
		case "identifier":
			name = w.text(p)
		case "typed_parameter":
			if id := p.NamedChild(0); id != nil {
				name = w.text(id)
			}
		case "default_parameter", "typed_default_parameter":
			name = w.fieldText(p, "name")
		case "list_splat_pattern":
			name = "*" + w.text(p.NamedChild(0))
		case "dictionary_splat_pattern":
			name = "**" + w.text(p.NamedChild(0))
		}
		name = strings.TrimSpace(name)
		if name == "" || name == "self" || name == "cls" {
			continue
		}
		out = append(out, name)
	}
	return out
}

// docstring returns the leading string literal of a block or module.
func (w *pythonWalker) docstring(block *sitter.Node) string {
	if block == nil {
		return ""
	}
	for i := 0; i < int(block.NamedChildCount()); i++ {
		stmt := block.NamedChild(i)
		if stmt.Type() == "comment" {
			continue
		}
		if stmt.Type() != "expression_statement" {
			return ""
		}
		lit := stmt.NamedChild(0)
		if lit == nil || lit.Type() != "string" {
			return ""
		}
		return cleanPythonString(w.text(lit))
	}
	return ""
}

// isMainGuard matches if __name__ == "__main__".
func (w *pythonWalker) isMainGuard(cond *sitter.Node) bool {
	if cond == nil {
		return false
	}
	text := w.text(cond)
	return strings.Contains(text, "__name__") && strings.Contains(text, "__main__")
}

// cleanPythonString strips prefixes and quotes from a string literal.
func cleanPythonString(s string) string {
	s = strings.TrimLeft(s, "rRuUbBfF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			s = s[len(q) : len(s)-len(q)]
			break
		}
	}
	return strings.TrimSpace(s)
}
