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
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
)

// ctxCheckInterval is how many nodes the walker visits between context checks.
const ctxCheckInterval = 256

// maxSignatureLen caps the stored declaration header.
const maxSignatureLen = 200

// sitterTree is the Tree implementation shared by the tree-sitter adapters.
type sitterTree struct {
	lang     Language
	filePath string
	content  []byte
	tree     *sitter.Tree
	once     sync.Once
}

func (t *sitterTree) Language() Language { return t.lang }
func (t *sitterTree) FilePath() string   { return t.filePath }
func (t *sitterTree) Content() []byte    { return t.content }

func (t *sitterTree) Close() {
	t.once.Do(func() {
		if t.tree != nil {
			t.tree.Close()
		}
	})
}

func (t *sitterTree) root() *sitter.Node {
	return t.tree.RootNode()
}

// asSitterTree checks that tree was produced by a tree-sitter adapter for lang.
func asSitterTree(tree Tree, lang Language) (*sitterTree, error) {
	st, ok := tree.(*sitterTree)
	if !ok || st.lang != lang || st.tree == nil {
		path := ""
		if tree != nil {
			path = tree.FilePath()
		}
		return nil, NewParseFailure(path, lang, "tree was not produced by the "+string(lang)+" adapter", ErrTreeMismatch)
	}
	return st, nil
}

// contextFailure converts a done context into a ParseFailure.
func contextFailure(ctx context.Context, filePath string, lang Language) *ParseFailure {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return NewParseFailure(filePath, lang, "parse exceeded time limit", fmt.Errorf("%w: %w", ErrTimeout, err))
	}
	return NewParseFailure(filePath, lang, "parse canceled", fmt.Errorf("%w: %w", ErrCanceled, err))
}

// validateContent applies the checks shared by every adapter before parsing.
func validateContent(ctx context.Context, lang Language, content []byte, filePath string, maxFileSize int64) error {
	if ctx.Err() != nil {
		return contextFailure(ctx, filePath, lang)
	}
	if int64(len(content)) > maxFileSize {
		return NewParseFailure(filePath, lang,
			fmt.Sprintf("size %d exceeds limit %d", len(content), maxFileSize), ErrFileTooLarge)
	}
	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}
	if !utf8.Valid(content) {
		return NewParseFailure(filePath, lang, "content is not valid UTF-8", ErrInvalidContent)
	}
	return nil
}

// parseWithGrammar runs a tree-sitter grammar over content.
//
// Description:
//
//	Creates a fresh native parser per call. A tree containing any ERROR or
//	MISSING node is rejected with a ParseFailure anchored at the first
//	error, so a file either yields a clean tree or is skipped as a whole.
//
// Thread Safety: Safe for concurrent use.
func parseWithGrammar(ctx context.Context, lang Language, grammar *sitter.Language, maxFileSize int64, content []byte, filePath string) (Tree, error) {
	ctx, span := startParseSpan(ctx, lang, filePath, len(content))
	defer span.End()

	start := time.Now()

	if err := validateContent(ctx, lang, content, filePath, maxFileSize); err != nil {
		recordParseMetrics(ctx, lang, time.Since(start), false)
		return nil, err
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil || tree == nil {
		recordParseMetrics(ctx, lang, time.Since(start), false)
		if ctx.Err() != nil {
			return nil, contextFailure(ctx, filePath, lang)
		}
		return nil, NewParseFailure(filePath, lang, "tree-sitter produced no tree", fmt.Errorf("%w: %v", ErrParseFailed, err))
	}

	root := tree.RootNode()
	if root == nil {
		tree.Close()
		recordParseMetrics(ctx, lang, time.Since(start), false)
		return nil, NewParseFailure(filePath, lang, "tree-sitter returned nil root node", ErrParseFailed)
	}

	if root.HasError() {
		failure := syntaxFailure(root, filePath, lang)
		tree.Close()
		recordParseMetrics(ctx, lang, time.Since(start), false)
		return nil, failure
	}

	recordParseMetrics(ctx, lang, time.Since(start), true)
	return &sitterTree{
		lang:     lang,
		filePath: filePath,
		content:  content,
		tree:     tree,
	}, nil
}

// syntaxFailure locates the first ERROR or MISSING node under root.
func syntaxFailure(root *sitter.Node, filePath string, lang Language) *ParseFailure {
	node := firstErrorNode(root)
	if node == nil {
		return NewSyntaxFailure(filePath, lang, 0, 0, 0, "source contains syntax errors")
	}
	p := node.StartPoint()
	msg := "unexpected syntax"
	if node.IsMissing() {
		msg = fmt.Sprintf("missing %q", node.Type())
	}
	return NewSyntaxFailure(filePath, lang, int(node.StartByte()), int(p.Row)+1, int(p.Column)+1, msg)
}

// firstErrorNode returns the first error node in document order, descending
// only into subtrees that contain errors.
func firstErrorNode(root *sitter.Node) *sitter.Node {
	node := root
	for node != nil {
		if node.Type() == "ERROR" || node.IsMissing() {
			return node
		}
		var next *sitter.Node
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			if child == nil {
				continue
			}
			if child.Type() == "ERROR" || child.IsMissing() || child.HasError() {
				next = child
				break
			}
		}
		if next == nil {
			return node
		}
		node = next
	}
	return nil
}

// spanOf converts a node position into a Span.
func spanOf(n *sitter.Node) Span {
	sp, ep := n.StartPoint(), n.EndPoint()
	return Span{
		Start:     int(n.StartByte()),
		End:       int(n.EndByte()),
		StartLine: int(sp.Row) + 1,
		StartCol:  int(sp.Column) + 1,
		EndLine:   int(ep.Row) + 1,
		EndCol:    int(ep.Column) + 1,
	}
}

type frame struct {
	node  *sitter.Node
	scope int
}

// collector accumulates an Extraction while walking a tree.
//
// The walk is iterative: visit functions schedule the subtrees they want
// walked next, with the scope those subtrees belong to.
type collector struct {
	lang    Language
	content []byte
	out     *Extraction
	stack   []frame
}

func newCollector(lang Language, content []byte) *collector {
	return &collector{
		lang:    lang,
		content: content,
		out: &Extraction{
			Language:     lang,
			Declarations: make([]RawDeclaration, 0, 16),
			References:   make([]RawReference, 0, 32),
		},
	}
}

// walk visits root and every scheduled node in document order.
//
// visit returns true to have all children of n walked in the same scope.
// It may instead call schedule for specific subtrees.
func (c *collector) walk(ctx context.Context, filePath string, root *sitter.Node, visit func(n *sitter.Node, scope int) bool) error {
	c.schedule(-1, root)
	visited := 0
	for len(c.stack) > 0 {
		f := c.stack[len(c.stack)-1]
		c.stack = c.stack[:len(c.stack)-1]

		visited++
		if visited%ctxCheckInterval == 0 && ctx.Err() != nil {
			return contextFailure(ctx, filePath, c.lang)
		}

		if visit(f.node, f.scope) {
			c.scheduleChildren(f.node, f.scope)
		}
	}
	if ctx.Err() != nil {
		return contextFailure(ctx, filePath, c.lang)
	}
	return nil
}

// schedule queues nodes (given in source order) to be visited in scope.
func (c *collector) schedule(scope int, nodes ...*sitter.Node) {
	for i := len(nodes) - 1; i >= 0; i-- {
		if nodes[i] != nil {
			c.stack = append(c.stack, frame{node: nodes[i], scope: scope})
		}
	}
}

// scheduleChildren queues every child of n in scope.
func (c *collector) scheduleChildren(n *sitter.Node, scope int) {
	if n == nil {
		return
	}
	for i := int(n.ChildCount()) - 1; i >= 0; i-- {
		if child := n.Child(i); child != nil {
			c.stack = append(c.stack, frame{node: child, scope: scope})
		}
	}
}

// text returns the source text of n.
func (c *collector) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(c.content)
}

// fieldText returns the text of a named field of n.
func (c *collector) fieldText(n *sitter.Node, field string) string {
	if n == nil {
		return ""
	}
	return c.text(n.ChildByFieldName(field))
}

// kindOf returns the kind of the declaration at scope, or KindModule.
func (c *collector) kindOf(scope int) Kind {
	if scope < 0 || scope >= len(c.out.Declarations) {
		return KindModule
	}
	return c.out.Declarations[scope].Kind
}

// callableKind returns KindMethod inside a class, KindFunction elsewhere.
func (c *collector) callableKind(scope int) Kind {
	if c.kindOf(scope) == KindClass {
		return KindMethod
	}
	return KindFunction
}

// declare records a declaration spanning n and returns its index.
func (c *collector) declare(kind Kind, name string, n *sitter.Node, parent int) int {
	return c.declareSpan(kind, name, spanOf(n), parent, c.signature(n))
}

func (c *collector) declareSpan(kind Kind, name string, span Span, parent int, signature string) int {
	c.out.Declarations = append(c.out.Declarations, RawDeclaration{
		Name:      name,
		Kind:      kind,
		Span:      span,
		Parent:    parent,
		Signature: signature,
	})
	return len(c.out.Declarations) - 1
}

// decl returns a pointer to the declaration at idx for filling details.
func (c *collector) decl(idx int) *RawDeclaration {
	return &c.out.Declarations[idx]
}

// findClass returns the index of the last class declared with name at the
// top level of the file, or -1.
func (c *collector) findClass(name string) int {
	for i := len(c.out.Declarations) - 1; i >= 0; i-- {
		d := c.out.Declarations[i]
		if d.Kind == KindClass && d.Name == name {
			return i
		}
	}
	return -1
}

// reference records an unresolved use located at n.
func (c *collector) reference(kind RefKind, name, qualifier string, n *sitter.Node, scope int) {
	if name == "" {
		return
	}
	c.out.References = append(c.out.References, RawReference{
		Kind:      kind,
		Name:      name,
		Qualifier: qualifier,
		Span:      spanOf(n),
		Scope:     scope,
	})
}

// importRef records an import of module with optional local alias and names.
func (c *collector) importRef(module, alias string, names []string, n *sitter.Node, scope int) {
	if module == "" {
		return
	}
	c.out.References = append(c.out.References, RawReference{
		Kind:      RefImport,
		Name:      module,
		Qualifier: alias,
		Names:     names,
		Span:      spanOf(n),
		Scope:     scope,
	})
}

// signature returns the first line of n's text, trimmed and capped.
func (c *collector) signature(n *sitter.Node) string {
	s := c.text(n)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if len(s) > maxSignatureLen {
		s = s[:maxSignatureLen]
	}
	return s
}

// leadingComment collects the comment lines immediately above n.
//
// Wrapper nodes (export statements, templates, decorators) are looked
// through so the comment above the wrapper is found.
func (c *collector) leadingComment(n *sitter.Node) string {
	target := n
	for target.PrevSibling() == nil || !isComment(target.PrevSibling()) {
		parent := target.Parent()
		if parent == nil || !isWrapper(parent.Type()) {
			break
		}
		target = parent
	}

	var lines []string
	row := int(target.StartPoint().Row)
	for prev := target.PrevSibling(); prev != nil && isComment(prev); prev = prev.PrevSibling() {
		if int(prev.EndPoint().Row) < row-1 {
			break
		}
		lines = append(lines, cleanComment(c.text(prev)))
		row = int(prev.StartPoint().Row)
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func isComment(n *sitter.Node) bool {
	switch n.Type() {
	case "comment", "line_comment", "block_comment":
		return true
	}
	return false
}

func isWrapper(nodeType string) bool {
	switch nodeType {
	case "export_statement", "template_declaration", "decorated_definition":
		return true
	}
	return false
}

// cleanComment strips comment markers from a comment's text.
func cleanComment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "/**")
	s = strings.TrimPrefix(s, "/*")
	s = strings.TrimSuffix(s, "*/")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "/!")
		line = strings.TrimPrefix(line, "*")
		line = strings.TrimPrefix(line, "#")
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// unquote strips one layer of string delimiters.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'' || first == '`' || first == '<') && (last == first || (first == '<' && last == '>')) {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// lastSegment returns the text after the last separator in a qualified name.
func lastSegment(s string, sep string) string {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[i+len(sep):]
	}
	return s
}

// baseTypeName reduces a type expression to its bare name:
// "pkg.Base[T]" -> "Base", "*Foo" -> "Foo", "std::vector<int>" -> "vector".
func baseTypeName(s string) string {
	s = strings.TrimSpace(s)
	for _, open := range []string{"<", "[", "("} {
		if i := strings.Index(s, open); i > 0 {
			s = s[:i]
		}
	}
	s = strings.TrimLeft(s, "*&")
	s = lastSegment(s, "::")
	s = lastSegment(s, ".")
	return strings.TrimSpace(s)
}

// qualifierOf returns everything before the last separator, or "".
func qualifierOf(s string, sep string) string {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[:i]
	}
	return ""
}

// finish records extraction metrics and returns the extraction.
func (c *collector) finish(ctx context.Context) *Extraction {
	recordExtractMetrics(ctx, c.lang, len(c.out.Declarations))
	return c.out
}
