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
	"regexp"
	"sort"
	"strings"
	"time"
)

// JacAdapter maps Jac onto the normalized model.
//
// Description:
//
//	There is no tree-sitter grammar for Jac, so the adapter works on a
//	masked copy of the source in which comments and string contents are
//	blanked out. Parse validates that strings, comments and braces are
//	balanced. Extract recognizes statement headers at statement starts and
//	tracks brace depth to find declaration bodies:
//
//	  - obj, node, edge, walker, class and enum archetypes are classes; the
//	    parenthesized or colon-delimited parent list yields inherit references
//	  - def and can abilities are functions, or methods inside an archetype
//	  - has and glob bindings are variables
//	  - import and include statements are imports
//	  - a top-level "with entry" block marks an entry point
//	  - name( and qualifier.name( outside headers are calls
//
// Thread Safety:
//
//	JacAdapter instances are safe for concurrent use.
type JacAdapter struct {
	opts adapterOptions
}

// NewJacAdapter creates a Jac adapter.
func NewJacAdapter(opts ...AdapterOption) *JacAdapter {
	return &JacAdapter{opts: buildAdapterOptions(opts)}
}

func (a *JacAdapter) Language() Language { return LanguageJac }

func (a *JacAdapter) Extensions() []string { return []string{".jac"} }

// jacTree is the masked source of a Jac file.
type jacTree struct {
	filePath   string
	content    []byte
	masked     []byte
	literals   []textRange
	lineStarts []int
}

type textRange struct {
	start, end int
	triple     bool
}

func (t *jacTree) Language() Language { return LanguageJac }
func (t *jacTree) FilePath() string   { return t.filePath }
func (t *jacTree) Content() []byte    { return t.content }
func (t *jacTree) Close()             {}

// Parse masks the source and checks that it is structurally balanced.
func (a *JacAdapter) Parse(ctx context.Context, content []byte, filePath string) (Tree, error) {
	ctx, span := startParseSpan(ctx, LanguageJac, filePath, len(content))
	defer span.End()

	start := time.Now()
	if err := validateContent(ctx, LanguageJac, content, filePath, a.opts.maxFileSize); err != nil {
		recordParseMetrics(ctx, LanguageJac, time.Since(start), false)
		return nil, err
	}

	t := &jacTree{filePath: filePath, content: content, lineStarts: lineStarts(content)}
	if failure := t.mask(); failure != nil {
		recordParseMetrics(ctx, LanguageJac, time.Since(start), false)
		return nil, failure
	}
	if failure := t.checkBraces(); failure != nil {
		recordParseMetrics(ctx, LanguageJac, time.Since(start), false)
		return nil, failure
	}
	if ctx.Err() != nil {
		recordParseMetrics(ctx, LanguageJac, time.Since(start), false)
		return nil, contextFailure(ctx, filePath, LanguageJac)
	}

	recordParseMetrics(ctx, LanguageJac, time.Since(start), true)
	return t, nil
}

// mask blanks comments and string contents, keeping newlines and quotes.
func (t *jacTree) mask() *ParseFailure {
	src := t.content
	out := make([]byte, len(src))
	copy(out, src)
	blank := func(from, to int) {
		for k := from; k < to; k++ {
			if out[k] != '\n' {
				out[k] = ' '
			}
		}
	}

	for i := 0; i < len(src); {
		switch {
		case strings.HasPrefix(string(src[i:min(i+2, len(src))]), "#*"):
			end := strings.Index(string(src[i+2:]), "*#")
			if end < 0 {
				return t.failure(i, "unterminated block comment")
			}
			blank(i, i+2+end+2)
			i += 2 + end + 2
		case src[i] == '#':
			end := i
			for end < len(src) && src[end] != '\n' {
				end++
			}
			blank(i, end)
			i = end
		case src[i] == '"' || src[i] == '\'':
			q := src[i]
			if i+2 < len(src) && src[i+1] == q && src[i+2] == q {
				delim := string([]byte{q, q, q})
				end := strings.Index(string(src[i+3:]), delim)
				if end < 0 {
					return t.failure(i, "unterminated string literal")
				}
				stop := i + 3 + end + 3
				blank(i+3, stop-3)
				t.literals = append(t.literals, textRange{start: i, end: stop, triple: true})
				i = stop
				continue
			}
			j := i + 1
			for j < len(src) && src[j] != q {
				if src[j] == '\\' {
					j++
				} else if src[j] == '\n' {
					return t.failure(i, "unterminated string literal")
				}
				j++
			}
			if j >= len(src) {
				return t.failure(i, "unterminated string literal")
			}
			blank(i+1, j)
			t.literals = append(t.literals, textRange{start: i, end: j + 1})
			i = j + 1
		default:
			i++
		}
	}
	t.masked = out
	return nil
}

// checkBraces verifies that every brace is matched.
func (t *jacTree) checkBraces() *ParseFailure {
	var open []int
	for i, c := range t.masked {
		switch c {
		case '{':
			open = append(open, i)
		case '}':
			if len(open) == 0 {
				return t.failure(i, "unexpected '}'")
			}
			open = open[:len(open)-1]
		}
	}
	if len(open) > 0 {
		return t.failure(open[len(open)-1], "unclosed '{'")
	}
	return nil
}

func (t *jacTree) failure(offset int, msg string) *ParseFailure {
	line, col := t.position(offset)
	return NewSyntaxFailure(t.filePath, LanguageJac, offset, line, col, msg)
}

// position converts a byte offset to a 1-indexed line and column.
func (t *jacTree) position(offset int) (int, int) {
	line := sort.Search(len(t.lineStarts), func(i int) bool { return t.lineStarts[i] > offset })
	return line, offset - t.lineStarts[line-1] + 1
}

func (t *jacTree) span(start, end int) Span {
	sl, sc := t.position(start)
	el, ec := t.position(end)
	return Span{Start: start, End: end, StartLine: sl, StartCol: sc, EndLine: el, EndCol: ec}
}

func lineStarts(content []byte) []int {
	starts := []int{0}
	for i, c := range content {
		if c == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

var (
	jacArchetypeRe = regexp.MustCompile(`\A(?:async\s+)?(?:(?:pub|priv|protect)\s+)?(obj|node|edge|walker|class|enum)\s+(?::(?:pub|priv|protect)\s+)?([A-Za-z_]\w*)\s*(?:\(([^)]*)\)|:([^:{;]*):)?`)
	jacAbilityRe   = regexp.MustCompile(`\A(?:(?:static|override|async|abs)\s+)*(?:(?:pub|priv|protect)\s+)?(?:def|can)\s+(?::(?:pub|priv|protect)\s+)?([A-Za-z_]\w*)\s*(\([^)]*\))?`)
	jacHasRe       = regexp.MustCompile(`\A(?:static\s+)?has\s+([^;{}]*);`)
	jacGlobRe      = regexp.MustCompile(`\Aglob\s+([^;{}]*);`)
	jacImportFrom  = regexp.MustCompile(`\Aimport\s*(?::\s*\w+\s*)?from\s+([.\w]+)\s*[{,]\s*([^};]*)`)
	jacImportPlain = regexp.MustCompile(`\A(?:import|include)\s*(?::\s*\w+\s*)?([.\w]+(?:\s+as\s+\w+)?(?:\s*,\s*[.\w]+(?:\s+as\s+\w+)?)*)\s*;`)
	jacWithEntryRe = regexp.MustCompile(`\Awith\s+entry\b`)
	jacCallRe      = regexp.MustCompile(`(?:([A-Za-z_]\w*)\s*\.\s*)?([A-Za-z_]\w*)\s*\(`)
	jacIdentRe     = regexp.MustCompile(`\A\s*\*{0,2}([A-Za-z_]\w*)`)
)

var jacNonCalls = map[string]bool{
	"if": true, "elif": true, "while": true, "for": true, "match": true, "case": true,
	"switch": true, "return": true, "with": true, "assert": true, "not": true, "and": true,
	"or": true, "in": true, "is": true, "lambda": true, "def": true, "can": true, "obj": true,
	"node": true, "edge": true, "walker": true, "class": true, "enum": true, "has": true,
	"glob": true, "import": true, "include": true, "yield": true, "await": true, "del": true,
	"raise": true, "try": true, "except": true, "finally": true, "super": true, "print": true,
	"test": true, "visit": true, "report": true,
}

// jacHeaderKeywords precede a declared name and never start a call.
var jacHeaderKeywords = map[string]bool{
	"def": true, "can": true, "obj": true, "node": true, "edge": true,
	"walker": true, "class": true, "enum": true,
}

type jacFrame struct {
	decl int
}

type jacWalker struct {
	*collector
	tree       *jacTree
	bodyStarts map[int]int
	headers    []textRange
}

// Extract scans a masked Jac tree.
func (a *JacAdapter) Extract(ctx context.Context, tree Tree) (*Extraction, error) {
	t, ok := tree.(*jacTree)
	if !ok || t.masked == nil {
		path := ""
		if tree != nil {
			path = tree.FilePath()
		}
		return nil, NewParseFailure(path, LanguageJac, "tree was not produced by the jac adapter", ErrTreeMismatch)
	}
	ctx, span := startExtractSpan(ctx, LanguageJac, t.filePath)
	defer span.End()

	w := &jacWalker{
		collector:  newCollector(LanguageJac, t.content),
		tree:       t,
		bodyStarts: make(map[int]int),
	}
	if lit := w.leadingLiteral(0); lit != nil {
		w.out.ModuleDoc = cleanPythonString(string(t.content[lit.start:lit.end]))
	}

	if err := w.scan(ctx); err != nil {
		return nil, err
	}
	w.calls()

	setExtractSpanResult(span, len(w.out.Declarations), len(w.out.References))
	return w.finish(ctx), nil
}

// scan walks statement starts, declaring as it goes.
func (w *jacWalker) scan(ctx context.Context) error {
	src := w.tree.masked
	var stack []jacFrame
	pending := -1
	atStmt := true

	scope := func() int {
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i].decl >= 0 {
				return stack[i].decl
			}
		}
		return -1
	}

	for i := 0; i < len(src); i++ {
		if i%4096 == 0 && ctx.Err() != nil {
			return contextFailure(ctx, w.tree.filePath, LanguageJac)
		}
		c := src[i]
		if atStmt && !isJacSpace(c) {
			if lit := w.literalAt(i); lit != nil && lit.triple {
				i = lit.end - 1
				continue
			}
			atStmt = false
			if d := w.statement(i, scope(), len(stack) == 0); d >= 0 {
				pending = d
			}
		}
		switch c {
		case '{':
			if pending >= 0 {
				w.bodyStarts[pending] = i
			}
			stack = append(stack, jacFrame{decl: pending})
			pending = -1
			atStmt = true
		case '}':
			if len(stack) > 0 {
				f := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if f.decl >= 0 {
					w.closeDecl(f.decl, i+1)
				}
			}
			atStmt = true
		case ';':
			if pending >= 0 {
				w.closeDecl(pending, i+1)
				pending = -1
			}
			atStmt = true
		}
	}
	return nil
}

// statement matches declaration and import headers at pos. Returns the
// index of a declaration awaiting its body, or -1.
func (w *jacWalker) statement(pos, scope int, topLevel bool) int {
	rest := w.tree.masked[pos:]

	if m := jacArchetypeRe.FindSubmatchIndex(rest); m != nil {
		name := string(rest[m[4]:m[5]])
		idx := w.declareSpan(KindClass, name, w.tree.span(pos, pos+m[1]), scope, w.headerText(pos, m[1]))
		w.decl(idx).DocComment = w.docstring(pos)
		w.headers = append(w.headers, textRange{start: pos, end: pos + m[1]})
		bases := ""
		if m[6] >= 0 {
			bases = string(rest[m[6]:m[7]])
		} else if m[8] >= 0 {
			bases = string(rest[m[8]:m[9]])
		}
		for _, base := range strings.Split(bases, ",") {
			base = strings.TrimSpace(base)
			if base == "" {
				continue
			}
			text := baseTypeNameStrip(base)
			w.out.References = append(w.out.References, RawReference{
				Kind:      RefInherit,
				Name:      lastSegment(text, "."),
				Qualifier: qualifierOf(text, "."),
				Span:      w.tree.span(pos, pos+m[1]),
				Scope:     idx,
			})
		}
		return idx
	}

	if m := jacAbilityRe.FindSubmatchIndex(rest); m != nil {
		name := string(rest[m[2]:m[3]])
		idx := w.declareSpan(w.callableKind(scope), name, w.tree.span(pos, pos+m[1]), scope, w.headerText(pos, m[1]))
		d := w.decl(idx)
		d.DocComment = w.docstring(pos)
		if m[4] >= 0 {
			d.Parameters = jacParameters(string(rest[m[4]+1 : m[5]-1]))
		}
		w.headers = append(w.headers, textRange{start: pos, end: pos + m[3]})
		return idx
	}

	if m := jacHasRe.FindSubmatchIndex(rest); m != nil {
		w.bindings(pos, rest, m[2], m[3], scope)
		return -1
	}
	if m := jacGlobRe.FindSubmatchIndex(rest); m != nil {
		w.bindings(pos, rest, m[2], m[3], scope)
		return -1
	}

	if m := jacImportFrom.FindSubmatchIndex(rest); m != nil {
		module := string(rest[m[2]:m[3]])
		var names []string
		for _, n := range strings.Split(string(rest[m[4]:m[5]]), ",") {
			if n = strings.Join(strings.Fields(n), " "); n != "" {
				names = append(names, n)
			}
		}
		w.jacImport(module, "", names, pos, pos+m[1], scope)
		return -1
	}
	if m := jacImportPlain.FindSubmatchIndex(rest); m != nil {
		for _, item := range strings.Split(string(rest[m[2]:m[3]]), ",") {
			fields := strings.Fields(item)
			switch len(fields) {
			case 1:
				w.jacImport(fields[0], "", nil, pos, pos+m[1], scope)
			case 3:
				w.jacImport(fields[0], fields[2], nil, pos, pos+m[1], scope)
			}
		}
		return -1
	}

	if topLevel && jacWithEntryRe.Match(rest) {
		w.out.EntryPoint = true
	}
	return -1
}

func (w *jacWalker) jacImport(module, alias string, names []string, start, end, scope int) {
	w.out.References = append(w.out.References, RawReference{
		Kind:      RefImport,
		Name:      module,
		Qualifier: alias,
		Names:     names,
		Span:      w.tree.span(start, end),
		Scope:     scope,
	})
}

// bindings declares each name of a has or glob statement.
func (w *jacWalker) bindings(pos int, rest []byte, from, to, scope int) {
	list := string(rest[from:to])
	offset := from
	for _, part := range splitTopLevel(list, ',') {
		if m := jacIdentRe.FindStringSubmatchIndex(part); m != nil {
			start := pos + offset + m[2]
			end := pos + offset + m[3]
			w.declareSpan(KindVariable, part[m[2]:m[3]], w.tree.span(start, end), scope, strings.TrimSpace(part))
		}
		offset += len(part) + 1
	}
}

func (w *jacWalker) closeDecl(idx, end int) {
	d := w.decl(idx)
	full := w.tree.span(d.Span.Start, end)
	d.Span = full
}

func (w *jacWalker) headerText(pos, length int) string {
	s := strings.Join(strings.Fields(string(w.tree.content[pos:pos+length])), " ")
	if len(s) > maxSignatureLen {
		s = s[:maxSignatureLen]
	}
	return s
}

// literalAt returns the string literal starting at offset, if any.
func (w *jacWalker) literalAt(offset int) *textRange {
	lits := w.tree.literals
	i := sort.Search(len(lits), func(i int) bool { return lits[i].start >= offset })
	if i < len(lits) && lits[i].start == offset {
		return &lits[i]
	}
	return nil
}

// leadingLiteral returns the first triple-quoted literal at or after offset
// when only whitespace precedes it.
func (w *jacWalker) leadingLiteral(offset int) *textRange {
	for i := offset; i < len(w.tree.masked); i++ {
		if isJacSpace(w.tree.masked[i]) {
			continue
		}
		if lit := w.literalAt(i); lit != nil && lit.triple {
			return lit
		}
		return nil
	}
	return nil
}

// docstring returns the triple-quoted literal directly above pos.
func (w *jacWalker) docstring(pos int) string {
	lits := w.tree.literals
	i := sort.Search(len(lits), func(i int) bool { return lits[i].end > pos }) - 1
	if i < 0 || !lits[i].triple {
		return ""
	}
	between := w.tree.masked[lits[i].end:pos]
	if strings.TrimSpace(string(between)) != "" {
		return ""
	}
	return cleanPythonString(string(w.tree.content[lits[i].start:lits[i].end]))
}

// calls records name( and qualifier.name( uses outside declaration headers.
func (w *jacWalker) calls() {
	src := w.tree.masked
	for _, m := range jacCallRe.FindAllSubmatchIndex(src, -1) {
		name := string(src[m[4]:m[5]])
		if jacNonCalls[name] || w.inHeaderName(m[4]) || w.precededByHeaderKeyword(m[0]) {
			continue
		}
		qualifier := ""
		if m[2] >= 0 {
			qualifier = string(src[m[2]:m[3]])
		}
		w.out.References = append(w.out.References, RawReference{
			Kind:      RefCall,
			Name:      name,
			Qualifier: qualifier,
			Span:      w.tree.span(m[0], m[1]-1),
			Scope:     w.scopeAt(m[0]),
		})
	}
}

func (w *jacWalker) inHeaderName(offset int) bool {
	for _, h := range w.headers {
		if offset >= h.start && offset < h.end {
			return true
		}
	}
	return false
}

func (w *jacWalker) precededByHeaderKeyword(offset int) bool {
	before := strings.Fields(string(w.tree.masked[max(0, offset-32):offset]))
	return len(before) > 0 && jacHeaderKeywords[before[len(before)-1]]
}

// scopeAt returns the innermost declaration whose body contains offset.
func (w *jacWalker) scopeAt(offset int) int {
	best, bestStart := -1, -1
	for idx, bodyStart := range w.bodyStarts {
		d := w.out.Declarations[idx]
		if offset > bodyStart && offset < d.Span.End && bodyStart > bestStart {
			best, bestStart = idx, bodyStart
		}
	}
	return best
}

func jacParameters(list string) []string {
	var out []string
	for _, part := range splitTopLevel(list, ',') {
		m := jacIdentRe.FindStringSubmatch(part)
		if m == nil || m[1] == "self" {
			continue
		}
		out = append(out, m[1])
	}
	return out
}

func isJacSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
