// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolve

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
	"github.com/AleutianAI/AleutianCCG/services/ccg/extract"
)

// GoModulePath reads the module path from root/go.mod.
//
// A missing go.mod is not an error; the empty path makes Go imports
// resolve by directory suffix instead.
func GoModulePath(root string) (string, error) {
	name := filepath.Join(root, "go.mod")
	data, err := os.ReadFile(name)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading go.mod: %w", err)
	}
	f, err := modfile.ParseLax(name, data, nil)
	if err != nil {
		return "", fmt.Errorf("parsing go.mod: %w", err)
	}
	if f.Module == nil {
		return "", nil
	}
	return f.Module.Mod.Path, nil
}

// fileTable answers path questions about the extracted project.
type fileTable struct {
	languages map[string]ast.Language
	packages  map[string]string
	byDir     map[string][]string
	byStem    map[string][]string
	dirs      []string
}

func newFileTable(results []*extract.Result) *fileTable {
	t := &fileTable{
		languages: make(map[string]ast.Language, len(results)),
		packages:  make(map[string]string),
		byDir:     make(map[string][]string),
		byStem:    make(map[string][]string),
	}
	for _, r := range results {
		if r == nil {
			continue
		}
		if _, dup := t.languages[r.Path]; dup {
			continue
		}
		t.languages[r.Path] = r.Language
		if r.Package != "" {
			t.packages[r.Path] = r.Package
		}
		dir := path.Dir(r.Path)
		t.byDir[dir] = append(t.byDir[dir], r.Path)

		stem := trimExt(path.Base(r.Path))
		t.byStem[stem] = append(t.byStem[stem], r.Path)
		switch stem {
		case "__init__", "mod", "index", "lib":
			if dir != "." {
				t.byStem[path.Base(dir)] = append(t.byStem[path.Base(dir)], r.Path)
			}
		}
	}
	for dir, files := range t.byDir {
		sort.Strings(files)
		t.dirs = append(t.dirs, dir)
	}
	for _, files := range t.byStem {
		sort.Strings(files)
	}
	sort.Strings(t.dirs)
	return t
}

func (t *fileTable) has(p string) bool {
	_, ok := t.languages[p]
	return ok
}

// probe returns the first existing path among forms.
func (t *fileTable) probe(forms ...string) []string {
	for _, f := range forms {
		if t.has(f) {
			return []string{f}
		}
	}
	return nil
}

// suffixMatch returns every file equal to, or ending in "/"+, one of forms.
// key is the module name the candidates are registered under.
func (t *fileTable) suffixMatch(key string, forms []string) []string {
	var out []string
	for _, f := range t.byStem[key] {
		for _, form := range forms {
			if f == form || strings.HasSuffix(f, "/"+form) {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// sameDir returns the files of lang sharing importer's directory.
func (t *fileTable) sameDir(importer string, lang ast.Language) []string {
	var out []string
	for _, f := range t.byDir[path.Dir(importer)] {
		if f != importer && t.languages[f] == lang {
			out = append(out, f)
		}
	}
	return out
}

// moduleForms lists the files a slash-separated module path may live in.
func moduleForms(p string, exts []string, initName string) []string {
	forms := make([]string, 0, 2*len(exts))
	for _, ext := range exts {
		forms = append(forms, p+ext)
	}
	if initName != "" {
		for _, ext := range exts {
			forms = append(forms, p+"/"+initName+ext)
		}
	}
	return forms
}

var (
	pythonExts = []string{".py", ".pyi"}
	jacExts    = []string{".jac", ".py"}
	jsExts     = []string{".js", ".jsx", ".mjs", ".cjs"}
)

// pythonModule maps a dotted, possibly relative module path. Absolute paths
// are tried next to the importer, then at the root, then by suffix.
func (t *fileTable) pythonModule(importer, module string, exts []string) []string {
	dots := len(module) - len(strings.TrimLeft(module, "."))
	rest := strings.ReplaceAll(module[dots:], ".", "/")

	if dots > 0 {
		base := path.Dir(importer)
		for i := 1; i < dots; i++ {
			base = path.Dir(base)
		}
		if rest == "" {
			return t.pythonPackageInit(importer, module, exts)
		}
		return t.probe(moduleForms(path.Join(base, rest), exts, "__init__")...)
	}
	if rest == "" {
		return nil
	}
	if found := t.probe(moduleForms(path.Join(path.Dir(importer), rest), exts, "__init__")...); found != nil {
		return found
	}
	if found := t.probe(moduleForms(rest, exts, "__init__")...); found != nil {
		return found
	}
	return t.suffixMatch(path.Base(rest), moduleForms(rest, exts, "__init__"))
}

// pythonPackageInit maps the package a bare relative module ("." or "..")
// names to its __init__ file.
func (t *fileTable) pythonPackageInit(importer, module string, exts []string) []string {
	dots := len(module)
	base := path.Dir(importer)
	for i := 1; i < dots; i++ {
		base = path.Dir(base)
	}
	forms := make([]string, 0, len(exts))
	for _, ext := range exts {
		forms = append(forms, path.Join(base, "__init__"+ext))
	}
	return t.probe(forms...)
}

// jsModule maps relative and root-anchored specifiers. Bare package
// specifiers are external.
func (t *fileTable) jsModule(importer, spec string) []string {
	var p string
	switch {
	case strings.HasPrefix(spec, "./"), strings.HasPrefix(spec, "../"), spec == ".", spec == "..":
		p = path.Join(path.Dir(importer), spec)
	case strings.HasPrefix(spec, "/"):
		p = strings.TrimPrefix(path.Clean(spec), "/")
	default:
		return nil
	}
	forms := []string{p}
	forms = append(forms, moduleForms(p, jsExts, "index")...)
	return t.probe(forms...)
}

// javaClass maps a fully qualified class name, dropping trailing segments
// (static members, nested classes) until a file matches. It returns the
// files and the number of dropped segments.
func (t *fileTable) javaClass(fqn string) ([]string, int) {
	parts := strings.Split(fqn, ".")
	for dropped := 0; dropped < len(parts)-1; dropped++ {
		p := strings.Join(parts[:len(parts)-dropped], "/")
		forms := []string{p + ".java"}
		if found := t.probe(forms...); found != nil {
			return found, dropped
		}
		if found := t.suffixMatch(path.Base(p), forms); found != nil {
			return found, dropped
		}
	}
	return nil, 0
}

// javaPackage returns the Java files of every directory ending in the
// package path.
func (t *fileTable) javaPackage(pkg string) []string {
	dir := strings.ReplaceAll(pkg, ".", "/")
	var out []string
	for _, d := range t.dirs {
		if d != dir && !strings.HasSuffix(d, "/"+dir) {
			continue
		}
		for _, f := range t.byDir[d] {
			if t.languages[f] == ast.LanguageJava {
				out = append(out, f)
			}
		}
	}
	return out
}

// cppInclude maps a quoted include: next to the importer, then at the root,
// then by suffix.
func (t *fileTable) cppInclude(importer, spec string) []string {
	spec = path.Clean(spec)
	if found := t.probe(path.Join(path.Dir(importer), spec), spec); found != nil {
		return found
	}
	return t.suffixMatch(trimExt(path.Base(spec)), []string{spec})
}

// rustCrateRoot returns the nearest ancestor directory holding lib.rs or
// main.rs, or the importer's directory.
func (t *fileTable) rustCrateRoot(importer string) string {
	for dir := path.Dir(importer); ; dir = path.Dir(dir) {
		if t.has(path.Join(dir, "lib.rs")) || t.has(path.Join(dir, "main.rs")) {
			return dir
		}
		if dir == "." || dir == "/" {
			return path.Dir(importer)
		}
	}
}

// rustModuleDir returns the directory holding child modules of importer.
func rustModuleDir(importer string) string {
	switch path.Base(importer) {
	case "mod.rs", "lib.rs", "main.rs":
		return path.Dir(importer)
	}
	return strings.TrimSuffix(importer, ".rs")
}

// rustModule maps a use path. Unless exact is set, trailing segments are
// dropped until a file matches, since use paths usually end in an item.
func (t *fileTable) rustModule(importer, module string, exact bool) []string {
	segs := strings.Split(module, "::")
	var base string
	switch segs[0] {
	case "crate":
		base, segs = t.rustCrateRoot(importer), segs[1:]
	case "self":
		base, segs = rustModuleDir(importer), segs[1:]
	case "super":
		base = path.Dir(rustModuleDir(importer))
		segs = segs[1:]
		for len(segs) > 0 && segs[0] == "super" {
			base, segs = path.Dir(base), segs[1:]
		}
	default:
		base = t.rustCrateRoot(importer)
	}

	for n := len(segs); n >= 0; n-- {
		if n == 0 {
			if module == "crate" || strings.HasPrefix(module, "crate::") {
				return t.probe(path.Join(base, "lib.rs"), path.Join(base, "main.rs"))
			}
			return nil
		}
		p := path.Join(append([]string{base}, segs[:n]...)...)
		if found := t.probe(p+".rs", p+"/mod.rs"); found != nil {
			return found
		}
		if exact {
			return nil
		}
	}
	return nil
}

// goPackage maps an import path to the Go files of its directory.
func (t *fileTable) goPackage(importPath, modulePath string) []string {
	var dir string
	switch {
	case modulePath != "" && importPath == modulePath:
		dir = "."
	case modulePath != "" && strings.HasPrefix(importPath, modulePath+"/"):
		dir = strings.TrimPrefix(importPath, modulePath+"/")
	case modulePath != "":
		return nil
	default:
		for _, d := range t.dirs {
			if d != "." && (importPath == d || strings.HasSuffix(importPath, "/"+d)) {
				dir = d
				break
			}
		}
		if dir == "" {
			return nil
		}
	}
	var out []string
	for _, f := range t.byDir[dir] {
		if t.languages[f] == ast.LanguageGo && !strings.HasSuffix(f, "_test.go") {
			out = append(out, f)
		}
	}
	return out
}

// importScope is what one file's imports make visible.
type importScope struct {
	// visible files are searched for unqualified names.
	visible []string
	// imported files are searched for names behind unknown qualifiers.
	imported []string
	seen     map[string]bool
	seenVis  map[string]bool

	byQualifier map[string][]string
	byName      map[string]importedName

	// targets holds one entry per mapped module, for imports edges.
	targets []importTarget
}

type importedName struct {
	files    []string
	original string
}

type importTarget struct {
	ref   extract.Reference
	files []string
}

func newImportScope() *importScope {
	return &importScope{
		seen:        make(map[string]bool),
		seenVis:     make(map[string]bool),
		byQualifier: make(map[string][]string),
		byName:      make(map[string]importedName),
	}
}

func (s *importScope) addImported(files ...string) {
	for _, f := range files {
		if !s.seen[f] {
			s.seen[f] = true
			s.imported = append(s.imported, f)
		}
	}
}

func (s *importScope) addVisible(files ...string) {
	s.addImported(files...)
	for _, f := range files {
		if !s.seenVis[f] {
			s.seenVis[f] = true
			s.visible = append(s.visible, f)
		}
	}
}

func (s *importScope) bindQualifier(local string, files []string) {
	if local == "" {
		return
	}
	s.byQualifier[local] = append(s.byQualifier[local], files...)
	s.addImported(files...)
}

func (s *importScope) bindName(local, original string, files []string) {
	if local == "" {
		return
	}
	s.byName[local] = importedName{files: files, original: original}
	s.addVisible(files...)
}

// bound reports whether q, or its leading segment, names an import.
func (s *importScope) bound(q string) bool {
	if _, ok := s.byQualifier[q]; ok {
		return true
	}
	if _, ok := s.byName[q]; ok {
		return true
	}
	head := firstSegment(q)
	if head == q {
		return false
	}
	_, okQ := s.byQualifier[head]
	_, okN := s.byName[head]
	return okQ || okN
}

// bindImport records one import reference of importer in s.
func (t *fileTable) bindImport(s *importScope, importer string, lang ast.Language, ref extract.Reference, goModule string) {
	target := func(files []string) {
		s.targets = append(s.targets, importTarget{ref: ref, files: files})
	}

	switch lang {
	case ast.LanguagePython, ast.LanguageJac:
		exts := pythonExts
		if lang == ast.LanguageJac {
			exts = jacExts
		}
		if len(ref.Names) == 0 {
			files := t.pythonModule(importer, ref.Name, exts)
			local := ref.Qualifier
			if local == "" {
				local = ref.Name
			}
			s.bindQualifier(local, files)
			target(files)
			return
		}
		base := t.pythonModule(importer, ref.Name, exts)
		baseUsed, subs := false, 0
		for _, n := range ref.Names {
			local, original := splitAlias(n)
			if original == "*" {
				s.addVisible(base...)
				baseUsed = true
				continue
			}
			if sub := t.pythonModule(importer, joinModule(ref.Name, original), exts); sub != nil && !sameFiles(sub, base) {
				s.bindQualifier(local, sub)
				target(sub)
				subs++
				continue
			}
			s.bindName(local, original, base)
			baseUsed = true
		}
		if baseUsed || subs == 0 {
			target(base)
		}

	case ast.LanguageJavaScript:
		files := t.jsModule(importer, ref.Name)
		target(files)
		if ref.Qualifier != "" {
			s.bindQualifier(ref.Qualifier, files)
		}
		for _, n := range ref.Names {
			local, original := splitAlias(n)
			if original == "default" {
				original = local
			}
			s.bindName(local, original, files)
		}
		if ref.Qualifier == "" && len(ref.Names) == 0 {
			s.addVisible(files...)
		}

	case ast.LanguageJava:
		if len(ref.Names) == 1 && ref.Names[0] == "*" {
			files := t.javaPackage(ref.Name)
			s.addVisible(files...)
			target(files)
			return
		}
		files, _ := t.javaClass(ref.Name)
		name := lastSegment(ref.Name, ".")
		s.bindName(name, name, files)
		target(files)

	case ast.LanguageCpp:
		files := t.cppInclude(importer, ref.Name)
		s.addVisible(files...)
		target(files)

	case ast.LanguageRust:
		if len(ref.Names) == 0 {
			files := t.rustModule(importer, ref.Name, false)
			s.bindQualifier(lastSegment(ref.Name, "::"), files)
			target(files)
			return
		}
		base := t.rustModule(importer, ref.Name, false)
		baseUsed, subs := false, 0
		for _, n := range ref.Names {
			local, original := splitAlias(n)
			switch original {
			case "*":
				s.addVisible(base...)
				baseUsed = true
				continue
			case "self":
				if local == "self" {
					local = lastSegment(ref.Name, "::")
				}
				s.bindQualifier(local, base)
				baseUsed = true
				continue
			}
			if sub := t.rustModule(importer, ref.Name+"::"+original, true); sub != nil {
				s.bindQualifier(local, sub)
				target(sub)
				subs++
				continue
			}
			s.bindName(local, original, base)
			baseUsed = true
		}
		if baseUsed || subs == 0 {
			target(base)
		}

	case ast.LanguageGo:
		files := t.goPackage(ref.Name, goModule)
		target(files)
		switch ref.Qualifier {
		case "_":
			return
		case ".":
			s.addVisible(files...)
			return
		}
		local := ref.Qualifier
		if local == "" && len(files) > 0 {
			local = t.packages[files[0]]
		}
		if local == "" {
			local = lastSegment(ref.Name, "/")
		}
		s.bindQualifier(local, files)
	}
}

// implicitFiles returns the files a language makes visible without an
// import: the rest of a Go package or Java package directory.
func (t *fileTable) implicitFiles(importer string, lang ast.Language) []string {
	switch lang {
	case ast.LanguageGo:
		pkg := t.packages[importer]
		var out []string
		for _, f := range t.sameDir(importer, lang) {
			if pkg == "" || t.packages[f] == pkg {
				out = append(out, f)
			}
		}
		return out
	case ast.LanguageJava:
		return t.sameDir(importer, lang)
	}
	return nil
}

// splitAlias splits "name as alias" into (local, original).
func splitAlias(n string) (local, original string) {
	if i := strings.Index(n, " as "); i >= 0 {
		return strings.TrimSpace(n[i+4:]), strings.TrimSpace(n[:i])
	}
	n = strings.TrimSpace(n)
	return n, n
}

// joinModule appends a name to a dotted module path, keeping relative dots.
func joinModule(module, name string) string {
	if strings.HasSuffix(module, ".") {
		return module + name
	}
	return module + "." + name
}

func sameFiles(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func trimExt(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}

func lastSegment(s, sep string) string {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[i+len(sep):]
	}
	return s
}

// firstSegment returns the part of a qualifier before its first "." or "::".
func firstSegment(q string) string {
	end := len(q)
	if i := strings.Index(q, "."); i >= 0 && i < end {
		end = i
	}
	if i := strings.Index(q, "::"); i >= 0 && i < end {
		end = i
	}
	return q[:end]
}
