// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scanner

import (
	"bytes"
	"path"
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
)

// sniffSize is how many leading bytes are inspected for shebangs, content
// heuristics and binary detection.
const sniffSize = 8000

// knownFilenames maps extensionless build scripts to their language.
var knownFilenames = map[string]ast.Language{
	"SConstruct": ast.LanguagePython,
	"SConscript": ast.LanguagePython,
	"wscript":    ast.LanguagePython,
	"Snakefile":  ast.LanguagePython,
	"Jakefile":   ast.LanguageJavaScript,
}

// interpreters maps shebang interpreter names to languages. Names are
// matched after stripping version suffixes ("python3.11" -> "python").
var interpreters = map[string]ast.Language{
	"python":      ast.LanguagePython,
	"pypy":        ast.LanguagePython,
	"node":        ast.LanguageJavaScript,
	"nodejs":      ast.LanguageJavaScript,
	"jac":         ast.LanguageJac,
	"rust-script": ast.LanguageRust,
}

// jacPatterns are the content signals for Jac sources. A file needs at least
// two distinct signals before it is classified as Jac.
var jacPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\s*(node|walker|edge|obj)\s+\w+`),
	regexp.MustCompile(`(?m)\bcan\s+\w+\s+with\b`),
	regexp.MustCompile(`(?m)\bwith\s+entry\b`),
	regexp.MustCompile(`(?m)^\s*(has|glob)\s+\w+\s*[:=]`),
}

// Detector classifies files into languages.
//
// Description:
//
//	Classification is attempted in order: file extension (through the adapter
//	registry), well-known extensionless filenames, shebang interpreter, and
//	finally content heuristics for Jac. Only the last two need file content.
//
// Thread Safety:
//
//	Detector is safe for concurrent use.
type Detector struct {
	registry *ast.Registry
}

// NewDetector creates a detector backed by the given registry. A nil
// registry uses ast.DefaultRegistry().
func NewDetector(registry *ast.Registry) *Detector {
	if registry == nil {
		registry = ast.DefaultRegistry()
	}
	return &Detector{registry: registry}
}

// ByPath classifies a file by its name alone.
//
// Returns the language and true when the extension or filename is known.
// needsContent is true when the file has no extension, meaning ByContent
// may still classify it.
func (d *Detector) ByPath(relPath string) (lang ast.Language, ok bool, needsContent bool) {
	base := path.Base(relPath)
	if l, found := knownFilenames[base]; found {
		if _, registered := d.registry.GetByLanguage(l); registered {
			return l, true, false
		}
	}

	ext := path.Ext(base)
	if ext == "" || ext == base {
		return "", false, true
	}
	if a, found := d.registry.GetByExtension(ext); found {
		return a.Language(), true, false
	}
	return "", false, false
}

// ByContent classifies an extensionless file from its leading bytes.
func (d *Detector) ByContent(head []byte) (ast.Language, bool) {
	if lang, ok := shebangLanguage(head); ok {
		if _, registered := d.registry.GetByLanguage(lang); registered {
			return lang, true
		}
		return "", false
	}
	if looksLikeJac(head) {
		if _, registered := d.registry.GetByLanguage(ast.LanguageJac); registered {
			return ast.LanguageJac, true
		}
	}
	return "", false
}

// shebangLanguage parses a "#!" first line.
func shebangLanguage(head []byte) (ast.Language, bool) {
	if !bytes.HasPrefix(head, []byte("#!")) {
		return "", false
	}
	line := head[2:]
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(string(line))
	if len(fields) == 0 {
		return "", false
	}

	interp := path.Base(fields[0])
	if interp == "env" {
		interp = ""
		for _, f := range fields[1:] {
			if strings.HasPrefix(f, "-") || strings.Contains(f, "=") {
				continue
			}
			interp = path.Base(f)
			break
		}
	}
	interp = strings.TrimRight(interp, "0123456789.")
	lang, ok := interpreters[interp]
	return lang, ok
}

// looksLikeJac reports whether content carries at least two Jac signals.
func looksLikeJac(head []byte) bool {
	hits := 0
	for _, re := range jacPatterns {
		if re.Match(head) {
			hits++
			if hits >= 2 {
				return true
			}
		}
	}
	return false
}

// isBinary reports whether content looks binary (contains a NUL byte in the
// sniffed prefix).
func isBinary(content []byte) bool {
	if len(content) > sniffSize {
		content = content[:sniffSize]
	}
	return bytes.IndexByte(content, 0) >= 0
}
