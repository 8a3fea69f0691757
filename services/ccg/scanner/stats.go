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
	"path"
	"sort"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
)

// LanguageStats summarizes the languages found by a scan.
type LanguageStats struct {
	// Files maps each detected language to its file count.
	Files map[ast.Language]int `json:"files"`

	// Total is the number of classified files.
	Total int `json:"total"`

	// Primary is the language with the most files. Ties break by name.
	// Empty when nothing was classified.
	Primary ast.Language `json:"primary,omitempty"`

	// Confidence is the primary language's share of classified files, in [0, 1].
	Confidence float64 `json:"confidence"`
}

// ComputeLanguageStats counts classified entries per language.
func ComputeLanguageStats(entries []FileEntry) LanguageStats {
	stats := LanguageStats{Files: make(map[ast.Language]int)}
	for _, e := range entries {
		if e.Language == "" {
			continue
		}
		stats.Files[e.Language]++
		stats.Total++
	}
	if stats.Total == 0 {
		return stats
	}

	langs := make([]ast.Language, 0, len(stats.Files))
	for l := range stats.Files {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool {
		if stats.Files[langs[i]] != stats.Files[langs[j]] {
			return stats.Files[langs[i]] > stats.Files[langs[j]]
		}
		return langs[i] < langs[j]
	})
	stats.Primary = langs[0]
	stats.Confidence = float64(stats.Files[stats.Primary]) / float64(stats.Total)
	return stats
}

// entryPointNames are filenames that conventionally start a program.
var entryPointNames = map[string]ast.Language{
	"main.py":          ast.LanguagePython,
	"__main__.py":      ast.LanguagePython,
	"app.py":           ast.LanguagePython,
	"run.py":           ast.LanguagePython,
	"manage.py":        ast.LanguagePython,
	"main.jac":         ast.LanguageJac,
	"app.jac":          ast.LanguageJac,
	"index.js":         ast.LanguageJavaScript,
	"server.js":        ast.LanguageJavaScript,
	"app.js":           ast.LanguageJavaScript,
	"main.js":          ast.LanguageJavaScript,
	"Main.java":        ast.LanguageJava,
	"Application.java": ast.LanguageJava,
	"main.cpp":         ast.LanguageCpp,
	"main.cc":          ast.LanguageCpp,
	"main.rs":          ast.LanguageRust,
	"main.go":          ast.LanguageGo,
}

// IsEntryPointFile reports whether relPath has a conventional entry-point name.
func IsEntryPointFile(relPath string) bool {
	_, ok := entryPointNames[path.Base(relPath)]
	return ok
}
