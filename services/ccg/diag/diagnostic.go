// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diag defines the non-fatal diagnostic records produced while
// building a code context graph.
//
// Every per-file or per-reference problem (unsupported language, parse
// failure, unresolved reference, rejected edge) is recorded as a Diagnostic
// instead of being returned as an error. Diagnostics carry enough context to
// explain a degraded result and are ordered deterministically so repeated
// builds over an unchanged tree report them in the same order.
package diag

import (
	"fmt"
	"sort"
	"sync"
)

// Severity is the importance of a diagnostic.
type Severity string

const (
	// SeverityInfo marks expected degradations (external references, skipped files).
	SeverityInfo Severity = "info"

	// SeverityWarning marks problems a user may want to act on (parse failures,
	// invariant violations, read errors).
	SeverityWarning Severity = "warning"
)

// Code classifies a diagnostic.
type Code string

const (
	// CodeUnsupportedLanguage is a file whose language could not be classified
	// or has no grammar adapter.
	CodeUnsupportedLanguage Code = "unsupported-language"

	// CodeLanguageDisabled is a supported file whose language was disabled by configuration.
	CodeLanguageDisabled Code = "language-disabled"

	// CodeParseFailure is a file that could not be parsed (syntax error, timeout).
	CodeParseFailure Code = "parse-failure"

	// CodeUnresolvedReference is a reference with zero candidates.
	CodeUnresolvedReference Code = "unresolved-reference"

	// CodeAmbiguousReference is a reference resolved to several best-effort candidates.
	CodeAmbiguousReference Code = "ambiguous-reference"

	// CodeInvariantViolation is a dangling edge, duplicate declaration or
	// containment cycle rejected by the assembler.
	CodeInvariantViolation Code = "invariant-violation"

	// CodeImportCycle reports modules that import each other.
	CodeImportCycle Code = "import-cycle"

	// CodeZeroFiles reports a tree with no parseable files.
	CodeZeroFiles Code = "zero-files"

	// CodeMaxFilesReached reports that the max-files cap truncated the scan.
	CodeMaxFilesReached Code = "max-files-reached"

	// CodeFileTooLarge is a file skipped because it exceeds the size limit.
	CodeFileTooLarge Code = "file-too-large"

	// CodeBinaryFile is a file skipped because its content looks binary.
	CodeBinaryFile Code = "binary-file"

	// CodeIOError is a file that could not be read after retries.
	CodeIOError Code = "io-error"
)

// DefaultSeverity returns the severity normally attached to a code.
func (c Code) DefaultSeverity() Severity {
	switch c {
	case CodeParseFailure, CodeInvariantViolation, CodeIOError, CodeZeroFiles, CodeMaxFilesReached:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Diagnostic is one non-fatal record describing a degraded or skipped part of a build.
type Diagnostic struct {
	// Path is the root-relative, slash-separated file path. Empty for
	// project-wide diagnostics such as CodeZeroFiles.
	Path string `json:"path"`

	// Severity is info or warning.
	Severity Severity `json:"severity"`

	// Code classifies the diagnostic.
	Code Code `json:"code"`

	// Message is a human-readable explanation.
	Message string `json:"message"`

	// Offset is the byte offset inside Path the diagnostic refers to, or 0.
	Offset int `json:"offset,omitempty"`
}

// String formats the diagnostic as "path:offset: [code] message".
func (d Diagnostic) String() string {
	path := d.Path
	if path == "" {
		path = "<project>"
	}
	if d.Offset > 0 {
		return fmt.Sprintf("%s:%d: [%s] %s", path, d.Offset, d.Code, d.Message)
	}
	return fmt.Sprintf("%s: [%s] %s", path, d.Code, d.Message)
}

// New creates a diagnostic with the code's default severity.
func New(path string, code Code, format string, args ...any) Diagnostic {
	return Diagnostic{
		Path:     path,
		Severity: code.DefaultSeverity(),
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
	}
}

// NewAt creates a diagnostic anchored at a byte offset.
func NewAt(path string, offset int, code Code, format string, args ...any) Diagnostic {
	d := New(path, code, format, args...)
	d.Offset = offset
	return d
}

// Less reports whether a sorts before b.
//
// Ordering is path, offset, code, message, severity. Project-wide
// diagnostics (empty path) sort first.
func Less(a, b Diagnostic) bool {
	if a.Path != b.Path {
		return a.Path < b.Path
	}
	if a.Offset != b.Offset {
		return a.Offset < b.Offset
	}
	if a.Code != b.Code {
		return a.Code < b.Code
	}
	if a.Message != b.Message {
		return a.Message < b.Message
	}
	return a.Severity < b.Severity
}

// Sort orders diagnostics deterministically in place and removes exact duplicates.
//
// Returns the compacted slice.
func Sort(ds []Diagnostic) []Diagnostic {
	sort.SliceStable(ds, func(i, j int) bool { return Less(ds[i], ds[j]) })
	if len(ds) < 2 {
		return ds
	}
	out := ds[:1]
	for _, d := range ds[1:] {
		if d != out[len(out)-1] {
			out = append(out, d)
		}
	}
	return out
}

// Count returns how many diagnostics carry the given code.
func Count(ds []Diagnostic, code Code) int {
	n := 0
	for _, d := range ds {
		if d.Code == code {
			n++
		}
	}
	return n
}

// Collector accumulates diagnostics from concurrent workers.
//
// Thread Safety: safe for concurrent use.
type Collector struct {
	mu    sync.Mutex
	items []Diagnostic
}

// Add appends diagnostics.
func (c *Collector) Add(ds ...Diagnostic) {
	if len(ds) == 0 {
		return
	}
	c.mu.Lock()
	c.items = append(c.items, ds...)
	c.mu.Unlock()
}

// Len returns the number of collected diagnostics.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Sorted returns a sorted, de-duplicated copy of the collected diagnostics.
func (c *Collector) Sorted() []Diagnostic {
	c.mu.Lock()
	out := make([]Diagnostic, len(c.items))
	copy(out, c.items)
	c.mu.Unlock()
	return Sort(out)
}
