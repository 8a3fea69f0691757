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
	"errors"
	"fmt"
)

// Sentinel errors for parse failure conditions.
//
// These errors can be checked using errors.Is() to determine the
// category of failure without inspecting error messages.
var (
	// ErrUnsupportedLanguage indicates that no adapter is registered for the
	// requested language or file extension.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrSyntax indicates that the source contains a syntax error.
	ErrSyntax = errors.New("syntax error")

	// ErrParseFailed indicates that the grammar produced no usable tree.
	ErrParseFailed = errors.New("parse failed")

	// ErrInvalidContent indicates content that is not valid UTF-8 text.
	ErrInvalidContent = errors.New("invalid content")

	// ErrFileTooLarge indicates content above the adapter size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrTimeout indicates that parsing or extraction exceeded the per-file
	// time limit.
	ErrTimeout = errors.New("parse timeout")

	// ErrCanceled indicates that the build was canceled while the file was
	// being processed.
	ErrCanceled = errors.New("parse canceled")

	// ErrTreeMismatch indicates a Tree handed to an adapter of another language.
	ErrTreeMismatch = errors.New("tree language mismatch")
)

// DefaultMaxFileSize is the maximum file size an adapter will accept (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// WarnFileSize is the threshold at which a warning is logged (1MB).
const WarnFileSize = 1 * 1024 * 1024

// ParseFailure describes why a file could not be turned into declarations.
//
// A ParseFailure is never fatal to a build: the file is skipped and the
// failure is reported as a parse-failure diagnostic.
//
// Example:
//
//	tree, err := adapter.Parse(ctx, content, "pkg/a.py")
//	var pf *ParseFailure
//	if errors.As(err, &pf) {
//	    fmt.Printf("%s: %s at byte %d\n", pf.FilePath, pf.Message, pf.Offset)
//	}
type ParseFailure struct {
	// FilePath is the root-relative path of the file.
	FilePath string

	// Language of the adapter that failed.
	Language Language

	// Offset is the byte offset of the first error, or 0.
	Offset int

	// Line is the 1-indexed line of the first error, or 0 if unknown.
	Line int

	// Column is the 1-indexed column of the first error, or 0 if unknown.
	Column int

	// Message describes the failure.
	Message string

	// Cause is one of the sentinel errors above, possibly wrapping a context error.
	Cause error
}

// Error formats the failure as "file:line:col: message".
func (e *ParseFailure) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.FilePath, e.Line, e.Column, e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.FilePath, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.FilePath, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ParseFailure) Unwrap() error {
	return e.Cause
}

// NewParseFailure creates a ParseFailure without a source location.
func NewParseFailure(filePath string, lang Language, message string, cause error) *ParseFailure {
	return &ParseFailure{
		FilePath: filePath,
		Language: lang,
		Message:  message,
		Cause:    cause,
	}
}

// NewSyntaxFailure creates a ParseFailure anchored at a source position.
func NewSyntaxFailure(filePath string, lang Language, offset, line, column int, message string) *ParseFailure {
	return &ParseFailure{
		FilePath: filePath,
		Language: lang,
		Offset:   offset,
		Line:     line,
		Column:   column,
		Message:  message,
		Cause:    ErrSyntax,
	}
}

// AsParseFailure extracts a ParseFailure from err.
//
// Errors that are not ParseFailures (for example a bare context error) are
// wrapped so callers always get a value to report.
func AsParseFailure(err error, filePath string, lang Language) *ParseFailure {
	if err == nil {
		return nil
	}
	var pf *ParseFailure
	if errors.As(err, &pf) {
		return pf
	}
	return &ParseFailure{
		FilePath: filePath,
		Language: lang,
		Message:  err.Error(),
		Cause:    err,
	}
}

// IsTimeout reports whether err is a per-file timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
