// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package builder

import (
	"errors"
	"fmt"
)

var (
	// ErrRootNotFound indicates the root path is empty or does not exist.
	ErrRootNotFound = errors.New("root path does not exist")

	// ErrRootNotDir indicates the root path is not a directory.
	ErrRootNotDir = errors.New("root path is not a directory")

	// ErrNoReadableFiles indicates source files were found but none could be read.
	ErrNoReadableFiles = errors.New("no readable source files")

	// ErrCanceled indicates the build was cancelled through its context.
	ErrCanceled = errors.New("build canceled")

	// ErrInvalidOptions indicates the builder was misconfigured, for
	// example with an ignore glob that does not compile.
	ErrInvalidOptions = errors.New("invalid build options")
)

// FatalInputError is the only error Build returns.
//
// Reason is one of the sentinels above; Cause, when set, is the underlying
// error (a filesystem or context error). Both are reachable with errors.Is.
type FatalInputError struct {
	Root   string
	Reason error
	Cause  error
}

// Error implements the error interface.
func (e *FatalInputError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("build %s: %v: %v", e.Root, e.Reason, e.Cause)
	}
	return fmt.Sprintf("build %s: %v", e.Root, e.Reason)
}

// Unwrap exposes both the reason and the cause.
func (e *FatalInputError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Cause}
}

func fatal(root string, reason, cause error) *FatalInputError {
	return &FatalInputError{Root: root, Reason: reason, Cause: cause}
}
