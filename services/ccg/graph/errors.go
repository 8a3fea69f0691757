// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph provides the code context graph and its assembler.
//
// The graph represents a project as declarations (modules, classes,
// functions, methods, variables) connected by typed edges (contains, calls,
// imports, inherits, references). Every edge carries a confidence: resolved
// when exactly one target was found, best-effort when resolution had to
// guess among several candidates.
//
// # Invariants
//
// A CodeContextGraph returned by the Assembler guarantees:
//   - declaration ids are unique
//   - every edge endpoint is a declaration in the graph
//   - contains edges form a forest (one parent per declaration, no cycles)
//   - declarations, edges and diagnostics are sorted deterministically
//
// Inputs that would break an invariant are dropped and reported as
// invariant-violation diagnostics; assembly itself never fails on data.
//
// # Thread Safety
//
// The Assembler is single-threaded. A CodeContextGraph is never mutated
// after assembly and is safe for concurrent reads.
package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph operations.
var (
	// ErrDuplicateDeclaration indicates a declaration id seen twice.
	ErrDuplicateDeclaration = errors.New("duplicate declaration id")

	// ErrDanglingEdge indicates an edge whose source or target is unknown.
	ErrDanglingEdge = errors.New("dangling edge")

	// ErrMultipleParents indicates a second contains edge into the same declaration.
	ErrMultipleParents = errors.New("declaration already has a parent")

	// ErrContainmentCycle indicates a contains edge that would close a cycle.
	ErrContainmentCycle = errors.New("containment cycle")

	// ErrDeclarationNotFound is returned by lookups for unknown ids.
	ErrDeclarationNotFound = errors.New("declaration not found")

	// ErrUnsupportedSchema indicates serialized data with an unknown schema version.
	ErrUnsupportedSchema = errors.New("unsupported schema version")

	// ErrHashMismatch indicates serialized data whose content does not match its hash.
	ErrHashMismatch = errors.New("graph hash mismatch")
)

// EdgeError describes an edge rejected by the assembler.
type EdgeError struct {
	// Edge is the rejected edge.
	Edge Edge

	// Err is one of the sentinel errors above.
	Err error
}

// Error formats the rejection.
func (e *EdgeError) Error() string {
	return fmt.Sprintf("%s edge %s -> %s: %v", e.Edge.Kind, e.Edge.SourceID, e.Edge.TargetID, e.Err)
}

// Unwrap returns the sentinel cause.
func (e *EdgeError) Unwrap() error {
	return e.Err
}
