// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
)

// EdgeKind is the relationship an edge expresses.
type EdgeKind string

const (
	// EdgeContains links an enclosing declaration to a nested one.
	EdgeContains EdgeKind = "contains"

	// EdgeCalls links a caller to a callee.
	EdgeCalls EdgeKind = "calls"

	// EdgeImports links an importing module to an imported module.
	EdgeImports EdgeKind = "imports"

	// EdgeInherits links a class to a base class, trait or interface.
	EdgeInherits EdgeKind = "inherits"

	// EdgeReferences links a use site's scope to a referenced declaration.
	EdgeReferences EdgeKind = "references"
)

// AllEdgeKinds returns every edge kind in a fixed order.
func AllEdgeKinds() []EdgeKind {
	return []EdgeKind{EdgeContains, EdgeCalls, EdgeImports, EdgeInherits, EdgeReferences}
}

// Valid reports whether k is a known edge kind.
func (k EdgeKind) Valid() bool {
	switch k {
	case EdgeContains, EdgeCalls, EdgeImports, EdgeInherits, EdgeReferences:
		return true
	}
	return false
}

// Confidence grades how an edge was resolved.
type Confidence string

const (
	// ConfidenceResolved means exactly one candidate matched.
	ConfidenceResolved Confidence = "resolved"

	// ConfidenceBestEffort means the edge is one of several candidates.
	ConfidenceBestEffort Confidence = "best-effort"
)

// rank orders confidences so the stronger one wins a merge.
func (c Confidence) rank() int {
	if c == ConfidenceResolved {
		return 1
	}
	return 0
}

// Declaration is one node of the code context graph.
type Declaration struct {
	// ID is the stable identifier, see DeclarationID.
	ID string `json:"id"`

	// Kind is the normalized declaration kind.
	Kind ast.Kind `json:"kind"`

	// Name is the declared identifier. Modules are named after their file.
	Name string `json:"name"`

	// FilePath is the root-relative, slash-separated path.
	FilePath string `json:"file_path"`

	// Span is the byte and line range in the file.
	Span ast.Span `json:"span"`

	// ParentID is the enclosing declaration, empty for modules.
	ParentID string `json:"parent_id,omitempty"`

	// Language of the file.
	Language ast.Language `json:"language"`

	// DocComment is the docstring or leading comment.
	DocComment string `json:"doc_comment,omitempty"`

	// Parameters lists parameter names of callables.
	Parameters []string `json:"parameters,omitempty"`

	// Signature is the declaration header.
	Signature string `json:"signature,omitempty"`
}

// IsTopLevel reports whether the declaration sits directly in its module.
func (d Declaration) IsTopLevel(moduleID string) bool {
	return d.ParentID == moduleID
}

// Edge is a typed, directed relationship between two declarations.
type Edge struct {
	Kind       EdgeKind   `json:"kind"`
	SourceID   string     `json:"source_id"`
	TargetID   string     `json:"target_id"`
	Confidence Confidence `json:"confidence"`
}

// Key identifies an edge independent of its confidence.
func (e Edge) Key() string {
	return string(e.Kind) + "|" + e.SourceID + "|" + e.TargetID
}

// edgeLess orders edges by source, target, kind, confidence.
func edgeLess(a, b Edge) bool {
	if a.SourceID != b.SourceID {
		return a.SourceID < b.SourceID
	}
	if a.TargetID != b.TargetID {
		return a.TargetID < b.TargetID
	}
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	return a.Confidence < b.Confidence
}

// DeclarationID computes the stable id of a declaration.
//
// The id is the first 16 bytes of SHA-256 over the relative path, start
// byte, end byte and kind, hex encoded. It depends only on where the
// declaration is written, so an unchanged file yields unchanged ids.
func DeclarationID(relPath string, span ast.Span, kind ast.Kind) string {
	h := sha256.New()
	h.Write([]byte(relPath))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(span.Start)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(span.End)))
	h.Write([]byte{0})
	h.Write([]byte(kind))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}
