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
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/AleutianAI/AleutianCCG/services/ccg/diag"
)

// SchemaVersion is the version of the exported graph format.
// Increment when the format changes in a breaking way.
const SchemaVersion = "1.0"

// SerializableGraph is the flat JSON form of a CodeContextGraph.
//
// Description:
//
//	The format carries no timestamps: two builds of an unchanged tree
//	serialize to identical bytes. Declarations are sorted by id, edges by
//	source, target and kind, and diagnostics by path and offset.
//
// Thread Safety: SerializableGraph is a value type with no internal state.
type SerializableGraph struct {
	// SchemaVersion identifies the format version.
	SchemaVersion string `json:"schema_version"`

	// ProjectRoot is the absolute path the graph was built from.
	ProjectRoot string `json:"project_root"`

	// GraphHash is the content hash over declarations, edges and diagnostics.
	GraphHash string `json:"graph_hash"`

	Declarations []Declaration     `json:"declarations"`
	Edges        []Edge            `json:"edges"`
	Diagnostics  []diag.Diagnostic `json:"diagnostics"`
}

// ToSerializable converts the graph to its exported form.
//
// Outputs:
//
//	*SerializableGraph - Never nil. A nil graph yields an empty document.
func (g *CodeContextGraph) ToSerializable() *SerializableGraph {
	if g == nil {
		empty := newGraph("", nil, nil, nil)
		return empty.ToSerializable()
	}
	return &SerializableGraph{
		SchemaVersion: SchemaVersion,
		ProjectRoot:   g.projectRoot,
		GraphHash:     g.hash,
		Declarations:  g.Declarations(),
		Edges:         g.Edges(),
		Diagnostics:   g.Diagnostics(),
	}
}

// FromSerializable rebuilds a graph from its exported form.
//
// Description:
//
//	The data is trusted to satisfy the graph invariants (it was produced
//	by the Assembler); only the schema version and, when present, the
//	content hash are verified.
//
// Errors:
//
//	ErrUnsupportedSchema for an unknown schema version, ErrHashMismatch
//	when the content does not match GraphHash.
func FromSerializable(sg *SerializableGraph) (*CodeContextGraph, error) {
	if sg == nil {
		return nil, errors.New("serializable graph must not be nil")
	}
	if sg.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: %q (expected %q)", ErrUnsupportedSchema, sg.SchemaVersion, SchemaVersion)
	}

	g := newGraph(sg.ProjectRoot, sg.Declarations, sg.Edges, sg.Diagnostics)
	if sg.GraphHash != "" && sg.GraphHash != g.hash {
		return nil, fmt.Errorf("%w: stored %s, computed %s", ErrHashMismatch, sg.GraphHash, g.hash)
	}
	return g, nil
}

// MarshalJSON encodes the graph in its exported form.
func (g *CodeContextGraph) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.ToSerializable())
}

// WriteJSON writes the indented exported form followed by a newline.
func (g *CodeContextGraph) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(g.ToSerializable()); err != nil {
		return fmt.Errorf("encoding graph: %w", err)
	}
	return nil
}

// ReadJSON decodes a graph written by WriteJSON or MarshalJSON.
func ReadJSON(r io.Reader) (*CodeContextGraph, error) {
	var sg SerializableGraph
	if err := json.NewDecoder(r).Decode(&sg); err != nil {
		return nil, fmt.Errorf("decoding graph: %w", err)
	}
	return FromSerializable(&sg)
}
