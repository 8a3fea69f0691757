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
	"strings"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
)

// NodeKind distinguishes directories from files in a FileTree.
type NodeKind string

const (
	NodeDir  NodeKind = "dir"
	NodeFile NodeKind = "file"
)

// FileNode is one entry of the file-tree summary.
type FileNode struct {
	// Name is the base name. The root node carries the root directory's name.
	Name string `json:"name"`

	// Path is the root-relative, slash-separated path. Empty for the root.
	Path string `json:"path"`

	// Kind is dir or file.
	Kind NodeKind `json:"kind"`

	// Size is the file size, or the total size of files below a directory.
	Size int64 `json:"size"`

	// Language is the detected language of a file, empty for directories and
	// unsupported files.
	Language ast.Language `json:"language,omitempty"`

	// Children are sorted directories first, then by name.
	Children []*FileNode `json:"children,omitempty"`
}

// FileCount returns the number of files at or below n.
func (n *FileNode) FileCount() int {
	if n == nil {
		return 0
	}
	if n.Kind == NodeFile {
		return 1
	}
	total := 0
	for _, c := range n.Children {
		total += c.FileCount()
	}
	return total
}

// Find returns the node at a root-relative path.
func (n *FileNode) Find(relPath string) (*FileNode, bool) {
	if n == nil {
		return nil, false
	}
	if relPath == "" || relPath == "." {
		return n, true
	}
	cur := n
	for _, part := range strings.Split(relPath, "/") {
		var next *FileNode
		for _, c := range cur.Children {
			if c.Name == part {
				next = c
				break
			}
		}
		if next == nil {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// BuildFileTree assembles the file-tree summary from scanned entries.
//
// Entries may arrive in any order; the result is sorted deterministically.
func BuildFileTree(rootName string, entries []FileEntry) *FileNode {
	root := &FileNode{Name: rootName, Kind: NodeDir}
	dirs := map[string]*FileNode{"": root}

	var dirFor func(p string) *FileNode
	dirFor = func(p string) *FileNode {
		if d, ok := dirs[p]; ok {
			return d
		}
		parent := dirFor(parentDir(p))
		d := &FileNode{Name: path.Base(p), Path: p, Kind: NodeDir}
		parent.Children = append(parent.Children, d)
		dirs[p] = d
		return d
	}

	for _, e := range entries {
		if e.RelPath == "" {
			continue
		}
		parent := dirFor(parentDir(e.RelPath))
		parent.Children = append(parent.Children, &FileNode{
			Name:     path.Base(e.RelPath),
			Path:     e.RelPath,
			Kind:     NodeFile,
			Size:     e.Size,
			Language: e.Language,
		})
	}

	finishTree(root)
	return root
}

func parentDir(p string) string {
	d := path.Dir(p)
	if d == "." || d == "/" {
		return ""
	}
	return d
}

// finishTree sorts children and totals directory sizes.
func finishTree(n *FileNode) int64 {
	if n.Kind == NodeFile {
		return n.Size
	}
	sort.Slice(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if a.Kind != b.Kind {
			return a.Kind == NodeDir
		}
		return a.Name < b.Name
	})
	var total int64
	for _, c := range n.Children {
		total += finishTree(c)
	}
	n.Size = total
	return total
}
