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

import "sort"

// stronglyConnected returns the strongly connected components of a
// directed graph using Tarjan's algorithm.
//
// Nodes are visited in the given order and each component is sorted, so
// the output is deterministic for a sorted node list. Components are
// returned in the order they complete.
//
// Complexity: O(V + E).
func stronglyConnected(nodes []string, adj map[string][]string) [][]string {
	var (
		index   = make(map[string]int, len(nodes))
		lowlink = make(map[string]int, len(nodes))
		onStack = make(map[string]bool, len(nodes))
		stack   []string
		next    int
		out     [][]string
	)

	var visit func(v string)
	visit = func(v string) {
		index[v] = next
		lowlink[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		succ := append([]string(nil), adj[v]...)
		sort.Strings(succ)
		for _, w := range succ {
			if _, seen := index[w]; !seen {
				visit(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], index[w])
			}
		}

		if lowlink[v] != index[v] {
			return
		}
		var comp []string
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			comp = append(comp, w)
			if w == v {
				break
			}
		}
		sort.Strings(comp)
		out = append(out, comp)
	}

	for _, v := range nodes {
		if _, seen := index[v]; !seen {
			visit(v)
		}
	}
	return out
}
