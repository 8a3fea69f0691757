// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"context"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianCCG/services/ccg/ast"
	"github.com/AleutianAI/AleutianCCG/services/ccg/graph"
)

// searchCheckInterval is how often Search checks for cancellation.
const searchCheckInterval = 1000

var tracer = otel.Tracer("ccg.index")

// Match is one Search result.
type Match struct {
	Declaration graph.Declaration
	Score       int

	// MatchType is exact, prefix, camelCase, substring or fuzzy.
	MatchType string
}

// Search finds declarations whose name resembles query.
//
// Description:
//
//	Ranks exact matches first, then prefixes, camelCase or snake_case word
//	matches, substrings and finally names within a small edit distance.
//	Within a tier, earlier match positions, closer lengths and callables
//	rank higher. Ties break by file and position. Modules are not searched.
//
// Inputs:
//
//	ctx - Checked every searchCheckInterval declarations.
//	query - Case-insensitive name fragment. Empty returns nil.
//	limit - Maximum results, 0 for all.
//
// Thread Safety: Safe for concurrent use after Freeze.
func (idx *SymbolIndex) Search(ctx context.Context, query string, limit int) ([]Match, error) {
	ctx, span := tracer.Start(ctx, "SymbolIndex.Search",
		trace.WithAttributes(attribute.String("index.query", query), attribute.Int("index.limit", limit)))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if query == "" {
		return nil, nil
	}
	queryLower := strings.ToLower(query)

	var results []Match
	count := 0
	for _, d := range idx.byID {
		count++
		if count%searchCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if d.Kind == ast.KindModule {
			continue
		}
		score, matchType := matchScore(query, queryLower, d.Name, strings.ToLower(d.Name), d.Kind)
		if score >= 0 {
			results = append(results, Match{Declaration: d, Score: score, MatchType: matchType})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score < results[j].Score
		}
		return declLess(results[i].Declaration, results[j].Declaration)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	span.SetAttributes(attribute.Int("index.results", len(results)))
	return results, nil
}

// matchScore returns a composite score, lower is better, or -1.
func matchScore(query, queryLower, name, nameLower string, kind ast.Kind) (int, string) {
	var (
		base      int
		matchType string
		pos       int
	)

	switch {
	case nameLower == queryLower:
		return kindPenalty(kind), "exact"
	case strings.HasPrefix(nameLower, queryLower):
		base, matchType = 1, "prefix"
	default:
		if p := wordMatch(name, query); p >= 0 {
			base, matchType, pos = 2, "camelCase", p
		} else if p := strings.Index(nameLower, queryLower); p >= 0 {
			base, matchType, pos = 3, "substring", p
		} else if levenshtein(nameLower, queryLower) <= max(2, len(queryLower)/3) {
			base, matchType = 4, "fuzzy"
		} else {
			return -1, ""
		}
	}

	positionPenalty := 0
	if len(name) > 0 && pos > 0 {
		positionPenalty = min(99, pos*100/len(name))
	}
	lengthPenalty := min(99, abs(len(name)-len(query)))

	return base*10000 + positionPenalty*100 + lengthPenalty*10 + kindPenalty(kind), matchType
}

// wordMatch finds query at a camelCase or snake_case word boundary.
func wordMatch(name, query string) int {
	if query == "" || len(query) > len(name) {
		return -1
	}
	queryLower := strings.ToLower(query)
	for i := 0; i+len(query) <= len(name); i++ {
		boundary := i == 0 ||
			isUpper(name[i]) && !isUpper(name[i-1]) ||
			name[i-1] == '_' && name[i] != '_'
		if !boundary || strings.ToLower(name[i:i+len(query)]) != queryLower {
			continue
		}
		end := i + len(query)
		if end == len(name) || isUpper(name[end]) || !isLetter(name[end]) {
			return i
		}
	}
	return -1
}

func kindPenalty(kind ast.Kind) int {
	switch kind {
	case ast.KindFunction, ast.KindMethod:
		return 0
	case ast.KindClass:
		return 1
	case ast.KindVariable:
		return 2
	default:
		return 5
	}
}

func isUpper(c byte) bool {
	return c >= 'A' && c <= 'Z'
}

func isLetter(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z'
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// levenshtein computes the edit distance with two rolling rows.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}
	if b == "" {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
