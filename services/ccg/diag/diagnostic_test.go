// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diag

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSort_OrdersByPathOffsetCode(t *testing.T) {
	ds := []Diagnostic{
		NewAt("b.py", 10, CodeUnresolvedReference, "call to %q", "x"),
		New("", CodeZeroFiles, "no files"),
		NewAt("a.py", 5, CodeUnresolvedReference, "call to %q", "y"),
		NewAt("a.py", 5, CodeAmbiguousReference, "call to %q", "y"),
		New("a.py", CodeParseFailure, "syntax error"),
	}

	sorted := Sort(ds)
	require.Len(t, sorted, 5)

	assert.Equal(t, "", sorted[0].Path)
	assert.Equal(t, CodeParseFailure, sorted[1].Code)
	assert.Equal(t, CodeAmbiguousReference, sorted[2].Code)
	assert.Equal(t, CodeUnresolvedReference, sorted[3].Code)
	assert.Equal(t, "b.py", sorted[4].Path)
}

func TestSort_RemovesExactDuplicates(t *testing.T) {
	d := New("a.go", CodeIOError, "read failed")
	sorted := Sort([]Diagnostic{d, d, d})
	assert.Len(t, sorted, 1)
}

func TestCode_DefaultSeverity(t *testing.T) {
	tests := []struct {
		code Code
		want Severity
	}{
		{CodeParseFailure, SeverityWarning},
		{CodeInvariantViolation, SeverityWarning},
		{CodeZeroFiles, SeverityWarning},
		{CodeUnresolvedReference, SeverityInfo},
		{CodeUnsupportedLanguage, SeverityInfo},
		{CodeImportCycle, SeverityInfo},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.DefaultSeverity())
		})
	}
}

func TestCollector_ConcurrentAdd(t *testing.T) {
	var c Collector
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Add(NewAt("f.py", i+1, CodeUnresolvedReference, "ref %d", i))
		}(i)
	}
	wg.Wait()

	sorted := c.Sorted()
	require.Len(t, sorted, 50)
	for i := 1; i < len(sorted); i++ {
		assert.True(t, Less(sorted[i-1], sorted[i]))
	}
}

func TestDiagnostic_String(t *testing.T) {
	assert.Equal(t, "<project>: [zero-files] nothing", New("", CodeZeroFiles, "nothing").String())
	assert.Equal(t, "a.py:7: [parse-failure] bad", NewAt("a.py", 7, CodeParseFailure, "bad").String())
}
