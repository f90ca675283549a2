package main

import (
	"testing"
)

func TestBuildTemplateIndex_Ranking(t *testing.T) {
	templates := []FormulaTemplate{
		{Name: "Wall paint two coats", Formula: "[Area] * 2", Category: "Painting"},
		{Name: "Concrete slab pour", Formula: "[Volume]", Category: "Concrete"},
		{Name: "Paint touch up allowance", Formula: "[Count]", Category: "Painting"},
	}
	idx := buildTemplateIndex(templates)

	results := idx.topKForBatch([]string{"paint bedroom wall"}, 2)
	if len(results) == 0 {
		t.Fatalf("expected at least one template for paint query")
	}
	// The top result should be the wall paint template.
	if results[0].Formula != "[Area] * 2" {
		t.Fatalf("expected most similar template first, got %s", results[0].Formula)
	}
	for _, r := range results {
		if r.Name == "Concrete slab pour" {
			t.Fatalf("concrete template should not match a paint query")
		}
	}
}

func TestTopKForBatch_Deduplication(t *testing.T) {
	templates := []FormulaTemplate{
		{Name: "Skirting boards", Formula: "[Length]"},
		{Name: "Door handles", Formula: "[Count]"},
		{Name: "Skirting paint", Formula: "[Length] * 0.1"},
	}
	idx := buildTemplateIndex(templates)

	// Both names match "skirting" templates, but dedup should apply.
	results := idx.topKForBatch([]string{"skirting to bedrooms", "skirting to hall"}, 5)
	seen := make(map[string]int)
	for _, r := range results {
		seen[r.Name]++
	}
	for name, count := range seen {
		if count > 1 {
			t.Fatalf("expected no duplicates, but %q appeared %d times", name, count)
		}
	}
}

func TestTopKForBatch_Cap(t *testing.T) {
	templates := []FormulaTemplate{
		{Name: "paver path", Formula: "[Area]"},
		{Name: "paver drive", Formula: "[Area]"},
		{Name: "paver patio", Formula: "[Area]"},
	}
	idx := buildTemplateIndex(templates)
	results := idx.topKForBatch([]string{"paver laying"}, 2)
	if len(results) > 2 {
		t.Fatalf("expected at most 2 templates, got %d", len(results))
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"Supply & fix plasterboard!", []string{"supply", "fix", "plasterboard"}},
		{"90x45 MGP10 framing", []string{"90x45", "mgp10", "framing"}},
		{"UPPERCASE MiXeD", []string{"uppercase", "mixed"}},
		{"", nil},
	}
	for _, tt := range tests {
		got := tokenize(tt.input)
		if len(got) != len(tt.want) {
			t.Errorf("tokenize(%q) = %v, want %v", tt.input, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("tokenize(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
			}
		}
	}
}

func TestCosineSim_Orthogonal(t *testing.T) {
	a := sparseVec{0: 1.0, 1: 0.0}
	b := sparseVec{2: 1.0, 3: 0.0}
	if sim := cosineSim(a, b); sim != 0 {
		t.Fatalf("expected zero similarity for orthogonal vectors, got %f", sim)
	}
}

func TestCosineSim_Identical(t *testing.T) {
	a := sparseVec{0: 1.0, 1: 2.0}
	sim := cosineSim(a, a)
	if sim < 0.999 || sim > 1.001 {
		t.Fatalf("expected similarity ~1.0 for identical vectors, got %f", sim)
	}
}

func TestBuildTemplateIndex_Empty(t *testing.T) {
	idx := buildTemplateIndex(nil)
	if results := idx.topKForBatch([]string{"anything"}, 5); len(results) != 0 {
		t.Fatalf("expected no templates from empty index")
	}
}
