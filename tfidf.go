package main

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// FormulaTemplate is a saved, named formula with optional context. Templates
// are injected into formula prompts as worked examples so the model reuses
// proven formulas for familiar item kinds.
type FormulaTemplate struct {
	ID          int64
	Name        string
	Formula     string
	Description string
	Category    string
}

func (t FormulaTemplate) docText() string {
	return strings.TrimSpace(t.Name + " " + t.Description + " " + t.Category)
}

type sparseVec = map[int]float64

// templateIndex ranks formula templates against item names by TF-IDF cosine
// similarity over template name/description/category tokens.
type templateIndex struct {
	vocab     map[string]int
	idf       []float64
	docs      []sparseVec
	templates []FormulaTemplate
}

func tokenize(s string) []string {
	s = strings.ToLower(s)
	var tokens []string
	var cur strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else {
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
		}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

func buildTemplateIndex(templates []FormulaTemplate) *templateIndex {
	if len(templates) == 0 {
		return &templateIndex{vocab: make(map[string]int)}
	}

	// Build vocabulary.
	vocab := make(map[string]int)
	for _, tpl := range templates {
		for _, tok := range tokenize(tpl.docText()) {
			if _, ok := vocab[tok]; !ok {
				vocab[tok] = len(vocab)
			}
		}
	}

	// Document frequency.
	df := make([]int, len(vocab))
	docs := make([]sparseVec, len(templates))
	n := float64(len(templates))

	for i, tpl := range templates {
		tf := make(map[int]int)
		for _, tok := range tokenize(tpl.docText()) {
			if idx, ok := vocab[tok]; ok {
				tf[idx]++
			}
		}
		vec := make(sparseVec, len(tf))
		for idx, count := range tf {
			vec[idx] = float64(count)
			df[idx]++
		}
		docs[i] = vec
	}

	// IDF.
	idf := make([]float64, len(vocab))
	for i, d := range df {
		if d > 0 {
			idf[i] = math.Log(n/float64(d)) + 1.0
		}
	}

	// Apply TF-IDF weighting.
	for _, vec := range docs {
		for idx := range vec {
			vec[idx] *= idf[idx]
		}
	}

	return &templateIndex{
		vocab:     vocab,
		idf:       idf,
		docs:      docs,
		templates: templates,
	}
}

func (idx *templateIndex) queryVec(query string) sparseVec {
	tf := make(map[int]int)
	for _, tok := range tokenize(query) {
		if i, ok := idx.vocab[tok]; ok {
			tf[i]++
		}
	}
	vec := make(sparseVec, len(tf))
	for i, count := range tf {
		vec[i] = float64(count) * idx.idf[i]
	}
	return vec
}

// topKIndices returns the indices of the top-K templates most similar to query.
func (idx *templateIndex) topKIndices(query string, k int) []int {
	if len(idx.templates) == 0 || k <= 0 {
		return nil
	}
	qvec := idx.queryVec(query)
	if len(qvec) == 0 {
		return nil
	}

	type scored struct {
		index int
		score float64
	}
	var results []scored
	for i, dvec := range idx.docs {
		sim := cosineSim(qvec, dvec)
		if sim > 0 {
			results = append(results, scored{i, sim})
		}
	}
	sort.Slice(results, func(a, b int) bool {
		return results[a].score > results[b].score
	})
	if len(results) > k {
		results = results[:k]
	}
	out := make([]int, len(results))
	for i, r := range results {
		out[i] = r.index
	}
	return out
}

// topKForBatch collects the most relevant templates across a whole chunk of
// item names, deduplicated, capped at k.
func (idx *templateIndex) topKForBatch(itemNames []string, k int) []FormulaTemplate {
	if len(idx.templates) == 0 || k <= 0 {
		return nil
	}
	seen := make(map[int]bool)
	var out []FormulaTemplate
	for _, name := range itemNames {
		for _, docIdx := range idx.topKIndices(name, k) {
			if !seen[docIdx] {
				seen[docIdx] = true
				out = append(out, idx.templates[docIdx])
			}
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func cosineSim(a, b sparseVec) float64 {
	var dot, normA, normB float64
	for i, va := range a {
		if vb, ok := b[i]; ok {
			dot += va * vb
		}
		normA += va * va
	}
	for _, vb := range b {
		normB += vb * vb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
