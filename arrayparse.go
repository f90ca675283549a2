package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// UnparsableResponseError means no repair strategy recovered an array with
// exactly the expected element count from a model response.
type UnparsableResponseError struct {
	Expected int
	Best     int
	Snippet  string
}

func (e *UnparsableResponseError) Error() string {
	return fmt.Sprintf("unparsable model response: expected %d elements, best attempt recovered %d (response: %s)", e.Expected, e.Best, e.Snippet)
}

// repairStrategy is one named rewrite applied to model output before a strict
// parse attempt. Strategies run in a fixed order, each building on the
// previous rewrite; the first parse yielding the expected count wins.
type repairStrategy struct {
	name  string
	apply func(string) string
}

var repairStrategies = []repairStrategy{
	{"strip-fences", stripCodeFences},
	{"extract-bracketed", extractBracketed},
	{"normalize-quotes", normalizeQuoteStyle},
	{"repair-bare-tokens", repairBareTokens},
}

// ParseStringArrayResponse recovers a string array of exactly expected
// elements from raw model output. Responses wrapped in prose, code fences,
// single quotes or bare words are repaired; as a last resort free text is
// split on separators and, when vocab is non-nil, filtered to it. The exact
// count is a hard gate: a near miss is an error, never a truncation or pad.
func ParseStringArrayResponse(raw string, expected int, vocab []string) ([]string, error) {
	best := 0
	record := func(n int) {
		if best == 0 || abs(n-expected) < abs(best-expected) {
			best = n
		}
	}

	parsed := false
	text := raw
	for _, strat := range repairStrategies {
		text = strat.apply(text)
		out, ok := parseJSONStringArray(text)
		if !ok {
			continue
		}
		if len(out) == expected {
			return out, nil
		}
		parsed = true
		record(len(out))
	}

	// Free text is only consulted when nothing array-shaped parsed at all.
	// A parseable array with the wrong count is a miscount, and trimming or
	// padding it would misalign every row after the defect.
	if !parsed {
		out := freeTextLabels(stripCodeFences(raw), expected, vocab)
		if len(out) == expected {
			return out, nil
		}
		record(len(out))
	}

	return nil, &UnparsableResponseError{
		Expected: expected,
		Best:     best,
		Snippet:  truncateResponse(raw),
	}
}

func truncateResponse(responseText string) string {
	truncated := strings.TrimSpace(responseText)
	if len(truncated) > 512 {
		truncated = truncated[:512] + fmt.Sprintf("... [truncated, total_length=%d]", len(responseText))
	}
	return truncated
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// parseJSONStringArray is the strict path: the text must be a JSON array
// whose elements are strings or numbers. Numbers are rendered back as their
// shortest decimal form.
func parseJSONStringArray(text string) ([]string, bool) {
	var elems []any
	if err := json.Unmarshal([]byte(text), &elems); err != nil {
		return nil, false
	}
	out := make([]string, 0, len(elems))
	for _, e := range elems {
		switch v := e.(type) {
		case string:
			out = append(out, v)
		case float64:
			out = append(out, strconv.FormatFloat(v, 'f', -1, 64))
		default:
			return nil, false
		}
	}
	return out, true
}

func stripCodeFences(responseText string) string {
	responseText = strings.TrimSpace(responseText)
	responseText = strings.TrimPrefix(responseText, "```json")
	responseText = strings.TrimPrefix(responseText, "```")
	responseText = strings.TrimSuffix(responseText, "```")
	return strings.TrimSpace(responseText)
}

// extractBracketed drops prose around the first [ ... last ] span. When the
// text has quote characters but no brackets at all, brackets are synthesized
// around it after stripping a trailing comma.
func extractBracketed(text string) string {
	open := strings.Index(text, "[")
	closeIdx := strings.LastIndex(text, "]")
	if open >= 0 && closeIdx > open {
		return text[open : closeIdx+1]
	}
	if strings.ContainsAny(text, `"'`) {
		trimmed := strings.TrimSuffix(strings.TrimSpace(text), ",")
		return "[" + trimmed + "]"
	}
	return text
}

func normalizeQuoteStyle(text string) string {
	return strings.ReplaceAll(text, "'", `"`)
}

// repairBareTokens rewrites a bracketed list whose elements are not valid
// JSON: bare words get quoted, trailing commas dropped. Numbers stay bare.
func repairBareTokens(text string) string {
	open := strings.Index(text, "[")
	closeIdx := strings.LastIndex(text, "]")
	if open < 0 || closeIdx <= open {
		return text
	}
	inner := text[open+1 : closeIdx]

	pieces := splitTopLevel(inner)
	var repaired []string
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.HasPrefix(p, `"`) && strings.HasSuffix(p, `"`) && len(p) >= 2 {
			repaired = append(repaired, p)
			continue
		}
		if _, err := strconv.ParseFloat(p, 64); err == nil {
			repaired = append(repaired, p)
			continue
		}
		repaired = append(repaired, strconv.Quote(strings.Trim(p, `"`)))
	}
	return "[" + strings.Join(repaired, ", ") + "]"
}

// splitTopLevel splits on commas that are outside quotes and outside nested
// brackets, so formula text like "[Length] * [Width]" stays one piece.
func splitTopLevel(s string) []string {
	var pieces []string
	var cur strings.Builder
	depth := 0
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' && (i == 0 || s[i-1] != '\\'):
			inQuote = !inQuote
			cur.WriteByte(c)
		case inQuote:
			cur.WriteByte(c)
		case c == '[' || c == '{':
			depth++
			cur.WriteByte(c)
		case c == ']' || c == '}':
			depth--
			cur.WriteByte(c)
		case c == ',' && depth == 0:
			pieces = append(pieces, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	pieces = append(pieces, cur.String())
	return pieces
}

// freeTextLabels is the terminal fallback: split the text on commas and
// newlines, strip noise, and collect up to expected entries. With a
// vocabulary, only case-insensitive matches count and they are returned in
// the vocabulary's canonical spelling.
func freeTextLabels(text string, expected int, vocab []string) []string {
	pieces := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '\n'
	})

	var out []string
	for _, p := range pieces {
		if len(out) == expected {
			break
		}
		if vocab != nil {
			p = strings.Trim(p, " \t\r\"'[]{}`.")
			if canon, ok := canonicalLabel(vocab, p); ok {
				out = append(out, canon)
			}
			continue
		}
		p = strings.TrimSpace(p)
		p = strings.TrimPrefix(p, "- ")
		p = strings.Trim(p, `"'`)
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// canonicalLabel matches s against a vocabulary ignoring case and returns
// the vocabulary's own spelling.
func canonicalLabel(vocab []string, s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, v := range vocab {
		if strings.EqualFold(v, s) {
			return v, true
		}
	}
	return "", false
}
