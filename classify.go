package main

import (
	"encoding/json"
	"fmt"
	"strings"
)

const classifySystemPrompt = `You map construction estimating line items to the zzTakeoff import schema. Respond with a JSON array only (no markdown, no commentary).`

// --- Cost types ---

type costTypeItem struct {
	Name     string `json:"name"`
	Supplier string `json:"supplier"`
	Code     string `json:"code"`
	Unit     string `json:"unit"`
}

func costTypeItems(table *SourceTable, rows []SourceRow) []costTypeItem {
	nameCol := table.NameColumn()
	items := make([]costTypeItem, len(rows))
	for i, row := range rows {
		items[i] = costTypeItem{
			Name:     row.field(nameCol),
			Supplier: row.field(colSupplierRef),
			Code:     row.field(colCode),
			Unit:     row.field(colUnits),
		}
	}
	return items
}

func buildCostTypePrompt(table *SourceTable, rows []SourceRow) (string, string) {
	items, _ := json.MarshalIndent(costTypeItems(table, rows), "", "  ")

	userPrompt := fmt.Sprintf(`Analyze these construction items and classify each into one of these Cost Types:
- Material
- Labor
- Equipment
- Subcontract
- Other

Items to classify:
%s

Classification rules:
1. If Supplier Reference contains names like plumber/carpenter/installer names -> Labor or Subcontract
2. If description mentions "Supply" or "Fix" -> Material or Labor respectively
3. If description is about rental/hire -> Equipment
4. Fixtures, fittings, raw materials -> Material
5. Installation, fixing, painting work -> Labor

Return ONLY a JSON array with cost types in the same order as input. Format:
["Material", "Labor", "Material", ...]

Be consistent and use exact category names.`, items)

	return classifySystemPrompt, userPrompt
}

// keywordPatterns holds per-keyword cost type counts learned from a labeled
// sample: patterns["concrete"]["Material"] = 3.
type keywordPatterns map[string]map[string]int

// learnCostTypePatterns counts which cost type each significant name keyword
// (longer than 3 characters) was labeled with across the sample.
func learnCostTypePatterns(table *SourceTable, sample []SourceRow, labels []string) keywordPatterns {
	nameCol := table.NameColumn()
	patterns := make(keywordPatterns)
	for i, label := range labels {
		if i >= len(sample) {
			break
		}
		name := strings.ToLower(sample[i].field(nameCol))
		for _, word := range strings.Fields(name) {
			if len(word) <= 3 {
				continue
			}
			if patterns[word] == nil {
				patterns[word] = make(map[string]int)
			}
			patterns[word][label]++
		}
	}
	return patterns
}

var laborKeywords = []string{"fix", "install", "paint", "render", "laying"}
var equipmentKeywords = []string{"hire", "rental", "equipment"}

// scoreCostType scores one item against fixed keyword rules plus learned
// patterns. The highest score wins; equal scores resolve in vocabulary order
// and an all-zero score falls through to Other.
func scoreCostType(name, supplier string, patterns keywordPatterns) string {
	name = strings.ToLower(name)
	scores := map[string]int{
		CostTypeMaterial:    0,
		CostTypeLabor:       0,
		CostTypeEquipment:   0,
		CostTypeSubcontract: 0,
		CostTypeOther:       0,
	}

	if strings.TrimSpace(supplier) != "" {
		scores[CostTypeSubcontract] += 3
		scores[CostTypeLabor] += 2
	}
	if strings.Contains(name, "supply") {
		scores[CostTypeMaterial] += 3
	}
	for _, word := range laborKeywords {
		if strings.Contains(name, word) {
			scores[CostTypeLabor] += 3
			break
		}
	}
	for _, word := range equipmentKeywords {
		if strings.Contains(name, word) {
			scores[CostTypeEquipment] += 3
			break
		}
	}
	for _, word := range strings.Fields(name) {
		for costType, count := range patterns[word] {
			scores[costType] += count
		}
	}

	best := CostTypeOther
	bestScore := 0
	for _, costType := range costTypeVocabulary {
		if scores[costType] > bestScore {
			best = costType
			bestScore = scores[costType]
		}
	}
	return best
}

// classifyCostTypesHeuristic labels every row without a model call. With nil
// patterns only the fixed keyword rules apply, so the result for a given
// table never changes between runs.
func classifyCostTypesHeuristic(table *SourceTable, rows []SourceRow, patterns keywordPatterns) []string {
	nameCol := table.NameColumn()
	out := make([]string, len(rows))
	for i, row := range rows {
		out[i] = scoreCostType(row.field(nameCol), row.field(colSupplierRef), patterns)
	}
	return out
}

// --- Takeoff types ---

type takeoffTypeItem struct {
	Name     string `json:"name"`
	Unit     string `json:"unit"`
	Quantity string `json:"quantity"`
}

func takeoffTypeItems(table *SourceTable, rows []SourceRow) []takeoffTypeItem {
	nameCol := table.NameColumn()
	items := make([]takeoffTypeItem, len(rows))
	for i, row := range rows {
		items[i] = takeoffTypeItem{
			Name:     row.field(nameCol),
			Unit:     row.field(colUnits),
			Quantity: row.field(colQuantity),
		}
	}
	return items
}

func buildTakeoffTypePrompt(table *SourceTable, rows []SourceRow) (string, string) {
	items, _ := json.MarshalIndent(takeoffTypeItems(table, rows), "", "  ")

	userPrompt := fmt.Sprintf(`Analyze these construction items and classify each Takeoff Type as one of:
- Area (for items measured in square units: SM, Sm, m2, SQ M, etc.)
- Linear (for items measured in linear units: M, Lm, LM, meters, etc.)
- Volume (for items measured in cubic units: M3, CU M, CUM, CBM)
- Count (for items counted as whole units: EA, Ea, each, etc.)
- Segment (for segmented linear items)

Items to classify:
%s

Rules:
1. Look at the Units column primarily
2. SM, Sm, m2, SQ M, SQUARE -> Area
3. M, Lm, LM, meters, metres -> Linear
4. M3, CU M, CUM, CBM -> Volume
5. EA, Ea, each, THOUS, bag, TONNE, PACKETS -> Count
6. When unit is ambiguous, look at the item name/description

Return ONLY a JSON array with takeoff types in order. Format:
["Area", "Count", "Linear", ...]

Use exact category names.`, items)

	return classifySystemPrompt, userPrompt
}

var unitTakeoffTable = map[string]string{
	"SM":      TakeoffTypeArea,
	"SQ M":    TakeoffTypeArea,
	"M2":      TakeoffTypeArea,
	"SQM":     TakeoffTypeArea,
	"SQUARE":  TakeoffTypeArea,
	"M":       TakeoffTypeLinear,
	"LM":      TakeoffTypeLinear,
	"METRES":  TakeoffTypeLinear,
	"METERS":  TakeoffTypeLinear,
	"M3":      TakeoffTypeVolume,
	"CU M":    TakeoffTypeVolume,
	"CUM":     TakeoffTypeVolume,
	"CBM":     TakeoffTypeVolume,
	"EA":      TakeoffTypeCount,
	"EACH":    TakeoffTypeCount,
	"THOUS":   TakeoffTypeCount,
	"BAG":     TakeoffTypeCount,
	"TONNE":   TakeoffTypeCount,
	"PACKETS": TakeoffTypeCount,
	"PACKET":  TakeoffTypeCount,
	"NO":      TakeoffTypeCount,
}

// takeoffTypeForUnit maps a unit string to a takeoff type, defaulting to
// Count for anything unrecognized.
func takeoffTypeForUnit(unit string) string {
	unit = strings.ToUpper(strings.TrimSpace(unit))
	if t, ok := unitTakeoffTable[unit]; ok {
		return t
	}
	return TakeoffTypeCount
}

// learnUnitMap records which takeoff type each unit was labeled with in a
// sample. Later occurrences of a unit overwrite earlier ones.
func learnUnitMap(sample []SourceRow, labels []string) map[string]string {
	unitMap := make(map[string]string)
	for i, label := range labels {
		if i >= len(sample) {
			break
		}
		unit := strings.ToUpper(sample[i].field(colUnits))
		if unit != "" {
			unitMap[unit] = label
		}
	}
	return unitMap
}

func classifyTakeoffTypesHeuristic(rows []SourceRow, unitMap map[string]string) []string {
	out := make([]string, len(rows))
	for i, row := range rows {
		unit := strings.ToUpper(row.field(colUnits))
		if t, ok := unitMap[unit]; ok {
			out[i] = t
			continue
		}
		out[i] = takeoffTypeForUnit(unit)
	}
	return out
}

// --- Formulas ---

type formulaItem struct {
	Name        string `json:"name"`
	Unit        string `json:"unit"`
	Quantity    string `json:"quantity"`
	TakeoffType string `json:"takeoff_type"`
}

func formulaItems(table *SourceTable, rows []SourceRow, takeoffTypes []string) []formulaItem {
	nameCol := table.NameColumn()
	items := make([]formulaItem, len(rows))
	for i, row := range rows {
		item := formulaItem{
			Name:     row.field(nameCol),
			Unit:     row.field(colUnits),
			Quantity: row.field(colQuantity),
		}
		if i < len(takeoffTypes) {
			item.TakeoffType = takeoffTypes[i]
		}
		items[i] = item
	}
	return items
}

func buildFormulaPrompt(table *SourceTable, rows []SourceRow, takeoffTypes []string, sys UnitSystem, templates []FormulaTemplate) (string, string) {
	items, _ := json.MarshalIndent(formulaItems(table, rows, takeoffTypes), "", "  ")

	var variables []string
	for _, v := range sys.FormulaVariables() {
		variables = append(variables, sys.Variable(v))
	}

	templatesBlock := "none"
	if len(templates) > 0 {
		var tb strings.Builder
		for _, tpl := range templates {
			line := fmt.Sprintf("- %s: %s", tpl.Name, tpl.Formula)
			if tpl.Description != "" {
				line += fmt.Sprintf(" (%s)", tpl.Description)
			}
			tb.WriteString(line + "\n")
		}
		templatesBlock = tb.String()
	}

	userPrompt := fmt.Sprintf(`Generate formulas for zzTakeoff import based on item details.

Items with their Takeoff Types:
%s

Available variables for this project (use these exact spellings, including brackets):
%s

Formula Rules:
1. For Area types: usually "%s * %s" or just "%s" if single measurement
2. For Linear types: usually "%s" or "%s * %s"
3. For Count types: usually "%s" or "%s"
4. For Volume types: usually "%s"
5. Use only the variables listed above plus numbers and + - * / ( )

Saved formula templates (reuse one when an item matches its purpose):
%s
Return ONLY a JSON array of formula strings in the same order. Format:
["%s", "%s", "%s * %s", ...]

Keep it simple and practical.`,
		items,
		strings.Join(variables, ", "),
		sys.Variable("Length"), sys.Variable("Width"), sys.Variable("Area"),
		sys.Variable("Length"), sys.Variable("Count"), sys.Variable("Length"),
		sys.Variable("Count"), sys.Variable("Quantity"),
		sys.Variable("Volume"),
		templatesBlock,
		sys.Variable("Area"), sys.Variable("Count"), sys.Variable("Length"), sys.Variable("Width"))

	return classifySystemPrompt, userPrompt
}

// learnFormulaMap finds the most common formula per takeoff type in a
// labeled sample. Ties keep the formula seen first.
func learnFormulaMap(takeoffTypes, formulas []string) map[string]string {
	type countOrder struct {
		count int
		order int
	}
	counts := make(map[string]map[string]countOrder)
	seq := 0
	for i, formula := range formulas {
		if i >= len(takeoffTypes) {
			break
		}
		tt := takeoffTypes[i]
		if counts[tt] == nil {
			counts[tt] = make(map[string]countOrder)
		}
		c, ok := counts[tt][formula]
		if !ok {
			c = countOrder{order: seq}
			seq++
		}
		c.count++
		counts[tt][formula] = c
	}

	learned := make(map[string]string)
	for tt, byFormula := range counts {
		bestFormula := ""
		best := countOrder{count: -1, order: -1}
		for formula, c := range byFormula {
			if c.count > best.count || (c.count == best.count && c.order < best.order) {
				bestFormula = formula
				best = c
			}
		}
		learned[tt] = bestFormula
	}
	return learned
}

// formulasFromTakeoffTypes resolves one formula per row: the learned
// most-common formula for its takeoff type when one exists, the canonical
// default otherwise. Anything referencing variables outside the unit
// system's table is demoted to the default.
func formulasFromTakeoffTypes(takeoffTypes []string, learned map[string]string, sys UnitSystem) []string {
	out := make([]string, len(takeoffTypes))
	for i, tt := range takeoffTypes {
		formula, ok := learned[tt]
		if !ok || ValidateFormula(formula, sys) != nil {
			formula = DefaultFormula(tt, sys)
		}
		out[i] = formula
	}
	return out
}
