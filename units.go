package main

import (
	"fmt"
	"strings"
)

// UnitSystem selects which bracket-variable spellings zzTakeoff accepts in
// formulas: metric projects use title case, imperial projects upper case.
type UnitSystem string

const (
	UnitSystemMetric   UnitSystem = "metric"
	UnitSystemImperial UnitSystem = "imperial"
)

var metricFormulaVariables = []string{
	"Length",
	"Width",
	"Height",
	"Area",
	"Perimeter",
	"Volume",
	"Count",
	"Segment Count",
	"Segment Length",
	"Quantity",
	"Waste",
}

var imperialFormulaVariables = []string{
	"LENGTH",
	"WIDTH",
	"HEIGHT",
	"AREA",
	"PERIMETER",
	"VOLUME",
	"COUNT",
	"SEGMENT COUNT",
	"SEGMENT LENGTH",
	"QUANTITY",
	"WASTE",
}

func (s UnitSystem) Valid() bool {
	return s == UnitSystemMetric || s == UnitSystemImperial
}

// FormulaVariables returns the allowed bracket variable names, without
// brackets, for this unit system.
func (s UnitSystem) FormulaVariables() []string {
	if s == UnitSystemImperial {
		return imperialFormulaVariables
	}
	return metricFormulaVariables
}

// Variable spells one logical quantity in this unit system, e.g.
// Variable("Segment Count") is "[Segment Count]" metric, "[SEGMENT COUNT]"
// imperial.
func (s UnitSystem) Variable(name string) string {
	if s == UnitSystemImperial {
		return "[" + strings.ToUpper(name) + "]"
	}
	return "[" + name + "]"
}

// DefaultFormula maps a takeoff type to its canonical one-variable formula.
func DefaultFormula(takeoffType string, s UnitSystem) string {
	switch takeoffType {
	case TakeoffTypeArea:
		return s.Variable("Area")
	case TakeoffTypeLinear:
		return s.Variable("Length")
	case TakeoffTypeCount:
		return s.Variable("Count")
	case TakeoffTypeVolume:
		return s.Variable("Volume")
	case TakeoffTypeSegment:
		return s.Variable("Segment Count")
	default:
		return s.Variable("Quantity")
	}
}

// formulaOperatorChars are the characters allowed between bracket variables:
// arithmetic, grouping, decimals and digits.
const formulaOperatorChars = "+-*/()., 0123456789"

// ValidateFormula checks that a formula references only this unit system's
// bracket variables and otherwise contains arithmetic. Variable names are
// case-sensitive so a metric project rejects [AREA] and vice versa.
func ValidateFormula(formula string, s UnitSystem) error {
	formula = strings.TrimSpace(formula)
	if formula == "" {
		return fmt.Errorf("empty formula")
	}

	allowed := make(map[string]bool, len(s.FormulaVariables()))
	for _, v := range s.FormulaVariables() {
		allowed[v] = true
	}

	rest := formula
	for {
		open := strings.Index(rest, "[")
		if open < 0 {
			break
		}
		closeIdx := strings.Index(rest[open:], "]")
		if closeIdx < 0 {
			return fmt.Errorf("unterminated variable in formula %q", formula)
		}
		name := rest[open+1 : open+closeIdx]
		if !allowed[name] {
			return fmt.Errorf("unknown variable [%s] for %s formulas", name, s)
		}
		if head := rest[:open]; !validOperatorRun(head) {
			return fmt.Errorf("invalid character %q in formula %q", firstInvalidChar(head), formula)
		}
		rest = rest[open+closeIdx+1:]
	}
	if strings.Contains(rest, "]") {
		return fmt.Errorf("unmatched bracket in formula %q", formula)
	}
	if !validOperatorRun(rest) {
		return fmt.Errorf("invalid character %q in formula %q", firstInvalidChar(rest), formula)
	}
	return nil
}

func validOperatorRun(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune(formulaOperatorChars, r) {
			return false
		}
	}
	return true
}

func firstInvalidChar(s string) string {
	for _, r := range s {
		if !strings.ContainsRune(formulaOperatorChars, r) {
			return string(r)
		}
	}
	return ""
}
