package main

import (
	"context"
	"fmt"
	"log"
)

const (
	costTypeSampleRows = 50
	takeoffSampleRows  = 50
	formulaSampleRows  = 30

	aiApplySample = "sample"
	aiApplyAll    = "all"

	defaultTemplateExamples = 5
)

// Converter carries one dataset through the mapping pipeline. Stages write
// to Records only after producing a value for every row, so a failed stage
// leaves the previous state intact.
type Converter struct {
	Table      *SourceTable
	Records    []MappedRecord
	Mappings   []CustomMapping
	UnitSystem UnitSystem

	// FallbackOnError sends a stage down its deterministic path when the
	// AI path fails, instead of surfacing the error.
	FallbackOnError bool

	provider      providerClient
	providerName  string
	contextTokens int
	aiApply       string
	exampleCount  int
	templates     *templateIndex
	overrides     *CostTypeOverrides
	progress      ProgressFunc
}

func NewConverter(table *SourceTable, mappings []CustomMapping, sys UnitSystem) *Converter {
	return &Converter{
		Table:           table,
		Records:         InitializeMappedRecords(table, mappings),
		Mappings:        mappings,
		UnitSystem:      sys,
		FallbackOnError: true,
		aiApply:         aiApplySample,
		exampleCount:    defaultTemplateExamples,
	}
}

// UseProvider enables the AI path. applyMode "all" classifies every row in
// context-sized batches; anything else classifies a leading sample and
// spreads the learned patterns across the rest.
func (c *Converter) UseProvider(client providerClient, contextTokens int, applyMode string) {
	c.provider = client
	if client != nil {
		c.providerName = client.name()
	}
	c.contextTokens = contextTokens
	if applyMode == aiApplyAll {
		c.aiApply = aiApplyAll
	} else {
		c.aiApply = aiApplySample
	}
}

func (c *Converter) UseTemplates(templates []FormulaTemplate, exampleCount int) {
	c.templates = buildTemplateIndex(templates)
	if exampleCount > 0 {
		c.exampleCount = exampleCount
	}
}

func (c *Converter) UseOverrides(o *CostTypeOverrides) { c.overrides = o }

func (c *Converter) OnProgress(fn ProgressFunc) { c.progress = fn }

// Run executes the full pipeline in stage order. Formula prompts read the
// takeoff types committed by the stage before them.
func (c *Converter) Run(ctx context.Context) error {
	if err := c.GenerateCostTypes(ctx); err != nil {
		return err
	}
	if err := c.GenerateTakeoffTypes(ctx); err != nil {
		return err
	}
	return c.GenerateFormulas(ctx)
}

// --- Cost types ---

func (c *Converter) GenerateCostTypes(ctx context.Context) error {
	rows := c.Table.Rows
	if len(rows) == 0 {
		return nil
	}

	labels, err := c.costTypeLabels(ctx, rows)
	if err != nil {
		if !c.FallbackOnError {
			return err
		}
		log.Printf("cost types ai failed, using heuristics: %v", err)
		labels = classifyCostTypesHeuristic(c.Table, rows, nil)
	}

	for i := range c.Records {
		c.Records[i].CostType = labels[i]
	}
	log.Printf("cost types committed rows=%d", len(labels))

	if n := c.overrides.Apply(c.Records); n > 0 {
		log.Printf("cost type overrides applied rows=%d", n)
	}
	return nil
}

func (c *Converter) costTypeLabels(ctx context.Context, rows []SourceRow) ([]string, error) {
	if c.provider == nil {
		return classifyCostTypesHeuristic(c.Table, rows, nil), nil
	}

	if c.aiApply == aiApplyAll {
		return runBatched(rows, estimateBatchSize(rows, c.contextTokens), "cost types", c.progress,
			func(start int, chunk []SourceRow) ([]string, error) {
				system, user := buildCostTypePrompt(c.Table, chunk)
				raw, err := c.provider.invoke(ctx, system, user)
				if err != nil {
					return nil, err
				}
				return ParseStringArrayResponse(raw, len(chunk), costTypeVocabulary)
			})
	}

	sample := leadingRows(rows, costTypeSampleRows)
	system, user := buildCostTypePrompt(c.Table, sample)
	raw, err := c.provider.invoke(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("cost types sample: %w", err)
	}
	labels, err := ParseStringArrayResponse(raw, len(sample), costTypeVocabulary)
	if err != nil {
		return nil, fmt.Errorf("cost types sample: %w", err)
	}

	patterns := learnCostTypePatterns(c.Table, sample, labels)
	nameCol := c.Table.NameColumn()
	out := make([]string, len(rows))
	copy(out, labels)
	for i := len(labels); i < len(rows); i++ {
		out[i] = scoreCostType(rows[i].field(nameCol), rows[i].field(colSupplierRef), patterns)
	}
	return out, nil
}

// --- Takeoff types ---

func (c *Converter) GenerateTakeoffTypes(ctx context.Context) error {
	rows := c.Table.Rows
	if len(rows) == 0 {
		return nil
	}

	labels, err := c.takeoffTypeLabels(ctx, rows)
	if err != nil {
		if !c.FallbackOnError {
			return err
		}
		log.Printf("takeoff types ai failed, using unit table: %v", err)
		labels = classifyTakeoffTypesHeuristic(rows, nil)
	}

	for i := range c.Records {
		c.Records[i].TakeoffType = labels[i]
	}
	log.Printf("takeoff types committed rows=%d", len(labels))
	return nil
}

func (c *Converter) takeoffTypeLabels(ctx context.Context, rows []SourceRow) ([]string, error) {
	if c.provider == nil {
		return classifyTakeoffTypesHeuristic(rows, nil), nil
	}

	if c.aiApply == aiApplyAll {
		return runBatched(rows, estimateBatchSize(rows, c.contextTokens), "takeoff types", c.progress,
			func(start int, chunk []SourceRow) ([]string, error) {
				system, user := buildTakeoffTypePrompt(c.Table, chunk)
				raw, err := c.provider.invoke(ctx, system, user)
				if err != nil {
					return nil, err
				}
				return ParseStringArrayResponse(raw, len(chunk), takeoffTypeVocabulary)
			})
	}

	sample := leadingRows(rows, takeoffSampleRows)
	system, user := buildTakeoffTypePrompt(c.Table, sample)
	raw, err := c.provider.invoke(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("takeoff types sample: %w", err)
	}
	labels, err := ParseStringArrayResponse(raw, len(sample), takeoffTypeVocabulary)
	if err != nil {
		return nil, fmt.Errorf("takeoff types sample: %w", err)
	}

	unitMap := learnUnitMap(sample, labels)
	out := make([]string, len(rows))
	copy(out, labels)
	rest := classifyTakeoffTypesHeuristic(rows[len(labels):], unitMap)
	copy(out[len(labels):], rest)
	return out, nil
}

// --- Formulas ---

func (c *Converter) GenerateFormulas(ctx context.Context) error {
	rows := c.Table.Rows
	if len(rows) == 0 {
		return nil
	}
	takeoffTypes := c.committedTakeoffTypes()

	formulas, err := c.formulaResults(ctx, rows, takeoffTypes)
	if err != nil {
		if !c.FallbackOnError {
			return err
		}
		log.Printf("formulas ai failed, using defaults: %v", err)
		formulas = formulasFromTakeoffTypes(takeoffTypes, nil, c.UnitSystem)
	}

	for i := range c.Records {
		c.Records[i].Formula = formulas[i]
	}
	log.Printf("formulas committed rows=%d", len(formulas))
	return nil
}

func (c *Converter) formulaResults(ctx context.Context, rows []SourceRow, takeoffTypes []string) ([]string, error) {
	if c.provider == nil {
		return formulasFromTakeoffTypes(takeoffTypes, nil, c.UnitSystem), nil
	}

	if c.aiApply == aiApplyAll {
		return runBatched(rows, estimateBatchSize(rows, c.contextTokens), "formulas", c.progress,
			func(start int, chunk []SourceRow) ([]string, error) {
				chunkTypes := takeoffTypes[start : start+len(chunk)]
				system, user := buildFormulaPrompt(c.Table, chunk, chunkTypes, c.UnitSystem, c.chunkTemplates(chunk))
				raw, err := c.provider.invoke(ctx, system, user)
				if err != nil {
					return nil, err
				}
				formulas, err := ParseStringArrayResponse(raw, len(chunk), nil)
				if err != nil {
					return nil, err
				}
				return c.demoteInvalidFormulas(formulas, chunkTypes), nil
			})
	}

	sample := leadingRows(rows, formulaSampleRows)
	sampleTypes := takeoffTypes[:len(sample)]
	system, user := buildFormulaPrompt(c.Table, sample, sampleTypes, c.UnitSystem, c.chunkTemplates(sample))
	raw, err := c.provider.invoke(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("formulas sample: %w", err)
	}
	formulas, err := ParseStringArrayResponse(raw, len(sample), nil)
	if err != nil {
		return nil, fmt.Errorf("formulas sample: %w", err)
	}
	formulas = c.demoteInvalidFormulas(formulas, sampleTypes)

	learned := learnFormulaMap(sampleTypes, formulas)
	out := make([]string, len(rows))
	copy(out, formulas)
	rest := formulasFromTakeoffTypes(takeoffTypes[len(formulas):], learned, c.UnitSystem)
	copy(out[len(formulas):], rest)
	return out, nil
}

// demoteInvalidFormulas swaps any formula referencing variables outside the
// active unit system for that row's canonical default.
func (c *Converter) demoteInvalidFormulas(formulas, takeoffTypes []string) []string {
	out := make([]string, len(formulas))
	for i, formula := range formulas {
		if err := ValidateFormula(formula, c.UnitSystem); err != nil {
			log.Printf("formula demoted: %v", err)
			formula = DefaultFormula(takeoffTypes[i], c.UnitSystem)
		}
		out[i] = formula
	}
	return out
}

func (c *Converter) chunkTemplates(rows []SourceRow) []FormulaTemplate {
	if c.templates == nil {
		return nil
	}
	nameCol := c.Table.NameColumn()
	names := make([]string, len(rows))
	for i, row := range rows {
		names[i] = row.field(nameCol)
	}
	return c.templates.topKForBatch(names, c.exampleCount)
}

func (c *Converter) committedTakeoffTypes() []string {
	types := make([]string, len(c.Records))
	for i, rec := range c.Records {
		types[i] = rec.TakeoffType
	}
	return types
}

func leadingRows(rows []SourceRow, max int) []SourceRow {
	if len(rows) <= max {
		return rows
	}
	return rows[:max]
}
