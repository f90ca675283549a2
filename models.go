package main

import "strings"

// Cost type vocabulary for the zzTakeoff "Cost Type" column.
const (
	CostTypeMaterial    = "Material"
	CostTypeLabor       = "Labor"
	CostTypeEquipment   = "Equipment"
	CostTypeSubcontract = "Subcontract"
	CostTypeOther       = "Other"
)

var costTypeVocabulary = []string{
	CostTypeMaterial,
	CostTypeLabor,
	CostTypeEquipment,
	CostTypeSubcontract,
	CostTypeOther,
}

// Takeoff type vocabulary for the zzTakeoff "Takeoff Type" column.
const (
	TakeoffTypeArea    = "Area"
	TakeoffTypeLinear  = "Linear"
	TakeoffTypeCount   = "Count"
	TakeoffTypeSegment = "Segment"
	TakeoffTypeVolume  = "Volume"
)

var takeoffTypeVocabulary = []string{
	TakeoffTypeArea,
	TakeoffTypeLinear,
	TakeoffTypeCount,
	TakeoffTypeSegment,
	TakeoffTypeVolume,
}

// Source column names probed in estimating exports (Databuild et al).
// Absent columns contribute empty strings.
const (
	colName        = "Name"
	colCode        = "Databuild Code"
	colUnitPrice   = "Unit Price"
	colUnits       = "Units"
	colSupplierRef = "Supplier Reference"
	colQuantity    = "Quantity"
)

// SourceRow holds one spreadsheet row keyed by header name. Missing cells
// are absent keys, so lookups fall through to "".
type SourceRow map[string]string

func (r SourceRow) field(column string) string {
	return strings.TrimSpace(r[column])
}

// SourceTable is the loaded input file. Row order is load order and carries
// through the whole pipeline: result arrays are positional.
type SourceTable struct {
	Columns []string
	Rows    []SourceRow
}

func (t *SourceTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

func (t *SourceTable) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// NameColumn returns the column used as the item name: "Name" when present,
// otherwise the first column of the file.
func (t *SourceTable) NameColumn() string {
	if t.HasColumn(colName) {
		return colName
	}
	if len(t.Columns) > 0 {
		return t.Columns[0]
	}
	return ""
}

// CustomMapping routes a source column into an extension column appended
// after the fixed zzTakeoff fields.
type CustomMapping struct {
	SourceColumn string `yaml:"source_column" json:"source_column"`
	TargetColumn string `yaml:"target_column" json:"target_column"`
}

type CustomValue struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// MappedRecord is one output row in the zzTakeoff import schema. Every field
// stays a string so exports preserve source formatting (leading zeros,
// currency text) verbatim.
type MappedRecord struct {
	CostType         string        `json:"cost_type"`
	Name             string        `json:"name"`
	Usage            string        `json:"usage"`
	TakeoffType      string        `json:"takeoff_type"`
	Formula          string        `json:"formula"`
	WastePercent     string        `json:"waste_percent"`
	RoundUpToNearest string        `json:"round_up_to_nearest"`
	SKU              string        `json:"sku"`
	Description      string        `json:"description"`
	CostEach         string        `json:"cost_each"`
	MarkupPercent    string        `json:"markup_percent"`
	Units            string        `json:"units"`
	Custom           []CustomValue `json:"custom,omitempty"`
}

// exportColumns is the fixed zzTakeoff import column order. Extension
// columns from custom mappings follow these.
var exportColumns = []string{
	"Cost Type",
	"Name",
	"Usage",
	"Takeoff Type",
	"Formula",
	"Waste %",
	"Round Up to Nearest",
	"SKU",
	"Description",
	"Cost Each",
	"Markup %",
	"Units",
}

func (m MappedRecord) exportValues() []string {
	vals := []string{
		m.CostType,
		m.Name,
		m.Usage,
		m.TakeoffType,
		m.Formula,
		m.WastePercent,
		m.RoundUpToNearest,
		m.SKU,
		m.Description,
		m.CostEach,
		m.MarkupPercent,
		m.Units,
	}
	for _, cv := range m.Custom {
		vals = append(vals, cv.Value)
	}
	return vals
}

// InitializeMappedRecords builds one blank-classified record per source row:
// name (with first-column fallback), code, unit price and units carried over,
// description mirroring the name, custom mappings appended in order.
func InitializeMappedRecords(table *SourceTable, mappings []CustomMapping) []MappedRecord {
	if table == nil {
		return nil
	}
	nameCol := table.NameColumn()
	records := make([]MappedRecord, len(table.Rows))
	for i, row := range table.Rows {
		rec := MappedRecord{
			Name:     row.field(nameCol),
			SKU:      row.field(colCode),
			CostEach: row.field(colUnitPrice),
			Units:    row.field(colUnits),
		}
		rec.Description = rec.Name
		for _, m := range mappings {
			if m.SourceColumn == "" || m.TargetColumn == "" {
				continue
			}
			rec.Custom = append(rec.Custom, CustomValue{
				Column: m.TargetColumn,
				Value:  row.field(m.SourceColumn),
			})
		}
		records[i] = rec
	}
	return records
}

// customColumnNames returns the extension column headers in mapping order.
func customColumnNames(mappings []CustomMapping) []string {
	var names []string
	for _, m := range mappings {
		if m.SourceColumn == "" || m.TargetColumn == "" {
			continue
		}
		names = append(names, m.TargetColumn)
	}
	return names
}
