package features

import (
	"github.com/hybrid-diagnosis-engine/internal/domain"
)

// SchemaSource records where an aligned column order came from.
type SchemaSource string

const (
	SchemaDeclared SchemaSource = "declared"
	SchemaFallback SchemaSource = "fallback"
	SchemaNone     SchemaSource = "none"
)

// Aligned is a record restricted and ordered to one model's expected columns.
type Aligned struct {
	Columns []string
	Values  []float64
	Source  SchemaSource
	// Imputed lists expected columns that were absent from the record and set to 0.
	Imputed []string
}

// Value returns the aligned value for a column.
func (a *Aligned) Value(column string) (float64, bool) {
	for i, c := range a.Columns {
		if c == column {
			return a.Values[i], true
		}
	}
	return 0, false
}

// Align resolves the columns the model expects: its declared schema first, then
// the fallback list, else the whole record in canonical order. Missing expected
// columns are imputed with 0.
func Align(record domain.FeatureRecord, model domain.Scorer, fallback []string) *Aligned {
	cols, source := resolveColumns(record, model, fallback)

	out := &Aligned{
		Columns: cols,
		Values:  make([]float64, len(cols)),
		Source:  source,
	}
	for i, c := range cols {
		v, ok := record[c]
		if !ok {
			out.Imputed = append(out.Imputed, c)
		}
		out.Values[i] = v
	}
	return out
}

func resolveColumns(record domain.FeatureRecord, model domain.Scorer, fallback []string) ([]string, SchemaSource) {
	if sp, ok := model.(domain.SchemaProvider); ok {
		if names := sp.FeatureNames(); len(names) > 0 {
			return copyColumns(names), SchemaDeclared
		}
	}
	if len(fallback) > 0 {
		return copyColumns(fallback), SchemaFallback
	}
	return recordColumns(record), SchemaNone
}

// recordColumns lists the canonical columns first, then any extra columns in lexical order.
func recordColumns(record domain.FeatureRecord) []string {
	cols := make([]string, 0, len(record))
	seen := make(map[string]bool, len(record))
	for _, c := range allColumns {
		if _, ok := record[c]; ok {
			cols = append(cols, c)
			seen[c] = true
		}
	}
	for _, c := range record.Columns() {
		if !seen[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

func copyColumns(cols []string) []string {
	out := make([]string, len(cols))
	copy(out, cols)
	return out
}
