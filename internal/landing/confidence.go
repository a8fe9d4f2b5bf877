package landing

import (
	"encoding/json"
	"fmt"
	"os"
)

// ConfidenceTable maps primary source -> secondary source (or "default") -> weight 0-100
type ConfidenceTable map[string]map[string]int

// Weight looks up the weight for a primary/secondary pair, falling back to the
// primary's default entry. ok is false when the primary source has neither.
func (t ConfidenceTable) Weight(primary, secondary string) (int, bool) {
	row, ok := t[primary]
	if !ok {
		return 0, false
	}
	if w, ok := row[secondary]; ok {
		return w, true
	}
	w, ok := row[SourceDefault]
	return w, ok
}

// Apply scales a base probability by the source weight
func (t ConfidenceTable) Apply(primary, secondary string, probability float64) (float64, bool) {
	w, ok := t.Weight(primary, secondary)
	if !ok {
		return 0, false
	}
	return probability * float64(w) / 100, true
}

// Validate checks that every weight is within 0-100
func (t ConfidenceTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("confidence table is empty")
	}
	for primary, row := range t {
		for secondary, w := range row {
			if w < 0 || w > 100 {
				return fmt.Errorf("weight %s/%s out of range: %d", primary, secondary, w)
			}
		}
	}
	return nil
}

// LoadConfidenceTable reads a confidence table from a JSON file
func LoadConfidenceTable(path string) (ConfidenceTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read confidence table: %w", err)
	}

	var table ConfidenceTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse confidence table: %w", err)
	}

	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}
