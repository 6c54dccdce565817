package ingest

import "strings"

// ColumnMap maps canonical fields to resolved column offsets for one batch.
// A field missing from the map was not found in this batch's header; that is
// never an error, the field simply reads as absent for every row.
type ColumnMap map[Field]int

// ResolveColumns builds the batch's column map. In named-header mode each
// field's label is scanned for across the header row, trimmed and
// case-folded, first match wins. In positional mode the profile's fixed
// offsets are used as-is; nothing is scanned and absence cannot be detected.
func ResolveColumns(header []string, profile Profile) ColumnMap {
	if profile.Layout == LayoutPositional {
		cols := make(ColumnMap, len(profile.Positions))
		for field, idx := range profile.Positions {
			cols[field] = idx
		}
		return cols
	}

	cols := make(ColumnMap, len(profile.Labels))
	for field, label := range profile.Labels {
		if idx, ok := findColumn(header, label); ok {
			cols[field] = idx
		}
	}
	return cols
}

func findColumn(header []string, label string) (int, bool) {
	want := strings.ToLower(strings.TrimSpace(label))
	for i, cell := range header {
		if strings.ToLower(strings.TrimSpace(cell)) == want {
			return i, true
		}
	}
	return 0, false
}
