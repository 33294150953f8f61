package record

import "math"

// SanitizeReport counts what sanitization did, for observability.
type SanitizeReport struct {
	Kept           int
	Dropped        int
	Padded         int
	Truncated      int
	FixedNonFinite int
}

// Sanitize normalizes raw (id, vector) rows into a uniform-dimension Store.
//
// The target dimension is the most frequent vector length in the input, with
// ties broken by the larger length. Rows without an id or with an empty
// vector are dropped, as are rows whose id was already seen. Longer vectors
// are truncated, shorter ones zero-padded, and every non-finite scalar is
// replaced with 0.
//
// Sanitize returns ErrEmptyDataset when no row has a positive vector length.
func Sanitize(rows []Record) (*Store, SanitizeReport, error) {
	var report SanitizeReport

	dimension := modalLength(rows)
	if dimension == 0 {
		report.Dropped = len(rows)
		return nil, report, ErrEmptyDataset
	}

	store := NewStore(dimension)

	for _, row := range rows {
		if row.ID == "" || len(row.Vector) == 0 {
			report.Dropped++
			continue
		}
		if _, dup := store.Lookup(row.ID); dup {
			report.Dropped++
			continue
		}

		vec := make([]float32, dimension)
		n := copy(vec, row.Vector)

		switch {
		case len(row.Vector) > dimension:
			report.Truncated++
		case len(row.Vector) < dimension:
			report.Padded++
		}

		fixed := false
		for i := 0; i < n; i++ {
			if f := float64(vec[i]); math.IsNaN(f) || math.IsInf(f, 0) {
				vec[i] = 0
				fixed = true
			}
		}
		if fixed {
			report.FixedNonFinite++
		}

		store.Add(Record{ID: row.ID, Vector: vec})
		report.Kept++
	}

	if store.Len() == 0 {
		return nil, report, ErrEmptyDataset
	}

	return store, report, nil
}

// modalLength returns the most frequent positive vector length,
// breaking ties toward the larger length. Zero means no usable rows.
func modalLength(rows []Record) int {
	freq := make(map[int]int)
	for _, row := range rows {
		if len(row.Vector) > 0 {
			freq[len(row.Vector)]++
		}
	}

	best, bestCount := 0, 0
	for length, count := range freq {
		if count > bestCount || (count == bestCount && length > best) {
			best, bestCount = length, count
		}
	}
	return best
}
