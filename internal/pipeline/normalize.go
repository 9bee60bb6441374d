package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"npisearch/internal"
)

// ErrSchemaMismatch is returned when the query result lacks one of the base columns.
var ErrSchemaMismatch = errors.New("schema mismatch")

// SpecialtyLookup resolves a specialty code to its display name.
type SpecialtyLookup interface {
	Lookup(id string) (string, bool)
}

// NormalizeStats counts what each step of Normalize kept or dropped.
type NormalizeStats struct {
	RawRows      int
	Unwrapped    int
	DroppedBlank int
	DroppedDupe  int
	Records      int
	Matched      int
}

// Normalize turns a raw query result into provider records. The table is
// modified in place by timezone stripping. Output keeps input order and holds
// at most one record per (NPI, SPECIALTIES) pair, never one with a blank
// SPECIALTIES value.
func Normalize(table *internal.RawTable, lookup SpecialtyLookup) ([]internal.ProviderRecord, NormalizeStats, error) {
	stats := NormalizeStats{RawRows: len(table.Rows)}

	StripTimezones(table)

	idx, err := selectColumns(table.Columns)
	if err != nil {
		return nil, stats, err
	}

	seen := map[string]struct{}{}
	out := make([]internal.ProviderRecord, 0, len(table.Rows))
	for _, row := range table.Rows {
		var fields [4]*string
		for i, col := range internal.BaseColumns {
			var raw any
			if idx[i] < len(row) {
				raw = row[idx[i]]
			}
			res := UnwrapValue(raw, col)
			if res.OK {
				stats.Unwrapped++
			}
			fields[i] = CanonicalString(res.Value)
		}

		rec := internal.ProviderRecord{
			NPI:         fields[0],
			FirstName:   fields[1],
			LastName:    fields[2],
			Specialties: fields[3],
		}
		if rec.Specialties == nil || *rec.Specialties == "" {
			stats.DroppedBlank++
			continue
		}

		key := dedupeKey(rec.NPI, rec.Specialties)
		if _, dup := seen[key]; dup {
			stats.DroppedDupe++
			continue
		}
		seen[key] = struct{}{}

		rec.SpecialtyDerived = deriveSpecialty(rec.Specialties, lookup)
		if rec.Matched() {
			stats.Matched++
		}
		out = append(out, rec)
	}

	stats.Records = len(out)
	return out, stats, nil
}

// selectColumns returns the position of each base column. Exact names win;
// otherwise a case-insensitive match is accepted.
func selectColumns(cols []internal.Column) ([4]int, error) {
	var idx [4]int
	var missing []string
	for i, want := range internal.BaseColumns {
		idx[i] = -1
		for j, c := range cols {
			if c.Name == want {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			for j, c := range cols {
				if strings.EqualFold(strings.TrimSpace(c.Name), want) {
					idx[i] = j
					break
				}
			}
		}
		if idx[i] < 0 {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		return idx, fmt.Errorf("%w: missing columns %s", ErrSchemaMismatch, strings.Join(missing, ", "))
	}
	return idx, nil
}

func dedupeKey(npi, specialties *string) string {
	part := func(v *string) string {
		if v == nil {
			return "\x01"
		}
		return "\x02" + *v
	}
	return part(npi) + "\x00" + part(specialties)
}

func deriveSpecialty(code *string, lookup SpecialtyLookup) *string {
	if code == nil || *code == "" || lookup == nil {
		return nil
	}
	name, ok := lookup.Lookup(*code)
	if !ok {
		return nil
	}
	return &name
}
