package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"

	"npisearch/internal"
	"npisearch/internal/util"
)

const noMatchLabel = "(no match)"

// RenderTable writes records as an aligned pipe table. Widths are measured in
// terminal cells so wide characters line up.
func RenderTable(w io.Writer, records []internal.ProviderRecord) error {
	table := make([][]string, 0, len(records)+1)
	table = append(table, append([]string{}, ExportHeaders...))
	for _, rec := range records {
		derived := noMatchLabel
		if rec.Matched() {
			derived = *rec.SpecialtyDerived
		}
		table = append(table, []string{
			util.DerefString(rec.NPI),
			util.DerefString(rec.FirstName),
			util.DerefString(rec.LastName),
			util.DerefString(rec.Specialties),
			derived,
		})
	}

	widths := make([]int, len(ExportHeaders))
	for _, row := range table {
		for i, c := range row {
			if n := runewidth.StringWidth(c); n > widths[i] {
				widths[i] = n
			}
		}
	}

	var sb strings.Builder
	writeRow := func(row []string) {
		sb.WriteString("|")
		for i, c := range row {
			sb.WriteString(" ")
			sb.WriteString(c)
			sb.WriteString(strings.Repeat(" ", widths[i]-runewidth.StringWidth(c)))
			sb.WriteString(" |")
		}
		sb.WriteString("\n")
	}

	writeRow(table[0])
	sb.WriteString("|")
	for _, width := range widths {
		sb.WriteString(strings.Repeat("-", width+2))
		sb.WriteString("|")
	}
	sb.WriteString("\n")
	for _, row := range table[1:] {
		writeRow(row)
	}
	fmt.Fprintf(&sb, "%d row(s)\n", len(records))

	_, err := io.WriteString(w, sb.String())
	return err
}

// RenderJSON writes records as an indented JSON array.
func RenderJSON(w io.Writer, records []internal.ProviderRecord) error {
	if records == nil {
		records = []internal.ProviderRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}
