package specialty

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	HeaderID   = "Specialty ID"
	HeaderName = "Specialty Name"
)

// ErrLookupLoad marks a side table that could not be read or understood.
// Callers treat it as recoverable and continue with an empty Mapping.
var ErrLookupLoad = errors.New("specialty table load failed")

// LoadReport describes what a load kept and skipped.
type LoadReport struct {
	Source       string
	Rows         int
	Entries      int
	SkippedRows  int
	DuplicateIDs []string
}

// Load reads the side table at path. Excel workbooks (.xlsx, .xlsm) are read
// from their first sheet; .csv files are read as comma separated text. The
// first row must be the header. When the same ID appears more than once the
// last row wins. On failure the returned Mapping is empty and the error wraps
// ErrLookupLoad.
func Load(path string) (Mapping, LoadReport, error) {
	report := LoadReport{Source: path}

	blob, err := os.ReadFile(path)
	if err != nil {
		return Mapping{}, report, fmt.Errorf("%w: %v", ErrLookupLoad, err)
	}

	var rows [][]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = readXLSXRows(blob)
	case ".csv":
		rows, err = readCSVRows(blob)
	default:
		err = fmt.Errorf("unsupported specialty table format: %s", filepath.Ext(path))
	}
	if err != nil {
		return Mapping{}, report, fmt.Errorf("%w: %v", ErrLookupLoad, err)
	}

	mapping, report, err := buildMapping(rows, report)
	if err != nil {
		return Mapping{}, report, fmt.Errorf("%w: %v", ErrLookupLoad, err)
	}
	return mapping, report, nil
}

func readXLSXRows(blob []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

func readCSVRows(blob []byte) ([][]string, error) {
	br := bufio.NewReader(bytes.NewReader(blob))
	if bom, err := br.Peek(3); err == nil && bytes.Equal(bom, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}
	r := csv.NewReader(br)
	r.FieldsPerRecord = -1
	var out [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func buildMapping(rows [][]string, report LoadReport) (Mapping, LoadReport, error) {
	if len(rows) == 0 {
		return Mapping{}, report, errors.New("specialty table is empty")
	}

	idIdx := findHeader(rows[0], HeaderID)
	nameIdx := findHeader(rows[0], HeaderName)
	if idIdx < 0 || nameIdx < 0 {
		return Mapping{}, report, fmt.Errorf("specialty table needs %q and %q columns", HeaderID, HeaderName)
	}

	names := map[string]string{}
	seen := map[string]struct{}{}
	for _, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		report.Rows++

		id := cell(row, idIdx)
		name := cell(row, nameIdx)
		if id == "" || name == "" {
			report.SkippedRows++
			continue
		}
		if _, dup := seen[id]; dup {
			report.DuplicateIDs = append(report.DuplicateIDs, id)
		}
		seen[id] = struct{}{}
		names[id] = name
	}

	report.Entries = len(names)
	return Mapping{names: names}, report, nil
}

func findHeader(headers []string, want string) int {
	for i, h := range headers {
		if strings.TrimSpace(h) == want {
			return i
		}
	}
	for i, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h), want) {
			return i
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
