package pipeline

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"npisearch/internal"
	"npisearch/internal/util"
)

// ExportHeaders is the header row of the exported sheet.
var ExportHeaders = []string{"NPI", "FIRST_NAME", "LAST_NAME", "SPECIALTIES", "Specialty Derived"}

// ExportFileName is the spreadsheet name used for an NPI.
func ExportFileName(npi string) string {
	return util.SanitizeFileName(npi) + ".xlsx"
}

// ExportRecordsToXLSX writes records to outputPath, creating parent
// directories. Null values and unmatched specialties are left blank.
func ExportRecordsToXLSX(records []internal.ProviderRecord, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	for i, h := range ExportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, rec := range records {
		r := i + 2
		set := func(col int, value *string) {
			if value == nil {
				return
			}
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellStr(sheet, cell, *value)
		}

		set(1, rec.NPI)
		set(2, rec.FirstName)
		set(3, rec.LastName)
		set(4, rec.Specialties)
		set(5, rec.SpecialtyDerived)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}
